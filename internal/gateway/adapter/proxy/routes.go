package proxy

import (
	"net/url"
	"sort"
	"strings"
	"time"
)

// Route maps an inbound path prefix to an upstream service.
// Routes are built once at startup and immutable afterward.
type Route struct {
	Prefix  string   // inbound prefix, with trailing slash (e.g. "/api/")
	BaseURL *url.URL // upstream base
	Backend string   // metrics label (e.g. "api", "ai")

	Timeout     time.Duration // whole-exchange deadline per request
	FileTimeout time.Duration // extended deadline for file-handling paths

	InjectEmail           bool // add X-User-Email alongside X-User-Id
	RequiresIdentityToken bool // fetch a service-to-service token for this upstream
}

// filePathSegments are path segments that indicate large transfers and get
// the extended timeout.
var filePathSegments = []string{"/upload", "/files"}

// timeoutFor picks the deadline for a request to suffix (the path with the
// route prefix already stripped).
func (rt Route) timeoutFor(suffix string) time.Duration {
	for _, seg := range filePathSegments {
		if strings.HasPrefix(suffix, seg) {
			return rt.FileTimeout
		}
	}
	return rt.Timeout
}

// suffix strips the route prefix from an inbound path, keeping the leading
// slash, so "/api/users/me" on prefix "/api/" becomes "/users/me".
func (rt Route) suffix(path string) string {
	return path[len(rt.Prefix)-1:]
}

// Table resolves inbound paths to routes by longest matching prefix.
type Table struct {
	routes []Route
}

// NewTable builds a route table. Routes are ordered longest prefix first so
// Resolve returns the most specific match.
func NewTable(routes ...Route) *Table {
	sorted := make([]Route, len(routes))
	copy(sorted, routes)
	sort.Slice(sorted, func(i, j int) bool {
		return len(sorted[i].Prefix) > len(sorted[j].Prefix)
	})
	return &Table{routes: sorted}
}

// Resolve returns the route whose prefix matches path, or false if the path
// is not proxied.
func (t *Table) Resolve(path string) (Route, bool) {
	for _, rt := range t.routes {
		if strings.HasPrefix(path, rt.Prefix) {
			return rt, true
		}
	}
	return Route{}, false
}
