package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"stack/internal/domain"
	gw "stack/internal/gateway"
)

// hopByHopHeaders are transport-framing headers the outer transport
// recomputes. Forwarding stale values corrupts client-side decoding.
var hopByHopHeaders = []string{
	"Content-Encoding",
	"Content-Length",
	"Transfer-Encoding",
	"Connection",
}

// bodyMethods are the methods whose request body is forwarded upstream.
var bodyMethods = map[string]bool{
	http.MethodPost:  true,
	http.MethodPut:   true,
	http.MethodPatch: true,
}

// Forwarder builds and sends outbound requests to upstream services.
//
// The original caller's Authorization header never reaches the upstream:
// it is replaced by identity headers and, where the route requires it, a
// service-to-service identity token. No retries: request bodies may not be
// safely re-sent, so failures surface immediately.
type Forwarder struct {
	client *http.Client
	tokens gw.IdentityTokenSource
}

// NewForwarder creates a forwarder. connectTimeout bounds connection
// establishment separately from each route's whole-exchange deadline.
func NewForwarder(tokens gw.IdentityTokenSource, connectTimeout time.Duration) *Forwarder {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   connectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &Forwarder{
		client: &http.Client{Transport: transport},
		tokens: tokens,
	}
}

// Forward sends the inbound request to the route's upstream on behalf of
// the verified identity. The returned cancel function must be called after
// the response body has been fully consumed.
//
// The outbound request derives from the inbound context, so a client
// disconnect cancels the upstream call instead of leaking in-flight work.
func (f *Forwarder) Forward(r *http.Request, rt Route, id domain.Identity) (*http.Response, context.CancelFunc, error) {
	suffix := rt.suffix(r.URL.Path)
	ctx, cancel := context.WithTimeout(r.Context(), rt.timeoutFor(suffix))

	outURL := *rt.BaseURL
	outURL.Path = singleJoin(rt.BaseURL.Path, suffix)
	outURL.RawQuery = r.URL.RawQuery

	var body io.Reader
	if bodyMethods[r.Method] {
		body = r.Body
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, outURL.String(), body)
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("building outbound request: %w", err)
	}

	req.Header = r.Header.Clone()
	// The inbound credential and Host must never reach the upstream
	req.Header.Del("Authorization")
	req.Header.Del("Host")
	// Let the transport negotiate compression itself: with an explicit
	// Accept-Encoding it would hand back the raw compressed bytes, and
	// Relay strips Content-Encoding, so the caller could not decode them
	req.Header.Del("Accept-Encoding")

	req.Header.Set("X-User-Id", id.UserID)
	if rt.InjectEmail {
		req.Header.Set("X-User-Email", id.Email)
	}
	if reqID := gw.RequestIDFromContext(r.Context()); reqID != "" {
		req.Header.Set("X-Request-ID", reqID)
	}

	if rt.RequiresIdentityToken && f.tokens != nil {
		tok, err := f.tokens.TokenFor(ctx, rt.BaseURL.String())
		switch {
		case err != nil:
			// Best-effort hardening: forward without the token, let the
			// upstream reject if it insists on one
			slog.Warn("identity token unavailable, forwarding without it",
				"backend", rt.Backend, "error", err)
		case tok != "":
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		cancel()
		return nil, nil, classifyForwardError(err)
	}
	return resp, cancel, nil
}

func classifyForwardError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", domain.ErrUpstreamTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %w", domain.ErrUpstreamTimeout, err)
	}
	return fmt.Errorf("%w: %w", domain.ErrUpstreamUnreachable, err)
}

// Relay copies the upstream response to the caller: status and body
// verbatim, headers minus the hop-by-hop set. Content-Type passes through
// so JSON and binary payloads alike arrive unchanged.
func Relay(w http.ResponseWriter, resp *http.Response) {
	defer resp.Body.Close()

	header := w.Header()
	for key, values := range resp.Header {
		if isHopByHop(key) {
			continue
		}
		for _, v := range values {
			header.Add(key, v)
		}
	}

	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		slog.Debug("copying upstream response body", "error", err)
	}
}

func isHopByHop(key string) bool {
	for _, h := range hopByHopHeaders {
		if http.CanonicalHeaderKey(key) == h {
			return true
		}
	}
	return false
}

func singleJoin(a, b string) string {
	switch {
	case a == "" || a == "/":
		return b
	case len(a) > 0 && a[len(a)-1] == '/':
		return a[:len(a)-1] + b
	default:
		return a + b
	}
}
