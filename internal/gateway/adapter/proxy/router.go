package proxy

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"stack/internal/domain"
	gw "stack/internal/gateway"
	"stack/internal/platform/telemetry"
)

const (
	defaultTimeout        = 30 * time.Second
	defaultFileTimeout    = 60 * time.Second
	defaultConnectTimeout = 10 * time.Second
)

// Config holds the upstream targets and timeout policy for the router.
// Zero timeouts fall back to the defaults.
type Config struct {
	APIServiceURL string
	AIServiceURL  string

	Timeout        time.Duration
	FileTimeout    time.Duration
	ConnectTimeout time.Duration

	// FetchIdentityTokens marks routes as requiring a service-to-service
	// identity token on the outbound leg.
	FetchIdentityTokens bool
}

// Router dispatches authenticated requests to upstream services and serves
// the gateway's own unauthenticated status endpoints.
type Router struct {
	mux     *http.ServeMux
	table   *Table
	fwd     *Forwarder
	metrics *telemetry.GatewayMetrics
}

// NewRouter creates a router with the static two-route table:
// /api/ to the API service and /ai/ to the AI service.
// The metrics parameter is optional; pass nil to skip metric recording.
func NewRouter(cfg Config, tokens gw.IdentityTokenSource, m *telemetry.GatewayMetrics) (*Router, error) {
	apiURL, err := url.Parse(cfg.APIServiceURL)
	if err != nil {
		return nil, fmt.Errorf("parse API service URL: %w", err)
	}
	aiURL, err := url.Parse(cfg.AIServiceURL)
	if err != nil {
		return nil, fmt.Errorf("parse AI service URL: %w", err)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	fileTimeout := cfg.FileTimeout
	if fileTimeout == 0 {
		fileTimeout = defaultFileTimeout
	}
	connectTimeout := cfg.ConnectTimeout
	if connectTimeout == 0 {
		connectTimeout = defaultConnectTimeout
	}

	r := &Router{
		mux: http.NewServeMux(),
		table: NewTable(
			Route{
				Prefix:  "/api/",
				BaseURL: apiURL,
				Backend: "api",
				Timeout: timeout, FileTimeout: fileTimeout,
				InjectEmail:           true,
				RequiresIdentityToken: cfg.FetchIdentityTokens,
			},
			Route{
				Prefix:  "/ai/",
				BaseURL: aiURL,
				Backend: "ai",
				Timeout: timeout, FileTimeout: fileTimeout,
				InjectEmail:           false,
				RequiresIdentityToken: cfg.FetchIdentityTokens,
			},
		),
		fwd:     NewForwarder(tokens, connectTimeout),
		metrics: m,
	}

	r.mux.HandleFunc("GET /{$}", r.root)
	r.mux.HandleFunc("GET /health", r.health)
	r.mux.HandleFunc("/", r.proxy)

	return r, nil
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

func (r *Router) proxy(w http.ResponseWriter, req *http.Request) {
	rt, ok := r.table.Resolve(req.URL.Path)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "no route for path")
		return
	}

	identity, ok := gw.IdentityFromContext(req.Context())
	if !ok {
		// Auth middleware fronts this handler; a missing identity means
		// the request never passed verification
		writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	start := time.Now()
	resp, cancel, err := r.fwd.Forward(req, rt, identity)
	if err != nil {
		status := http.StatusBadGateway
		code := "bad_gateway"
		if errors.Is(err, domain.ErrUpstreamTimeout) {
			status = http.StatusGatewayTimeout
			code = "gateway_timeout"
		}
		slog.Error("forwarding failed",
			"backend", rt.Backend,
			"path", req.URL.Path,
			"error", err,
		)
		if r.metrics != nil {
			r.metrics.RecordProxyRequest(req.Context(), rt.Backend, status, time.Since(start).Seconds())
		}
		writeError(w, status, code, err.Error())
		return
	}
	defer cancel()

	sw := &gw.StatusWriter{ResponseWriter: w, Code: http.StatusOK}
	Relay(sw, resp)

	if r.metrics != nil {
		r.metrics.RecordProxyRequest(req.Context(), rt.Backend, resp.StatusCode, time.Since(start).Seconds())
	}
}

func (r *Router) root(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"service": "gateway", "status": "healthy"})
}

func (r *Router) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"status": "healthy", "service": "gateway"})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(domain.ErrorResponse{
		Error:   code,
		Message: msg,
	}); err != nil {
		slog.Error("encoding error response", "error", err)
	}
}
