package middleware

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"stack/internal/domain"
	gw "stack/internal/gateway"
	"stack/internal/gateway/auth"
	"stack/internal/platform/telemetry"
)

// Auth returns a middleware that resolves the Authorization header to a
// caller identity and stores it in the request context. Paths in
// publicPaths are exempt. Verification failures end the request here: an
// unauthenticated request never reaches the proxy, so no upstream call is
// made for it. The metrics parameter is optional; pass nil to skip metric
// recording.
func Auth(verifier *auth.Verifier, publicPaths []string, m *telemetry.GatewayMetrics) Middleware {
	public := make(map[string]struct{}, len(publicPaths))
	for _, p := range publicPaths {
		public[p] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := public[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			identity, err := verifier.Verify(r.Context(), r.Header.Get("Authorization"))
			if err != nil {
				slog.Debug("auth validation failed", "error", err, "path", r.URL.Path)
				if m != nil {
					m.RecordAuthValidation(r.Context(), "failure")
				}
				writeAuthError(w, err)
				return
			}

			if m != nil {
				m.RecordAuthValidation(r.Context(), "success")
			}
			ctx := gw.ContextWithIdentity(r.Context(), identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeAuthError(w http.ResponseWriter, err error) {
	status := http.StatusUnauthorized
	code := "unauthorized"
	msg := "invalid or expired token"

	switch {
	case errors.Is(err, domain.ErrMissingCredential):
		msg = "authorization header missing"
	case errors.Is(err, domain.ErrMalformedCredential):
		msg = "authorization header must be 'Bearer <token>'"
	case errors.Is(err, domain.ErrAuthUnavailable):
		status = http.StatusServiceUnavailable
		code = "auth_unavailable"
		msg = "authentication service unavailable"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if encErr := json.NewEncoder(w).Encode(domain.ErrorResponse{
		Error:   code,
		Message: msg,
	}); encErr != nil {
		slog.Error("encoding error response", "error", encErr)
	}
}
