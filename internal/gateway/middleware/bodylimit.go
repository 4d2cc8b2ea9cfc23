package middleware

import "net/http"

// MaxBodySize returns middleware that caps request body size at maxBytes.
// Handlers reading past the cap get an error from the body, which
// http.MaxBytesReader turns into a 413 for the client.
func MaxBodySize(maxBytes int64) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
