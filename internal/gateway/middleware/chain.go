package middleware

import "net/http"

// Middleware wraps an http.Handler with additional behavior.
type Middleware func(http.Handler) http.Handler

// Chain wraps handler with mw in order: the first middleware sees the
// request first and the response last.
func Chain(handler http.Handler, mw ...Middleware) http.Handler {
	wrapped := handler
	for i := len(mw) - 1; i >= 0; i-- {
		wrapped = mw[i](wrapped)
	}
	return wrapped
}
