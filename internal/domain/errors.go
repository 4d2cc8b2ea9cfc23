package domain

import "errors"

// Sentinel errors used across service boundaries.
var (
	// Credential verification failures. The first three surface as 401,
	// ErrAuthUnavailable as 503.
	ErrMissingCredential   = errors.New("authorization header missing")
	ErrMalformedCredential = errors.New("malformed authorization header")
	ErrInvalidCredential   = errors.New("invalid token")
	ErrAuthUnavailable     = errors.New("authentication service unavailable")

	// Routing and forwarding failures. Unreachable surfaces as 502,
	// timeout as 504. Neither is retried.
	ErrRouteNotFound       = errors.New("no route for path")
	ErrUpstreamUnreachable = errors.New("upstream unreachable")
	ErrUpstreamTimeout     = errors.New("upstream timeout")

	// Resource failures shared by the backend services.
	ErrNotFound    = errors.New("not found")
	ErrForbidden   = errors.New("access denied")
	ErrRateLimited = errors.New("rate limited")
)

// ErrorResponse is the standard JSON error envelope returned to clients.
type ErrorResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retry_after,omitempty"`
}
