package gateway

import (
	"context"
	"crypto/rsa"
	"net/http"

	"stack/internal/domain"
)

// KeyProvider fetches and caches signing keys published by the identity
// provider's JWKS endpoint.
type KeyProvider interface {
	// GetKey returns the public key for the given key ID.
	GetKey(ctx context.Context, kid string) (*rsa.PublicKey, error)
}

// IdentityTokenSource obtains a service-to-service identity token scoped
// to an upstream base URL. Implementations return an empty token when the
// deployment does not require one.
type IdentityTokenSource interface {
	TokenFor(ctx context.Context, audience string) (string, error)
}

// RateLimiter decides whether a request identified by key should be allowed.
type RateLimiter interface {
	Allow(key string) RateLimitResult
}

// RateLimitResult holds the outcome of a rate limit check.
type RateLimitResult struct {
	Allowed    bool
	RetryAfter int // seconds until next token available; 0 if allowed
}

// StatusWriter wraps http.ResponseWriter to capture the status code.
type StatusWriter struct {
	http.ResponseWriter
	Code int
}

func (sw *StatusWriter) WriteHeader(code int) {
	sw.Code = code
	sw.ResponseWriter.WriteHeader(code)
}

// IdentityFromContext extracts the verified caller identity from a request context.
func IdentityFromContext(ctx context.Context) (domain.Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(domain.Identity)
	return id, ok
}

// ContextWithIdentity stores the verified caller identity in the context.
func ContextWithIdentity(ctx context.Context, id domain.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

type identityKey struct{}

// RequestIDFromContext extracts the request ID from the context.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// ContextWithRequestID stores the request ID in the context.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

type requestIDKey struct{}
