// Package idtoken mints service-to-service identity tokens scoped to an
// upstream base URL, using the ambient Google credential source.
package idtoken

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/oauth2"
	"google.golang.org/api/idtoken"
)

// Source caches one self-refreshing token source per audience URL.
// Token acquisition is best-effort: the gateway forwards without the
// token on failure and the upstream decides whether to reject.
type Source struct {
	mu      sync.Mutex
	sources map[string]oauth2.TokenSource

	// newTokenSource is swappable for tests.
	newTokenSource func(ctx context.Context, audience string) (oauth2.TokenSource, error)
}

// NewSource creates a token source backed by Application Default Credentials.
func NewSource() *Source {
	return &Source{
		sources: make(map[string]oauth2.TokenSource),
		newTokenSource: func(ctx context.Context, audience string) (oauth2.TokenSource, error) {
			return idtoken.NewTokenSource(ctx, audience)
		},
	}
}

// TokenFor returns an identity token whose audience is the given upstream
// base URL.
func (s *Source) TokenFor(ctx context.Context, audience string) (string, error) {
	ts, err := s.sourceFor(ctx, audience)
	if err != nil {
		return "", fmt.Errorf("creating token source for %q: %w", audience, err)
	}

	tok, err := ts.Token()
	if err != nil {
		return "", fmt.Errorf("minting identity token for %q: %w", audience, err)
	}
	return tok.AccessToken, nil
}

func (s *Source) sourceFor(ctx context.Context, audience string) (oauth2.TokenSource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ts, ok := s.sources[audience]; ok {
		return ts, nil
	}
	ts, err := s.newTokenSource(ctx, audience)
	if err != nil {
		return nil, err
	}
	s.sources[audience] = ts
	return ts, nil
}

// Disabled is an IdentityTokenSource for environments that do not require
// service-to-service authentication. It always returns an empty token.
type Disabled struct{}

func (Disabled) TokenFor(context.Context, string) (string, error) {
	return "", nil
}
