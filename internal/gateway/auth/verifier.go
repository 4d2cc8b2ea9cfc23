// Package auth resolves bearer credentials to caller identities.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"stack/internal/domain"
	"stack/internal/gateway"
	"stack/internal/gateway/adapter/jwks"
)

const maxClockSkew = 30 * time.Second

// Mode selects how real (non-bypass) credentials are verified.
// It is resolved once at startup from configuration.
type Mode int

const (
	// ModeJWKS verifies signatures against the identity provider's key set.
	ModeJWKS Mode = iota
	// ModeDev grants a fixed development identity to any bearer credential.
	// Used when no signing key source is configured in a permissive environment.
	ModeDev
)

func (m Mode) String() string {
	switch m {
	case ModeJWKS:
		return "jwks"
	case ModeDev:
		return "dev"
	default:
		return "unknown"
	}
}

// Verifier resolves an Authorization header to a caller identity.
//
// The bypass token is checked first in every mode: a matching token short-
// circuits verification and grants the fixed test admin identity. The
// comparison is plain string equality, same as the environment variable it
// came from; it is a test convenience, not a production credential, and
// must be left empty in deployments that don't want it.
type Verifier struct {
	mode        Mode
	bypassToken string
	audience    string
	keys        gateway.KeyProvider
	keyTimeout  time.Duration
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithBypassToken enables the test bypass token. Empty disables it.
func WithBypassToken(token string) Option {
	return func(v *Verifier) { v.bypassToken = token }
}

// WithKeyTimeout bounds how long a signing key lookup may block.
func WithKeyTimeout(d time.Duration) Option {
	return func(v *Verifier) { v.keyTimeout = d }
}

// NewVerifier creates a verifier for the given mode. keys may be nil in
// ModeDev; in ModeJWKS a nil key provider makes every real verification
// fail with ErrAuthUnavailable.
func NewVerifier(mode Mode, keys gateway.KeyProvider, audience string, opts ...Option) *Verifier {
	v := &Verifier{
		mode:       mode,
		keys:       keys,
		audience:   audience,
		keyTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Mode returns the verifier's resolved mode.
func (v *Verifier) Mode() Mode { return v.mode }

// Verify resolves the Authorization header value to a caller identity.
//
// Returns domain.ErrMissingCredential when the header is absent,
// domain.ErrMalformedCredential when it does not carry a Bearer token,
// domain.ErrInvalidCredential (wrapping the cause) when verification fails,
// and domain.ErrAuthUnavailable when the signing key source cannot be
// reached or was never configured.
func (v *Verifier) Verify(ctx context.Context, authorization string) (domain.Identity, error) {
	if authorization == "" {
		return domain.Identity{}, domain.ErrMissingCredential
	}

	const scheme = "Bearer "
	if !strings.HasPrefix(authorization, scheme) {
		return domain.Identity{}, domain.ErrMalformedCredential
	}
	token := authorization[len(scheme):]
	if token == "" {
		return domain.Identity{}, domain.ErrMalformedCredential
	}

	if v.bypassToken != "" && token == v.bypassToken {
		return domain.TestAdminIdentity(), nil
	}

	if v.mode == ModeDev {
		return domain.DevIdentity(), nil
	}

	return v.verifyJWT(ctx, token)
}

func (v *Verifier) verifyJWT(ctx context.Context, tokenStr string) (domain.Identity, error) {
	if v.keys == nil {
		return domain.Identity{}, domain.ErrAuthUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, v.keyTimeout)
	defer cancel()

	// SECURITY: Only allow RS256 — prevents algorithm confusion attacks
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		kidRaw, ok := t.Header["kid"]
		if !ok {
			return nil, errors.New("token has no kid header")
		}
		kid, ok := kidRaw.(string)
		if !ok {
			return nil, errors.New("token kid is not a string")
		}
		key, err := v.keys.GetKey(ctx, kid)
		if err != nil {
			if errors.Is(err, jwks.ErrKeyNotFound) {
				return nil, err
			}
			// Key source unreachable or timed out: an outage, not a bad token
			return nil, fmt.Errorf("%w: %w", domain.ErrAuthUnavailable, err)
		}
		return key, nil
	},
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithAudience(v.audience),
		jwt.WithLeeway(maxClockSkew),
	)

	if err != nil {
		if errors.Is(err, domain.ErrAuthUnavailable) {
			return domain.Identity{}, fmt.Errorf("%w: %w", domain.ErrAuthUnavailable, err)
		}
		return domain.Identity{}, fmt.Errorf("%w: %w", domain.ErrInvalidCredential, err)
	}
	if !token.Valid {
		return domain.Identity{}, domain.ErrInvalidCredential
	}

	return identityFromClaims(token.Claims)
}

func identityFromClaims(claims jwt.Claims) (domain.Identity, error) {
	mc, ok := claims.(jwt.MapClaims)
	if !ok {
		return domain.Identity{}, fmt.Errorf("%w: unexpected claims type", domain.ErrInvalidCredential)
	}

	sub, _ := mc["sub"].(string)
	if sub == "" {
		// Some issuers put the user ID in a custom claim instead of sub
		sub, _ = mc["user_id"].(string)
	}
	if sub == "" {
		return domain.Identity{}, fmt.Errorf("%w: token has no subject", domain.ErrInvalidCredential)
	}

	email, _ := mc["email"].(string)
	name, _ := mc["name"].(string)
	role, _ := mc["role"].(string)

	return domain.Identity{
		UserID: sub,
		Email:  email,
		Name:   name,
		Role:   role,
		Raw:    mc,
	}, nil
}
