// Package testutil provides helpers for exercising the gateway and its
// collaborators in tests: RSA key pairs, signed tokens, and HTTP doubles
// for the JWKS endpoint and the upstream services.
package testutil

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// GenerateTestKeyPair generates an RSA key pair for testing.
// Returns (keyID, privateKey, publicKey).
func GenerateTestKeyPair(t *testing.T) (string, *rsa.PrivateKey, *rsa.PublicKey) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generating RSA key: %v", err)
	}
	kid := fmt.Sprintf("test-key-%d", time.Now().UnixNano())
	return kid, priv, &priv.PublicKey
}

// TokenOpts describes the claims of a test token.
type TokenOpts struct {
	Subject  string
	Email    string
	Name     string
	Role     string
	Audience string
	TTL      time.Duration // negative produces an already-expired token
}

// IssueTestToken creates a signed RS256 JWT for testing.
func IssueTestToken(t *testing.T, kid string, priv *rsa.PrivateKey, opts TokenOpts) string {
	t.Helper()

	now := time.Now()
	claims := jwt.MapClaims{
		"sub": opts.Subject,
		"iat": now.Unix(),
		"exp": now.Add(opts.TTL).Unix(),
		"aud": opts.Audience,
		"iss": "stack-test",
	}
	if opts.Email != "" {
		claims["email"] = opts.Email
	}
	if opts.Name != "" {
		claims["name"] = opts.Name
	}
	if opts.Role != "" {
		claims["role"] = opts.Role
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid

	signed, err := token.SignedString(priv)
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return signed
}

// MockJWKSHandler returns an http.Handler that serves a JWKS response
// containing the given public key.
func MockJWKSHandler(kid string, pub *rsa.PublicKey) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		jwks := map[string]any{
			"keys": []map[string]any{
				{
					"kty": "RSA",
					"alg": "RS256",
					"use": "sig",
					"kid": kid,
					"n":   base64URLEncode(pub.N.Bytes()),
					"e":   base64URLEncode(big.NewInt(int64(pub.E)).Bytes()),
				},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(jwks)
	})
}

// MockUpstreamHandler returns an http.Handler that echoes request details.
// Used to verify the gateway forwards identity headers, strips the inbound
// credential, and preserves method, path, and query.
func MockUpstreamHandler(name string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		resp := map[string]any{
			"backend":       name,
			"method":        r.Method,
			"path":          r.URL.Path,
			"query":         r.URL.RawQuery,
			"user_id":       r.Header.Get("X-User-Id"),
			"user_email":    r.Header.Get("X-User-Email"),
			"authorization": r.Header.Get("Authorization"),
			"request_id":    r.Header.Get("X-Request-ID"),
			"body":          string(body),
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	})
}

// SlowHandler returns an http.Handler that sleeps before responding, for
// exercising timeout paths.
func SlowHandler(d time.Duration) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(d):
		case <-r.Context().Done():
			return
		}
		w.WriteHeader(http.StatusOK)
	})
}

func base64URLEncode(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}
