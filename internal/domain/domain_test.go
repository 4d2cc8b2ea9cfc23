package domain_test

import (
	"errors"
	"testing"

	"stack/internal/domain"
)

func TestTestAdminIdentity(t *testing.T) {
	id := domain.TestAdminIdentity()

	if id.UserID != "test_admin_123" {
		t.Errorf("expected user_id 'test_admin_123', got %q", id.UserID)
	}
	if id.Email != "admin@test.example.com" {
		t.Errorf("expected admin email, got %q", id.Email)
	}
	if id.Role != "admin" {
		t.Errorf("expected role 'admin', got %q", id.Role)
	}
	if !id.IsAdmin() {
		t.Error("expected test admin identity to be admin")
	}
}

func TestDevIdentity(t *testing.T) {
	id := domain.DevIdentity()

	if id.UserID != "dev_user" {
		t.Errorf("expected user_id 'dev_user', got %q", id.UserID)
	}
	if id.IsAdmin() {
		t.Error("dev identity must not be admin")
	}
}

func TestErrorResponseFields(t *testing.T) {
	e := domain.ErrorResponse{
		Error:   "unauthorized",
		Message: "invalid or expired token",
	}
	if e.Error != "unauthorized" {
		t.Errorf("unexpected error: %q", e.Error)
	}
	if e.Message != "invalid or expired token" {
		t.Errorf("unexpected message: %q", e.Message)
	}
}

func TestDomainErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		msg  string
	}{
		{"ErrMissingCredential", domain.ErrMissingCredential, "authorization header missing"},
		{"ErrMalformedCredential", domain.ErrMalformedCredential, "malformed authorization header"},
		{"ErrInvalidCredential", domain.ErrInvalidCredential, "invalid token"},
		{"ErrAuthUnavailable", domain.ErrAuthUnavailable, "authentication service unavailable"},
		{"ErrRouteNotFound", domain.ErrRouteNotFound, "no route for path"},
		{"ErrUpstreamUnreachable", domain.ErrUpstreamUnreachable, "upstream unreachable"},
		{"ErrUpstreamTimeout", domain.ErrUpstreamTimeout, "upstream timeout"},
		{"ErrNotFound", domain.ErrNotFound, "not found"},
		{"ErrForbidden", domain.ErrForbidden, "access denied"},
		{"ErrRateLimited", domain.ErrRateLimited, "rate limited"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Error() != tt.msg {
				t.Errorf("expected %q, got %q", tt.msg, tt.err.Error())
			}
		})
	}

	// Separate sentinels must not satisfy each other
	if errors.Is(domain.ErrUpstreamTimeout, domain.ErrUpstreamUnreachable) {
		t.Error("ErrUpstreamTimeout should not be ErrUpstreamUnreachable")
	}
}
