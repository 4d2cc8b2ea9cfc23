package domain

// Identity is the caller resolved from a bearer credential.
// It lives for one request and is never persisted.
type Identity struct {
	UserID string
	Email  string
	Name   string
	Role   string
	// Raw holds the full claim set the identity was derived from,
	// for callers that need non-standard claims.
	Raw map[string]any
}

// IsAdmin reports whether the identity carries the admin role.
func (id Identity) IsAdmin() bool {
	return id.Role == "admin"
}

// TestAdminIdentity is the fixed identity granted to the configured
// bypass token. It exists so automated tests can exercise authenticated
// routes without a real identity provider.
func TestAdminIdentity() Identity {
	return Identity{
		UserID: "test_admin_123",
		Email:  "admin@test.example.com",
		Name:   "Test Admin",
		Role:   "admin",
	}
}

// DevIdentity is the fixed non-privileged identity used when no signing
// key source is configured and the process runs in development mode.
func DevIdentity() Identity {
	return Identity{
		UserID: "dev_user",
		Email:  "dev@example.com",
	}
}
