package proxy_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"stack/internal/domain"
	gw "stack/internal/gateway"
	"stack/internal/gateway/adapter/proxy"
	"stack/internal/testutil"
)

func newTestRouter(t *testing.T, apiURL, aiURL string) *proxy.Router {
	t.Helper()
	r, err := proxy.NewRouter(proxy.Config{
		APIServiceURL: apiURL,
		AIServiceURL:  aiURL,
	}, nil, nil)
	if err != nil {
		t.Fatalf("creating router: %v", err)
	}
	return r
}

func withIdentity(req *http.Request, id domain.Identity) *http.Request {
	return req.WithContext(gw.ContextWithIdentity(req.Context(), id))
}

func TestRouterRoot(t *testing.T) {
	r := newTestRouter(t, "http://localhost:8081", "http://localhost:8082")

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if body["service"] != "gateway" || body["status"] != "healthy" {
		t.Errorf("unexpected root body: %v", body)
	}
}

func TestRouterHealth(t *testing.T) {
	r := newTestRouter(t, "http://localhost:8081", "http://localhost:8082")

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if body["status"] != "healthy" || body["service"] != "gateway" {
		t.Errorf("unexpected health body: %v", body)
	}
}

func TestRouterUnknownPath(t *testing.T) {
	r := newTestRouter(t, "http://localhost:8081", "http://localhost:8082")

	req := withIdentity(httptest.NewRequest(http.MethodGet, "/nope/thing", nil),
		domain.Identity{UserID: "u1"})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	var body domain.ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if body.Error != "not_found" {
		t.Errorf("expected not_found, got %q", body.Error)
	}
}

func TestRouterMissingIdentity(t *testing.T) {
	r := newTestRouter(t, "http://localhost:8081", "http://localhost:8082")

	// No identity in context: request reached the proxy without auth
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/items", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRouterProxiesToAPIBackend(t *testing.T) {
	api := httptest.NewServer(testutil.MockUpstreamHandler("api"))
	defer api.Close()
	ai := httptest.NewServer(testutil.MockUpstreamHandler("ai"))
	defer ai.Close()

	r := newTestRouter(t, api.URL, ai.URL)

	req := withIdentity(httptest.NewRequest(http.MethodGet, "/api/users/me", nil),
		domain.Identity{UserID: "u1", Email: "u1@example.com"})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if body["backend"] != "api" {
		t.Errorf("expected api backend, got %v", body["backend"])
	}
	if body["path"] != "/users/me" {
		t.Errorf("expected stripped path, got %v", body["path"])
	}
	if body["user_email"] != "u1@example.com" {
		t.Errorf("expected email header on api route, got %v", body["user_email"])
	}
}

func TestRouterProxiesToAIBackend(t *testing.T) {
	api := httptest.NewServer(testutil.MockUpstreamHandler("api"))
	defer api.Close()
	ai := httptest.NewServer(testutil.MockUpstreamHandler("ai"))
	defer ai.Close()

	r := newTestRouter(t, api.URL, ai.URL)

	req := withIdentity(httptest.NewRequest(http.MethodPost, "/ai/chat", nil),
		domain.Identity{UserID: "u1", Email: "u1@example.com"})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if body["backend"] != "ai" {
		t.Errorf("expected ai backend, got %v", body["backend"])
	}
	if body["path"] != "/chat" {
		t.Errorf("expected stripped path, got %v", body["path"])
	}
	if body["user_email"] != "" {
		t.Errorf("email must not be injected on ai route, got %v", body["user_email"])
	}
}

func TestRouterBadGateway(t *testing.T) {
	r := newTestRouter(t, "http://127.0.0.1:1", "http://127.0.0.1:1")

	req := withIdentity(httptest.NewRequest(http.MethodGet, "/api/items", nil),
		domain.Identity{UserID: "u1"})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
	var body domain.ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if body.Error != "bad_gateway" {
		t.Errorf("expected bad_gateway, got %q", body.Error)
	}
}

func TestRouterRelaysUpstreamStatus(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error":"validation_failed"}`))
	}))
	defer api.Close()

	r := newTestRouter(t, api.URL, "http://localhost:8082")

	req := withIdentity(httptest.NewRequest(http.MethodPost, "/api/items", nil),
		domain.Identity{UserID: "u1"})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected upstream 422 relayed, got %d", rec.Code)
	}
	if rec.Body.String() != `{"error":"validation_failed"}` {
		t.Errorf("upstream body not relayed verbatim: %q", rec.Body.String())
	}
}

func TestRouterRejectsInvalidUpstreamURL(t *testing.T) {
	_, err := proxy.NewRouter(proxy.Config{
		APIServiceURL: "http://[::1]:namedport",
		AIServiceURL:  "http://localhost:8082",
	}, nil, nil)
	if err == nil {
		t.Error("expected error for invalid upstream URL")
	}
}
