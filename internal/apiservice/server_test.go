package apiservice_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"stack/internal/apiservice"
	"stack/internal/apiservice/store"
	"stack/internal/domain"
)

type fakeObjects struct {
	uploaded map[string]string // object -> body
	signErr  error
}

func (f *fakeObjects) Upload(ctx context.Context, object, contentType string, r io.Reader) error {
	if f.uploaded == nil {
		f.uploaded = make(map[string]string)
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.uploaded[object] = string(body)
	return nil
}

func (f *fakeObjects) SignedURL(object string, ttl time.Duration) (string, error) {
	if f.signErr != nil {
		return "", f.signErr
	}
	return "https://storage.example.com/" + object + "?sig=abc", nil
}

func newTestServer(t *testing.T, objects apiservice.ObjectStore) *apiservice.Server {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "items.db"))
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return apiservice.NewServer(st, objects)
}

func do(t *testing.T, srv *apiservice.Server, method, path, userID, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if userID != "" {
		req.Header.Set("X-User-Id", userID)
		req.Header.Set("X-User-Email", userID+"@example.com")
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func decodeItem(t *testing.T, rec *httptest.ResponseRecorder) store.Item {
	t.Helper()
	var item store.Item
	if err := json.NewDecoder(rec.Body).Decode(&item); err != nil {
		t.Fatalf("decoding item: %v", err)
	}
	return item
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := do(t, srv, http.MethodGet, "/health", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if body["status"] != "healthy" || body["service"] != "api" || body["store"] != "ok" {
		t.Errorf("unexpected health body: %v", body)
	}
}

func TestMissingIdentityHeader(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := do(t, srv, http.MethodGet, "/users/me", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without X-User-Id, got %d", rec.Code)
	}
	var body domain.ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if body.Error != "unauthorized" {
		t.Errorf("expected unauthorized, got %q", body.Error)
	}
}

func TestCurrentUser(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := do(t, srv, http.MethodGet, "/users/me", "user-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if body["user_id"] != "user-1" {
		t.Errorf("expected user-1, got %q", body["user_id"])
	}
	if body["email"] != "user-1@example.com" {
		t.Errorf("expected header email echoed, got %q", body["email"])
	}
	if body["retrieved_at"] == "" {
		t.Error("expected retrieved_at timestamp")
	}
}

func TestItemLifecycle(t *testing.T) {
	srv := newTestServer(t, nil)

	// Create
	rec := do(t, srv, http.MethodPost, "/items", "user-1", `{"title":"notes"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	created := decodeItem(t, rec)
	if created.Owner != "user-1" {
		t.Errorf("expected owner user-1, got %q", created.Owner)
	}

	// Read back
	rec = do(t, srv, http.MethodGet, "/items/"+created.ID, "user-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	got := decodeItem(t, rec)
	if got.Data["title"] != "notes" {
		t.Errorf("expected title 'notes', got %v", got.Data["title"])
	}

	// Update
	rec = do(t, srv, http.MethodPut, "/items/"+created.ID, "user-1", `{"title":"revised"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	updated := decodeItem(t, rec)
	if updated.Data["title"] != "revised" {
		t.Errorf("expected revised title, got %v", updated.Data["title"])
	}

	// List
	rec = do(t, srv, http.MethodGet, "/items", "user-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var listBody struct {
		Items []store.Item `json:"items"`
		Count int          `json:"count"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&listBody); err != nil {
		t.Fatalf("decoding list: %v", err)
	}
	if listBody.Count != 1 {
		t.Errorf("expected 1 item, got %d", listBody.Count)
	}

	// Delete
	rec = do(t, srv, http.MethodDelete, "/items/"+created.ID, "user-1", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	rec = do(t, srv, http.MethodGet, "/items/"+created.ID, "user-1", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", rec.Code)
	}
}

func TestItemOwnershipEnforced(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := do(t, srv, http.MethodPost, "/items", "user-1", `{"secret":true}`)
	created := decodeItem(t, rec)

	// Another user cannot read, update, or delete it
	for _, tc := range []struct {
		method string
		body   string
	}{
		{http.MethodGet, ""},
		{http.MethodPut, `{"secret":false}`},
		{http.MethodDelete, ""},
	} {
		rec := do(t, srv, tc.method, "/items/"+created.ID, "user-2", tc.body)
		if rec.Code != http.StatusForbidden {
			t.Errorf("%s as non-owner: expected 403, got %d", tc.method, rec.Code)
		}
	}

	// And it does not appear in their list
	rec = do(t, srv, http.MethodGet, "/items", "user-2", "")
	var listBody struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&listBody); err != nil {
		t.Fatalf("decoding list: %v", err)
	}
	if listBody.Count != 0 {
		t.Errorf("expected empty list for other user, got %d", listBody.Count)
	}
}

func TestItemInvalidBody(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := do(t, srv, http.MethodPost, "/items", "user-1", `not json`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestItemUnknownID(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := do(t, srv, http.MethodGet, "/items/missing-id", "user-1", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestListInvalidLimit(t *testing.T) {
	srv := newTestServer(t, nil)

	for _, limit := range []string{"abc", "0", "-5"} {
		rec := do(t, srv, http.MethodGet, "/items?limit="+limit, "user-1", "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("limit=%s: expected 400, got %d", limit, rec.Code)
		}
	}
}

func TestUpload(t *testing.T) {
	objects := &fakeObjects{}
	srv := newTestServer(t, objects)

	rec := do(t, srv, http.MethodPost, "/upload?filename=report.pdf", "user-1", "file-bytes")
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	object := body["object"]
	if !strings.HasPrefix(object, "user-1/") {
		t.Errorf("object must be namespaced by user, got %q", object)
	}
	if !strings.HasSuffix(object, "-report.pdf") {
		t.Errorf("object must keep the filename, got %q", object)
	}
	if objects.uploaded[object] != "file-bytes" {
		t.Errorf("body not stored, got %q", objects.uploaded[object])
	}
}

func TestUploadStorageUnconfigured(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := do(t, srv, http.MethodPost, "/upload", "user-1", "data")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without storage, got %d", rec.Code)
	}
	var body domain.ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if body.Error != "storage_unavailable" {
		t.Errorf("expected storage_unavailable, got %q", body.Error)
	}
}

func TestFileSignedURL(t *testing.T) {
	objects := &fakeObjects{}
	srv := newTestServer(t, objects)

	rec := do(t, srv, http.MethodGet, "/files/user-1/abc-report.pdf", "user-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		URL       string `json:"url"`
		ExpiresIn int    `json:"expires_in"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if !strings.Contains(body.URL, "user-1/abc-report.pdf") {
		t.Errorf("unexpected URL %q", body.URL)
	}
	if body.ExpiresIn <= 0 {
		t.Error("expected positive expires_in")
	}
}

func TestFileOwnershipEnforced(t *testing.T) {
	objects := &fakeObjects{}
	srv := newTestServer(t, objects)

	rec := do(t, srv, http.MethodGet, "/files/user-1/abc-report.pdf", "user-2", "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for another user's file, got %d: %s", rec.Code, rec.Body.String())
	}
	var body domain.ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	if body.Error != "forbidden" {
		t.Errorf("expected forbidden, got %q", body.Error)
	}
}

func TestFileSignedURLFailure(t *testing.T) {
	objects := &fakeObjects{signErr: errors.New("no signing credentials")}
	srv := newTestServer(t, objects)

	rec := do(t, srv, http.MethodGet, "/files/user-1/thing", "user-1", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 on signing failure, got %d", rec.Code)
	}
}
