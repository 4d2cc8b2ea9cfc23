package middleware_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"stack/internal/gateway/middleware"
)

func TestMaxBodySizeAllowsSmallBody(t *testing.T) {
	var got []byte
	handler := middleware.MaxBodySize(100)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
			return
		}
		got = b
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/items", strings.NewReader("small payload"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if string(got) != "small payload" {
		t.Errorf("body mangled: %q", got)
	}
}

func TestMaxBodySizeRejectsLargeBody(t *testing.T) {
	handler := middleware.MaxBodySize(10)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := io.ReadAll(r.Body); err != nil {
			http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
			return
		}
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/items", strings.NewReader(strings.Repeat("x", 50)))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413, got %d", rec.Code)
	}
}
