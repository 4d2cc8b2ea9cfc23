package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"stack/internal/gateway/middleware"
)

func TestChainOrder(t *testing.T) {
	var order []string

	mw := func(name string) middleware.Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name+"-before")
				next.ServeHTTP(w, r)
				order = append(order, name+"-after")
			})
		}
	}

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
	})

	chained := middleware.Chain(handler, mw("first"), mw("second"))

	req := httptest.NewRequest(http.MethodGet, "/api/items", nil)
	chained.ServeHTTP(httptest.NewRecorder(), req)

	want := []string{"first-before", "second-before", "handler", "second-after", "first-after"}
	if len(order) != len(want) {
		t.Fatalf("expected %d entries, got %d: %v", len(want), len(order), order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("position %d: expected %q, got %q", i, want[i], order[i])
		}
	}
}

func TestChainEmpty(t *testing.T) {
	called := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	chained := middleware.Chain(handler)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	chained.ServeHTTP(httptest.NewRecorder(), req)

	if !called {
		t.Error("handler should be called with empty chain")
	}
}
