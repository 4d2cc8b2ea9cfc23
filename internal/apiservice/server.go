// Package apiservice implements the HTTP API behind the gateway's /api
// routes. It trusts the identity headers the gateway injects and serves
// user-owned items plus file upload and download.
package apiservice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"stack/internal/apiservice/store"
	"stack/internal/domain"
)

const signedURLTTL = 15 * time.Minute

// ObjectStore abstracts the file bucket. A nil ObjectStore means file
// endpoints report storage as unavailable.
type ObjectStore interface {
	Upload(ctx context.Context, object, contentType string, r io.Reader) error
	SignedURL(object string, ttl time.Duration) (string, error)
}

// Server handles the API service's HTTP surface.
type Server struct {
	mux     *http.ServeMux
	items   *store.Store
	objects ObjectStore
}

// NewServer wires the handlers. objects may be nil when no bucket is
// configured.
func NewServer(items *store.Store, objects ObjectStore) *Server {
	s := &Server{
		mux:     http.NewServeMux(),
		items:   items,
		objects: objects,
	}

	s.mux.HandleFunc("GET /{$}", s.root)
	s.mux.HandleFunc("GET /health", s.health)
	s.mux.HandleFunc("GET /users/me", s.withIdentity(s.currentUser))
	s.mux.HandleFunc("POST /items", s.withIdentity(s.createItem))
	s.mux.HandleFunc("GET /items", s.withIdentity(s.listItems))
	s.mux.HandleFunc("GET /items/{id}", s.withIdentity(s.getItem))
	s.mux.HandleFunc("PUT /items/{id}", s.withIdentity(s.updateItem))
	s.mux.HandleFunc("DELETE /items/{id}", s.withIdentity(s.deleteItem))
	s.mux.HandleFunc("POST /upload", s.withIdentity(s.upload))
	s.mux.HandleFunc("GET /files/{object...}", s.withIdentity(s.fileURL))

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// callerIdentity is the trusted identity the gateway attached to the
// request. The service never sees the original credential.
type callerIdentity struct {
	UserID string
	Email  string
}

type identityHandler func(w http.ResponseWriter, r *http.Request, id callerIdentity)

// withIdentity rejects requests that arrived without the gateway's
// identity header.
func (s *Server) withIdentity(next identityHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get("X-User-Id")
		if userID == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "identity header missing")
			return
		}
		next(w, r, callerIdentity{
			UserID: userID,
			Email:  r.Header.Get("X-User-Email"),
		})
	}
}

func (s *Server) root(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"service": "api", "status": "healthy"})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	storeStatus := "ok"
	status := http.StatusOK
	if err := s.items.Ping(r.Context()); err != nil {
		slog.Error("store ping failed", "error", err)
		storeStatus = "unavailable"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{
		"status":  "healthy",
		"service": "api",
		"store":   storeStatus,
	})
}

func (s *Server) currentUser(w http.ResponseWriter, _ *http.Request, id callerIdentity) {
	writeJSON(w, http.StatusOK, map[string]string{
		"user_id":      id.UserID,
		"email":        id.Email,
		"retrieved_at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) createItem(w http.ResponseWriter, r *http.Request, id callerIdentity) {
	var data map[string]any
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}

	item, err := s.items.Create(r.Context(), id.UserID, data)
	if err != nil {
		slog.Error("creating item", "error", err, "user_id", id.UserID)
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", "item store unavailable")
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (s *Server) listItems(w http.ResponseWriter, r *http.Request, id callerIdentity) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "bad_request", "limit must be a positive integer")
			return
		}
		limit = n
	}

	items, err := s.items.List(r.Context(), id.UserID, limit)
	if err != nil {
		slog.Error("listing items", "error", err, "user_id", id.UserID)
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", "item store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

// ownedItem fetches an item and enforces ownership: unknown ids are 404,
// someone else's items are 403.
func (s *Server) ownedItem(w http.ResponseWriter, r *http.Request, id callerIdentity) (store.Item, bool) {
	item, err := s.items.Get(r.Context(), r.PathValue("id"))
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "item not found")
		return store.Item{}, false
	case err != nil:
		slog.Error("fetching item", "error", err)
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", "item store unavailable")
		return store.Item{}, false
	case item.Owner != id.UserID:
		writeError(w, http.StatusForbidden, "forbidden", "access denied")
		return store.Item{}, false
	}
	return item, true
}

func (s *Server) getItem(w http.ResponseWriter, r *http.Request, id callerIdentity) {
	item, ok := s.ownedItem(w, r, id)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) updateItem(w http.ResponseWriter, r *http.Request, id callerIdentity) {
	if _, ok := s.ownedItem(w, r, id); !ok {
		return
	}

	var data map[string]any
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}

	item, err := s.items.Update(r.Context(), r.PathValue("id"), data)
	if err != nil {
		slog.Error("updating item", "error", err)
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", "item store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) deleteItem(w http.ResponseWriter, r *http.Request, id callerIdentity) {
	if _, ok := s.ownedItem(w, r, id); !ok {
		return
	}

	if err := s.items.Delete(r.Context(), r.PathValue("id")); err != nil {
		slog.Error("deleting item", "error", err)
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", "item store unavailable")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) upload(w http.ResponseWriter, r *http.Request, id callerIdentity) {
	if s.objects == nil {
		writeError(w, http.StatusServiceUnavailable, "storage_unavailable", "file storage not configured")
		return
	}

	filename := r.URL.Query().Get("filename")
	if filename == "" {
		filename = "upload"
	}
	object := fmt.Sprintf("%s/%s-%s", id.UserID, uuid.New().String(), filename)

	if err := s.objects.Upload(r.Context(), object, r.Header.Get("Content-Type"), r.Body); err != nil {
		slog.Error("uploading object", "error", err, "object", object)
		writeError(w, http.StatusServiceUnavailable, "storage_unavailable", "file storage unavailable")
		return
	}

	slog.Info("object uploaded", "object", object, "user_id", id.UserID)
	writeJSON(w, http.StatusCreated, map[string]string{"object": object})
}

func (s *Server) fileURL(w http.ResponseWriter, r *http.Request, id callerIdentity) {
	if s.objects == nil {
		writeError(w, http.StatusServiceUnavailable, "storage_unavailable", "file storage not configured")
		return
	}

	object := r.PathValue("object")
	// Objects live under <user_id>/..., so the first path segment is the
	// owner. Signing someone else's object would leak it.
	owner, _, _ := strings.Cut(object, "/")
	if owner != id.UserID {
		writeError(w, http.StatusForbidden, "forbidden", "access denied")
		return
	}

	url, err := s.objects.SignedURL(object, signedURLTTL)
	if err != nil {
		slog.Error("signing URL", "error", err, "object", object)
		writeError(w, http.StatusServiceUnavailable, "storage_unavailable", "file storage unavailable")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"url":        url,
		"expires_in": int(signedURLTTL.Seconds()),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, domain.ErrorResponse{Error: code, Message: msg})
}
