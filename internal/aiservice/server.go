// Package aiservice implements the HTTP surface behind the gateway's /ai
// routes: a chat endpoint backed by a configured LLM provider, with
// best-effort trace logging.
package aiservice

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"stack/internal/aiservice/provider"
	"stack/internal/aiservice/trace"
	"stack/internal/domain"
)

// Server handles chat requests. The model is resolved once at startup; a
// Server never exists without a working provider configuration.
type Server struct {
	mux    *http.ServeMux
	model  provider.ChatModel
	tracer *trace.Client
}

// NewServer wires the handlers. tracer may be nil when tracing is not
// configured.
func NewServer(model provider.ChatModel, tracer *trace.Client) *Server {
	s := &Server{
		mux:    http.NewServeMux(),
		model:  model,
		tracer: tracer,
	}

	s.mux.HandleFunc("GET /{$}", s.root)
	s.mux.HandleFunc("GET /health", s.health)
	s.mux.HandleFunc("POST /chat", s.chat)

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) root(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"service": "ai", "status": "healthy"})
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "healthy",
		"service":  "ai",
		"provider": s.model.Provider(),
		"model":    s.model.Model(),
		"tracing":  s.tracer.Enabled(),
	})
}

type chatRequest struct {
	Messages  []provider.Message `json:"messages"`
	MaxTokens int                `json:"max_tokens"`
}

func (s *Server) chat(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "identity header missing")
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "bad_request", "messages are required")
		return
	}
	for _, m := range req.Messages {
		if strings.TrimSpace(m.Content) == "" || m.Role == "" {
			writeError(w, http.StatusBadRequest, "bad_request", "each message needs a role and content")
			return
		}
	}

	started := time.Now()
	completion, err := s.model.Complete(r.Context(), req.Messages, req.MaxTokens)
	if err != nil {
		slog.Error("model call failed",
			"provider", s.model.Provider(),
			"model", s.model.Model(),
			"user_id", userID,
			"error", err,
		)
		writeError(w, http.StatusBadGateway, "model_error", "model provider request failed")
		return
	}

	s.tracer.RecordGeneration(trace.Generation{
		UserID:           userID,
		Provider:         s.model.Provider(),
		Model:            s.model.Model(),
		Input:            req.Messages,
		Output:           completion.Text,
		PromptTokens:     completion.Usage.PromptTokens,
		CompletionTokens: completion.Usage.CompletionTokens,
		TotalTokens:      completion.Usage.TotalTokens,
		StartedAt:        started,
		CompletedAt:      time.Now(),
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"response": completion.Text,
		"model":    s.model.Model(),
		"provider": s.model.Provider(),
		"usage":    completion.Usage,
		"user_id":  userID,
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
