// Command mockllm is an OpenAI-compatible chat completions double for
// developing the AI service without a real provider. It echoes the last
// user message and can simulate latency.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"stack/internal/platform/server"
)

func main() {
	addr := envOr("ADDR", ":8091")
	model := envOr("MOCK_MODEL", "mock-gpt")
	baseDelay := envDuration("LATENCY_BASE", 0)
	jitter := envDuration("LATENCY_JITTER", 0)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	slog.Info("mock llm starting", "addr", addr, "model", model,
		"latency_base", baseDelay, "latency_jitter", jitter)

	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		simulateWork(baseDelay, jitter)

		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]string{"message": "invalid JSON body", "type": "invalid_request_error"},
			})
			return
		}

		last := ""
		for _, m := range req.Messages {
			if m.Role == "user" {
				last = m.Content
			}
		}

		resp := map[string]any{
			"id":      fmt.Sprintf("chatcmpl-mock-%d", time.Now().UnixNano()),
			"object":  "chat.completion",
			"created": time.Now().Unix(),
			"model":   model,
			"choices": []map[string]any{
				{
					"index": 0,
					"message": map[string]string{
						"role":    "assistant",
						"content": "echo: " + last,
					},
					"finish_reason": "stop",
				},
			},
			"usage": map[string]int{
				"prompt_tokens":     len(last) / 4,
				"completion_tokens": len(last)/4 + 2,
				"total_tokens":      len(last)/2 + 2,
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	})

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy", "service": "mock-llm"})
	})

	srv := server.New(addr, mux)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		slog.Error("server error", "error", err)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envDuration reads a duration in milliseconds from an env var (e.g. "50" -> 50ms).
func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return fallback
}

// simulateWork sleeps for base + random(0, jitter) to mimic provider latency.
func simulateWork(base, jitter time.Duration) {
	if base == 0 && jitter == 0 {
		return
	}
	delay := base
	if jitter > 0 {
		delay += time.Duration(rand.Int64N(int64(jitter)))
	}
	time.Sleep(delay)
}
