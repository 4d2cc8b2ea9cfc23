// Package provider adapts hosted LLM APIs to a single chat interface.
// Each adapter is a plain HTTP JSON client for one provider's wire format.
package provider

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

const defaultMaxTokens = 1024

// Message is one turn of a chat conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage reports token consumption for one completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Completion is the provider-neutral result of a chat call.
type Completion struct {
	Text  string
	Usage Usage
}

// ChatModel generates completions for chat conversations.
type ChatModel interface {
	Complete(ctx context.Context, messages []Message, maxTokens int) (Completion, error)
	Provider() string
	Model() string
}

// Config selects and authenticates a provider.
type Config struct {
	Provider string // "openai", "anthropic", "google"
	Model    string
	APIKey   string
	BaseURL  string // override for local doubles; empty means the provider default
}

// New resolves cfg to a concrete adapter. Unknown providers or missing
// settings are startup errors: the service refuses to run half-configured
// rather than fail on the first chat request.
func New(cfg Config) (ChatModel, error) {
	if cfg.Provider == "" {
		return nil, fmt.Errorf("model provider not set")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model name not set")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key not set for provider %q", cfg.Provider)
	}

	client := &http.Client{Timeout: 60 * time.Second}

	switch cfg.Provider {
	case "openai":
		return newOpenAI(cfg, client), nil
	case "anthropic":
		return newAnthropic(cfg, client), nil
	case "google":
		return newGoogle(cfg, client), nil
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Provider)
	}
}

func maxTokensOr(n int) int {
	if n > 0 {
		return n
	}
	return defaultMaxTokens
}
