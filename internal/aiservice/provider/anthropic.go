package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const (
	anthropicDefaultBaseURL = "https://api.anthropic.com"
	anthropicVersion        = "2023-06-01"
)

type anthropic struct {
	client  *http.Client
	baseURL string
	apiKey  string
	model   string
}

func newAnthropic(cfg Config, client *http.Client) *anthropic {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = anthropicDefaultBaseURL
	}
	return &anthropic{client: client, baseURL: baseURL, apiKey: cfg.APIKey, model: cfg.Model}
}

func (a *anthropic) Provider() string { return "anthropic" }
func (a *anthropic) Model() string    { return a.model }

func (a *anthropic) Complete(ctx context.Context, messages []Message, maxTokens int) (Completion, error) {
	// The messages API takes the system prompt as a top-level field.
	var system string
	chat := make([]Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == "system" {
			system = m.Content
			continue
		}
		chat = append(chat, m)
	}

	payload := map[string]any{
		"model":      a.model,
		"messages":   chat,
		"max_tokens": maxTokensOr(maxTokens),
	}
	if system != "" {
		payload["system"] = system
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Completion{}, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return Completion{}, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", a.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := a.client.Do(req)
	if err != nil {
		return Completion{}, fmt.Errorf("calling anthropic: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Completion{}, fmt.Errorf("anthropic returned %d: %s", resp.StatusCode, raw)
	}

	var out struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		Usage struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Completion{}, fmt.Errorf("decoding anthropic response: %w", err)
	}

	var text string
	for _, block := range out.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	if text == "" {
		return Completion{}, fmt.Errorf("anthropic returned no text content")
	}

	return Completion{
		Text: text,
		Usage: Usage{
			PromptTokens:     out.Usage.InputTokens,
			CompletionTokens: out.Usage.OutputTokens,
			TotalTokens:      out.Usage.InputTokens + out.Usage.OutputTokens,
		},
	}, nil
}
