package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const openAIDefaultBaseURL = "https://api.openai.com"

type openAI struct {
	client  *http.Client
	baseURL string
	apiKey  string
	model   string
}

func newOpenAI(cfg Config, client *http.Client) *openAI {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = openAIDefaultBaseURL
	}
	return &openAI{client: client, baseURL: baseURL, apiKey: cfg.APIKey, model: cfg.Model}
}

func (o *openAI) Provider() string { return "openai" }
func (o *openAI) Model() string    { return o.model }

func (o *openAI) Complete(ctx context.Context, messages []Message, maxTokens int) (Completion, error) {
	payload := map[string]any{
		"model":      o.model,
		"messages":   messages,
		"max_tokens": maxTokensOr(maxTokens),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Completion{}, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		o.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Completion{}, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return Completion{}, fmt.Errorf("calling openai: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Completion{}, fmt.Errorf("openai returned %d: %s", resp.StatusCode, raw)
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
			TotalTokens      int `json:"total_tokens"`
		} `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Completion{}, fmt.Errorf("decoding openai response: %w", err)
	}
	if len(out.Choices) == 0 {
		return Completion{}, fmt.Errorf("openai returned no choices")
	}

	return Completion{
		Text: out.Choices[0].Message.Content,
		Usage: Usage{
			PromptTokens:     out.Usage.PromptTokens,
			CompletionTokens: out.Usage.CompletionTokens,
			TotalTokens:      out.Usage.TotalTokens,
		},
	}, nil
}
