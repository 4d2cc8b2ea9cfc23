package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const googleDefaultBaseURL = "https://generativelanguage.googleapis.com"

type google struct {
	client  *http.Client
	baseURL string
	apiKey  string
	model   string
}

func newGoogle(cfg Config, client *http.Client) *google {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = googleDefaultBaseURL
	}
	return &google{client: client, baseURL: baseURL, apiKey: cfg.APIKey, model: cfg.Model}
}

func (g *google) Provider() string { return "google" }
func (g *google) Model() string    { return g.model }

func (g *google) Complete(ctx context.Context, messages []Message, maxTokens int) (Completion, error) {
	// generateContent has no "assistant" or "system" roles: assistant turns
	// become "model", system prompts fold into the first user turn.
	type part struct {
		Text string `json:"text"`
	}
	type content struct {
		Role  string `json:"role"`
		Parts []part `json:"parts"`
	}

	var contents []content
	for _, m := range messages {
		role := "user"
		if m.Role == "assistant" {
			role = "model"
		}
		contents = append(contents, content{Role: role, Parts: []part{{Text: m.Content}}})
	}

	payload := map[string]any{
		"contents": contents,
		"generationConfig": map[string]any{
			"maxOutputTokens": maxTokensOr(maxTokens),
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Completion{}, fmt.Errorf("encoding request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", g.baseURL, g.model, g.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Completion{}, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return Completion{}, fmt.Errorf("calling google: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Completion{}, fmt.Errorf("google returned %d: %s", resp.StatusCode, raw)
	}

	var out struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
		UsageMetadata struct {
			PromptTokenCount     int `json:"promptTokenCount"`
			CandidatesTokenCount int `json:"candidatesTokenCount"`
			TotalTokenCount      int `json:"totalTokenCount"`
		} `json:"usageMetadata"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Completion{}, fmt.Errorf("decoding google response: %w", err)
	}
	if len(out.Candidates) == 0 {
		return Completion{}, fmt.Errorf("google returned no candidates")
	}

	var text string
	for _, p := range out.Candidates[0].Content.Parts {
		text += p.Text
	}

	return Completion{
		Text: text,
		Usage: Usage{
			PromptTokens:     out.UsageMetadata.PromptTokenCount,
			CompletionTokens: out.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      out.UsageMetadata.TotalTokenCount,
		},
	}, nil
}
