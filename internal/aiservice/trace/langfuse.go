// Package trace ships generation traces to a Langfuse-compatible
// ingestion endpoint. Tracing is strictly best-effort: a slow or broken
// trace backend must never delay or fail a chat request, so events are
// queued and shipped by a background worker, and overflow is dropped.
package trace

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const (
	ingestionPath = "/api/public/ingestion"

	queueSize     = 256
	batchSize     = 20
	flushInterval = 5 * time.Second
)

// Generation is one traced model call.
type Generation struct {
	UserID   string `json:"user_id"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
	Input    any    `json:"input"`
	Output   string `json:"output"`

	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`

	StartedAt   time.Time `json:"-"`
	CompletedAt time.Time `json:"-"`
}

// Client batches generations and posts them to the ingestion endpoint.
// A nil *Client is valid and records nothing, so callers never branch on
// whether tracing is configured.
type Client struct {
	endpoint  string
	publicKey string
	secretKey string

	client *http.Client
	queue  chan Generation
	done   chan struct{}
}

// New creates a tracing client. Returns nil when host or either key is
// empty, disabling tracing.
func New(host, publicKey, secretKey string) *Client {
	if host == "" || publicKey == "" || secretKey == "" {
		return nil
	}
	c := &Client{
		endpoint:  host + ingestionPath,
		publicKey: publicKey,
		secretKey: secretKey,
		client:    &http.Client{Timeout: 10 * time.Second},
		queue:     make(chan Generation, queueSize),
		done:      make(chan struct{}),
	}
	go c.run()
	return c
}

// Enabled reports whether tracing is active.
func (c *Client) Enabled() bool {
	return c != nil
}

// RecordGeneration queues a generation for shipment. Never blocks: if the
// queue is full the event is dropped.
func (c *Client) RecordGeneration(g Generation) {
	if c == nil {
		return
	}
	select {
	case c.queue <- g:
	default:
		slog.Debug("trace queue full, dropping generation")
	}
}

// Close flushes queued generations and stops the worker.
func (c *Client) Close() {
	if c == nil {
		return
	}
	close(c.queue)
	<-c.done
}

func (c *Client) run() {
	defer close(c.done)

	batch := make([]Generation, 0, batchSize)
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		c.ship(batch)
		batch = batch[:0]
	}

	for {
		select {
		case g, ok := <-c.queue:
			if !ok {
				flush()
				return
			}
			batch = append(batch, g)
			if len(batch) >= batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

// ship posts one ingestion batch. Failures are logged and forgotten.
func (c *Client) ship(batch []Generation) {
	events := make([]map[string]any, 0, len(batch))
	for _, g := range batch {
		events = append(events, map[string]any{
			"id":        uuid.New().String(),
			"type":      "generation-create",
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
			"body": map[string]any{
				"name":      fmt.Sprintf("%s-chat", g.Provider),
				"userId":    g.UserID,
				"model":     g.Model,
				"input":     g.Input,
				"output":    g.Output,
				"startTime": g.StartedAt.UTC().Format(time.RFC3339Nano),
				"endTime":   g.CompletedAt.UTC().Format(time.RFC3339Nano),
				"usage": map[string]int{
					"promptTokens":     g.PromptTokens,
					"completionTokens": g.CompletionTokens,
					"totalTokens":      g.TotalTokens,
				},
			},
		})
	}

	payload, err := json.Marshal(map[string]any{"batch": events})
	if err != nil {
		slog.Error("encoding trace batch", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		slog.Error("building trace request", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.publicKey, c.secretKey)

	resp, err := c.client.Do(req)
	if err != nil {
		slog.Warn("shipping trace batch failed", "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		slog.Warn("trace ingestion rejected", "status", resp.StatusCode)
	}
}
