// Package aiclient talks to the OpenAI-compatible HTTP API used for
// transcription, embeddings, and clip tagging.
package aiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

type Client struct {
	key     string
	baseURL string
	client  *http.Client

	// Model overrides; empty picks the defaults below.
	TranscribeModel string
	EmbedModel      string
	TagModel        string
}

const (
	defaultTranscribeModel = "whisper-1"
	defaultEmbedModel      = "text-embedding-3-small"
	defaultTagModel        = "gpt-4o-mini"

	embedBatchLimit = 100
)

func New(apiKey, baseURL string) *Client {
	return &Client{
		key:     apiKey,
		baseURL: normalizeBaseURL(baseURL),
		client:  &http.Client{Timeout: 5 * time.Minute},
	}
}

func (c *Client) postJSON(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.key)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return fmt.Errorf("read %s response: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned status %d: %s", path, resp.StatusCode, truncate(string(raw), 300))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
