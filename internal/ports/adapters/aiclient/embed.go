package aiclient

import (
	"context"
	"fmt"
	"sort"
)

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// EmbedTexts embeds one batch of texts. Callers are responsible for batching
// to BatchLimit; oversized batches are rejected here rather than silently
// split.
func (c *Client) EmbedTexts(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if len(texts) > embedBatchLimit {
		return nil, fmt.Errorf("embedding batch of %d exceeds limit %d", len(texts), embedBatchLimit)
	}

	payload := map[string]any{
		"model": c.ModelName(),
		"input": texts,
	}

	var resp embeddingResponse
	if err := c.postJSON(ctx, "/v1/embeddings", payload, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding response has %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	// The API may return items out of order; restore input order by index.
	sort.Slice(resp.Data, func(i, j int) bool { return resp.Data[i].Index < resp.Data[j].Index })

	vectors := make([][]float64, len(resp.Data))
	for i, d := range resp.Data {
		vectors[i] = d.Embedding
	}
	return vectors, nil
}

func (c *Client) BatchLimit() int { return embedBatchLimit }

func (c *Client) ModelName() string {
	if c.EmbedModel != "" {
		return c.EmbedModel
	}
	return defaultEmbedModel
}
