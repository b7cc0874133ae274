package openai

import (
	"context"
	"fmt"

	apperrors "github.com/edulive/session-knowledge/internal/errors"
)

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Model string `json:"model"`
}

// Embed returns one vector per input, positionally aligned with inputs.
func (c *Client) Embed(ctx context.Context, embeddingModel string, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, nil
	}

	var resp embeddingResponse
	if err := c.postJSON(ctx, "/embeddings", "embeddings", embeddingRequest{
		Model: embeddingModel,
		Input: inputs,
	}, &resp); err != nil {
		return nil, err
	}

	if len(resp.Data) != len(inputs) {
		return nil, apperrors.Upstream("embeddings",
			fmt.Errorf("got %d embeddings for %d inputs", len(resp.Data), len(inputs)))
	}

	vectors := make([][]float32, len(inputs))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(inputs) || vectors[d.Index] != nil {
			return nil, apperrors.Upstream("embeddings", fmt.Errorf("invalid embedding index %d", d.Index))
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}
