package service

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/edulive/session-knowledge/internal/config"
	apperrors "github.com/edulive/session-knowledge/internal/errors"
)

const embeddingParallelism = 4

// EmbeddingIndexer embeds chunk texts in fixed-size batches.
type EmbeddingIndexer struct {
	embedder  Embedder
	model     string
	batchSize int
}

func NewEmbeddingIndexer(embedder Embedder, embeddingModel string, batchSize int) *EmbeddingIndexer {
	if batchSize <= 0 {
		batchSize = 16
	}
	return &EmbeddingIndexer{embedder: embedder, model: embeddingModel, batchSize: batchSize}
}

func (e *EmbeddingIndexer) Model() string {
	return e.model
}

// Embed returns one vector per chunk in input order. Any failed batch fails
// the whole call and no vectors are returned.
func (e *EmbeddingIndexer) Embed(ctx context.Context, chunks []string) ([][]float32, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embeddingParallelism)

	for start := 0; start < len(chunks); start += e.batchSize {
		end := min(start+e.batchSize, len(chunks))
		g.Go(func() error {
			bctx, cancel := context.WithTimeout(gctx, config.EmbeddingBatchTimeout)
			defer cancel()
			batch, err := e.embedder.Embed(bctx, e.model, chunks[start:end])
			if err != nil {
				return fmt.Errorf("embedding batch [%d:%d]: %w", start, end, err)
			}
			if len(batch) != end-start {
				return apperrors.Upstream("embeddings",
					fmt.Errorf("batch [%d:%d] returned %d vectors", start, end, len(batch)))
			}
			copy(vectors[start:end], batch)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}
