package service

import (
	"context"
	"fmt"
	"slices"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/edulive/session-knowledge/internal/config"
	apperrors "github.com/edulive/session-knowledge/internal/errors"
	"github.com/edulive/session-knowledge/internal/model"
)

type RetrievalConfig struct {
	TopK          int
	MinSimilarity float64
}

// RetrievalEngine ranks a session's indexed chunks against a question.
type RetrievalEngine struct {
	embedder Embedder
	model    string
	chunks   ChunkSearcher
	cfg      RetrievalConfig
}

func NewRetrievalEngine(embedder Embedder, embeddingModel string, chunks ChunkSearcher, cfg RetrievalConfig) *RetrievalEngine {
	return &RetrievalEngine{embedder: embedder, model: embeddingModel, chunks: chunks, cfg: cfg}
}

// Retrieve uses the configured topK and similarity threshold.
func (e *RetrievalEngine) Retrieve(ctx context.Context, sessionID, question string) ([]model.ScoredChunk, error) {
	return e.RetrieveWith(ctx, sessionID, question, e.cfg.TopK, e.cfg.MinSimilarity)
}

// RetrieveWith returns at most topK chunks with similarity >= minSimilarity,
// best first. Only chunks embedded with the current model are considered.
func (e *RetrievalEngine) RetrieveWith(ctx context.Context, sessionID, question string, topK int, minSimilarity float64) ([]model.ScoredChunk, error) {
	if topK <= 0 {
		return nil, nil
	}

	ectx, cancel := context.WithTimeout(ctx, config.ProviderRequestTimeout)
	vectors, err := e.embedder.Embed(ectx, e.model, []string{question})
	cancel()
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}
	if len(vectors) != 1 {
		return nil, apperrors.Upstream("embeddings", fmt.Errorf("got %d vectors for one question", len(vectors)))
	}

	results, err := e.chunks.Search(ctx, model.ChunkSearchParams{
		SessionID:      sessionID,
		Vector:         vectors[0],
		EmbeddingModel: e.model,
		TopK:           topK,
		MinSimilarity:  minSimilarity,
	})
	if err != nil {
		return nil, apperrors.Database(err)
	}

	if len(results) == 0 {
		e.warnOnModelMismatch(ctx, sessionID)
		return nil, nil
	}

	filtered := results[:0]
	for _, r := range results {
		if r.Similarity >= minSimilarity {
			filtered = append(filtered, r)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Similarity > filtered[j].Similarity
	})
	if len(filtered) > topK {
		filtered = filtered[:topK]
	}
	return filtered, nil
}

func (e *RetrievalEngine) warnOnModelMismatch(ctx context.Context, sessionID string) {
	models, err := e.chunks.ModelsBySession(ctx, sessionID)
	if err != nil || len(models) == 0 || slices.Contains(models, e.model) {
		return
	}
	log.Warn().
		Str("sessionId", sessionID).
		Str("queryModel", e.model).
		Strs("indexedModels", models).
		Msg("session was indexed with a different embedding model, reindex required")
}
