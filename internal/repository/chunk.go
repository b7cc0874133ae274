package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pgvector/pgvector-go"

	"github.com/edulive/session-knowledge/internal/model"
)

type ChunkRepository interface {
	Upsert(ctx context.Context, chunk model.TranscriptChunk) error
	DeleteFromIndex(ctx context.Context, sessionID string, fromIndex int) (int64, error)
	Search(ctx context.Context, params model.ChunkSearchParams) ([]model.ScoredChunk, error)
	CountBySession(ctx context.Context, sessionID string) (int, error)
	ModelsBySession(ctx context.Context, sessionID string) ([]string, error)
	WithTx(tx *sqlx.Tx) ChunkRepository
}

type chunkRepo struct {
	db sessionDB
}

func NewChunkRepository(db *sqlx.DB) ChunkRepository {
	return &chunkRepo{db: db}
}

func (r *chunkRepo) WithTx(tx *sqlx.Tx) ChunkRepository {
	return &chunkRepo{db: tx}
}

func (r *chunkRepo) Upsert(ctx context.Context, c model.TranscriptChunk) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO transcript_chunks (session_id, chunk_index, content, embedding, embedding_model)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_id, chunk_index) DO UPDATE SET
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding,
			embedding_model = EXCLUDED.embedding_model,
			created_at = NOW()
	`, c.SessionID, c.ChunkIndex, c.Content, c.Embedding, c.EmbeddingModel)
	return err
}

// DeleteFromIndex removes chunks left over from a previous, longer run.
func (r *chunkRepo) DeleteFromIndex(ctx context.Context, sessionID string, fromIndex int) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM transcript_chunks WHERE session_id = $1 AND chunk_index >= $2
	`, sessionID, fromIndex)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Search ranks a session's chunks by cosine similarity (1 - cosine distance).
func (r *chunkRepo) Search(ctx context.Context, p model.ChunkSearchParams) ([]model.ScoredChunk, error) {
	var chunks []model.ScoredChunk
	err := r.db.SelectContext(ctx, &chunks, `
		SELECT session_id, chunk_index, content, embedding_model, similarity
		FROM (
			SELECT session_id, chunk_index, content, embedding_model,
				1 - (embedding <=> $2) AS similarity
			FROM transcript_chunks
			WHERE session_id = $1 AND embedding_model = $3
		) ranked
		WHERE similarity >= $4
		ORDER BY similarity DESC, chunk_index ASC
		LIMIT $5
	`, p.SessionID, pgvector.NewVector(p.Vector), p.EmbeddingModel, p.MinSimilarity, p.TopK)
	if err != nil {
		return nil, err
	}
	return chunks, nil
}

func (r *chunkRepo) CountBySession(ctx context.Context, sessionID string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM transcript_chunks WHERE session_id = $1
	`, sessionID)
	return count, err
}

func (r *chunkRepo) ModelsBySession(ctx context.Context, sessionID string) ([]string, error) {
	var models []string
	err := r.db.SelectContext(ctx, &models, `
		SELECT DISTINCT embedding_model FROM transcript_chunks WHERE session_id = $1
	`, sessionID)
	if err != nil {
		return nil, err
	}
	return models, nil
}
