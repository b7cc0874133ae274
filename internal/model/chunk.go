package model

import (
	"time"

	"github.com/pgvector/pgvector-go"
)

type TranscriptChunk struct {
	SessionID      string          `db:"session_id" json:"sessionId"`
	ChunkIndex     int             `db:"chunk_index" json:"chunkIndex"`
	Content        string          `db:"content" json:"content"`
	Embedding      pgvector.Vector `db:"embedding" json:"-"`
	EmbeddingModel string          `db:"embedding_model" json:"embeddingModel"`
	CreatedAt      time.Time       `db:"created_at" json:"createdAt"`
}

// ScoredChunk is a chunk with its similarity to a query.
type ScoredChunk struct {
	SessionID      string  `db:"session_id" json:"sessionId"`
	ChunkIndex     int     `db:"chunk_index" json:"chunkIndex"`
	Content        string  `db:"content" json:"content"`
	EmbeddingModel string  `db:"embedding_model" json:"embeddingModel"`
	Similarity     float64 `db:"similarity" json:"similarity"`
}

type ChunkSearchParams struct {
	SessionID      string
	Vector         []float32
	EmbeddingModel string
	TopK           int
	MinSimilarity  float64
}
