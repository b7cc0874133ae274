package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/edulive/session-knowledge/internal/database"
	"github.com/edulive/session-knowledge/internal/model"
)

// IndexRepository commits a transcript and its full chunk set atomically.
type IndexRepository struct {
	db             *database.DB
	transcriptRepo TranscriptRepository
	chunkRepo      ChunkRepository
}

func NewIndexRepository(db *database.DB, transcriptRepo TranscriptRepository, chunkRepo ChunkRepository) *IndexRepository {
	return &IndexRepository{
		db:             db,
		transcriptRepo: transcriptRepo,
		chunkRepo:      chunkRepo,
	}
}

// ReplaceIndex upserts the transcript, upserts chunks keyed by
// (session_id, chunk_index) and drops indices >= len(chunks), so a reader
// never sees indices from two different runs once the transaction commits.
func (r *IndexRepository) ReplaceIndex(ctx context.Context, transcript model.Transcript, chunks []model.TranscriptChunk) error {
	return r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := r.transcriptRepo.WithTx(tx).Upsert(ctx, transcript); err != nil {
			return fmt.Errorf("upsert transcript: %w", err)
		}

		chunkRepo := r.chunkRepo.WithTx(tx)
		for _, chunk := range chunks {
			if err := chunkRepo.Upsert(ctx, chunk); err != nil {
				return fmt.Errorf("upsert chunk %d: %w", chunk.ChunkIndex, err)
			}
		}

		removed, err := chunkRepo.DeleteFromIndex(ctx, transcript.SessionID, len(chunks))
		if err != nil {
			return fmt.Errorf("delete stale chunks: %w", err)
		}
		if removed > 0 {
			log.Info().
				Str("sessionId", transcript.SessionID).
				Int64("removed", removed).
				Msg("removed stale transcript chunks")
		}
		return nil
	})
}
