package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/edulive/session-knowledge/internal/model"
)

type TranscriptRepository interface {
	FindBySessionID(ctx context.Context, sessionID string) (*model.Transcript, error)
	Upsert(ctx context.Context, transcript model.Transcript) error
	WithTx(tx *sqlx.Tx) TranscriptRepository
}

type transcriptRepo struct {
	db sessionDB
}

func NewTranscriptRepository(db *sqlx.DB) TranscriptRepository {
	return &transcriptRepo{db: db}
}

func (r *transcriptRepo) WithTx(tx *sqlx.Tx) TranscriptRepository {
	return &transcriptRepo{db: tx}
}

func (r *transcriptRepo) FindBySessionID(ctx context.Context, sessionID string) (*model.Transcript, error) {
	var transcript model.Transcript
	err := r.db.GetContext(ctx, &transcript, `
		SELECT * FROM transcripts WHERE session_id = $1
	`, sessionID)
	return HandleNotFound(&transcript, err)
}

func (r *transcriptRepo) Upsert(ctx context.Context, t model.Transcript) error {
	segments := []byte(t.Segments)
	if len(segments) == 0 {
		segments = []byte("[]")
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO transcripts (session_id, text, language, segments, provider)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_id) DO UPDATE SET
			text = EXCLUDED.text,
			language = EXCLUDED.language,
			segments = EXCLUDED.segments,
			provider = EXCLUDED.provider,
			updated_at = NOW()
	`, t.SessionID, t.Text, t.Language, segments, t.Provider)
	return err
}
