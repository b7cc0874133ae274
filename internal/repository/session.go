package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/edulive/session-knowledge/internal/model"
)

type SessionRepository interface {
	FindByID(ctx context.Context, id string) (*model.Session, error)
	FindByRoomName(ctx context.Context, roomName string) (*model.Session, error)
	FindOverdueLive(ctx context.Context, cutoff time.Time) ([]model.Session, error)
	MarkLive(ctx context.Context, id string, params model.MarkLiveParams) error
	MarkCompleted(ctx context.Context, id string, endedAt time.Time) error
	MarkRecordingStored(ctx context.Context, id string, params model.RecordingStoredParams) error
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) SessionRepository
}

// sessionDB is an interface satisfied by both *sqlx.DB and *sqlx.Tx
type sessionDB interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type sessionRepo struct {
	db sessionDB
}

func NewSessionRepository(db *sqlx.DB) SessionRepository {
	return &sessionRepo{db: db}
}

func (r *sessionRepo) WithTx(tx *sqlx.Tx) SessionRepository {
	return &sessionRepo{db: tx}
}

const selectSession = `
	SELECT s.*, c.name AS course_name, c.grade_level
	FROM sessions s
	JOIN courses c ON c.id = s.course_id
`

func (r *sessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, selectSession+`WHERE s.id = $1`, id)
	return HandleNotFound(&session, err)
}

func (r *sessionRepo) FindByRoomName(ctx context.Context, roomName string) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, selectSession+`WHERE s.room_name = $1`, roomName)
	return HandleNotFound(&session, err)
}

func (r *sessionRepo) FindOverdueLive(ctx context.Context, cutoff time.Time) ([]model.Session, error) {
	var sessions []model.Session
	err := r.db.SelectContext(ctx, &sessions, selectSession+`
		WHERE s.status = 'live' AND s.scheduled_end < $1
		ORDER BY s.scheduled_end
	`, cutoff)
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

// MarkLive only transitions scheduled sessions; it returns sql.ErrNoRows when
// the session was not scheduled anymore.
func (r *sessionRepo) MarkLive(ctx context.Context, id string, params model.MarkLiveParams) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET
			status = 'live',
			started_at = $2,
			room_name = $3,
			room_url = $4,
			recording_enabled = TRUE,
			updated_at = NOW()
		WHERE id = $1 AND status = 'scheduled'
	`, id, params.StartedAt, params.RoomName, params.RoomURL)
	return requireAffected(result, err)
}

func (r *sessionRepo) MarkCompleted(ctx context.Context, id string, endedAt time.Time) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET
			status = 'completed',
			ended_at = $2,
			updated_at = NOW()
		WHERE id = $1 AND status = 'live'
	`, id, endedAt)
	return requireAffected(result, err)
}

// MarkRecordingStored persists the stored recording and completes a session
// that is still live, since a finished recording means the class ended.
func (r *sessionRepo) MarkRecordingStored(ctx context.Context, id string, params model.RecordingStoredParams) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET
			recording_url = $2,
			recording_object_key = $3,
			recording_size_bytes = $4,
			recording_duration_seconds = $5,
			status = 'completed',
			ended_at = COALESCE(ended_at, NOW()),
			updated_at = NOW()
		WHERE id = $1 AND status IN ('live', 'completed')
	`, id, params.RecordingURL, params.ObjectKey, params.SizeBytes, params.DurationSeconds)
	return requireAffected(result, err)
}
