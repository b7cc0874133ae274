package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edulive/session-knowledge/internal/database"
	"github.com/edulive/session-knowledge/internal/model"
)

const embeddingDims = 1536

// setupTestDB connects to TEST_DATABASE_URL, which must point at a disposable
// database with the vector extension available.
func setupTestDB(t *testing.T) *database.DB {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := database.Connect(url)
	require.NoError(t, err)
	require.NoError(t, db.Migrate(context.Background()))
	t.Cleanup(func() { db.Close() })
	return db
}

type fixture struct {
	teacherID string
	studentID string
	outsideID string
	courseID  string
	sessionID string
}

func seed(t *testing.T, db *database.DB) fixture {
	t.Helper()
	ctx := context.Background()
	var f fixture

	insertUser := func(name, role, tokenHash string) string {
		var id string
		require.NoError(t, db.GetContext(ctx, &id, `
			INSERT INTO users (name, role, api_token_hash) VALUES ($1, $2, $3) RETURNING id
		`, name, role, tokenHash))
		return id
	}
	suffix := time.Now().Format("150405.000000000")
	f.teacherID = insertUser("Teacher", "teacher", "teacher-"+suffix)
	f.studentID = insertUser("Student", "student", "student-"+suffix)
	f.outsideID = insertUser("Outsider", "student", "outside-"+suffix)

	require.NoError(t, db.GetContext(ctx, &f.courseID, `
		INSERT INTO courses (name, grade_level, teacher_id) VALUES ('Biology 101', '10', $1) RETURNING id
	`, f.teacherID))
	_, err := db.ExecContext(ctx, `
		INSERT INTO course_enrollments (course_id, user_id) VALUES ($1, $2)
	`, f.courseID, f.studentID)
	require.NoError(t, err)

	start := time.Now().Add(-time.Hour)
	require.NoError(t, db.GetContext(ctx, &f.sessionID, `
		INSERT INTO sessions (course_id, title, scheduled_start, scheduled_end)
		VALUES ($1, 'Cell Biology', $2, $3) RETURNING id
	`, f.courseID, start, start.Add(30*time.Minute)))

	t.Cleanup(func() {
		db.ExecContext(context.Background(), `DELETE FROM courses WHERE id = $1`, f.courseID)
		db.ExecContext(context.Background(), `DELETE FROM users WHERE id IN ($1, $2, $3)`, f.teacherID, f.studentID, f.outsideID)
	})
	return f
}

func unitVector(axis int) pgvector.Vector {
	v := make([]float32, embeddingDims)
	v[axis] = 1
	return pgvector.NewVector(v)
}

func TestSessionRepository_lifecycle(t *testing.T) {
	db := setupTestDB(t)
	f := seed(t, db)
	repo := NewSessionRepository(db.DB)
	ctx := context.Background()

	session, err := repo.FindByID(ctx, f.sessionID)
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, model.SessionStatusScheduled, session.Status)
	assert.Equal(t, "Biology 101", session.CourseName)
	require.NotNil(t, session.GradeLevel)
	assert.Equal(t, "10", *session.GradeLevel)

	t.Run("completing a scheduled session fails", func(t *testing.T) {
		err := repo.MarkCompleted(ctx, f.sessionID, time.Now())
		assert.ErrorIs(t, err, sql.ErrNoRows)
	})

	roomName := model.RoomNameFor(f.sessionID)
	require.NoError(t, repo.MarkLive(ctx, f.sessionID, model.MarkLiveParams{
		RoomName:  roomName,
		RoomURL:   "https://x.daily.co/" + roomName,
		StartedAt: time.Now(),
	}))

	t.Run("marking live twice fails", func(t *testing.T) {
		err := repo.MarkLive(ctx, f.sessionID, model.MarkLiveParams{RoomName: roomName, StartedAt: time.Now()})
		assert.ErrorIs(t, err, sql.ErrNoRows)
	})

	t.Run("finds by room name", func(t *testing.T) {
		found, err := repo.FindByRoomName(ctx, roomName)
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, f.sessionID, found.ID)
		assert.True(t, found.RecordingEnabled)
	})

	t.Run("overdue live sessions are listed", func(t *testing.T) {
		overdue, err := repo.FindOverdueLive(ctx, time.Now())
		require.NoError(t, err)
		ids := make([]string, len(overdue))
		for i, s := range overdue {
			ids[i] = s.ID
		}
		assert.Contains(t, ids, f.sessionID)
	})

	require.NoError(t, repo.MarkRecordingStored(ctx, f.sessionID, model.RecordingStoredParams{
		RecordingURL:    "https://storage.test/" + f.sessionID + "/recording.mp4",
		ObjectKey:       f.sessionID + "/recording.mp4",
		SizeBytes:       1024,
		DurationSeconds: 60,
	}))

	stored, err := repo.FindByID(ctx, f.sessionID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusCompleted, stored.Status)
	assert.NotNil(t, stored.EndedAt)
	require.NotNil(t, stored.RecordingObjectKey)
	assert.Equal(t, f.sessionID+"/recording.mp4", *stored.RecordingObjectKey)

	t.Run("unknown ids return nil", func(t *testing.T) {
		missing, err := repo.FindByID(ctx, "00000000-0000-0000-0000-000000000000")
		require.NoError(t, err)
		assert.Nil(t, missing)
	})
}

func TestCourseAccessRepository_AccessLevel(t *testing.T) {
	db := setupTestDB(t)
	f := seed(t, db)
	repo := NewCourseAccessRepository(db.DB)
	ctx := context.Background()

	level, err := repo.AccessLevel(ctx, f.teacherID, f.courseID)
	require.NoError(t, err)
	assert.Equal(t, model.AccessTeacher, level)

	level, err = repo.AccessLevel(ctx, f.studentID, f.courseID)
	require.NoError(t, err)
	assert.Equal(t, model.AccessLearner, level)

	level, err = repo.AccessLevel(ctx, f.outsideID, f.courseID)
	require.NoError(t, err)
	assert.Equal(t, model.AccessNone, level)
}

func TestUserRepository_FindByTokenHash(t *testing.T) {
	db := setupTestDB(t)
	f := seed(t, db)
	repo := NewUserRepository(db.DB)
	ctx := context.Background()

	var hash string
	require.NoError(t, db.GetContext(ctx, &hash, `SELECT api_token_hash FROM users WHERE id = $1`, f.studentID))

	user, err := repo.FindByTokenHash(ctx, hash)
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, f.studentID, user.ID)

	user, err = repo.FindByTokenHash(ctx, "no-such-hash")
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestIndexRepository_ReplaceIndex(t *testing.T) {
	db := setupTestDB(t)
	f := seed(t, db)
	ctx := context.Background()

	transcripts := NewTranscriptRepository(db.DB)
	chunks := NewChunkRepository(db.DB)
	index := NewIndexRepository(db, transcripts, chunks)

	chunkSet := func(embeddingModel string, contents ...string) []model.TranscriptChunk {
		out := make([]model.TranscriptChunk, len(contents))
		for i, c := range contents {
			out[i] = model.TranscriptChunk{
				SessionID:      f.sessionID,
				ChunkIndex:     i,
				Content:        c,
				Embedding:      unitVector(i),
				EmbeddingModel: embeddingModel,
			}
		}
		return out
	}
	transcript := model.Transcript{
		SessionID: f.sessionID,
		Text:      "One. Two. Three.",
		Segments:  json.RawMessage(`[{"id":0,"start":0,"end":1,"text":"One."}]`),
		Provider:  "openai:whisper-1",
	}

	require.NoError(t, index.ReplaceIndex(ctx, transcript, chunkSet("m1", "One.", "Two.", "Three.")))

	count, err := chunks.CountBySession(ctx, f.sessionID)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	t.Run("a shorter rerun drops stale indices", func(t *testing.T) {
		transcript.Text = "One. Two."
		require.NoError(t, index.ReplaceIndex(ctx, transcript, chunkSet("m2", "One.", "Two.")))

		count, err := chunks.CountBySession(ctx, f.sessionID)
		require.NoError(t, err)
		assert.Equal(t, 2, count)

		models, err := chunks.ModelsBySession(ctx, f.sessionID)
		require.NoError(t, err)
		assert.Equal(t, []string{"m2"}, models)

		stored, err := transcripts.FindBySessionID(ctx, f.sessionID)
		require.NoError(t, err)
		require.NotNil(t, stored)
		assert.Equal(t, "One. Two.", stored.Text)
	})

	t.Run("search ranks by cosine similarity within the model", func(t *testing.T) {
		query := make([]float32, embeddingDims)
		query[1] = 1

		results, err := chunks.Search(ctx, model.ChunkSearchParams{
			SessionID:      f.sessionID,
			Vector:         query,
			EmbeddingModel: "m2",
			TopK:           5,
			MinSimilarity:  0.5,
		})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, 1, results[0].ChunkIndex)
		assert.InDelta(t, 1.0, results[0].Similarity, 1e-6)

		other, err := chunks.Search(ctx, model.ChunkSearchParams{
			SessionID:      f.sessionID,
			Vector:         query,
			EmbeddingModel: "m1",
			TopK:           5,
			MinSimilarity:  0,
		})
		require.NoError(t, err)
		assert.Empty(t, other)
	})
}
