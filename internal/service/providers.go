package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/edulive/session-knowledge/internal/daily"
	"github.com/edulive/session-knowledge/internal/model"
	"github.com/edulive/session-knowledge/internal/openai"
)

// Provider-facing interfaces. The concrete clients live in the daily, openai
// and storage packages; tests substitute mocks.

type RoomProvider interface {
	GetRoom(ctx context.Context, name string) (*daily.Room, error)
	DeleteRoom(ctx context.Context, name string) error
	CreateRoom(ctx context.Context, params daily.CreateRoomParams) (*daily.Room, error)
	StartRecording(ctx context.Context, roomName string) error
}

type RecordingProvider interface {
	GetRecording(ctx context.Context, id string) (*daily.Recording, error)
	ListRecordings(ctx context.Context, roomName string) ([]daily.Recording, error)
	GetAccessLink(ctx context.Context, recordingID string) (*daily.AccessLink, error)
	Download(ctx context.Context, link string, maxBytes int64) ([]byte, string, error)
}

type MediaStore interface {
	Upload(ctx context.Context, key, contentType string, data []byte) error
	Download(ctx context.Context, key string) ([]byte, string, error)
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	ObjectURL(key string) string
}

type Transcriber interface {
	Transcribe(ctx context.Context, transcriptionModel, filename string, media []byte) (*model.TranscriptionResult, error)
}

type Embedder interface {
	Embed(ctx context.Context, embeddingModel string, inputs []string) ([][]float32, error)
}

type Completer interface {
	Complete(ctx context.Context, req openai.CompletionRequest) (string, error)
}

// EventPublisher fans session events out to subscribers (sse.Broker).
type EventPublisher interface {
	PublishJSON(ctx context.Context, sessionID, eventType string, payload any) error
}

// JobScheduler enqueues a job to run after delay (jobs.Queue).
type JobScheduler interface {
	Schedule(ctx context.Context, job model.Job, delay time.Duration) error
}

// SessionLocker hands out per-session pipeline leases (redis.SessionLocker).
type SessionLocker interface {
	TryLock(ctx context.Context, sessionID string) (release func(), ok bool, err error)
}

// IndexWriter atomically replaces a session's transcript and chunk set.
type IndexWriter interface {
	ReplaceIndex(ctx context.Context, transcript model.Transcript, chunks []model.TranscriptChunk) error
}

// ChunkSearcher runs similarity search over indexed chunks.
type ChunkSearcher interface {
	Search(ctx context.Context, params model.ChunkSearchParams) ([]model.ScoredChunk, error)
	ModelsBySession(ctx context.Context, sessionID string) ([]string, error)
}

func publish(ctx context.Context, events EventPublisher, sessionID, eventType string, payload any) {
	if events == nil {
		return
	}
	if err := events.PublishJSON(ctx, sessionID, eventType, payload); err != nil {
		log.Warn().Err(err).
			Str("sessionId", sessionID).
			Str("eventType", eventType).
			Msg("failed to publish session event")
	}
}
