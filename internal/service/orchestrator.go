package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog/log"

	"github.com/edulive/session-knowledge/internal/chunker"
	"github.com/edulive/session-knowledge/internal/config"
	apperrors "github.com/edulive/session-knowledge/internal/errors"
	"github.com/edulive/session-knowledge/internal/model"
	"github.com/edulive/session-knowledge/internal/repository"
	"github.com/edulive/session-knowledge/internal/sse"
)

// MaxRecordingAttempts caps not-ready retries: the first attempt plus one.
const MaxRecordingAttempts = 2

type OrchestratorConfig struct {
	TranscriptionModel string
	ChunkMaxChars      int
	RetryDelay         time.Duration
}

type RunStatus string

const (
	RunIndexed        RunStatus = "indexed"
	RunRetryScheduled RunStatus = "retry_scheduled"
)

type RunResult struct {
	Status     RunStatus `json:"status"`
	SessionID  string    `json:"sessionId"`
	ChunkCount int       `json:"chunkCount"`
	RetryJobID string    `json:"retryJobId,omitempty"`
}

type ProcessResult struct {
	SessionID      string `json:"sessionId"`
	Language       string `json:"language,omitempty"`
	TranscriptSize int    `json:"transcriptChars"`
	ChunkCount     int    `json:"chunkCount"`
	EmbeddingModel string `json:"embeddingModel"`
}

// TranscriptionOrchestrator turns a stored recording into a transcript and
// its embedded chunk index.
type TranscriptionOrchestrator struct {
	sessionRepo repository.SessionRepository
	acquirer    *RecordingAcquirer
	transcriber Transcriber
	indexer     *EmbeddingIndexer
	index       IndexWriter
	locker      SessionLocker
	scheduler   JobScheduler
	events      EventPublisher
	cfg         OrchestratorConfig
}

func NewTranscriptionOrchestrator(
	sessionRepo repository.SessionRepository,
	acquirer *RecordingAcquirer,
	transcriber Transcriber,
	indexer *EmbeddingIndexer,
	index IndexWriter,
	locker SessionLocker,
	scheduler JobScheduler,
	events EventPublisher,
	cfg OrchestratorConfig,
) *TranscriptionOrchestrator {
	if cfg.ChunkMaxChars <= 0 {
		cfg.ChunkMaxChars = chunker.DefaultMaxChars
	}
	return &TranscriptionOrchestrator{
		sessionRepo: sessionRepo,
		acquirer:    acquirer,
		transcriber: transcriber,
		indexer:     indexer,
		index:       index,
		locker:      locker,
		scheduler:   scheduler,
		events:      events,
		cfg:         cfg,
	}
}

// Process transcribes media, chunks and embeds the text, then replaces the
// session's transcript and chunks in one transaction. Nothing is written
// unless transcription and every embedding batch succeed.
func (o *TranscriptionOrchestrator) Process(ctx context.Context, media *AcquiredRecording, session *model.Session) (*ProcessResult, error) {
	tctx, cancel := context.WithTimeout(ctx, config.TranscriptionTimeout)
	defer cancel()

	result, err := o.transcriber.Transcribe(tctx, o.cfg.TranscriptionModel, media.Filename(), media.Data)
	if err != nil {
		return nil, fmt.Errorf("transcribe: %w", err)
	}

	texts := chunker.Chunk(result.Text, o.cfg.ChunkMaxChars)

	vectors, err := o.indexer.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}

	transcript := model.Transcript{
		SessionID: session.ID,
		Text:      result.Text,
		Segments:  result.Segments,
		Provider:  result.Provider,
	}
	if result.Language != "" {
		lang := result.Language
		transcript.Language = &lang
	}

	chunks := make([]model.TranscriptChunk, len(texts))
	for i, text := range texts {
		chunks[i] = model.TranscriptChunk{
			SessionID:      session.ID,
			ChunkIndex:     i,
			Content:        text,
			Embedding:      pgvector.NewVector(vectors[i]),
			EmbeddingModel: o.indexer.Model(),
		}
	}

	if err := o.index.ReplaceIndex(ctx, transcript, chunks); err != nil {
		return nil, apperrors.Database(err)
	}

	out := &ProcessResult{
		SessionID:      session.ID,
		Language:       result.Language,
		TranscriptSize: len(result.Text),
		ChunkCount:     len(chunks),
		EmbeddingModel: o.indexer.Model(),
	}

	log.Info().
		Str("sessionId", session.ID).
		Int("chunkCount", out.ChunkCount).
		Int("transcriptChars", out.TranscriptSize).
		Str("language", out.Language).
		Msg("transcript indexed")

	publish(ctx, o.events, session.ID, sse.EventTranscriptIndexed, out)
	return out, nil
}

// Run executes one attempt of a process_recording job under the session's
// pipeline lock. A not-ready recording on the first attempt schedules one
// more attempt; on the last attempt it is returned as a terminal error.
func (o *TranscriptionOrchestrator) Run(ctx context.Context, job model.Job) (*RunResult, error) {
	session, err := o.sessionRepo.FindByID(ctx, job.SessionID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if session == nil {
		return nil, apperrors.NotFound("Session")
	}

	release, ok, err := o.locker.TryLock(ctx, session.ID)
	if err != nil {
		return nil, fmt.Errorf("pipeline lock: %w", err)
	}
	if !ok {
		return nil, apperrors.Conflict("Recording processing is already running for this session")
	}
	defer release()

	var media *AcquiredRecording
	if job.Source == model.RecordingSourceStorage {
		media, err = o.acquirer.FromStorage(ctx, session)
	} else {
		media, err = o.acquirer.Acquire(ctx, job.RecordingID, session)
	}
	if err != nil {
		if apperrors.IsNotReady(err) {
			return o.retryNotReady(ctx, job, err)
		}
		return nil, fmt.Errorf("acquire recording: %w", err)
	}

	processed, err := o.Process(ctx, media, session)
	if err != nil {
		return nil, err
	}

	return &RunResult{Status: RunIndexed, SessionID: session.ID, ChunkCount: processed.ChunkCount}, nil
}

func (o *TranscriptionOrchestrator) retryNotReady(ctx context.Context, job model.Job, cause error) (*RunResult, error) {
	attempt := max(job.Attempt, 1)
	if attempt >= MaxRecordingAttempts {
		log.Warn().
			Err(cause).
			Str("sessionId", job.SessionID).
			Str("recordingId", job.RecordingID).
			Int("attempt", attempt).
			Msg("recording still not ready, giving up")
		return nil, cause
	}

	next := job
	next.ID = uuid.NewString()
	next.Attempt = attempt + 1
	if err := o.scheduler.Schedule(ctx, next, o.cfg.RetryDelay); err != nil {
		return nil, fmt.Errorf("schedule retry: %w", err)
	}

	log.Info().
		Str("sessionId", job.SessionID).
		Str("recordingId", job.RecordingID).
		Int("attempt", next.Attempt).
		Dur("delay", o.cfg.RetryDelay).
		Msg("recording not ready, retry scheduled")

	return &RunResult{Status: RunRetryScheduled, SessionID: job.SessionID, RetryJobID: next.ID}, nil
}
