package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	apperrors "github.com/edulive/session-knowledge/internal/errors"
	"github.com/edulive/session-knowledge/internal/model"
	"github.com/edulive/session-knowledge/internal/repository"
)

// Lookup paths, tried in order. Providers nest these fields differently
// depending on event version.
var (
	eventTypePaths   = []string{"type", "event", "event_type", "payload.type"}
	recordingIDPaths = []string{"recording_id", "payload.recording_id", "data.recording_id", "recording.id", "payload.recording.id"}
	roomNamePaths    = []string{"room_name", "payload.room_name", "data.room_name", "recording.room_name", "payload.room", "room"}
)

// Events that say a recording exists but is not downloadable.
var ignoredEventTypes = map[string]bool{
	"recording.started": true,
	"recording.error":   true,
}

type WebhookEvent struct {
	Type        string
	RecordingID string
	RoomName    string
}

type WebhookStatus string

const (
	WebhookProcessed      WebhookStatus = "processed"
	WebhookScheduled      WebhookStatus = "scheduled"
	WebhookRetryScheduled WebhookStatus = "retry_scheduled"
	WebhookIgnored        WebhookStatus = "ignored"
)

type WebhookResult struct {
	EventType  string        `json:"eventType"`
	Status     WebhookStatus `json:"status"`
	SessionID  string        `json:"sessionId,omitempty"`
	ChunkCount int           `json:"chunkCount,omitempty"`
}

// ParseWebhookEvent extracts the event type, recording id and room name from
// a provider payload. Missing fields are left empty.
func ParseWebhookEvent(raw []byte) (WebhookEvent, error) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return WebhookEvent{}, apperrors.ValidationError("Invalid webhook payload")
	}

	var ev WebhookEvent
	ev.Type, _ = lookupString(doc, eventTypePaths...)
	ev.RecordingID, _ = lookupString(doc, recordingIDPaths...)
	ev.RoomName, _ = lookupString(doc, roomNamePaths...)
	return ev, nil
}

// lookupString returns the first non-empty string found at one of the
// dot-separated paths.
func lookupString(doc map[string]any, paths ...string) (string, bool) {
	for _, path := range paths {
		var cur any = doc
		for _, key := range strings.Split(path, ".") {
			m, ok := cur.(map[string]any)
			if !ok {
				cur = nil
				break
			}
			cur = m[key]
		}
		if s, ok := cur.(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s), true
		}
	}
	return "", false
}

type WebhookRouterConfig struct {
	Deferred     bool
	InitialDelay time.Duration
}

// WebhookRouter dispatches recording webhooks to the orchestrator, either
// inline or through the deferred job queue.
type WebhookRouter struct {
	sessionRepo  repository.SessionRepository
	orchestrator *TranscriptionOrchestrator
	scheduler    JobScheduler
	cfg          WebhookRouterConfig
}

func NewWebhookRouter(
	sessionRepo repository.SessionRepository,
	orchestrator *TranscriptionOrchestrator,
	scheduler JobScheduler,
	cfg WebhookRouterConfig,
) *WebhookRouter {
	return &WebhookRouter{
		sessionRepo:  sessionRepo,
		orchestrator: orchestrator,
		scheduler:    scheduler,
		cfg:          cfg,
	}
}

// HandleEvent validates a raw webhook and processes the recording. Work that
// already committed is kept when a later step fails; redelivery is safe
// because storage uploads and chunk writes replace by key.
func (r *WebhookRouter) HandleEvent(ctx context.Context, raw []byte) (*WebhookResult, error) {
	ev, err := ParseWebhookEvent(raw)
	if err != nil {
		return nil, err
	}
	if ev.RecordingID == "" {
		return nil, apperrors.MissingRequired("recording_id")
	}
	if ev.RoomName == "" {
		return nil, apperrors.MissingRequired("room_name")
	}

	session, err := r.sessionRepo.FindByRoomName(ctx, ev.RoomName)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if session == nil {
		return nil, apperrors.NotFound("Session")
	}

	result := &WebhookResult{EventType: ev.Type, SessionID: session.ID}

	if ignoredEventTypes[ev.Type] {
		result.Status = WebhookIgnored
		return result, nil
	}

	job := model.Job{
		ID:          uuid.NewString(),
		Type:        model.JobTypeProcessRecording,
		SessionID:   session.ID,
		RecordingID: ev.RecordingID,
		Source:      model.RecordingSourceProvider,
		Attempt:     1,
	}

	if r.cfg.Deferred {
		if err := r.scheduler.Schedule(ctx, job, r.cfg.InitialDelay); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrCodeInternal, "Failed to schedule recording processing", err)
		}
		result.Status = WebhookScheduled
		return result, nil
	}

	run, err := r.orchestrator.Run(ctx, job)
	if err != nil {
		log.Error().
			Err(err).
			Str("sessionId", session.ID).
			Str("recordingId", ev.RecordingID).
			Msg("recording processing failed")
		if apperrors.Is(err, apperrors.ErrCodeConflict) {
			return nil, err
		}
		return nil, apperrors.Wrap(apperrors.ErrCodeInternal, "Recording processing failed", err)
	}

	if run.Status == RunRetryScheduled {
		result.Status = WebhookRetryScheduled
		return result, nil
	}
	result.Status = WebhookProcessed
	result.ChunkCount = run.ChunkCount
	return result, nil
}
