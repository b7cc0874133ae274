package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"mime"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/edulive/session-knowledge/internal/config"
	"github.com/edulive/session-knowledge/internal/daily"
	apperrors "github.com/edulive/session-knowledge/internal/errors"
	"github.com/edulive/session-knowledge/internal/model"
	"github.com/edulive/session-knowledge/internal/repository"
	"github.com/edulive/session-knowledge/internal/sse"
)

const defaultRecordingExt = "mp4"

var recordingExtensions = map[string]string{
	"video/mp4":  "mp4",
	"video/webm": "webm",
	"audio/mp4":  "m4a",
	"audio/mpeg": "mp3",
	"audio/wav":  "wav",
	"audio/webm": "webm",
}

// AcquiredRecording is a recording held in memory for transcription.
type AcquiredRecording struct {
	RecordingID string
	ObjectKey   string
	ContentType string
	Data        []byte
}

// Filename is the name sent to the transcription provider, which infers the
// container format from the extension.
func (r *AcquiredRecording) Filename() string {
	if i := strings.LastIndex(r.ObjectKey, "/"); i >= 0 {
		return r.ObjectKey[i+1:]
	}
	return r.ObjectKey
}

type RecordingAcquirer struct {
	recordings  RecordingProvider
	store       MediaStore
	sessionRepo repository.SessionRepository
	events      EventPublisher
	maxBytes    int64
}

func NewRecordingAcquirer(
	recordings RecordingProvider,
	store MediaStore,
	sessionRepo repository.SessionRepository,
	events EventPublisher,
	maxBytes int64,
) *RecordingAcquirer {
	return &RecordingAcquirer{
		recordings:  recordings,
		store:       store,
		sessionRepo: sessionRepo,
		events:      events,
		maxBytes:    maxBytes,
	}
}

// Acquire downloads a finished provider recording, stores it under
// {sessionID}/recording.<ext> and records it on the session. An empty
// recordingID selects the newest finished recording of the session's room.
// Nothing is written to the session unless every step succeeds.
func (a *RecordingAcquirer) Acquire(ctx context.Context, recordingID string, session *model.Session) (*AcquiredRecording, error) {
	recording, err := a.resolveRecording(ctx, recordingID, session)
	if err != nil {
		return nil, err
	}

	link, err := a.recordings.GetAccessLink(ctx, recording.ID)
	if err != nil {
		return nil, err
	}
	if link == nil || link.DownloadLink == "" {
		return nil, apperrors.NotReady("Recording download link")
	}

	dctx, cancel := context.WithTimeout(ctx, config.RecordingDownloadTimeout)
	defer cancel()
	data, contentType, err := a.recordings.Download(dctx, link.DownloadLink, a.maxBytes)
	if err != nil {
		return nil, err
	}

	contentType, ext := normalizeMediaType(contentType)
	key := fmt.Sprintf("%s/recording.%s", session.ID, ext)

	uctx, ucancel := context.WithTimeout(ctx, config.StorageUploadTimeout)
	defer ucancel()
	if err := a.store.Upload(uctx, key, contentType, data); err != nil {
		return nil, err
	}

	if err := a.sessionRepo.MarkRecordingStored(ctx, session.ID, model.RecordingStoredParams{
		RecordingURL:    a.store.ObjectURL(key),
		ObjectKey:       key,
		SizeBytes:       int64(len(data)),
		DurationSeconds: recording.Duration,
	}); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.Conflict("Session is not live or completed")
		}
		return nil, apperrors.Database(err)
	}

	log.Info().
		Str("sessionId", session.ID).
		Str("recordingId", recording.ID).
		Str("objectKey", key).
		Int("sizeBytes", len(data)).
		Msg("recording stored")

	publish(ctx, a.events, session.ID, sse.EventRecordingStored, map[string]any{
		"recordingId":     recording.ID,
		"sizeBytes":       len(data),
		"durationSeconds": recording.Duration,
	})

	return &AcquiredRecording{
		RecordingID: recording.ID,
		ObjectKey:   key,
		ContentType: contentType,
		Data:        data,
	}, nil
}

func (a *RecordingAcquirer) resolveRecording(ctx context.Context, recordingID string, session *model.Session) (*daily.Recording, error) {
	if recordingID != "" {
		recording, err := a.recordings.GetRecording(ctx, recordingID)
		if err != nil {
			return nil, err
		}
		if recording == nil {
			return nil, apperrors.NotFound("Recording")
		}
		if recording.Status != string(model.RecordingStatusFinished) {
			return nil, apperrors.NotReady("Recording")
		}
		return recording, nil
	}

	roomName := model.RoomNameFor(session.ID)
	if session.RoomName != nil && *session.RoomName != "" {
		roomName = *session.RoomName
	}

	recordings, err := a.recordings.ListRecordings(ctx, roomName)
	if err != nil {
		return nil, err
	}

	var newest *daily.Recording
	for i := range recordings {
		r := &recordings[i]
		if r.Status != string(model.RecordingStatusFinished) {
			continue
		}
		if newest == nil || r.StartTS > newest.StartTS {
			newest = r
		}
	}
	if newest == nil {
		return nil, apperrors.NotReady("Recording")
	}
	return newest, nil
}

// FromStorage loads the session's previously stored recording.
func (a *RecordingAcquirer) FromStorage(ctx context.Context, session *model.Session) (*AcquiredRecording, error) {
	if session.RecordingObjectKey == nil || *session.RecordingObjectKey == "" {
		return nil, apperrors.NotFound("Stored recording")
	}
	key := *session.RecordingObjectKey

	dctx, cancel := context.WithTimeout(ctx, config.RecordingDownloadTimeout)
	defer cancel()
	data, contentType, err := a.store.Download(dctx, key)
	if err != nil {
		return nil, err
	}

	contentType, _ = normalizeMediaType(contentType)
	return &AcquiredRecording{
		ObjectKey:   key,
		ContentType: contentType,
		Data:        data,
	}, nil
}

func normalizeMediaType(contentType string) (string, string) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "video/mp4", defaultRecordingExt
	}
	if ext, ok := recordingExtensions[mediaType]; ok {
		return mediaType, ext
	}
	return mediaType, defaultRecordingExt
}
