package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/edulive/session-knowledge/internal/daily"
	apperrors "github.com/edulive/session-knowledge/internal/errors"
	"github.com/edulive/session-knowledge/internal/model"
	"github.com/edulive/session-knowledge/internal/repository"
	"github.com/edulive/session-knowledge/internal/sse"
)

type SessionConfig struct {
	MaxParticipants int
	RoomExpiry      time.Duration
	ProcessingDelay time.Duration
	EndGrace        time.Duration
}

type StartSessionResult struct {
	SessionID string `json:"sessionId"`
	RoomName  string `json:"roomName"`
	RoomURL   string `json:"roomUrl"`
}

type EndSessionResult struct {
	SessionID       string              `json:"sessionId"`
	Status          model.SessionStatus `json:"status"`
	ProcessingJobID string              `json:"processingJobId,omitempty"`
}

// SessionService drives the room lifecycle of a live class.
type SessionService struct {
	sessionRepo repository.SessionRepository
	access      *AccessService
	rooms       RoomProvider
	scheduler   JobScheduler
	events      EventPublisher
	cfg         SessionConfig
	now         func() time.Time
}

func NewSessionService(
	sessionRepo repository.SessionRepository,
	access *AccessService,
	rooms RoomProvider,
	scheduler JobScheduler,
	events EventPublisher,
	cfg SessionConfig,
) *SessionService {
	return &SessionService{
		sessionRepo: sessionRepo,
		access:      access,
		rooms:       rooms,
		scheduler:   scheduler,
		events:      events,
		cfg:         cfg,
		now:         time.Now,
	}
}

func (s *SessionService) load(ctx context.Context, sessionID string) (*model.Session, error) {
	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if session == nil {
		return nil, apperrors.NotFound("Session")
	}
	return session, nil
}

// StartSession recreates the session's room, marks the session live and asks
// the provider to start cloud recording.
func (s *SessionService) StartSession(ctx context.Context, user *model.User, sessionID string) (*StartSessionResult, error) {
	session, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.access.Require(ctx, user, session.CourseID, model.AccessTeacher); err != nil {
		return nil, err
	}
	if session.Status != model.SessionStatusScheduled {
		return nil, apperrors.Conflict(fmt.Sprintf("Session is already %s", session.Status))
	}

	roomName := model.RoomNameFor(session.ID)

	existing, err := s.rooms.GetRoom(ctx, roomName)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if err := s.rooms.DeleteRoom(ctx, roomName); err != nil {
			return nil, err
		}
		log.Info().Str("sessionId", session.ID).Str("roomName", roomName).Msg("deleted stale room before recreate")
	}

	now := s.now()
	room, err := s.rooms.CreateRoom(ctx, daily.CreateRoomParams{
		Name:    roomName,
		Privacy: "public",
		Properties: daily.RoomProperties{
			Exp:               now.Add(s.cfg.RoomExpiry).Unix(),
			MaxParticipants:   s.cfg.MaxParticipants,
			EnableScreenshare: true,
			EnableRecording:   "cloud",
		},
	})
	if err != nil {
		return nil, err
	}

	if err := s.sessionRepo.MarkLive(ctx, session.ID, model.MarkLiveParams{
		RoomName:  room.Name,
		RoomURL:   room.URL,
		StartedAt: now,
	}); err != nil {
		s.deleteRoomAfterFailure(ctx, session.ID, room.Name)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.Conflict("Session is no longer scheduled")
		}
		return nil, apperrors.Database(err)
	}

	// Recording can also be started once the first participant joins.
	if err := s.rooms.StartRecording(ctx, room.Name); err != nil {
		log.Warn().Err(err).Str("sessionId", session.ID).Str("roomName", room.Name).Msg("failed to start recording")
	}

	log.Info().
		Str("sessionId", session.ID).
		Str("roomName", room.Name).
		Msg("session started")

	result := &StartSessionResult{SessionID: session.ID, RoomName: room.Name, RoomURL: room.URL}
	publish(ctx, s.events, session.ID, sse.EventSessionLive, result)
	return result, nil
}

func (s *SessionService) deleteRoomAfterFailure(ctx context.Context, sessionID, roomName string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.rooms.DeleteRoom(ctx, roomName); err != nil {
		log.Error().Err(err).Str("sessionId", sessionID).Str("roomName", roomName).Msg("failed to delete room after session update failure")
	}
}

// EndSession completes a live session and schedules recording processing.
func (s *SessionService) EndSession(ctx context.Context, user *model.User, sessionID string) (*EndSessionResult, error) {
	session, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.access.Require(ctx, user, session.CourseID, model.AccessTeacher); err != nil {
		return nil, err
	}
	return s.end(ctx, session)
}

func (s *SessionService) end(ctx context.Context, session *model.Session) (*EndSessionResult, error) {
	if session.Status != model.SessionStatusLive {
		return nil, apperrors.Conflict(fmt.Sprintf("Session is %s, not live", session.Status))
	}

	if err := s.sessionRepo.MarkCompleted(ctx, session.ID, s.now()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.Conflict("Session is no longer live")
		}
		return nil, apperrors.Database(err)
	}

	result := &EndSessionResult{SessionID: session.ID, Status: model.SessionStatusCompleted}

	job := model.Job{
		ID:        uuid.NewString(),
		Type:      model.JobTypeProcessRecording,
		SessionID: session.ID,
		Source:    model.RecordingSourceProvider,
		Attempt:   1,
	}
	// The recording webhook covers processing if scheduling fails here.
	if err := s.scheduler.Schedule(ctx, job, s.cfg.ProcessingDelay); err != nil {
		log.Error().Err(err).Str("sessionId", session.ID).Msg("failed to schedule recording processing")
	} else {
		result.ProcessingJobID = job.ID
	}

	log.Info().Str("sessionId", session.ID).Msg("session ended")
	publish(ctx, s.events, session.ID, sse.EventSessionCompleted, result)
	return result, nil
}

// EndOverdue ends live sessions whose scheduled end passed more than the
// configured grace period ago.
func (s *SessionService) EndOverdue(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.cfg.EndGrace)
	sessions, err := s.sessionRepo.FindOverdueLive(ctx, cutoff)
	if err != nil {
		return 0, apperrors.Database(err)
	}

	ended := 0
	for i := range sessions {
		if _, err := s.end(ctx, &sessions[i]); err != nil {
			log.Warn().Err(err).Str("sessionId", sessions[i].ID).Msg("failed to end overdue session")
			continue
		}
		ended++
	}
	return ended, nil
}
