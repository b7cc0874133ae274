package handler

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/edulive/session-knowledge/internal/audit"
	apperrors "github.com/edulive/session-knowledge/internal/errors"
	"github.com/edulive/session-knowledge/internal/middleware"
	"github.com/edulive/session-knowledge/internal/model"
	"github.com/edulive/session-knowledge/internal/service"
)

type SessionLifecycle interface {
	StartSession(ctx context.Context, user *model.User, sessionID string) (*service.StartSessionResult, error)
	EndSession(ctx context.Context, user *model.User, sessionID string) (*service.EndSessionResult, error)
}

type SessionHandler struct {
	sessions SessionLifecycle
}

func NewSessionHandler(sessions SessionLifecycle) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// POST /v1/sessions/{id}/start
func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	sessionID, err := sessionIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := h.sessions.StartSession(r.Context(), user, sessionID)
	if err != nil {
		h.fail(w, r, err, sessionID, "start")
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:      audit.EventSessionStart,
		UserID:    user.ID,
		SessionID: sessionID,
		Details:   map[string]interface{}{"roomName": result.RoomName},
	})
	writeJSON(w, http.StatusOK, result)
}

// POST /v1/sessions/{id}/end
func (h *SessionHandler) End(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	sessionID, err := sessionIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := h.sessions.EndSession(r.Context(), user, sessionID)
	if err != nil {
		h.fail(w, r, err, sessionID, "end")
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:      audit.EventSessionEnd,
		UserID:    user.ID,
		SessionID: sessionID,
	})
	writeJSON(w, http.StatusOK, result)
}

func (h *SessionHandler) fail(w http.ResponseWriter, r *http.Request, err error, sessionID, action string) {
	switch apperrors.GetCode(err) {
	case apperrors.ErrCodeForbidden:
		audit.LogFromRequest(r, audit.Event{
			Type:      audit.EventAccessDenied,
			UserID:    userID(r),
			SessionID: sessionID,
			Details:   map[string]interface{}{"action": action},
		})
	case apperrors.ErrCodeUpstream, apperrors.ErrCodeDatabase, apperrors.ErrCodeInternal, apperrors.ErrCodeConfiguration:
		log.Error().Err(err).Str("sessionId", sessionID).Str("action", action).Msg("session lifecycle failed")
	}
	writeError(w, err)
}

func userID(r *http.Request) string {
	if user := middleware.GetUser(r.Context()); user != nil {
		return user.ID
	}
	return ""
}
