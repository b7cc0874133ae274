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

type QuestionAnswerer interface {
	Ask(ctx context.Context, user *model.User, sessionID string, params service.AskParams) (*model.Answer, error)
	RecordingLink(ctx context.Context, user *model.User, sessionID string) (*service.RecordingLink, error)
}

type AskHandler struct {
	questions QuestionAnswerer
}

func NewAskHandler(questions QuestionAnswerer) *AskHandler {
	return &AskHandler{questions: questions}
}

// POST /v1/sessions/{id}/ask
func (h *AskHandler) Ask(w http.ResponseWriter, r *http.Request) {
	sessionID, err := sessionIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var params service.AskParams
	if err := decodeJSON(r, &params); err != nil {
		writeError(w, err)
		return
	}

	answer, err := h.questions.Ask(r.Context(), middleware.GetUser(r.Context()), sessionID, params)
	if err != nil {
		h.fail(w, r, err, sessionID)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

// GET /v1/sessions/{id}/recording
func (h *AskHandler) Recording(w http.ResponseWriter, r *http.Request) {
	sessionID, err := sessionIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	link, err := h.questions.RecordingLink(r.Context(), middleware.GetUser(r.Context()), sessionID)
	if err != nil {
		h.fail(w, r, err, sessionID)
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:      audit.EventRecordingLinkSign,
		UserID:    userID(r),
		SessionID: sessionID,
	})
	writeJSON(w, http.StatusOK, link)
}

func (h *AskHandler) fail(w http.ResponseWriter, r *http.Request, err error, sessionID string) {
	if apperrors.Is(err, apperrors.ErrCodeForbidden) {
		audit.LogFromRequest(r, audit.Event{
			Type:      audit.EventAccessDenied,
			UserID:    userID(r),
			SessionID: sessionID,
		})
	} else if !apperrors.IsAppError(err) || apperrors.GetCode(err) == apperrors.ErrCodeUpstream {
		log.Error().Err(err).Str("sessionId", sessionID).Msg("question request failed")
	}
	writeError(w, err)
}
