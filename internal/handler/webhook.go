package handler

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/edulive/session-knowledge/internal/audit"
	"github.com/edulive/session-knowledge/internal/config"
	apperrors "github.com/edulive/session-knowledge/internal/errors"
	"github.com/edulive/session-knowledge/internal/httputil"
	"github.com/edulive/session-knowledge/internal/service"
)

type WebhookEventHandler interface {
	HandleEvent(ctx context.Context, raw []byte) (*service.WebhookResult, error)
}

type WebhookHandler struct {
	router  WebhookEventHandler
	timeout time.Duration
}

func NewWebhookHandler(router WebhookEventHandler) *WebhookHandler {
	return &WebhookHandler{router: router, timeout: config.WebhookProcessingTimeout}
}

type webhookResponse struct {
	Success bool `json:"success"`
	*service.WebhookResult
}

// POST /webhooks/daily
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, apperrors.ValidationError("Failed to read request body"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	result, err := h.router.HandleEvent(ctx, body)
	if err != nil {
		status := httputil.StatusFromCode(apperrors.GetCode(err))
		if status < http.StatusInternalServerError {
			audit.LogFromRequest(r, audit.Event{
				Type:    audit.EventWebhookRejected,
				Details: map[string]interface{}{"reason": err.Error(), "status": status},
			})
		}
		writeError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:      audit.EventWebhookReceived,
		SessionID: result.SessionID,
		Details: map[string]interface{}{
			"eventType": result.EventType,
			"status":    string(result.Status),
		},
	})

	log.Info().
		Str("eventType", result.EventType).
		Str("sessionId", result.SessionID).
		Str("status", string(result.Status)).
		Int("chunkCount", result.ChunkCount).
		Msg("webhook handled")

	status := http.StatusOK
	if result.Status == service.WebhookScheduled || result.Status == service.WebhookRetryScheduled {
		status = http.StatusAccepted
	}
	writeJSON(w, status, webhookResponse{Success: true, WebhookResult: result})
}
