package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/edulive/session-knowledge/internal/middleware"
	"github.com/edulive/session-knowledge/internal/model"
	"github.com/edulive/session-knowledge/internal/sse"
)

type EventSubscriber interface {
	Subscribe(sessionID string) *sse.Subscriber
	Unsubscribe(sub *sse.Subscriber)
}

type SessionAuthorizer interface {
	Authorize(ctx context.Context, user *model.User, sessionID string) (*model.Session, error)
}

// EventsHandler streams one session's pipeline events to an authorized user.
type EventsHandler struct {
	broker    EventSubscriber
	sessions  SessionAuthorizer
	heartbeat time.Duration
}

func NewEventsHandler(broker EventSubscriber, sessions SessionAuthorizer) *EventsHandler {
	return &EventsHandler{
		broker:    broker,
		sessions:  sessions,
		heartbeat: sse.HeartbeatInterval,
	}
}

// GET /v1/sessions/{id}/events
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	if user == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return
	}

	sessionID, err := sessionIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	session, err := h.sessions.Authorize(r.Context(), user, sessionID)
	if err != nil {
		writeError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Streaming not supported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	sub := h.broker.Subscribe(session.ID)
	defer h.broker.Unsubscribe(sub)

	log.Info().
		Str("sessionId", session.ID).
		Str("userId", user.ID).
		Msg("sse connection established")

	if err := h.sendEvent(w, flusher, "connected", map[string]any{
		"sessionId": session.ID,
		"status":    session.Status,
	}); err != nil {
		return
	}

	ctx := r.Context()
	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().
				Str("sessionId", session.ID).
				Msg("sse connection closed by client")
			return

		case <-sub.Done:
			log.Info().
				Str("sessionId", session.ID).
				Msg("sse connection closed by broker")
			return

		case event := <-sub.Events:
			if err := h.sendRawEvent(w, flusher, event); err != nil {
				log.Error().Err(err).Msg("failed to send event")
				return
			}

		case <-heartbeat.C:
			if _, err := fmt.Fprintf(w, ": ping\n\n"); err != nil {
				log.Debug().
					Str("sessionId", session.ID).
					Msg("heartbeat failed, closing connection")
				return
			}
			flusher.Flush()
		}
	}
}

func (h *EventsHandler) sendEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	return h.sendRawEvent(w, flusher, sse.Event{Type: eventType, Data: jsonData})
}

func (h *EventsHandler) sendRawEvent(w http.ResponseWriter, flusher http.Flusher, event sse.Event) error {
	if _, err := fmt.Fprintf(w, "event: %s\n", event.Type); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", event.Data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
