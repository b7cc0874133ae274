package middleware

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/edulive/session-knowledge/internal/audit"
	"github.com/edulive/session-knowledge/internal/config"
	"github.com/edulive/session-knowledge/internal/util"
)

const (
	WebhookSignatureHeader = "X-Webhook-Signature"
	WebhookTimestampHeader = "X-Webhook-Timestamp"
)

// WebhookSignatureMiddleware verifies the room provider's HMAC over
// "timestamp.body". The body is restored for the next handler.
type WebhookSignatureMiddleware struct {
	secret string
	now    func() time.Time
}

func NewWebhookSignatureMiddleware(secret string) *WebhookSignatureMiddleware {
	return &WebhookSignatureMiddleware{secret: secret, now: time.Now}
}

func (m *WebhookSignatureMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.secret == "" {
			log.Warn().Msg("webhook signature verification bypassed: DAILY_WEBHOOK_SECRET is not configured")
			next.ServeHTTP(w, r)
			return
		}

		signature := r.Header.Get(WebhookSignatureHeader)
		timestamp := r.Header.Get(WebhookTimestampHeader)
		if signature == "" || timestamp == "" {
			m.reject(w, r, "missing signature headers")
			return
		}

		if !m.freshTimestamp(timestamp) {
			m.reject(w, r, "stale timestamp")
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			log.Error().Err(err).Msg("webhook signature middleware: failed to read body")
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "Failed to read request body",
			})
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		computed, err := util.WebhookSignature(m.secret, timestamp, body)
		if err != nil {
			log.Error().Err(err).Msg("webhook signature middleware: bad secret")
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "Webhook verification misconfigured",
			})
			return
		}
		if !util.ConstantTimeEqual(computed, signature) {
			m.reject(w, r, "invalid signature")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// freshTimestamp accepts seconds or milliseconds since the epoch.
func (m *WebhookSignatureMiddleware) freshTimestamp(raw string) bool {
	ts, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return false
	}
	var at time.Time
	if ts > 1e12 {
		at = time.UnixMilli(ts)
	} else {
		at = time.Unix(ts, 0)
	}
	skew := m.now().Sub(at)
	if skew < 0 {
		skew = -skew
	}
	return skew <= config.WebhookMaxSkew
}

func (m *WebhookSignatureMiddleware) reject(w http.ResponseWriter, r *http.Request, reason string) {
	audit.LogFromRequest(r, audit.Event{
		Type:    audit.EventWebhookRejected,
		Details: map[string]interface{}{"reason": reason},
	})
	writeJSON(w, http.StatusUnauthorized, map[string]string{
		"error": "Invalid signature",
	})
}
