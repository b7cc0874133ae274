package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	redisclient "github.com/edulive/session-knowledge/internal/redis"
)

const (
	HeartbeatInterval = 30 * time.Second
	subscriberBuffer  = 32
)

// Event types fanned out to session subscribers.
const (
	EventSessionLive       = "session_live"
	EventSessionCompleted  = "session_completed"
	EventRecordingStored   = "recording_stored"
	EventTranscriptIndexed = "transcript_indexed"
	EventAnswerReady       = "answer_ready"
)

// milestones mark pipeline progress. The latest one is replayed to late
// subscribers and is never dropped for a full buffer.
var milestones = map[string]bool{
	EventSessionLive:       true,
	EventSessionCompleted:  true,
	EventRecordingStored:   true,
	EventTranscriptIndexed: true,
}

// Known reports whether eventType may be published on a session stream.
func Known(eventType string) bool {
	return milestones[eventType] || eventType == EventAnswerReady
}

type Event struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId,omitempty"`
	At        time.Time       `json:"at,omitzero"`
	Data      json.RawMessage `json:"data"`
}

// Subscriber receives one session's events until Done is closed.
type Subscriber struct {
	SessionID string
	Events    chan Event
	Done      chan struct{}
}

// sessionStream is the per-session state shared by every subscriber of that
// session in this process.
type sessionStream struct {
	subscribers map[*Subscriber]struct{}
	latest      *Event
	stop        context.CancelFunc
}

// Broker relays session events published on Redis to local subscribers. A
// session's Redis subscription lives only while it has local subscribers.
type Broker struct {
	redis   *redisclient.Client
	streams map[string]*sessionStream
	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewBroker(redisClient *redisclient.Client) *Broker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Broker{
		redis:   redisClient,
		streams: make(map[string]*sessionStream),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (b *Broker) Subscribe(sessionID string) *Subscriber {
	sub, listenCtx := b.attach(sessionID)
	if listenCtx != nil {
		go b.listen(listenCtx, sessionID)
	}
	return sub
}

// attach registers a subscriber and seeds it with the session's latest
// milestone. It returns a listener context when the session had no
// subscribers yet.
func (b *Broker) attach(sessionID string) (*Subscriber, context.Context) {
	sub := &Subscriber{
		SessionID: sessionID,
		Events:    make(chan Event, subscriberBuffer),
		Done:      make(chan struct{}),
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	var listenCtx context.Context
	stream, ok := b.streams[sessionID]
	if !ok {
		var stop context.CancelFunc
		listenCtx, stop = context.WithCancel(b.ctx)
		stream = &sessionStream{subscribers: make(map[*Subscriber]struct{}), stop: stop}
		b.streams[sessionID] = stream
	}
	stream.subscribers[sub] = struct{}{}
	if stream.latest != nil {
		sub.Events <- *stream.latest
	}

	log.Info().
		Str("sessionId", sessionID).
		Int("subscriberCount", len(stream.subscribers)).
		Bool("replayed", stream.latest != nil).
		Msg("sse subscriber attached")

	return sub, listenCtx
}

// Unsubscribe detaches sub. The last subscriber of a session also stops its
// Redis subscription and forgets the replayed milestone.
func (b *Broker) Unsubscribe(sub *Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	stream, ok := b.streams[sub.SessionID]
	if !ok {
		return
	}
	if _, ok := stream.subscribers[sub]; !ok {
		return
	}
	delete(stream.subscribers, sub)
	close(sub.Done)

	if len(stream.subscribers) == 0 {
		stream.stop()
		delete(b.streams, sub.SessionID)
	}

	log.Info().
		Str("sessionId", sub.SessionID).
		Int("subscriberCount", len(stream.subscribers)).
		Msg("sse subscriber detached")
}

// Publish stamps event with its session and time and sends it to every
// process subscribed to the session.
func (b *Broker) Publish(ctx context.Context, sessionID string, event Event) error {
	if !Known(event.Type) {
		return fmt.Errorf("unknown session event type %q", event.Type)
	}
	event.SessionID = sessionID
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.redis.Publish(ctx, redisclient.SessionEventChannel(sessionID), data).Err()
}

// PublishJSON marshals payload as the event data and publishes it.
func (b *Broker) PublishJSON(ctx context.Context, sessionID, eventType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return b.Publish(ctx, sessionID, Event{Type: eventType, Data: data})
}

func (b *Broker) listen(ctx context.Context, sessionID string) {
	channel := redisclient.SessionEventChannel(sessionID)
	pubsub := b.redis.Subscribe(ctx, channel)
	defer pubsub.Close()

	log.Debug().
		Str("sessionId", sessionID).
		Str("channel", channel).
		Msg("redis pubsub subscribed")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Error().Err(err).Str("sessionId", sessionID).Msg("failed to unmarshal event")
				continue
			}
			if event.SessionID != "" && event.SessionID != sessionID {
				continue
			}
			b.broadcast(sessionID, event)
		}
	}
}

func (b *Broker) broadcast(sessionID string, event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	stream, ok := b.streams[sessionID]
	if !ok {
		return
	}

	milestone := milestones[event.Type]
	if milestone && (stream.latest == nil || !event.At.Before(stream.latest.At)) {
		latest := event
		stream.latest = &latest
	}

	for sub := range stream.subscribers {
		select {
		case sub.Events <- event:
			continue
		default:
		}

		if !milestone {
			log.Warn().
				Str("sessionId", sessionID).
				Str("eventType", event.Type).
				Msg("subscriber buffer full, dropping event")
			continue
		}

		// Make room by discarding the oldest queued event. Only this
		// goroutine and attach (under mu) send, so the retry cannot block.
		select {
		case <-sub.Events:
		default:
		}
		select {
		case sub.Events <- event:
		default:
		}
	}
}

func (b *Broker) Close() {
	b.cancel()

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, stream := range b.streams {
		for sub := range stream.subscribers {
			close(sub.Done)
		}
	}
	b.streams = make(map[string]*sessionStream)
}

func (b *Broker) SubscriberCount(sessionID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if stream, ok := b.streams[sessionID]; ok {
		return len(stream.subscribers)
	}
	return 0
}
