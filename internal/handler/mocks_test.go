package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/mock"

	"github.com/edulive/session-knowledge/internal/middleware"
	"github.com/edulive/session-knowledge/internal/model"
	"github.com/edulive/session-knowledge/internal/service"
	"github.com/edulive/session-knowledge/internal/sse"
)

const testSessionID = "6f1c2b9e-8d4a-4f3e-9b7a-2c5d1e0f3a4b"

type mockLifecycle struct {
	mock.Mock
}

func (m *mockLifecycle) StartSession(ctx context.Context, user *model.User, sessionID string) (*service.StartSessionResult, error) {
	args := m.Called(ctx, user, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.StartSessionResult), args.Error(1)
}

func (m *mockLifecycle) EndSession(ctx context.Context, user *model.User, sessionID string) (*service.EndSessionResult, error) {
	args := m.Called(ctx, user, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.EndSessionResult), args.Error(1)
}

type mockAnswerer struct {
	mock.Mock
}

func (m *mockAnswerer) Ask(ctx context.Context, user *model.User, sessionID string, params service.AskParams) (*model.Answer, error) {
	args := m.Called(ctx, user, sessionID, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Answer), args.Error(1)
}

func (m *mockAnswerer) RecordingLink(ctx context.Context, user *model.User, sessionID string) (*service.RecordingLink, error) {
	args := m.Called(ctx, user, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.RecordingLink), args.Error(1)
}

func (m *mockAnswerer) Authorize(ctx context.Context, user *model.User, sessionID string) (*model.Session, error) {
	args := m.Called(ctx, user, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Session), args.Error(1)
}

type mockWebhookRouter struct {
	mock.Mock
}

func (m *mockWebhookRouter) HandleEvent(ctx context.Context, raw []byte) (*service.WebhookResult, error) {
	args := m.Called(ctx, string(raw))
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.WebhookResult), args.Error(1)
}

type fakeSubscriber struct {
	client       *sse.Subscriber
	unsubscribed bool
}

func (f *fakeSubscriber) Subscribe(sessionID string) *sse.Subscriber {
	f.client.SessionID = sessionID
	return f.client
}

func (f *fakeSubscriber) Unsubscribe(sub *sse.Subscriber) {
	f.unsubscribed = true
}

var testUser = &model.User{ID: "u1", Name: "Ada", Role: model.UserRoleStudent}

// withTestUser stands in for AuthMiddleware.
func withTestUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(middleware.WithUser(r.Context(), testUser)))
	})
}

func sessionRouter(sessions SessionLifecycle, questions QuestionAnswerer) chi.Router {
	r := chi.NewRouter()
	r.Use(withTestUser)
	sh := NewSessionHandler(sessions)
	ah := NewAskHandler(questions)
	r.Post("/v1/sessions/{id}/start", sh.Start)
	r.Post("/v1/sessions/{id}/end", sh.End)
	r.Post("/v1/sessions/{id}/ask", ah.Ask)
	r.Get("/v1/sessions/{id}/recording", ah.Recording)
	return r
}
