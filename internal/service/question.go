package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/edulive/session-knowledge/internal/config"
	apperrors "github.com/edulive/session-knowledge/internal/errors"
	"github.com/edulive/session-knowledge/internal/model"
	"github.com/edulive/session-knowledge/internal/repository"
	"github.com/edulive/session-knowledge/internal/sse"
)

type AskParams struct {
	Question            string                   `json:"question"`
	ConversationHistory []model.ConversationTurn `json:"conversationHistory,omitempty"`
}

// QuestionService answers learner questions about a recorded session.
type QuestionService struct {
	sessionRepo repository.SessionRepository
	access      *AccessService
	retrieval   *RetrievalEngine
	composer    *AnswerComposer
	store       MediaStore
	events      EventPublisher
}

func NewQuestionService(
	sessionRepo repository.SessionRepository,
	access *AccessService,
	retrieval *RetrievalEngine,
	composer *AnswerComposer,
	store MediaStore,
	events EventPublisher,
) *QuestionService {
	return &QuestionService{
		sessionRepo: sessionRepo,
		access:      access,
		retrieval:   retrieval,
		composer:    composer,
		store:       store,
		events:      events,
	}
}

func validateQuestion(question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", apperrors.MissingRequired("question")
	}
	if utf8.RuneCountInString(question) > config.MaxQuestionLength {
		return "", apperrors.InvalidInput("question", fmt.Sprintf("must be at most %d characters", config.MaxQuestionLength))
	}
	return question, nil
}

// Authorize loads a session the user may read as a learner.
func (s *QuestionService) Authorize(ctx context.Context, user *model.User, sessionID string) (*model.Session, error) {
	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if session == nil {
		return nil, apperrors.NotFound("Session")
	}
	if err := s.access.Require(ctx, user, session.CourseID, model.AccessLearner); err != nil {
		return nil, err
	}
	return session, nil
}

// Ask retrieves transcript context for the question and composes an answer.
// A failed completion is returned as an error, never as a fallback answer.
func (s *QuestionService) Ask(ctx context.Context, user *model.User, sessionID string, params AskParams) (*model.Answer, error) {
	question, err := validateQuestion(params.Question)
	if err != nil {
		return nil, err
	}

	session, err := s.Authorize(ctx, user, sessionID)
	if err != nil {
		return nil, err
	}

	results, err := s.retrieval.Retrieve(ctx, session.ID, question)
	if err != nil {
		return nil, err
	}

	answer, err := s.composer.Answer(ctx, session, question, results, params.ConversationHistory)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("sessionId", session.ID).
		Str("userId", user.ID).
		Int("contextChunks", len(results)).
		Bool("hasTranscript", answer.HasTranscript).
		Msg("question answered")

	publish(ctx, s.events, session.ID, sse.EventAnswerReady, map[string]any{
		"userId":        user.ID,
		"hasTranscript": answer.HasTranscript,
		"contextUsed":   answer.ContextUsed,
	})

	return answer, nil
}

// Search returns the raw ranked chunks for query without composing an answer.
func (s *QuestionService) Search(ctx context.Context, user *model.User, sessionID, query string, topK int) ([]model.ScoredChunk, error) {
	query, err := validateQuestion(query)
	if err != nil {
		return nil, err
	}

	session, err := s.Authorize(ctx, user, sessionID)
	if err != nil {
		return nil, err
	}

	if topK <= 0 {
		return s.retrieval.Retrieve(ctx, session.ID, query)
	}
	return s.retrieval.RetrieveWith(ctx, session.ID, query, topK, s.retrieval.cfg.MinSimilarity)
}

type RecordingLink struct {
	URL       string `json:"url"`
	ExpiresIn int    `json:"expiresIn"`
}

// RecordingLink signs a short-lived URL for the session's stored recording.
func (s *QuestionService) RecordingLink(ctx context.Context, user *model.User, sessionID string) (*RecordingLink, error) {
	session, err := s.Authorize(ctx, user, sessionID)
	if err != nil {
		return nil, err
	}
	if session.RecordingObjectKey == nil || *session.RecordingObjectKey == "" {
		return nil, apperrors.NotFound("Recording")
	}

	sctx, cancel := context.WithTimeout(ctx, config.ProviderRequestTimeout)
	defer cancel()
	url, err := s.store.SignedURL(sctx, *session.RecordingObjectKey, config.SignedURLTTL)
	if err != nil {
		return nil, err
	}
	return &RecordingLink{URL: url, ExpiresIn: int(config.SignedURLTTL.Seconds())}, nil
}
