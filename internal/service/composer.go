package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/edulive/session-knowledge/internal/config"
	apperrors "github.com/edulive/session-knowledge/internal/errors"
	"github.com/edulive/session-knowledge/internal/model"
	"github.com/edulive/session-knowledge/internal/openai"
)

// NoTranscriptContext replaces the excerpts section when retrieval found
// nothing, so the model states that the recording does not cover the question.
const NoTranscriptContext = "No transcript context available for this session."

type ComposerConfig struct {
	Model        string
	HistoryTurns int
	Temperature  float64
	MaxTokens    int
}

type AnswerComposer struct {
	completer Completer
	cfg       ComposerConfig
}

func NewAnswerComposer(completer Completer, cfg ComposerConfig) *AnswerComposer {
	if cfg.HistoryTurns < 0 {
		cfg.HistoryTurns = 0
	}
	return &AnswerComposer{completer: completer, cfg: cfg}
}

// Answer asks the chat model to answer question grounded in the session
// metadata and retrieved chunks. An empty completion is an error.
func (c *AnswerComposer) Answer(
	ctx context.Context,
	session *model.Session,
	question string,
	results []model.ScoredChunk,
	history []model.ConversationTurn,
) (*model.Answer, error) {
	messages := c.BuildMessages(session, question, results, history)

	cctx, cancel := context.WithTimeout(ctx, config.CompletionTimeout)
	defer cancel()

	text, err := c.completer.Complete(cctx, openai.CompletionRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	})
	if err != nil {
		return nil, err
	}
	if text == "" {
		return nil, apperrors.Upstream("chat completion", errors.New("completion returned no content"))
	}

	answer := &model.Answer{
		Text:          text,
		HasTranscript: len(results) > 0,
		ContextUsed:   []string{model.ContextSourceSession},
		Model:         c.cfg.Model,
	}
	if answer.HasTranscript {
		answer.ContextUsed = []string{model.ContextSourceTranscript, model.ContextSourceSession}
	}
	return answer, nil
}

// BuildMessages returns the system prompt, the most recent history turns
// (oldest first) and the question as the final user turn.
func (c *AnswerComposer) BuildMessages(
	session *model.Session,
	question string,
	results []model.ScoredChunk,
	history []model.ConversationTurn,
) []model.ChatMessage {
	turns := make([]model.ConversationTurn, 0, len(history))
	for _, t := range history {
		if (t.Role != model.ChatRoleUser && t.Role != model.ChatRoleAssistant) || strings.TrimSpace(t.Content) == "" {
			continue
		}
		turns = append(turns, t)
	}
	if len(turns) > c.cfg.HistoryTurns {
		turns = turns[len(turns)-c.cfg.HistoryTurns:]
	}

	messages := make([]model.ChatMessage, 0, len(turns)+2)
	messages = append(messages, model.ChatMessage{
		Role:    model.ChatRoleSystem,
		Content: buildSystemPrompt(session, results),
	})
	for _, t := range turns {
		messages = append(messages, model.ChatMessage{Role: t.Role, Content: t.Content})
	}
	messages = append(messages, model.ChatMessage{Role: model.ChatRoleUser, Content: question})
	return messages
}

func buildSystemPrompt(session *model.Session, results []model.ScoredChunk) string {
	var sb strings.Builder

	sb.WriteString("You are a teaching assistant for a recorded live class. ")
	sb.WriteString("Answer the learner using only the session details and transcript excerpts below. ")
	sb.WriteString("If the excerpts do not cover the question, say that the recording does not cover it instead of guessing.\n\n")

	sb.WriteString("[Session]\n")
	fmt.Fprintf(&sb, "Title: %s\n", session.Title)
	if session.CourseName != "" {
		fmt.Fprintf(&sb, "Course: %s\n", session.CourseName)
	}
	if session.GradeLevel != nil && *session.GradeLevel != "" {
		fmt.Fprintf(&sb, "Grade level: %s\n", *session.GradeLevel)
	}

	sb.WriteString("\n[Transcript Excerpts]\n")
	if len(results) == 0 {
		sb.WriteString(NoTranscriptContext)
		sb.WriteString("\n")
		return sb.String()
	}
	for i, r := range results {
		fmt.Fprintf(&sb, "(%d, similarity %.2f)\n%s\n\n", i+1, r.Similarity, r.Content)
	}
	return strings.TrimRight(sb.String(), "\n") + "\n"
}
