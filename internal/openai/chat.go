package openai

import (
	"context"
	"strings"

	"github.com/edulive/session-knowledge/internal/model"
)

type CompletionRequest struct {
	Model       string              `json:"model"`
	Messages    []model.ChatMessage `json:"messages"`
	Temperature float64             `json:"temperature"`
	MaxTokens   int                 `json:"max_tokens,omitempty"`
}

type completionResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// Complete returns the first choice's content. An empty string means the
// provider produced no content; callers decide whether that is an error.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	var resp completionResponse
	if err := c.postJSON(ctx, "/chat/completions", "chat completion", req, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
