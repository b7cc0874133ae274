// Package openai is a minimal client for the OpenAI transcription, embedding
// and chat completion endpoints.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/edulive/session-knowledge/internal/config"
	apperrors "github.com/edulive/session-knowledge/internal/errors"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	ProviderName   = "openai"
)

// Client communicates with the OpenAI API. Per-call timeouts come from the
// caller's context; the HTTP client only caps the longest call, transcription.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func NewClient(apiKey, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: config.TranscriptionTimeout},
	}
}

// apiError mirrors the error envelope returned on non-2xx responses.
type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (c *Client) postJSON(ctx context.Context, path, service string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}
	return c.post(ctx, path, service, "application/json", bytes.NewReader(data), out)
}

func (c *Client) post(ctx context.Context, path, service, contentType string, body io.Reader, out any) error {
	if c.apiKey == "" {
		return apperrors.Configuration("OPENAI_API_KEY")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", contentType)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.Upstream(service, fmt.Errorf("executing request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var apiErr apiError
		msg := string(respBody)
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error.Message != "" {
			msg = apiErr.Error.Message
		}
		return apperrors.Upstream(service, fmt.Errorf("unexpected status %d after %s: %s",
			resp.StatusCode, time.Since(start).Round(time.Millisecond), msg))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.Upstream(service, fmt.Errorf("decoding response: %w", err))
	}
	return nil
}
