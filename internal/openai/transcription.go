package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"

	"github.com/edulive/session-knowledge/internal/model"
)

type transcriptionResponse struct {
	Text     string          `json:"text"`
	Language string          `json:"language"`
	Duration float64         `json:"duration"`
	Segments json.RawMessage `json:"segments"`
}

// Transcribe uploads media and requests verbose output (text, language and
// time-aligned segments).
func (c *Client) Transcribe(ctx context.Context, transcriptionModel, filename string, media []byte) (*model.TranscriptionResult, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("creating form file: %w", err)
	}
	if _, err := part.Write(media); err != nil {
		return nil, fmt.Errorf("writing media: %w", err)
	}
	fields := map[string]string{
		"model":           transcriptionModel,
		"response_format": "verbose_json",
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("writing field %s: %w", k, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("closing multipart body: %w", err)
	}

	var resp transcriptionResponse
	if err := c.post(ctx, "/audio/transcriptions", "transcription", w.FormDataContentType(), &body, &resp); err != nil {
		return nil, err
	}

	segments := resp.Segments
	if len(segments) == 0 || string(segments) == "null" {
		segments = json.RawMessage("[]")
	}

	return &model.TranscriptionResult{
		Text:     resp.Text,
		Language: resp.Language,
		Duration: resp.Duration,
		Segments: segments,
		Provider: ProviderName + ":" + transcriptionModel,
	}, nil
}
