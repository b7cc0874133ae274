package model

import (
	"encoding/json"
	"time"
)

type Transcript struct {
	SessionID string          `db:"session_id" json:"sessionId"`
	Text      string          `db:"text" json:"text"`
	Language  *string         `db:"language" json:"language,omitempty"`
	Segments  json.RawMessage `db:"segments" json:"segments,omitempty"`
	Provider  string          `db:"provider" json:"provider"`
	CreatedAt time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time       `db:"updated_at" json:"updatedAt"`
}

// TranscriptSegment is one time-aligned piece of provider output.
type TranscriptSegment struct {
	ID    int     `json:"id"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// TranscriptionResult is the provider-neutral output of a transcription call.
type TranscriptionResult struct {
	Text     string
	Language string
	Duration float64
	Segments json.RawMessage
	Provider string
}
