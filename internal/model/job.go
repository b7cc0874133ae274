package model

import "time"

type JobType string

const JobTypeProcessRecording JobType = "process_recording"

type RecordingSource string

const (
	RecordingSourceProvider RecordingSource = "provider"
	RecordingSourceStorage  RecordingSource = "storage"
)

// Job is a deferred unit of pipeline work. Attempt starts at 1.
type Job struct {
	ID          string          `json:"id"`
	Type        JobType         `json:"type"`
	SessionID   string          `json:"sessionId"`
	RecordingID string          `json:"recordingId,omitempty"`
	Source      RecordingSource `json:"source,omitempty"`
	Attempt     int             `json:"attempt"`
	RunAt       time.Time       `json:"runAt"`
	EnqueuedAt  time.Time       `json:"enqueuedAt"`
}
