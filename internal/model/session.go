package model

import (
	"fmt"
	"time"
)

// RoomNamePrefix is prepended to the session id to form the deterministic
// provider room name.
const RoomNamePrefix = "session-"

type Session struct {
	ID                       string        `db:"id" json:"id"`
	CourseID                 string        `db:"course_id" json:"courseId"`
	Title                    string        `db:"title" json:"title"`
	CourseName               string        `db:"course_name" json:"courseName"`
	GradeLevel               *string       `db:"grade_level" json:"gradeLevel,omitempty"`
	Status                   SessionStatus `db:"status" json:"status"`
	ScheduledStart           time.Time     `db:"scheduled_start" json:"scheduledStart"`
	ScheduledEnd             time.Time     `db:"scheduled_end" json:"scheduledEnd"`
	StartedAt                *time.Time    `db:"started_at" json:"startedAt,omitempty"`
	EndedAt                  *time.Time    `db:"ended_at" json:"endedAt,omitempty"`
	RoomName                 *string       `db:"room_name" json:"roomName,omitempty"`
	RoomURL                  *string       `db:"room_url" json:"roomUrl,omitempty"`
	RecordingEnabled         bool          `db:"recording_enabled" json:"recordingEnabled"`
	RecordingURL             *string       `db:"recording_url" json:"recordingUrl,omitempty"`
	RecordingObjectKey       *string       `db:"recording_object_key" json:"-"`
	RecordingSizeBytes       *int64        `db:"recording_size_bytes" json:"recordingSizeBytes,omitempty"`
	RecordingDurationSeconds *int          `db:"recording_duration_seconds" json:"recordingDurationSeconds,omitempty"`
	CreatedAt                time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt                time.Time     `db:"updated_at" json:"updatedAt"`
}

// RoomNameFor returns the deterministic room name for a session id.
func RoomNameFor(sessionID string) string {
	return fmt.Sprintf("%s%s", RoomNamePrefix, sessionID)
}

type MarkLiveParams struct {
	RoomName  string
	RoomURL   string
	StartedAt time.Time
}

type RecordingStoredParams struct {
	RecordingURL    string
	ObjectKey       string
	SizeBytes       int64
	DurationSeconds int
}
