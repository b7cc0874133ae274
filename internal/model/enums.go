package model

type SessionStatus string

const (
	SessionStatusScheduled SessionStatus = "scheduled"
	SessionStatusLive      SessionStatus = "live"
	SessionStatusCompleted SessionStatus = "completed"
)

type RecordingStatus string

const (
	RecordingStatusInProgress RecordingStatus = "in-progress"
	RecordingStatusFinished   RecordingStatus = "finished"
)

type UserRole string

const (
	UserRoleStudent UserRole = "student"
	UserRoleTeacher UserRole = "teacher"
	UserRoleAdmin   UserRole = "admin"
)

// AccessLevel is what a user may do with a course's sessions.
type AccessLevel int

const (
	AccessNone AccessLevel = iota
	AccessLearner
	AccessTeacher
)

type ChatRole string

const (
	ChatRoleSystem    ChatRole = "system"
	ChatRoleUser      ChatRole = "user"
	ChatRoleAssistant ChatRole = "assistant"
)
