package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts
const (
	ServerRequestTimeout  = 60 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Webhook processing runs the whole pipeline in-request when PIPELINE_MODE=sync.
// It covers download, upload, transcription and indexing back to back; deferred
// mode is the one meant for long recordings.
const WebhookProcessingTimeout = RecordingDownloadTimeout + StorageUploadTimeout + TranscriptionTimeout + 5*time.Minute

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// Provider call timeouts
const (
	ProviderRequestTimeout   = 30 * time.Second
	RecordingDownloadTimeout = 10 * time.Minute
	TranscriptionTimeout     = 10 * time.Minute
	CompletionTimeout        = 60 * time.Second
	EmbeddingBatchTimeout    = 60 * time.Second
	StorageUploadTimeout     = 5 * time.Minute
)

// Background job settings
const (
	SessionSweepInterval = 5 * time.Minute
	JobPollInterval      = 2 * time.Second
	JobClaimBatch        = 10
	PipelineLockTTL      = JobTimeout + 5*time.Minute
	JobTimeout           = WebhookProcessingTimeout
)

// Question answering
const (
	MaxQuestionLength = 2000
	AnswerTemperature = 0.3
	AnswerMaxTokens   = 1000
	SignedURLTTL      = time.Hour
)

// Default rate limiting
const DefaultRateLimitPerMin = 20

// Webhook signatures older or newer than this are rejected.
const WebhookMaxSkew = 5 * time.Minute
