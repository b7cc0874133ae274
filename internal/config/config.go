package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

const (
	PipelineModeSync     = "sync"
	PipelineModeDeferred = "deferred"
)

type Config struct {
	Port        int    `env:"PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL,required"`
	RedisURL    string `env:"REDIS_URL,required"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	DailyAPIKey         string `env:"DAILY_API_KEY"`
	DailyAPIURL         string `env:"DAILY_API_URL" envDefault:"https://api.daily.co/v1"`
	DailyWebhookSecret  string `env:"DAILY_WEBHOOK_SECRET"`
	RoomMaxParticipants int    `env:"ROOM_MAX_PARTICIPANTS" envDefault:"50"`
	RoomExpiryHours     int    `env:"ROOM_EXPIRY_HOURS" envDefault:"12"`

	OpenAIAPIKey       string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL      string `env:"OPENAI_BASE_URL" envDefault:"https://api.openai.com/v1"`
	TranscriptionModel string `env:"TRANSCRIPTION_MODEL" envDefault:"whisper-1"`
	EmbeddingModel     string `env:"EMBEDDING_MODEL" envDefault:"text-embedding-3-small"`
	ChatModel          string `env:"CHAT_MODEL" envDefault:"gpt-4o-mini"`

	StorageURL        string `env:"STORAGE_URL"`
	StorageServiceKey string `env:"STORAGE_SERVICE_KEY"`
	StorageBucket     string `env:"STORAGE_BUCKET" envDefault:"session-recordings"`

	PipelineMode                  string  `env:"PIPELINE_MODE" envDefault:"sync"`
	ProcessingInitialDelaySeconds int     `env:"PROCESSING_INITIAL_DELAY_SECONDS" envDefault:"60"`
	ProcessingRetryDelaySeconds   int     `env:"PROCESSING_RETRY_DELAY_SECONDS" envDefault:"60"`
	ChunkMaxChars                 int     `env:"CHUNK_MAX_CHARS" envDefault:"1800"`
	EmbeddingBatchSize            int     `env:"EMBEDDING_BATCH_SIZE" envDefault:"16"`
	RetrievalTopK                 int     `env:"RETRIEVAL_TOP_K" envDefault:"8"`
	RetrievalMinSimilarity        float64 `env:"RETRIEVAL_MIN_SIMILARITY" envDefault:"0.7"`
	HistoryTurns                  int     `env:"HISTORY_TURNS" envDefault:"6"`
	MaxRecordingBytes             int64   `env:"MAX_RECORDING_BYTES" envDefault:"524288000"`
	QARateLimitPerMin             int     `env:"QA_RATE_LIMIT_PER_MIN" envDefault:"20"`
	SessionEndGraceMinutes        int     `env:"SESSION_END_GRACE_MINUTES" envDefault:"30"`
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) ProcessingInitialDelay() time.Duration {
	return time.Duration(c.ProcessingInitialDelaySeconds) * time.Second
}

func (c *Config) ProcessingRetryDelay() time.Duration {
	return time.Duration(c.ProcessingRetryDelaySeconds) * time.Second
}

func (c *Config) RoomExpiry() time.Duration {
	return time.Duration(c.RoomExpiryHours) * time.Hour
}

func (c *Config) SessionEndGrace() time.Duration {
	return time.Duration(c.SessionEndGraceMinutes) * time.Minute
}

func (c *Config) Deferred() bool {
	return c.PipelineMode == PipelineModeDeferred
}

// Validate rejects settings the pipeline cannot run with and warns about
// missing provider credentials. Missing credentials are not fatal at boot:
// the calls that need them fail with a configuration error instead.
func (c *Config) Validate(isProduction bool) error {
	if c.PipelineMode != PipelineModeSync && c.PipelineMode != PipelineModeDeferred {
		return fmt.Errorf("PIPELINE_MODE must be %q or %q", PipelineModeSync, PipelineModeDeferred)
	}
	if c.ChunkMaxChars <= 0 {
		return fmt.Errorf("CHUNK_MAX_CHARS must be positive")
	}
	if c.EmbeddingBatchSize <= 0 {
		return fmt.Errorf("EMBEDDING_BATCH_SIZE must be positive")
	}
	if c.RetrievalTopK <= 0 {
		return fmt.Errorf("RETRIEVAL_TOP_K must be positive")
	}
	if c.RetrievalMinSimilarity < -1 || c.RetrievalMinSimilarity > 1 {
		return fmt.Errorf("RETRIEVAL_MIN_SIMILARITY must be within [-1, 1]")
	}

	if c.DailyAPIKey == "" {
		log.Warn().Msg("DAILY_API_KEY is empty: session start and recording acquisition will fail")
	}
	if c.OpenAIAPIKey == "" {
		log.Warn().Msg("OPENAI_API_KEY is empty: transcription, embeddings and answers will fail")
	}
	if c.StorageURL == "" || c.StorageServiceKey == "" {
		log.Warn().Msg("STORAGE_URL or STORAGE_SERVICE_KEY is empty: recordings cannot be stored")
	}

	if isProduction {
		if c.DailyWebhookSecret == "" {
			log.Warn().Msg("DAILY_WEBHOOK_SECRET is empty in production: webhook signature verification disabled")
		}
		if strings.HasPrefix(c.RedisURL, "redis://") {
			log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
		}
	}

	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
