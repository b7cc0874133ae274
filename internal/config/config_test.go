package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigMethods(t *testing.T) {
	t.Run("Addr returns formatted port", func(t *testing.T) {
		cfg := &Config{Port: 3000}
		assert.Equal(t, ":3000", cfg.Addr())
	})

	t.Run("delays convert seconds to duration", func(t *testing.T) {
		cfg := &Config{ProcessingInitialDelaySeconds: 60, ProcessingRetryDelaySeconds: 90}
		assert.Equal(t, 60*time.Second, cfg.ProcessingInitialDelay())
		assert.Equal(t, 90*time.Second, cfg.ProcessingRetryDelay())
	})

	t.Run("RoomExpiry converts hours to duration", func(t *testing.T) {
		cfg := &Config{RoomExpiryHours: 12}
		assert.Equal(t, 12*time.Hour, cfg.RoomExpiry())
	})

	t.Run("Deferred reflects pipeline mode", func(t *testing.T) {
		assert.True(t, (&Config{PipelineMode: PipelineModeDeferred}).Deferred())
		assert.False(t, (&Config{PipelineMode: PipelineModeSync}).Deferred())
	})
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			PipelineMode:           PipelineModeSync,
			ChunkMaxChars:          1800,
			EmbeddingBatchSize:     16,
			RetrievalTopK:          8,
			RetrievalMinSimilarity: 0.7,
		}
	}

	t.Run("accepts defaults without provider credentials", func(t *testing.T) {
		assert.NoError(t, valid().Validate(false))
	})

	t.Run("rejects unknown pipeline mode", func(t *testing.T) {
		cfg := valid()
		cfg.PipelineMode = "eventually"
		assert.Error(t, cfg.Validate(false))
	})

	t.Run("rejects non-positive chunk size", func(t *testing.T) {
		cfg := valid()
		cfg.ChunkMaxChars = 0
		assert.Error(t, cfg.Validate(false))
	})

	t.Run("rejects out of range similarity", func(t *testing.T) {
		cfg := valid()
		cfg.RetrievalMinSimilarity = 1.5
		assert.Error(t, cfg.Validate(false))
	})
}

func TestLoad(t *testing.T) {
	keys := []string{
		"PORT", "DATABASE_URL", "REDIS_URL", "LOG_LEVEL", "PIPELINE_MODE",
		"CHUNK_MAX_CHARS", "EMBEDDING_BATCH_SIZE", "RETRIEVAL_TOP_K", "RETRIEVAL_MIN_SIMILARITY",
	}
	originalEnv := make(map[string]string, len(keys))
	for _, k := range keys {
		originalEnv[k] = os.Getenv(k)
	}

	defer func() {
		for k, v := range originalEnv {
			if v == "" {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, v)
			}
		}
	}()

	t.Run("loads config with defaults", func(t *testing.T) {
		os.Setenv("DATABASE_URL", "postgres://localhost/test")
		os.Setenv("REDIS_URL", "redis://localhost:6379")
		for _, k := range keys[3:] {
			os.Unsetenv(k)
		}
		os.Unsetenv("PORT")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, 8080, cfg.Port)
		assert.Equal(t, "postgres://localhost/test", cfg.DatabaseURL)
		assert.Equal(t, "info", cfg.LogLevel)
		assert.Equal(t, PipelineModeSync, cfg.PipelineMode)
		assert.Equal(t, 1800, cfg.ChunkMaxChars)
		assert.Equal(t, 16, cfg.EmbeddingBatchSize)
		assert.Equal(t, 8, cfg.RetrievalTopK)
		assert.InDelta(t, 0.7, cfg.RetrievalMinSimilarity, 1e-9)
		assert.Equal(t, 6, cfg.HistoryTurns)
		assert.Equal(t, 60, cfg.ProcessingInitialDelaySeconds)
		assert.Equal(t, 60, cfg.ProcessingRetryDelaySeconds)
		assert.Equal(t, "https://api.daily.co/v1", cfg.DailyAPIURL)
	})

	t.Run("loads custom values", func(t *testing.T) {
		os.Setenv("DATABASE_URL", "postgres://localhost/test")
		os.Setenv("REDIS_URL", "redis://localhost:6379")
		os.Setenv("PORT", "3000")
		os.Setenv("PIPELINE_MODE", "deferred")
		os.Setenv("RETRIEVAL_MIN_SIMILARITY", "0.5")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, 3000, cfg.Port)
		assert.True(t, cfg.Deferred())
		assert.InDelta(t, 0.5, cfg.RetrievalMinSimilarity, 1e-9)
	})

	t.Run("fails without required DATABASE_URL", func(t *testing.T) {
		os.Unsetenv("DATABASE_URL")
		os.Setenv("REDIS_URL", "redis://localhost:6379")

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("fails without required REDIS_URL", func(t *testing.T) {
		os.Setenv("DATABASE_URL", "postgres://localhost/test")
		os.Unsetenv("REDIS_URL")

		_, err := Load()
		assert.Error(t, err)
	})
}

func TestTimeoutBudgets(t *testing.T) {
	steps := RecordingDownloadTimeout + StorageUploadTimeout + TranscriptionTimeout

	assert.Greater(t, WebhookProcessingTimeout, steps, "sync webhook must outlast its provider calls")
	assert.GreaterOrEqual(t, JobTimeout, WebhookProcessingTimeout)
	assert.Greater(t, PipelineLockTTL, JobTimeout, "lock must not expire under a running job")
	assert.LessOrEqual(t, ProviderRequestTimeout, EmbeddingBatchTimeout)
}
