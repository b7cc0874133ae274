package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	redisURL := os.Getenv("TEST_REDIS_URL")
	if redisURL == "" {
		redisURL = "redis://localhost:6379/15"
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		t.Skip("Redis not available for testing")
	}
	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		t.Skip("Redis not available for testing")
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestSessionLocker(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()
	sessionID := "lock-test-" + time.Now().Format("150405.000000000")
	t.Cleanup(func() { client.Del(context.Background(), PipelineLockKey(sessionID)) })

	locker := NewSessionLocker(client, time.Minute)

	release, ok, err := locker.TryLock(ctx, sessionID)
	require.NoError(t, err)
	require.True(t, ok)

	t.Run("second holder is refused", func(t *testing.T) {
		_, ok, err := locker.TryLock(ctx, sessionID)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("lease carries a ttl", func(t *testing.T) {
		ttl, err := client.PTTL(ctx, PipelineLockKey(sessionID)).Result()
		require.NoError(t, err)
		assert.Greater(t, ttl, time.Duration(0))
	})

	release()

	t.Run("lock is free after release", func(t *testing.T) {
		again, ok, err := locker.TryLock(ctx, sessionID)
		require.NoError(t, err)
		assert.True(t, ok)
		again()
	})

	t.Run("release does not drop another holder's lease", func(t *testing.T) {
		_, ok, err := locker.TryLock(ctx, sessionID)
		require.NoError(t, err)
		require.True(t, ok)

		release()

		exists, err := client.Exists(ctx, PipelineLockKey(sessionID)).Result()
		require.NoError(t, err)
		assert.Equal(t, int64(1), exists)
	})
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "session-events:s1", SessionEventChannel("s1"))
	assert.Equal(t, "pipeline-lock:s1", PipelineLockKey("s1"))
}
