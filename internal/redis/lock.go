package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/edulive/session-knowledge/internal/util"
)

var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`)

// SessionLocker hands out per-session leases with SET NX PX. A lease expires
// on its own after ttl so a crashed worker cannot wedge a session.
type SessionLocker struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSessionLocker(client *redis.Client, ttl time.Duration) *SessionLocker {
	return &SessionLocker{client: client, ttl: ttl}
}

// TryLock returns a release func when the lease was acquired, or ok=false when
// another run holds it.
func (l *SessionLocker) TryLock(ctx context.Context, sessionID string) (release func(), ok bool, err error) {
	token, err := util.GenerateToken()
	if err != nil {
		return nil, false, err
	}

	key := PipelineLockKey(sessionID)
	acquired, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !acquired {
		return nil, false, nil
	}

	release = func() {
		// the caller's context may already be cancelled
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		releaseScript.Run(ctx, l.client, []string{key}, token)
	}
	return release, true, nil
}
