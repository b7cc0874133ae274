package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/edulive/session-knowledge/internal/model"
	redisclient "github.com/edulive/session-knowledge/internal/redis"
)

// claimScript atomically pops up to ARGV[2] members whose score is <= ARGV[1].
var claimScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
for _, member in ipairs(due) do
    redis.call('ZREM', KEYS[1], member)
end
return due
`)

// Queue is a delayed job queue on a Redis sorted set scored by run-at time.
// A claimed job is removed before it runs, so a crash mid-run drops it.
type Queue struct {
	client *redis.Client
	key    string
	now    func() time.Time
}

func NewQueue(client *redis.Client) *Queue {
	return &Queue{client: client, key: redisclient.DelayedJobsKey, now: time.Now}
}

// Schedule enqueues job to become due after delay.
func (q *Queue) Schedule(ctx context.Context, job model.Job, delay time.Duration) error {
	now := q.now()
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Attempt <= 0 {
		job.Attempt = 1
	}
	job.EnqueuedAt = now
	job.RunAt = now.Add(delay)

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	if err := q.client.ZAdd(ctx, q.key, redis.Z{
		Score:  float64(job.RunAt.UnixMilli()),
		Member: data,
	}).Err(); err != nil {
		return fmt.Errorf("enqueue job %s: %w", job.ID, err)
	}

	log.Debug().
		Str("jobId", job.ID).
		Str("type", string(job.Type)).
		Str("sessionId", job.SessionID).
		Int("attempt", job.Attempt).
		Time("runAt", job.RunAt).
		Msg("job scheduled")
	return nil
}

// Claim removes and returns up to limit due jobs.
func (q *Queue) Claim(ctx context.Context, limit int) ([]model.Job, error) {
	members, err := claimScript.Run(ctx, q.client, []string{q.key}, q.now().UnixMilli(), limit).StringSlice()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("claim jobs: %w", err)
	}

	jobs := make([]model.Job, 0, len(members))
	for _, m := range members {
		var job model.Job
		if err := json.Unmarshal([]byte(m), &job); err != nil {
			log.Error().Err(err).Msg("dropping undecodable job")
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// Pending returns the number of queued jobs, due or not.
func (q *Queue) Pending(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, q.key).Result()
}
