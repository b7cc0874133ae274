package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type Client struct {
	*redis.Client
}

func NewClient(redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Client{client}, nil
}

func (c *Client) Close() error {
	return c.Client.Close()
}

// SessionEventChannel is the pub/sub channel carrying one session's events.
func SessionEventChannel(sessionID string) string {
	return fmt.Sprintf("session-events:%s", sessionID)
}

// PipelineLockKey guards one pipeline run per session.
func PipelineLockKey(sessionID string) string {
	return fmt.Sprintf("pipeline-lock:%s", sessionID)
}

// DelayedJobsKey is the sorted set of deferred jobs scored by run-at millis.
const DelayedJobsKey = "jobs:delayed"
