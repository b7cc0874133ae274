package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type countingEnder struct {
	calls atomic.Int32
	err   error
}

func (c *countingEnder) EndOverdue(ctx context.Context) (int, error) {
	c.calls.Add(1)
	if c.err != nil {
		return 0, c.err
	}
	return 2, nil
}

func TestSessionSweepJob(t *testing.T) {
	t.Run("sweeps immediately and on every tick", func(t *testing.T) {
		ender := &countingEnder{}
		job := NewSessionSweepJob(ender, 10*time.Millisecond)
		job.Start()

		assert.Eventually(t, func() bool { return ender.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
		job.Stop()
	})

	t.Run("errors do not stop the job", func(t *testing.T) {
		ender := &countingEnder{err: errors.New("db down")}
		job := NewSessionSweepJob(ender, 10*time.Millisecond)
		job.Start()

		assert.Eventually(t, func() bool { return ender.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
		job.Stop()
	})
}
