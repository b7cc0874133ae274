package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

type OverdueSessionEnder interface {
	EndOverdue(ctx context.Context) (int, error)
}

// SessionSweepJob periodically ends live sessions that ran past their
// scheduled end, which also schedules their recording processing.
type SessionSweepJob struct {
	ender    OverdueSessionEnder
	interval time.Duration
	done     chan struct{}
}

func NewSessionSweepJob(ender OverdueSessionEnder, interval time.Duration) *SessionSweepJob {
	return &SessionSweepJob{
		ender:    ender,
		interval: interval,
		done:     make(chan struct{}),
	}
}

func (j *SessionSweepJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Msg("session sweep job started")
}

func (j *SessionSweepJob) Stop() {
	close(j.done)
	log.Info().Msg("session sweep job stopped")
}

func (j *SessionSweepJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.sweep()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.sweep()
		}
	}
}

func (j *SessionSweepJob) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	count, err := j.ender.EndOverdue(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to end overdue sessions")
	} else if count > 0 {
		log.Info().Int("count", count).Msg("ended overdue sessions")
	}
}
