package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/edulive/session-knowledge/internal/errors"
	"github.com/edulive/session-knowledge/internal/model"
)

type HandlerFunc func(ctx context.Context, job model.Job) error

type Claimer interface {
	Claim(ctx context.Context, limit int) ([]model.Job, error)
}

// Runner polls the queue and runs each due job on its own goroutine, so a slow
// transcription never delays another session's job.
type Runner struct {
	queue      Claimer
	handlers   map[model.JobType]HandlerFunc
	interval   time.Duration
	batch      int
	jobTimeout time.Duration
	done       chan struct{}
	wg         sync.WaitGroup
}

func NewRunner(queue Claimer, interval time.Duration, batch int, jobTimeout time.Duration) *Runner {
	return &Runner{
		queue:      queue,
		handlers:   make(map[model.JobType]HandlerFunc),
		interval:   interval,
		batch:      batch,
		jobTimeout: jobTimeout,
		done:       make(chan struct{}),
	}
}

// Register must be called before Start.
func (r *Runner) Register(jobType model.JobType, fn HandlerFunc) {
	r.handlers[jobType] = fn
}

func (r *Runner) Start() {
	r.wg.Add(1)
	go r.run()
	log.Info().Dur("interval", r.interval).Msg("job runner started")
}

// Stop stops polling and waits for running jobs to finish.
func (r *Runner) Stop() {
	close(r.done)
	r.wg.Wait()
	log.Info().Msg("job runner stopped")
}

func (r *Runner) run() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			r.poll()
		}
	}
}

func (r *Runner) poll() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	jobs, err := r.queue.Claim(ctx, r.batch)
	cancel()
	if err != nil {
		log.Error().Err(err).Msg("failed to claim jobs")
		return
	}

	for _, job := range jobs {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.execute(job)
		}()
	}
}

func (r *Runner) execute(job model.Job) {
	logger := log.With().
		Str("jobId", job.ID).
		Str("type", string(job.Type)).
		Str("sessionId", job.SessionID).
		Int("attempt", job.Attempt).
		Logger()

	fn, ok := r.handlers[job.Type]
	if !ok {
		logger.Error().Msg("no handler registered for job type")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.jobTimeout)
	defer cancel()

	start := time.Now()
	if err := fn(ctx, job); err != nil {
		if apperrors.Is(err, apperrors.ErrCodeConflict) {
			logger.Warn().Err(err).Msg("job skipped")
			return
		}
		logger.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("job failed")
		return
	}
	logger.Info().Dur("elapsed", time.Since(start)).Msg("job completed")
}
