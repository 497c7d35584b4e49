// Package executor drives the worker pool that dequeues jobs, invokes
// handlers under a timeout, and applies the retry/DLQ state machine.
package executor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/samet-stack/ironforge/pkg/handler"
	"github.com/samet-stack/ironforge/pkg/job"
	"github.com/samet-stack/ironforge/pkg/metrics"
	"github.com/samet-stack/ironforge/pkg/queue"
)

// Config tunes the worker pool. Zero values are replaced by DefaultConfig's
// values at construction.
type Config struct {
	// DequeueTimeout bounds how long a worker blocks on a single dequeue
	// attempt before looping to re-check the shutdown signal.
	DequeueTimeout time.Duration
	// WorkerCount is the number of concurrent worker goroutines.
	WorkerCount int
}

// DefaultConfig mirrors the reference defaults: a 5 second dequeue poll
// and 4 concurrent workers.
func DefaultConfig() Config {
	return Config{
		DequeueTimeout: 5 * time.Second,
		WorkerCount:    4,
	}
}

// Executor runs Config.WorkerCount goroutines, each looping
// dequeue→lock→run-handler-under-timeout→complete/retry/DLQ→release-lock
// until its context is cancelled.
type Executor struct {
	backend  queue.Backend
	handler  handler.Handler
	config   Config
	logger   zerolog.Logger
	recorder *metrics.Recorder
}

// New constructs an Executor. A zero-value Config field falls back to
// DefaultConfig's corresponding value.
func New(backend queue.Backend, h handler.Handler, cfg Config, logger zerolog.Logger, recorder *metrics.Recorder) *Executor {
	def := DefaultConfig()
	if cfg.DequeueTimeout <= 0 {
		cfg.DequeueTimeout = def.DequeueTimeout
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = def.WorkerCount
	}
	return &Executor{backend: backend, handler: h, config: cfg, logger: logger, recorder: recorder}
}

// Run starts the worker pool and blocks until ctx is cancelled and every
// worker has returned. No worker starts a new dequeue once ctx is done;
// a worker already inside a handler invocation runs to completion or
// timeout before exiting.
func (e *Executor) Run(ctx context.Context) error {
	e.logger.Info().Int("worker_count", e.config.WorkerCount).Msg("starting executor")

	var wg sync.WaitGroup
	for id := 0; id < e.config.WorkerCount; id++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			e.workerLoop(ctx, workerID)
		}(id)
	}

	<-ctx.Done()
	e.logger.Info().Msg("shutdown signalled, waiting for active jobs to finish")
	wg.Wait()
	e.logger.Info().Msg("all workers stopped")
	return nil
}

func (e *Executor) workerLoop(ctx context.Context, workerID int) {
	log := e.logger.With().Int("worker_id", workerID).Logger()
	log.Info().Msg("worker started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("worker shutdown")
			return
		default:
		}

		j, err := e.backend.Dequeue(ctx, e.config.DequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				log.Info().Msg("worker shutdown")
				return
			}
			log.Error().Err(err).Msg("failed to dequeue job")
			select {
			case <-ctx.Done():
				log.Info().Msg("worker shutdown")
				return
			case <-time.After(time.Second):
			}
			continue
		}
		if j == nil {
			continue
		}

		e.processJob(ctx, workerID, j)
	}
}

func (e *Executor) processJob(ctx context.Context, workerID int, j *job.Job) {
	log := e.logger.With().Int("worker_id", workerID).Str("job_id", j.ID.String()).Logger()
	log.Info().Str("kind", j.Kind).Uint8("retry_count", j.RetryCount).Msg("processing job")

	if e.recorder != nil {
		e.recorder.JobWaitTime(j.Kind, string(j.Priority), time.Since(j.CreatedAt).Seconds())
	}

	// Once a job is popped off queue:main it must run to completion (or its
	// own timeout) and be persisted, even if shutdown is signalled midway —
	// per spec, cancellation only aborts a worker's dequeue wait. Everything
	// below runs on a context detached from ctx so a shutdown can't strand
	// the job in a stale Running record with the lock never released and
	// the job never re-enqueued or DLQ'd.
	workCtx := context.WithoutCancel(ctx)

	lock, err := e.backend.AcquireLock(workCtx, j.ID, j.LockTTL())
	if err != nil {
		if errors.Is(err, queue.ErrLockNotAcquired) {
			log.Warn().Msg("lock already held, skipping job")
			return
		}
		log.Error().Err(err).Msg("failed to acquire lock")
		return
	}
	defer func() {
		if err := lock.Release(workCtx); err != nil {
			log.Error().Err(err).Msg("failed to release lock")
		}
	}()

	j.Status = job.Running
	if err := e.backend.Update(workCtx, j); err != nil {
		log.Error().Err(err).Msg("failed to update job status to running")
	}

	handlerCtx, cancel := context.WithTimeout(workCtx, time.Duration(j.TimeoutMS)*time.Millisecond)
	defer cancel()

	start := time.Now()
	done := make(chan error, 1)
	go func() { done <- e.handler.Handle(handlerCtx, j) }()

	var handlerErr error
	select {
	case handlerErr = <-done:
	case <-handlerCtx.Done():
		handlerErr = handlerCtx.Err()
	}
	elapsed := time.Since(start).Seconds()

	if handlerErr == nil {
		j.Status = job.Completed
		if err := e.backend.Update(workCtx, j); err != nil {
			log.Error().Err(err).Msg("failed to update completed job")
		}
		if e.recorder != nil {
			e.recorder.JobCompleted(j.Kind, string(j.Priority), elapsed)
		}
		log.Info().Str("kind", j.Kind).Msg("job completed successfully")
		return
	}

	if errors.Is(handlerErr, context.DeadlineExceeded) {
		log.Error().Uint64("timeout_ms", j.TimeoutMS).Msg("job timed out")
	} else {
		log.Error().Err(handlerErr).Uint8("retry_count", j.RetryCount).Msg("job failed")
	}
	if e.recorder != nil {
		e.recorder.JobFailed(j.Kind, string(j.Priority), elapsed)
	}
	e.handleFailure(workCtx, log, j)
}

// handleFailure implements the retry-with-backoff / DLQ branch. ctx is
// always the job's shutdown-detached work context (see processJob), so the
// backoff sleep and the Enqueue/MoveToDLQ call below run to completion even
// if the executor is shutting down. Both branches are otherwise
// best-effort: an error here is logged, the lock still releases in
// processJob's deferred call, and the job remains recoverable via the
// manual retry endpoint.
func (e *Executor) handleFailure(ctx context.Context, log zerolog.Logger, j *job.Job) {
	j.RetryCount++

	if j.RetryCount < j.MaxRetries {
		delay := j.BackoffDelay()
		log.Info().Uint8("retry_count", j.RetryCount).Dur("delay", delay).Msg("scheduling job retry")
		j.Status = job.Queued

		time.Sleep(delay)

		if err := e.backend.Enqueue(ctx, j); err != nil {
			log.Error().Err(err).Msg("failed to requeue job")
			return
		}
		if e.recorder != nil {
			e.recorder.JobRetried(j.Kind, string(j.Priority), j.RetryCount)
		}
		return
	}

	log.Warn().Uint8("retry_count", j.RetryCount).Msg("job exceeded max retries, moving to dlq")
	if err := e.backend.MoveToDLQ(ctx, j); err != nil {
		log.Error().Err(err).Msg("failed to move job to dlq")
		return
	}
	if e.recorder != nil {
		e.recorder.JobDLQ(j.Kind, string(j.Priority))
	}
}
