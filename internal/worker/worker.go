// Package worker drains the job queue, strictly one job at a time.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/stemsplit/stemsplit/internal/domain"
	"github.com/stemsplit/stemsplit/internal/jobdir"
	"github.com/stemsplit/stemsplit/internal/split"
	"github.com/stemsplit/stemsplit/internal/store"
)

const defaultPollInterval = time.Second

// Config holds worker configuration
type Config struct {
	Logger       *slog.Logger
	Store        store.JobStore
	Dirs         *jobdir.Allocator
	Separator    split.Separator
	PollInterval time.Duration
}

// Worker runs queued separations sequentially. Separation saturates the
// machine on its own, so there is exactly one of these per process.
type Worker struct {
	logger       *slog.Logger
	store        store.JobStore
	dirs         *jobdir.Allocator
	separator    split.Separator
	pollInterval time.Duration
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}

	return &Worker{
		logger:       cfg.Logger,
		store:        cfg.Store,
		dirs:         cfg.Dirs,
		separator:    cfg.Separator,
		pollInterval: interval,
	}
}

// Run processes jobs until the context is canceled.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.Duration("poll_interval", w.pollInterval),
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Worker context canceled, stopping...")
			return nil
		default:
		}

		job, err := w.store.DequeueNext(ctx)
		if err != nil {
			w.logger.Error("Failed to dequeue job",
				slog.String("error", err.Error()),
			)
			w.sleep(ctx)
			continue
		}

		if job == nil {
			w.sleep(ctx)
			continue
		}

		w.processJob(ctx, job)
	}
}

func (w *Worker) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(w.pollInterval):
	}
}

// processJob drives a single claimed job to a terminal status.
func (w *Worker) processJob(ctx context.Context, job *domain.Job) {
	w.logger.Info("Processing job",
		slog.String("job_id", job.ID),
		slog.String("model", job.Model),
	)

	status := domain.StatusFinished
	if err := w.separate(ctx, job); err != nil {
		w.logger.Error("Separation failed",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
		status = domain.StatusError
	}

	if err := w.store.SetStatus(ctx, job.ID, status); err != nil {
		w.logger.Error("Failed to update job status",
			slog.String("job_id", job.ID),
			slog.String("status", string(status)),
			slog.String("error", err.Error()),
		)
		return
	}

	w.logger.Info("Job finished",
		slog.String("job_id", job.ID),
		slog.String("status", string(status)),
	)
}

// separate shields the loop from a panicking separator. A crash fails
// the one job instead of killing the queue.
func (w *Worker) separate(ctx context.Context, job *domain.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("separation panic: %v", r)
		}
	}()

	return w.separator.Separate(ctx, split.Args{
		Input:     w.dirs.InputPath(job.ID),
		OutputDir: w.dirs.Dir(job.ID),
		Model:     job.Model,
	})
}
