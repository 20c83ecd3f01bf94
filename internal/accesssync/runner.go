package accesssync

import (
	"context"
	"log/slog"
	"time"

	"reelpipe/internal/config"
	"reelpipe/internal/jobs"
	"reelpipe/internal/logging"
)

// Runner drains pending access sync jobs. It executes jobs back to back
// while the queue is non-empty and idles on the poll interval otherwise.
type Runner struct {
	store    *jobs.Store
	orch     *Orchestrator
	interval time.Duration
	logger   *slog.Logger
}

// NewRunner wires a sync runner.
func NewRunner(store *jobs.Store, orch *Orchestrator, cfg config.AccessSync, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = logging.NewNop()
	}
	interval := time.Duration(cfg.RunnerPollInterval) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Runner{
		store:    store,
		orch:     orch,
		interval: interval,
		logger:   logger.With(logging.String(logging.FieldComponent, "accesssync.runner")),
	}
}

// Run loops until the context is cancelled. Job failures are already
// persisted by the orchestrator and never stop the loop.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info("sync runner started", logging.Duration("interval", r.interval))
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		job, err := r.store.NextPending(ctx, jobs.KindAccessSync)
		if err != nil {
			r.logger.Error("fetch pending sync job", logging.Error(err))
		} else if job != nil {
			if execErr := r.orch.Execute(ctx, job); execErr != nil {
				r.logger.Warn("sync job failed",
					logging.String(logging.FieldJobID, job.ID), logging.Error(execErr))
			}
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.interval):
		}
	}
}
