package accesssync

import (
	"context"
	"log/slog"
	"time"

	"reelpipe/internal/config"
	"reelpipe/internal/jobs"
	"reelpipe/internal/logging"
	"reelpipe/internal/notifications"
)

// Sweeper retries failed access sync jobs in bounded batches, oldest first.
// A job that keeps failing accumulates retries until it crosses the review
// threshold, at which point the sweeper stops touching it and flags it for
// an operator.
type Sweeper struct {
	store    *jobs.Store
	orch     *Orchestrator
	notifier notifications.Service
	cfg      config.AccessSync
	logger   *slog.Logger
}

// SweepResult summarizes one sweep pass.
type SweepResult struct {
	Retried   int
	Recovered int
	Flagged   int
}

// NewSweeper wires a retry sweeper.
func NewSweeper(store *jobs.Store, orch *Orchestrator, notifier notifications.Service, cfg config.AccessSync, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Sweeper{
		store:    store,
		orch:     orch,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger.With(logging.String(logging.FieldComponent, "accesssync.sweeper")),
	}
}

// Run sweeps on the configured interval until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	interval := time.Duration(s.cfg.SweepInterval) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	s.logger.Info("retry sweeper started",
		logging.Duration("interval", interval),
		logging.Int("batch_limit", s.cfg.SweepBatchLimit),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if _, err := s.Sweep(ctx); err != nil {
			s.logger.Error("sweep pass failed", logging.Error(err))
		}
	}
}

// Sweep retries up to the configured batch of failed sync jobs. Jobs that
// fail again keep their place in line with an incremented retry count.
func (s *Sweeper) Sweep(ctx context.Context) (SweepResult, error) {
	var result SweepResult

	failed, err := s.store.FailedJobs(ctx, jobs.KindAccessSync, s.cfg.SweepBatchLimit)
	if err != nil {
		return result, err
	}

	for _, job := range failed {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Retried++

		if execErr := s.orch.Execute(ctx, job); execErr != nil {
			job.RetryCount++
			if s.cfg.ReviewRetryThreshold > 0 && job.RetryCount >= s.cfg.ReviewRetryThreshold && !job.NeedsReview {
				job.NeedsReview = true
				result.Flagged++
				s.logger.Error("sync job flagged for review",
					logging.String(logging.FieldJobID, job.ID),
					logging.Int("retry_count", job.RetryCount),
				)
				if notifyErr := s.notifier.NotifyError(ctx, execErr, "sync job "+job.ID+" flagged for review"); notifyErr != nil {
					s.logger.Warn("review notification", logging.Error(notifyErr))
				}
			}
			if saveErr := s.orch.saveJob(ctx, job); saveErr != nil {
				s.logger.Error("persist retry count",
					logging.String(logging.FieldJobID, job.ID), logging.Error(saveErr))
			}
			continue
		}
		result.Recovered++
	}

	if result.Retried > 0 {
		s.logger.Info("sweep finished",
			logging.Int("retried", result.Retried),
			logging.Int("recovered", result.Recovered),
			logging.Int("flagged", result.Flagged),
		)
	}

	// A backlog wider than one sweep batch means the sweeper alone cannot
	// drain it. Tell an operator.
	remaining, err := s.store.CountFailed(ctx, jobs.KindAccessSync)
	if err != nil {
		return result, err
	}
	if remaining > s.cfg.SweepBatchLimit {
		if notifyErr := s.notifier.NotifySyncBacklog(ctx, remaining); notifyErr != nil {
			s.logger.Warn("backlog notification", logging.Error(notifyErr))
		}
	}
	return result, nil
}
