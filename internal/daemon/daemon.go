package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"

	"reelpipe/internal/accesssync"
	"reelpipe/internal/config"
	"reelpipe/internal/hosting"
	"reelpipe/internal/jobs"
	"reelpipe/internal/logging"
	"reelpipe/internal/notifications"
	"reelpipe/internal/subscription"
	"reelpipe/internal/transcode"
	"reelpipe/internal/worker"
)

// Daemon coordinates the background services and enforces single-instance
// execution.
type Daemon struct {
	cfg        *config.Config
	logger     *slog.Logger
	store      *jobs.Store
	transcoder *transcode.Orchestrator
	syncer     *accesssync.Orchestrator
	runner     *accesssync.Runner
	sweeper    *accesssync.Sweeper
	billing    *subscription.Machine
	api        *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	runCtx  context.Context
	cancel  context.CancelFunc
	loops   sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	DBPath       string
	LockFilePath string
	Jobs         jobs.StatsSummary
}

// New constructs a daemon with initialized services. The worker adapter and
// hosting service are injectable so tests can substitute fakes.
func New(cfg *config.Config, store *jobs.Store, adapter worker.Adapter, hostingSvc hosting.Service, notifier notifications.Service, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || adapter == nil || hostingSvc == nil {
		return nil, errors.New("daemon requires config, store, worker adapter, and hosting service")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}

	syncer := accesssync.NewOrchestrator(store, hostingSvc, logger)
	d := &Daemon{
		cfg:        cfg,
		logger:     logger,
		store:      store,
		transcoder: transcode.NewOrchestrator(store, adapter, notifier, cfg.Transcode, logger),
		syncer:     syncer,
		runner:     accesssync.NewRunner(store, syncer, cfg.AccessSync, logger),
		sweeper:    accesssync.NewSweeper(store, syncer, notifier, cfg.AccessSync, logger),
		billing:    subscription.NewMachine(store, syncer, logger),
		lockPath:   filepath.Join(cfg.Paths.LogDir, "reelpiped.lock"),
	}
	d.lock = flock.New(d.lockPath)

	api, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.api = api
	return d, nil
}

// Start acquires the daemon lock, recovers stranded jobs, and launches the
// background loops.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another reelpipe daemon instance is already running")
	}

	recovered, err := d.store.ResetStuckProcessing(ctx)
	if err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("recover stranded jobs: %w", err)
	}
	if recovered > 0 {
		d.logger.Warn("recovered jobs stranded in processing", logging.Int64("jobs", recovered))
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.runCtx = runCtx
	d.cancel = cancel

	if d.api != nil {
		if err := d.api.start(runCtx); err != nil {
			cancel()
			d.cancel = nil
			_ = d.lock.Unlock()
			return err
		}
	}

	d.loops.Add(2)
	go func() {
		defer d.loops.Done()
		if err := d.runner.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Error("sync runner stopped", logging.Error(err))
		}
	}()
	go func() {
		defer d.loops.Done()
		if err := d.sweeper.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Error("retry sweeper stopped", logging.Error(err))
		}
	}()

	d.running.Store(true)
	d.logger.Info("reelpipe daemon started",
		logging.String("lock", d.lockPath),
		logging.String("db", d.store.Path()),
	)
	return nil
}

// Stop halts background processing, waits for in-flight batches, and
// releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.loops.Wait()
	d.transcoder.Wait()
	d.api.stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("reelpipe daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Status reports runtime state for the status endpoint and CLI.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		DBPath:       d.store.Path(),
		LockFilePath: d.lockPath,
	}
	if stats, err := d.store.Stats(ctx); err == nil {
		status.Jobs = stats
	} else {
		d.logger.Warn("collect job stats", logging.Error(err))
	}
	return status
}

// Process starts a readiness batch for an uploaded asset. The batch runs on
// the daemon's lifetime, not the caller's: an API request returning must not
// cancel the work it triggered.
func (d *Daemon) Process(ctx context.Context, req transcode.ProcessRequest) (*transcode.Batch, error) {
	batchCtx := d.runCtx
	if batchCtx == nil {
		batchCtx = ctx
	}
	return d.transcoder.StartBatch(batchCtx, req)
}

// ApplyBillingEvent forwards a billing outcome to the subscription machine.
func (d *Daemon) ApplyBillingEvent(ctx context.Context, subscriberID string, outcome subscription.Outcome) (*subscription.Result, error) {
	return d.billing.ApplyBillingEvent(ctx, subscriberID, outcome)
}
