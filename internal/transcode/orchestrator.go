package transcode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"reelpipe/internal/config"
	"reelpipe/internal/jobs"
	"reelpipe/internal/ladder"
	"reelpipe/internal/logging"
	"reelpipe/internal/notifications"
	"reelpipe/internal/services"
	"reelpipe/internal/thumbnails"
	"reelpipe/internal/worker"
)

// timeoutMessage is the error recorded on every job and on the asset when a
// batch exceeds its deadline. Downstream tooling matches on it.
const timeoutMessage = "processing timeout"

// ErrBatchActive is returned when a readiness batch is requested for an asset
// that already has one running. Batches for the same asset never overlap.
var ErrBatchActive = errors.New("a processing batch is already active for this asset")

// ProcessRequest describes one readiness batch to start.
type ProcessRequest struct {
	AssetID         string
	SourceRef       string
	Tiers           []string
	ThumbnailCount  int
	DurationSeconds float64
}

// thumbnailParameters is the parameters payload of a thumbnail job.
type thumbnailParameters struct {
	Count             int       `json:"count"`
	TimestampsSeconds []float64 `json:"timestamps_seconds"`
}

// Orchestrator drives readiness batches from request to terminal asset state.
type Orchestrator struct {
	store    *jobs.Store
	adapter  worker.Adapter
	notifier notifications.Service
	cfg      config.Transcode
	logger   *slog.Logger

	mu     sync.Mutex
	active map[string]struct{}
	wg     sync.WaitGroup
}

// NewOrchestrator wires a batch orchestrator. The notifier may be a noop.
func NewOrchestrator(store *jobs.Store, adapter worker.Adapter, notifier notifications.Service, cfg config.Transcode, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Orchestrator{
		store:    store,
		adapter:  adapter,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger.With(logging.String(logging.FieldComponent, "transcode")),
		active:   make(map[string]struct{}),
	}
}

// StartBatch records the asset, creates its jobs, and launches the batch in
// the background. It returns once the jobs are persisted; progress is
// observed through the returned handle or the store.
func (o *Orchestrator) StartBatch(ctx context.Context, req ProcessRequest) (*Batch, error) {
	if strings.TrimSpace(req.AssetID) == "" {
		return nil, services.Wrap(services.ErrValidation, "transcode", "start", "asset id is required", nil)
	}
	if strings.TrimSpace(req.SourceRef) == "" {
		return nil, services.Wrap(services.ErrValidation, "transcode", "start", "source ref is required", nil)
	}

	tiers := req.Tiers
	if len(tiers) == 0 {
		tiers = o.cfg.Tiers
	}
	if len(tiers) == 0 {
		return nil, services.Wrap(services.ErrConfiguration, "transcode", "start", "no quality tiers requested or configured", nil)
	}
	thumbCount := req.ThumbnailCount
	if thumbCount <= 0 {
		thumbCount = o.cfg.ThumbnailCount
	}
	if thumbCount <= 0 {
		thumbCount = thumbnails.DefaultCount
	}

	if !o.acquire(req.AssetID) {
		return nil, fmt.Errorf("asset %s: %w", req.AssetID, ErrBatchActive)
	}

	batch, err := o.prepare(ctx, req, tiers, thumbCount)
	if err != nil {
		o.release(req.AssetID)
		return nil, err
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer o.release(req.AssetID)
		o.run(ctx, batch)
	}()
	return batch, nil
}

// Wait blocks until every in-flight batch has finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func (o *Orchestrator) acquire(assetID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.active[assetID]; busy {
		return false
	}
	o.active[assetID] = struct{}{}
	return true
}

func (o *Orchestrator) release(assetID string) {
	o.mu.Lock()
	delete(o.active, assetID)
	o.mu.Unlock()
}

// prepare persists the asset in processing state and creates one pending job
// per tier plus the thumbnail job.
func (o *Orchestrator) prepare(ctx context.Context, req ProcessRequest, tiers []string, thumbCount int) (*Batch, error) {
	asset, err := o.store.UpsertAsset(ctx, req.AssetID, req.SourceRef)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalService, "transcode", "start", "record asset", err)
	}
	asset.Status = jobs.AssetProcessing
	asset.ErrorMessage = ""
	asset.QualityOutputs = nil
	asset.ThumbnailRefs = nil
	if err := o.store.UpdateAsset(ctx, asset); err != nil {
		return nil, services.Wrap(services.ErrExternalService, "transcode", "start", "mark asset processing", err)
	}

	jobIDs := make([]string, 0, len(tiers)+1)
	for _, tier := range tiers {
		profile := ladder.ProfileFor(tier, o.cfg.AudioBitrateKbps, o.cfg.SegmentedOutput)
		payload, err := json.Marshal(profile)
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, "transcode", "start", "encode profile", err)
		}
		job, err := o.store.CreateJob(ctx, req.AssetID, jobs.KindTranscode, string(payload))
		if err != nil {
			return nil, services.Wrap(services.ErrExternalService, "transcode", "start", "create transcode job", err)
		}
		jobIDs = append(jobIDs, job.ID)
	}

	thumbParams := thumbnailParameters{
		Count:             thumbCount,
		TimestampsSeconds: thumbnails.Schedule(thumbCount, req.DurationSeconds),
	}
	payload, err := json.Marshal(thumbParams)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "transcode", "start", "encode thumbnail parameters", err)
	}
	job, err := o.store.CreateJob(ctx, req.AssetID, jobs.KindThumbnail, string(payload))
	if err != nil {
		return nil, services.Wrap(services.ErrExternalService, "transcode", "start", "create thumbnail job", err)
	}
	jobIDs = append(jobIDs, job.ID)

	o.logger.Info("batch created",
		logging.String(logging.FieldAssetID, req.AssetID),
		logging.Int("jobs", len(jobIDs)),
		logging.Any("tiers", tiers),
	)
	return newBatch(req.AssetID, jobIDs), nil
}

// run submits the batch, polls until terminal, and finalizes the asset.
func (o *Orchestrator) run(ctx context.Context, batch *Batch) {
	ctx = services.WithAssetID(ctx, batch.AssetID)
	ctx = services.WithRequestID(ctx, uuid.NewString())
	logger := logging.WithContext(ctx, o.logger)

	// Finalization must land even when the daemon is shutting down; a batch
	// left half-written would strand the asset in processing.
	finalCtx := context.WithoutCancel(ctx)

	sourceRef, batchJobs, err := o.loadBatchJobs(ctx, batch)
	if err != nil {
		logger.Error("load batch jobs", logging.Error(err))
		batch.finish(err)
		return
	}

	if firstErr := o.submitAll(ctx, sourceRef, batchJobs, logger); firstErr != nil {
		o.finalizeFailure(finalCtx, batch, batchJobs, firstErr.Error(), logger)
		batch.finish(firstErr)
		return
	}

	outcome := o.poll(ctx, batchJobs, logger)
	switch {
	case outcome == nil:
		o.finalizeSuccess(finalCtx, batch, batchJobs, logger)
		batch.finish(nil)
	case errors.Is(outcome, context.Canceled) || errors.Is(outcome, context.DeadlineExceeded):
		// Shutdown interrupted the batch. Jobs stay in processing and are
		// reset to pending on the next daemon start.
		logger.Info("batch interrupted by shutdown")
		batch.finish(outcome)
	default:
		o.finalizeFailure(finalCtx, batch, batchJobs, outcome.Error(), logger)
		batch.finish(outcome)
	}
}

func (o *Orchestrator) loadBatchJobs(ctx context.Context, batch *Batch) (string, []*jobs.Job, error) {
	asset, err := o.store.GetAsset(ctx, batch.AssetID)
	if err != nil {
		return "", nil, err
	}
	if asset == nil {
		return "", nil, fmt.Errorf("asset %s disappeared before submission", batch.AssetID)
	}

	out := make([]*jobs.Job, 0, len(batch.JobIDs))
	for _, id := range batch.JobIDs {
		job, err := o.store.GetJob(ctx, id)
		if err != nil {
			return "", nil, err
		}
		if job == nil {
			return "", nil, fmt.Errorf("job %s disappeared before submission", id)
		}
		out = append(out, job)
	}
	return asset.SourceRef, out, nil
}

// submitAll fans the batch out to the worker. Every job is attempted even
// when an earlier one fails so the store reflects each submission outcome;
// the first error is returned and fails the whole batch.
func (o *Orchestrator) submitAll(ctx context.Context, sourceRef string, batchJobs []*jobs.Job, logger *slog.Logger) error {
	var (
		group    errgroup.Group
		mu       sync.Mutex
		firstErr error
	)

	for _, job := range batchJobs {
		job := job
		group.Go(func() error {
			externalID, err := o.adapter.Submit(ctx, worker.Request{
				SourceRef:  sourceRef,
				Kind:       string(job.Kind),
				Parameters: json.RawMessage(job.ParametersJSON),
			})

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				job.SetFailed(err.Error())
				if firstErr == nil {
					firstErr = err
				}
			} else {
				job.Status = jobs.StatusProcessing
				job.ExternalRef = externalID
			}
			if saveErr := o.saveJob(ctx, job); saveErr != nil {
				logger.Error("persist submission outcome",
					logging.String(logging.FieldJobID, job.ID),
					logging.String(logging.FieldJobKind, string(job.Kind)),
					logging.Error(saveErr))
				if firstErr == nil {
					firstErr = saveErr
				}
			}
			return nil
		})
	}
	_ = group.Wait()

	if firstErr == nil {
		logger.Info("batch submitted", logging.Int("jobs", len(batchJobs)))
	}
	return firstErr
}

// poll watches the batch until every job is terminal. It returns nil when all
// jobs completed, and the first failure otherwise. Transient poll errors are
// logged and retried on the next tick; only the deadline ends the waiting.
func (o *Orchestrator) poll(ctx context.Context, batchJobs []*jobs.Job, logger *slog.Logger) error {
	interval := time.Duration(o.cfg.PollInterval) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}
	timeout := time.Duration(o.cfg.BatchTimeout) * time.Second
	if timeout <= 0 {
		timeout = time.Hour
	}
	deadline := time.Now().Add(timeout)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if time.Now().After(deadline) {
			return errors.New(timeoutMessage)
		}

		remaining := 0
		var firstErr error
		for _, job := range batchJobs {
			if job.Status.IsTerminal() {
				if job.Status == jobs.StatusFailed && firstErr == nil {
					firstErr = errors.New(job.ErrorMessage)
				}
				continue
			}

			result, err := o.adapter.Poll(ctx, job.ExternalRef)
			if err != nil {
				logger.Warn("poll attempt failed",
					logging.String(logging.FieldJobID, job.ID), logging.Error(err))
				remaining++
				continue
			}

			changed := false
			if result.Progress > job.Progress {
				job.Progress = result.Progress
				changed = true
			}
			if result.Terminal() {
				if result.Succeeded() {
					job.SetCompleted(result.OutputRef, time.Now())
				} else {
					message := strings.TrimSpace(result.ErrorMessage)
					if message == "" {
						message = "transcoding failed"
					}
					job.SetFailed(message)
					if firstErr == nil {
						firstErr = errors.New(message)
					}
				}
				changed = true
			} else {
				remaining++
			}
			if changed {
				if err := o.saveJob(ctx, job); err != nil {
					logger.Error("persist poll outcome",
						logging.String(logging.FieldJobID, job.ID), logging.Error(err))
				}
			}
		}

		if firstErr != nil {
			return firstErr
		}
		if remaining == 0 {
			return nil
		}
	}
}

// finalizeSuccess collects the batch outputs into the asset's readiness
// record and flips it to ready.
func (o *Orchestrator) finalizeSuccess(ctx context.Context, batch *Batch, batchJobs []*jobs.Job, logger *slog.Logger) {
	outputs := make(map[string]string)
	var thumbs []string

	for _, job := range batchJobs {
		switch job.Kind {
		case jobs.KindTranscode:
			var profile ladder.Profile
			if err := json.Unmarshal([]byte(job.ParametersJSON), &profile); err != nil {
				logger.Error("decode job profile",
					logging.String(logging.FieldJobID, job.ID), logging.Error(err))
				continue
			}
			outputs[profile.Tier] = job.OutputRef
			logger.Debug("tier output recorded",
				logging.String(logging.FieldTier, profile.Tier),
				logging.String("output_ref", job.OutputRef))
		case jobs.KindThumbnail:
			var params thumbnailParameters
			if err := json.Unmarshal([]byte(job.ParametersJSON), &params); err != nil {
				logger.Error("decode thumbnail parameters",
					logging.String(logging.FieldJobID, job.ID), logging.Error(err))
				continue
			}
			thumbs = thumbnailRefs(job.OutputRef, params.Count)
		}
	}

	asset, err := o.store.GetAsset(ctx, batch.AssetID)
	if err != nil || asset == nil {
		logger.Error("load asset for finalize", logging.Error(err))
		return
	}
	asset.Status = jobs.AssetReady
	asset.QualityOutputs = outputs
	asset.ThumbnailRefs = thumbs
	asset.ErrorMessage = ""
	if err := o.store.UpdateAsset(ctx, asset); err != nil {
		logger.Error("mark asset ready", logging.Error(err))
		return
	}

	logger.Info("batch completed", logging.Int("tiers", len(outputs)), logging.Int("thumbnails", len(thumbs)))
	if err := o.notifier.NotifyAssetReady(ctx, batch.AssetID, len(outputs)); err != nil {
		logger.Warn("asset ready notification", logging.Error(err))
	}
}

// finalizeFailure marks every non-terminal job failed with the batch reason
// and records the failed asset. Completed jobs keep their outputs for audit,
// but none of them reach the asset record.
func (o *Orchestrator) finalizeFailure(ctx context.Context, batch *Batch, batchJobs []*jobs.Job, reason string, logger *slog.Logger) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "batch failed"
	}

	for _, job := range batchJobs {
		if job.Status.IsTerminal() {
			continue
		}
		job.SetFailed(reason)
		if err := o.saveJob(ctx, job); err != nil {
			logger.Error("persist batch failure",
				logging.String(logging.FieldJobID, job.ID), logging.Error(err))
		}
	}

	asset, err := o.store.GetAsset(ctx, batch.AssetID)
	if err != nil || asset == nil {
		logger.Error("load asset for failure", logging.Error(err))
		return
	}
	asset.Status = jobs.AssetFailed
	asset.QualityOutputs = nil
	asset.ThumbnailRefs = nil
	asset.ErrorMessage = reason
	if err := o.store.UpdateAsset(ctx, asset); err != nil {
		logger.Error("mark asset failed", logging.Error(err))
	}

	logger.Error("batch failed", logging.String("reason", reason))
	if err := o.notifier.NotifyBatchFailed(ctx, batch.AssetID, reason); err != nil {
		logger.Warn("batch failure notification", logging.Error(err))
	}
}

// saveJob persists a job update, absorbing a lost version race by rebasing
// onto the current row version once.
func (o *Orchestrator) saveJob(ctx context.Context, job *jobs.Job) error {
	err := o.store.UpdateJob(ctx, job)
	if !errors.Is(err, jobs.ErrVersionConflict) {
		return err
	}
	fresh, getErr := o.store.GetJob(ctx, job.ID)
	if getErr != nil || fresh == nil {
		return err
	}
	job.Version = fresh.Version
	return o.store.UpdateJob(ctx, job)
}

// thumbnailRefs derives the ordered thumbnail locations from the worker's
// output base. The worker writes thumb_01.jpg through thumb_NN.jpg under it.
func thumbnailRefs(outputRef string, count int) []string {
	base := strings.TrimRight(strings.TrimSpace(outputRef), "/")
	if base == "" || count <= 0 {
		return nil
	}
	refs := make([]string, 0, count)
	for i := 1; i <= count; i++ {
		refs = append(refs, fmt.Sprintf("%s/thumb_%02d.jpg", base, i))
	}
	return refs
}
