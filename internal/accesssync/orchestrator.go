package accesssync

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"reelpipe/internal/hosting"
	"reelpipe/internal/jobs"
	"reelpipe/internal/logging"
	"reelpipe/internal/services"
)

// applyConcurrency bounds the per-asset fan-out of one sync.
const applyConcurrency = 8

// Orchestrator executes access sync jobs against the hosting service.
type Orchestrator struct {
	store   *jobs.Store
	hosting hosting.Service
	logger  *slog.Logger
}

// NewOrchestrator wires an access sync orchestrator.
func NewOrchestrator(store *jobs.Store, hostingSvc hosting.Service, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Orchestrator{
		store:   store,
		hosting: hostingSvc,
		logger:  logger.With(logging.String(logging.FieldComponent, "accesssync")),
	}
}

// Enqueue creates a pending sync job for a subscriber. The job's asset scope
// is the subscriber itself; the fan-out targets are resolved at execution
// time so a sync always sees the current published catalog.
func (o *Orchestrator) Enqueue(ctx context.Context, subscriberID string) (*jobs.Job, error) {
	if subscriberID == "" {
		return nil, services.Wrap(services.ErrValidation, "accesssync", "enqueue", "subscriber id is required", nil)
	}
	payload, err := json.Marshal(jobs.SyncParameters{SubscriberID: subscriberID})
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "accesssync", "enqueue", "encode parameters", err)
	}
	job, err := o.store.CreateJob(ctx, subscriberID, jobs.KindAccessSync, string(payload))
	if err != nil {
		return nil, services.Wrap(services.ErrExternalService, "accesssync", "enqueue", "create job", err)
	}
	o.logger.Info("sync enqueued",
		logging.String(logging.FieldSubscriberID, subscriberID),
		logging.String(logging.FieldJobID, job.ID),
	)
	return job, nil
}

// Execute runs one sync job to a terminal state. The job record is updated
// in place and persisted; a non-nil return means the job failed.
func (o *Orchestrator) Execute(ctx context.Context, job *jobs.Job) error {
	var params jobs.SyncParameters
	if err := json.Unmarshal([]byte(job.ParametersJSON), &params); err != nil || params.SubscriberID == "" {
		job.SetFailed("malformed sync parameters")
		if saveErr := o.saveJob(ctx, job); saveErr != nil {
			return saveErr
		}
		return services.Wrap(services.ErrValidation, "accesssync", "execute", "malformed sync parameters", err)
	}

	job.Status = jobs.StatusProcessing
	if err := o.saveJob(ctx, job); err != nil {
		return err
	}

	ctx = services.WithJobID(ctx, job.ID)
	ctx = services.WithSubscriberID(ctx, params.SubscriberID)
	logger := logging.WithContext(ctx, o.logger)

	if err := o.apply(ctx, params.SubscriberID, logger); err != nil {
		job.SetFailed(err.Error())
		if saveErr := o.saveJob(ctx, job); saveErr != nil {
			logger.Error("persist sync failure", logging.Error(saveErr))
		}
		return err
	}

	job.SetCompleted("", time.Now())
	if err := o.saveJob(ctx, job); err != nil {
		logger.Error("persist sync completion", logging.Error(err))
		return err
	}
	logger.Info("sync completed")
	return nil
}

// apply propagates the subscriber's desired visibility across every
// published asset. Every asset is attempted even after a failure; the first
// failure in catalog order is what the job records.
func (o *Orchestrator) apply(ctx context.Context, subscriberID string, logger *slog.Logger) error {
	subscriber, err := o.store.GetSubscriber(ctx, subscriberID)
	if err != nil {
		return services.Wrap(services.ErrExternalService, "accesssync", "apply", "load subscriber", err)
	}

	// An unknown subscriber has no entitlement. Revoking is the safe default.
	visibility := hosting.VisibilityPrivate
	action := jobs.AuditRevoked
	if subscriber != nil && subscriber.Status == jobs.SubscriptionActive {
		visibility = hosting.VisibilityPublic
		action = jobs.AuditGranted
	}

	assets, err := o.store.PublishedAssets(ctx)
	if err != nil {
		return services.Wrap(services.ErrExternalService, "accesssync", "apply", "load published assets", err)
	}

	errs := make([]error, len(assets))
	var group errgroup.Group
	group.SetLimit(applyConcurrency)
	for i, asset := range assets {
		i, asset := i, asset
		group.Go(func() error {
			errs[i] = o.hosting.SetVisibility(ctx, asset.ID, subscriberID, visibility)
			return nil
		})
	}
	_ = group.Wait()

	for i, applyErr := range errs {
		if applyErr != nil {
			logger.Warn("visibility update failed",
				logging.String(logging.FieldAssetID, assets[i].ID), logging.Error(applyErr))
			return applyErr
		}
	}

	if err := o.store.AppendAuditEntry(ctx, subscriberID, action); err != nil {
		return services.Wrap(services.ErrExternalService, "accesssync", "apply", "append audit entry", err)
	}
	logger.Info("visibility propagated",
		logging.String("visibility", string(visibility)),
		logging.Int("assets", len(assets)),
	)
	return nil
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
