package accesssync

import (
	"context"
	"errors"
	"testing"

	"reelpipe/internal/jobs"
	"reelpipe/internal/notifications"
	"reelpipe/internal/testsupport"
)

func newTestSweeper(t *testing.T, remote *fakeHosting, batchLimit, reviewThreshold int) (*Sweeper, *Orchestrator, *jobs.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.AccessSync.SweepBatchLimit = batchLimit
	cfg.AccessSync.ReviewRetryThreshold = reviewThreshold

	store := testsupport.MustOpenStore(t)
	orch := NewOrchestrator(store, remote, nil)
	sweeper := NewSweeper(store, orch, notifications.NewService(cfg), cfg.AccessSync, nil)
	return sweeper, orch, store
}

func seedFailedSyncJob(t *testing.T, orch *Orchestrator, store *jobs.Store, subscriberID string) *jobs.Job {
	t.Helper()
	ctx := context.Background()
	job, err := orch.Enqueue(ctx, subscriberID)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	job.SetFailed("hosting unavailable")
	if err := store.UpdateJob(ctx, job); err != nil {
		t.Fatalf("mark job failed: %v", err)
	}
	return job
}

func TestSweepRetriesOldestFirstWithinLimit(t *testing.T) {
	ctx := context.Background()
	remote := &fakeHosting{fail: func(string) error { return errors.New("still down") }}
	sweeper, orch, store := newTestSweeper(t, remote, 2, 0)

	seedReadyAsset(t, store, "asset-a")
	first := seedFailedSyncJob(t, orch, store, "sub-1")
	second := seedFailedSyncJob(t, orch, store, "sub-2")
	third := seedFailedSyncJob(t, orch, store, "sub-3")

	result, err := sweeper.Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if result.Retried != 2 || result.Recovered != 0 {
		t.Fatalf("expected 2 retried and 0 recovered, got %+v", result)
	}

	for _, tc := range []struct {
		job     *jobs.Job
		retries int
	}{
		{first, 1},
		{second, 1},
		{third, 0},
	} {
		fresh, err := store.GetJob(ctx, tc.job.ID)
		if err != nil {
			t.Fatalf("get job: %v", err)
		}
		if fresh.RetryCount != tc.retries {
			t.Errorf("job %s: expected retry count %d, got %d", tc.job.ID, tc.retries, fresh.RetryCount)
		}
		if fresh.Status != jobs.StatusFailed {
			t.Errorf("job %s: expected failed, got %s", tc.job.ID, fresh.Status)
		}
	}
}

func TestSweepRecoversWhenHostingReturns(t *testing.T) {
	ctx := context.Background()
	remote := &fakeHosting{}
	sweeper, orch, store := newTestSweeper(t, remote, 10, 0)

	seedReadyAsset(t, store, "asset-a")
	seedSubscriber(t, store, "sub-1", jobs.SubscriptionActive)
	job := seedFailedSyncJob(t, orch, store, "sub-1")

	result, err := sweeper.Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if result.Retried != 1 || result.Recovered != 1 {
		t.Fatalf("expected 1 retried and 1 recovered, got %+v", result)
	}

	fresh, err := store.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if fresh.Status != jobs.StatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", fresh.Status, fresh.ErrorMessage)
	}
	if fresh.RetryCount != 0 {
		t.Errorf("recovered job should not gain retries, got %d", fresh.RetryCount)
	}
}

func TestSweepFlagsJobForReviewAtThreshold(t *testing.T) {
	ctx := context.Background()
	remote := &fakeHosting{fail: func(string) error { return errors.New("still down") }}
	sweeper, orch, store := newTestSweeper(t, remote, 10, 2)

	seedReadyAsset(t, store, "asset-a")
	job := seedFailedSyncJob(t, orch, store, "sub-1")

	for sweep := 1; sweep <= 2; sweep++ {
		if _, err := sweeper.Sweep(ctx); err != nil {
			t.Fatalf("sweep %d: %v", sweep, err)
		}
	}

	fresh, err := store.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if fresh.RetryCount != 2 {
		t.Fatalf("expected 2 retries, got %d", fresh.RetryCount)
	}
	if !fresh.NeedsReview {
		t.Fatal("expected job flagged for review")
	}

	// Flagged jobs leave the sweeper's queue.
	result, err := sweeper.Sweep(ctx)
	if err != nil {
		t.Fatalf("final sweep: %v", err)
	}
	if result.Retried != 0 {
		t.Fatalf("flagged job must not be retried, got %+v", result)
	}
}
