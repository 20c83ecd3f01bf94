package jobs

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenPath(filepath.Join(t.TempDir(), "reelpipe.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close store: %v", err)
		}
	})
	return store
}

func TestCreateAndGetJob(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	job, err := store.CreateJob(ctx, "asset-1", KindTranscode, `{"tier":"720p"}`)
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	if job.Status != StatusPending || job.Version != 1 {
		t.Fatalf("unexpected new job: %+v", job)
	}

	fetched, err := store.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if fetched == nil || fetched.ParametersJSON != `{"tier":"720p"}` {
		t.Fatalf("unexpected fetched job: %+v", fetched)
	}

	missing, err := store.GetJob(ctx, "nope")
	if err != nil {
		t.Fatalf("get missing job: %v", err)
	}
	if missing != nil {
		t.Fatal("expected nil for missing job")
	}
}

func TestUpdateJobVersionConflict(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	job, err := store.CreateJob(ctx, "asset-1", KindTranscode, "")
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	stale, err := store.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}

	job.Status = StatusProcessing
	if err := store.UpdateJob(ctx, job); err != nil {
		t.Fatalf("first update: %v", err)
	}
	if job.Version != 2 {
		t.Fatalf("expected version bump to 2, got %d", job.Version)
	}

	stale.Status = StatusFailed
	err = store.UpdateJob(ctx, stale)
	if !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}

	fresh, err := store.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if fresh.Status != StatusProcessing {
		t.Fatalf("stale write must not apply, got %s", fresh.Status)
	}
}

func TestNextPendingByKind(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	if _, err := store.CreateJob(ctx, "asset-1", KindTranscode, ""); err != nil {
		t.Fatalf("create transcode job: %v", err)
	}
	first, err := store.CreateJob(ctx, "sub-1", KindAccessSync, "")
	if err != nil {
		t.Fatalf("create sync job: %v", err)
	}
	if _, err := store.CreateJob(ctx, "sub-2", KindAccessSync, ""); err != nil {
		t.Fatalf("create second sync job: %v", err)
	}

	next, err := store.NextPending(ctx, KindAccessSync)
	if err != nil {
		t.Fatalf("next pending: %v", err)
	}
	if next == nil || next.ID != first.ID {
		t.Fatalf("expected oldest sync job %s, got %+v", first.ID, next)
	}

	none, err := store.NextPending(ctx, KindThumbnail)
	if err != nil {
		t.Fatalf("next pending thumbnail: %v", err)
	}
	if none != nil {
		t.Fatal("expected no pending thumbnail job")
	}
}

func TestFailedJobsOldestFirstExcludesReview(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	var failed []*Job
	for _, subscriber := range []string{"sub-1", "sub-2", "sub-3"} {
		job, err := store.CreateJob(ctx, subscriber, KindAccessSync, "")
		if err != nil {
			t.Fatalf("create job: %v", err)
		}
		job.SetFailed("hosting unavailable")
		if err := store.UpdateJob(ctx, job); err != nil {
			t.Fatalf("mark failed: %v", err)
		}
		failed = append(failed, job)
	}

	failed[0].NeedsReview = true
	if err := store.UpdateJob(ctx, failed[0]); err != nil {
		t.Fatalf("flag for review: %v", err)
	}

	batch, err := store.FailedJobs(ctx, KindAccessSync, 10)
	if err != nil {
		t.Fatalf("failed jobs: %v", err)
	}
	if len(batch) != 2 {
		t.Fatalf("expected 2 sweepable jobs, got %d", len(batch))
	}
	if batch[0].ID != failed[1].ID || batch[1].ID != failed[2].ID {
		t.Fatal("expected oldest-first order without the flagged job")
	}

	limited, err := store.FailedJobs(ctx, KindAccessSync, 1)
	if err != nil {
		t.Fatalf("failed jobs limited: %v", err)
	}
	if len(limited) != 1 || limited[0].ID != failed[1].ID {
		t.Fatalf("expected only the oldest sweepable job, got %+v", limited)
	}

	count, err := store.CountFailed(ctx, KindAccessSync)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 failed jobs counted, got %d", count)
	}
}

func TestResetStuckProcessing(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	job, err := store.CreateJob(ctx, "asset-1", KindTranscode, "")
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	job.Status = StatusProcessing
	job.Progress = 40
	if err := store.UpdateJob(ctx, job); err != nil {
		t.Fatalf("mark processing: %v", err)
	}
	done, err := store.CreateJob(ctx, "asset-2", KindTranscode, "")
	if err != nil {
		t.Fatalf("create done job: %v", err)
	}
	done.SetCompleted("https://cdn.test/out", time.Now())
	if err := store.UpdateJob(ctx, done); err != nil {
		t.Fatalf("mark completed: %v", err)
	}

	reset, err := store.ResetStuckProcessing(ctx)
	if err != nil {
		t.Fatalf("reset stuck: %v", err)
	}
	if reset != 1 {
		t.Fatalf("expected 1 reset job, got %d", reset)
	}

	fresh, err := store.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if fresh.Status != StatusPending || fresh.Progress != 0 {
		t.Fatalf("unexpected recovered job: %+v", fresh)
	}
	keep, err := store.GetJob(ctx, done.ID)
	if err != nil {
		t.Fatalf("get completed job: %v", err)
	}
	if keep.Status != StatusCompleted {
		t.Fatalf("completed job must not be touched, got %s", keep.Status)
	}
}

func TestAssetLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	asset, err := store.UpsertAsset(ctx, "asset-1", "s3://uploads/a.mov")
	if err != nil {
		t.Fatalf("upsert asset: %v", err)
	}
	if asset.Status != AssetDraft {
		t.Fatalf("expected draft, got %s", asset.Status)
	}

	asset.Status = AssetReady
	asset.QualityOutputs = map[string]string{"720p": "https://cdn.test/720p"}
	asset.ThumbnailRefs = []string{"https://cdn.test/thumb_01.jpg"}
	if err := store.UpdateAsset(ctx, asset); err != nil {
		t.Fatalf("update asset: %v", err)
	}

	// Re-registering an upload refreshes the source but keeps the status.
	again, err := store.UpsertAsset(ctx, "asset-1", "s3://uploads/a2.mov")
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if again.Status != AssetReady || again.SourceRef != "s3://uploads/a2.mov" {
		t.Fatalf("unexpected upserted asset: %+v", again)
	}
	if again.QualityOutputs["720p"] == "" || len(again.ThumbnailRefs) != 1 {
		t.Fatalf("outputs lost on upsert: %+v", again)
	}

	published, err := store.PublishedAssets(ctx)
	if err != nil {
		t.Fatalf("published assets: %v", err)
	}
	if len(published) != 1 || published[0].ID != "asset-1" {
		t.Fatalf("unexpected published set: %+v", published)
	}
}

func TestSubscriberAndAudit(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	missing, err := store.GetSubscriber(ctx, "ghost")
	if err != nil {
		t.Fatalf("get missing subscriber: %v", err)
	}
	if missing != nil {
		t.Fatal("expected nil for unknown subscriber")
	}

	sub := &Subscriber{ID: "sub-1", Status: SubscriptionActive}
	if err := store.SaveSubscriber(ctx, sub); err != nil {
		t.Fatalf("save subscriber: %v", err)
	}
	sub.Status = SubscriptionPastDue
	sub.PaymentFailureCount = 1
	if err := store.SaveSubscriber(ctx, sub); err != nil {
		t.Fatalf("update subscriber: %v", err)
	}

	fresh, err := store.GetSubscriber(ctx, "sub-1")
	if err != nil {
		t.Fatalf("get subscriber: %v", err)
	}
	if fresh.Status != SubscriptionPastDue || fresh.PaymentFailureCount != 1 {
		t.Fatalf("unexpected subscriber: %+v", fresh)
	}

	if err := store.AppendAuditEntry(ctx, "sub-1", AuditGranted); err != nil {
		t.Fatalf("append granted: %v", err)
	}
	if err := store.AppendAuditEntry(ctx, "sub-1", AuditRevoked); err != nil {
		t.Fatalf("append revoked: %v", err)
	}

	entries, err := store.AuditEntries(ctx, "sub-1")
	if err != nil {
		t.Fatalf("audit entries: %v", err)
	}
	if len(entries) != 2 || entries[0].Action != AuditGranted || entries[1].Action != AuditRevoked {
		t.Fatalf("unexpected audit log: %+v", entries)
	}
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	if _, err := store.CreateJob(ctx, "asset-1", KindTranscode, ""); err != nil {
		t.Fatalf("create job: %v", err)
	}
	failed, err := store.CreateJob(ctx, "asset-2", KindAccessSync, "")
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	failed.SetFailed("boom")
	if err := store.UpdateJob(ctx, failed); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 2 || stats.Pending != 1 || stats.Failed != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}
