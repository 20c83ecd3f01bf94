package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"reelpipe/internal/jobs"
	"reelpipe/internal/testsupport"
)

func startAPIDaemon(t *testing.T, token string) (*Daemon, string) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIBind = "127.0.0.1:0"
	cfg.Paths.APIToken = token

	d := newTestDaemon(t, cfg)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("start daemon: %v", err)
	}
	t.Cleanup(d.Stop)

	addr := d.api.addr()
	if addr == "" {
		t.Fatal("api server has no address")
	}
	return d, "http://" + addr
}

func doJSON(t *testing.T, method, url, token string, body any) (*http.Response, []byte) {
	t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		t.Fatalf("read response: %v", err)
	}
	return resp, buf.Bytes()
}

func TestAPIStatusRequiresToken(t *testing.T) {
	_, base := startAPIDaemon(t, "secret")

	resp, _ := doJSON(t, http.MethodGet, base+"/api/status", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}

	resp, body := doJSON(t, http.MethodGet, base+"/api/status", "secret", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d: %s", resp.StatusCode, body)
	}
	var status statusResponse
	if err := json.Unmarshal(body, &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !status.Running {
		t.Fatal("expected running daemon")
	}
}

func TestAPIProcessLifecycle(t *testing.T) {
	_, base := startAPIDaemon(t, "")

	resp, body := doJSON(t, http.MethodPost, base+"/api/process", "", processRequest{
		AssetID:         "asset-1",
		SourceRef:       "s3://uploads/asset-1.mov",
		Tiers:           []string{"720p", "1080p"},
		ThumbnailCount:  2,
		DurationSeconds: 120,
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", resp.StatusCode, body)
	}
	var accepted processResponse
	if err := json.Unmarshal(body, &accepted); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if accepted.AssetID != "asset-1" || len(accepted.JobIDs) != 3 {
		t.Fatalf("unexpected accept payload: %+v", accepted)
	}

	var asset assetResponse
	deadline := time.Now().Add(20 * time.Second)
	for {
		resp, body = doJSON(t, http.MethodGet, base+"/api/assets/asset-1", "", nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("get asset: %d: %s", resp.StatusCode, body)
		}
		if err := json.Unmarshal(body, &asset); err != nil {
			t.Fatalf("decode asset: %v", err)
		}
		if asset.Status == string(jobs.AssetReady) || asset.Status == string(jobs.AssetFailed) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("asset never reached a terminal state: %+v", asset)
		}
		time.Sleep(200 * time.Millisecond)
	}
	if asset.Status != string(jobs.AssetReady) {
		t.Fatalf("expected ready asset, got %s (%s)", asset.Status, asset.ErrorMessage)
	}
	if len(asset.QualityOutputs) != 2 || len(asset.ThumbnailRefs) != 2 {
		t.Fatalf("unexpected outputs: %+v", asset)
	}

	resp, body = doJSON(t, http.MethodGet, base+"/api/jobs?status=completed", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list jobs: %d", resp.StatusCode)
	}
	var listed struct {
		Jobs []jobResponse `json:"jobs"`
	}
	if err := json.Unmarshal(body, &listed); err != nil {
		t.Fatalf("decode jobs: %v", err)
	}
	if len(listed.Jobs) != 3 {
		t.Fatalf("expected 3 completed jobs, got %d", len(listed.Jobs))
	}
}

func TestAPIBilling(t *testing.T) {
	_, base := startAPIDaemon(t, "")

	resp, body := doJSON(t, http.MethodPost, base+"/api/billing", "", billingRequest{
		SubscriberID: "sub-1",
		Outcome:      "success",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
	var billed billingResponse
	if err := json.Unmarshal(body, &billed); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if billed.Status != string(jobs.SubscriptionActive) || billed.SyncJobID == "" {
		t.Fatalf("unexpected billing payload: %+v", billed)
	}

	resp, body = doJSON(t, http.MethodPost, base+"/api/billing", "", billingRequest{
		SubscriberID: "sub-1",
		Outcome:      "chargeback",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown outcome, got %d: %s", resp.StatusCode, body)
	}
}

func TestAPIJobRetry(t *testing.T) {
	d, base := startAPIDaemon(t, "")
	ctx := context.Background()

	job, err := d.store.CreateJob(ctx, "asset-1", jobs.KindAccessSync, `{"subscriber_id":"sub-1"}`)
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	job.SetFailed("hosting unavailable")
	job.NeedsReview = true
	if err := d.store.UpdateJob(ctx, job); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	resp, body := doJSON(t, http.MethodPost, fmt.Sprintf("%s/api/jobs/%s/retry", base, job.ID), "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
	var retried jobResponse
	if err := json.Unmarshal(body, &retried); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if retried.Status != string(jobs.StatusPending) || retried.NeedsReview {
		t.Fatalf("unexpected retried job: %+v", retried)
	}

	completed, err := d.store.CreateJob(ctx, "asset-1", jobs.KindTranscode, "")
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	completed.SetCompleted("https://cdn.test/out", time.Now())
	if err := d.store.UpdateJob(ctx, completed); err != nil {
		t.Fatalf("mark completed: %v", err)
	}
	resp, _ = doJSON(t, http.MethodPost, fmt.Sprintf("%s/api/jobs/%s/retry", base, completed.ID), "", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for completed job, got %d", resp.StatusCode)
	}
}
