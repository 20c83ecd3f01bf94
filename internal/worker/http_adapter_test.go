package worker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"reelpipe/internal/ratelimit"
)

func TestSubmitPostsJob(t *testing.T) {
	var received Request
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/jobs" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer key-1" {
			t.Errorf("unexpected auth header %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "remote-1"})
	}))
	defer server.Close()

	adapter := NewHTTPAdapterWithClient(server.URL, "key-1", server.Client(), ratelimit.NewService(0, 0))
	id, err := adapter.Submit(context.Background(), Request{
		SourceRef:  "s3://uploads/a.mov",
		Kind:       "transcode",
		Parameters: json.RawMessage(`{"tier":"720p"}`),
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if id != "remote-1" {
		t.Fatalf("unexpected external id %q", id)
	}
	if received.SourceRef != "s3://uploads/a.mov" || received.Kind != "transcode" {
		t.Fatalf("unexpected submitted payload: %+v", received)
	}
}

func TestSubmitRejectsErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "over capacity", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	adapter := NewHTTPAdapterWithClient(server.URL, "", server.Client(), nil)
	if _, err := adapter.Submit(context.Background(), Request{SourceRef: "x", Kind: "transcode"}); err == nil {
		t.Fatal("expected error for 503 response")
	}
}

func TestSubmitRejectsMissingID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{})
	}))
	defer server.Close()

	adapter := NewHTTPAdapterWithClient(server.URL, "", server.Client(), nil)
	if _, err := adapter.Submit(context.Background(), Request{SourceRef: "x", Kind: "transcode"}); err == nil {
		t.Fatal("expected error for response without job id")
	}
}

func TestPollDecodesStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/jobs/remote-1" {
			t.Errorf("unexpected poll path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":     "completed",
			"progress":   100,
			"output_url": "https://cdn.test/out",
		})
	}))
	defer server.Close()

	adapter := NewHTTPAdapterWithClient(server.URL, "", server.Client(), nil)
	result, err := adapter.Poll(context.Background(), "remote-1")
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if !result.Terminal() || !result.Succeeded() {
		t.Fatalf("expected terminal success, got %+v", result)
	}
	if result.OutputRef != "https://cdn.test/out" {
		t.Fatalf("unexpected output ref %q", result.OutputRef)
	}
}

func TestPollReportsFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": "failed",
			"error":  "encoder crashed",
		})
	}))
	defer server.Close()

	adapter := NewHTTPAdapterWithClient(server.URL, "", server.Client(), nil)
	result, err := adapter.Poll(context.Background(), "remote-1")
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if !result.Terminal() || result.Succeeded() {
		t.Fatalf("expected terminal failure, got %+v", result)
	}
	if result.ErrorMessage != "encoder crashed" {
		t.Fatalf("unexpected error message %q", result.ErrorMessage)
	}
}

func TestSubmitWithoutBaseURL(t *testing.T) {
	adapter := NewHTTPAdapterWithClient("", "", http.DefaultClient, nil)
	if _, err := adapter.Submit(context.Background(), Request{SourceRef: "x", Kind: "transcode"}); err == nil {
		t.Fatal("expected configuration error")
	}
}
