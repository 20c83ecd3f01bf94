package hosting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSetVisibilityPutsFlag(t *testing.T) {
	var (
		gotPath string
		gotBody visibilityRequest
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("unexpected method %s", r.Method)
		}
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer key-2" {
			t.Errorf("unexpected auth header %q", auth)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	svc := NewHTTPServiceWithClient(server.URL, "key-2", server.Client(), nil)
	if err := svc.SetVisibility(context.Background(), "asset-1", "sub-1", VisibilityPublic); err != nil {
		t.Fatalf("set visibility: %v", err)
	}
	if gotPath != "/v1/assets/asset-1/visibility" {
		t.Fatalf("unexpected path %s", gotPath)
	}
	if gotBody.Audience != "sub-1" || gotBody.Visibility != string(VisibilityPublic) {
		t.Fatalf("unexpected body %+v", gotBody)
	}
}

func TestSetVisibilityErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "asset unknown", http.StatusNotFound)
	}))
	defer server.Close()

	svc := NewHTTPServiceWithClient(server.URL, "", server.Client(), nil)
	if err := svc.SetVisibility(context.Background(), "asset-1", "sub-1", VisibilityPrivate); err == nil {
		t.Fatal("expected error for 404 response")
	}
}

func TestSetVisibilityWithoutBaseURL(t *testing.T) {
	svc := NewHTTPServiceWithClient("", "", http.DefaultClient, nil)
	if err := svc.SetVisibility(context.Background(), "asset-1", "sub-1", VisibilityPublic); err == nil {
		t.Fatal("expected configuration error")
	}
}
