// Package worker adapts the orchestrator's job model to the external
// transcoding capability. It performs no business logic: it submits work,
// polls for status, and surfaces communication failures as job failures with
// a distinguishable error message.
package worker

import (
	"context"
	"encoding/json"
	"strings"
)

// External job states reported by the transcoding service.
const (
	RemoteQueued    = "queued"
	RemoteRunning   = "running"
	RemoteCompleted = "completed"
	RemoteFailed    = "failed"
)

// Request describes one unit of work handed to the transcoding service.
// Parameters carry the kind-specific payload: an encoding profile for
// transcode work, capture timestamps for thumbnail work.
type Request struct {
	SourceRef  string          `json:"source_ref"`
	Kind       string          `json:"kind"`
	Parameters json.RawMessage `json:"parameters"`
}

// PollResult is the externally reported state of a submitted job.
type PollResult struct {
	Status       string
	Progress     float64
	OutputRef    string
	ErrorMessage string
}

// Terminal reports whether the remote job will not change state again.
func (r PollResult) Terminal() bool {
	switch strings.ToLower(strings.TrimSpace(r.Status)) {
	case RemoteCompleted, RemoteFailed:
		return true
	default:
		return false
	}
}

// Succeeded reports whether the remote job finished with an artifact.
func (r PollResult) Succeeded() bool {
	return strings.EqualFold(strings.TrimSpace(r.Status), RemoteCompleted)
}

// Adapter is the boundary to the external transcoding capability.
type Adapter interface {
	Submit(ctx context.Context, req Request) (string, error)
	Poll(ctx context.Context, externalID string) (PollResult, error)
}
