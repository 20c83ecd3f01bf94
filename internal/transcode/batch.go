package transcode

import (
	"context"
	"sync"
)

// Batch is the caller-facing handle of an in-flight readiness batch. The
// orchestrator owns the lifecycle; the handle only observes it.
type Batch struct {
	AssetID string
	JobIDs  []string

	done chan struct{}
	mu   sync.Mutex
	err  error
}

func newBatch(assetID string, jobIDs []string) *Batch {
	return &Batch{
		AssetID: assetID,
		JobIDs:  jobIDs,
		done:    make(chan struct{}),
	}
}

// Done returns a channel closed when the batch reaches a terminal outcome.
func (b *Batch) Done() <-chan struct{} {
	return b.done
}

// Err returns the batch failure, or nil when the batch succeeded or is still
// running.
func (b *Batch) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

// Wait blocks until the batch finishes or the context is cancelled.
func (b *Batch) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-b.done:
		return b.Err()
	}
}

func (b *Batch) finish(err error) {
	b.mu.Lock()
	b.err = err
	b.mu.Unlock()
	close(b.done)
}
