// Package testsupport provides shared helpers for package tests.
package testsupport

import (
	"path/filepath"
	"testing"

	"reelpipe/internal/config"
	"reelpipe/internal/jobs"
)

// NewConfig returns a validated configuration rooted in the test's temp
// directory, with timings tightened so tests run quickly.
func NewConfig(t *testing.T) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.StagingDir = filepath.Join(base, "staging")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Transcode.PollInterval = 1
	cfg.Transcode.BatchTimeout = 10
	cfg.AccessSync.RunnerPollInterval = 1
	cfg.AccessSync.SweepInterval = 1
	cfg.Worker.BaseURL = "http://worker.test"
	cfg.Hosting.BaseURL = "http://hosting.test"

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate config: %v", err)
	}
	return &cfg
}

// MustOpenStore opens a fresh SQLite store under the test's temp directory
// and closes it when the test finishes.
func MustOpenStore(t *testing.T) *jobs.Store {
	t.Helper()

	store, err := jobs.OpenPath(filepath.Join(t.TempDir(), "reelpipe.db"))
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
