package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks configuration values that would otherwise fail at runtime.
func (c *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.Paths.LogDir) == "" {
		problems = append(problems, "paths.log_dir must be set")
	}
	if strings.TrimSpace(c.Paths.StagingDir) == "" {
		problems = append(problems, "paths.staging_dir must be set")
	}
	if len(c.Transcode.Tiers) == 0 {
		problems = append(problems, "transcode.tiers must list at least one quality tier")
	}
	if c.Transcode.ThumbnailCount < 1 {
		problems = append(problems, "transcode.thumbnail_count must be at least 1")
	}
	if c.Transcode.PollInterval <= 0 {
		problems = append(problems, "transcode.poll_interval must be positive")
	}
	if c.Transcode.BatchTimeout <= 0 {
		problems = append(problems, "transcode.batch_timeout must be positive")
	}
	if c.Transcode.BatchTimeout <= c.Transcode.PollInterval {
		problems = append(problems, "transcode.batch_timeout must exceed transcode.poll_interval")
	}
	if c.AccessSync.SweepBatchLimit <= 0 {
		problems = append(problems, "access_sync.sweep_batch_limit must be positive")
	}
	if c.AccessSync.SweepInterval <= 0 {
		problems = append(problems, "access_sync.sweep_interval must be positive")
	}
	if c.AccessSync.ReviewRetryThreshold < 0 {
		problems = append(problems, "access_sync.review_retry_threshold must not be negative")
	}
	if c.Worker.SubmitsPerSec < 0 || c.Hosting.CallsPerSec < 0 {
		problems = append(problems, "rate limits must not be negative")
	}

	switch strings.ToLower(strings.TrimSpace(c.Logging.Format)) {
	case "", "console", "json":
	default:
		problems = append(problems, fmt.Sprintf("logging.format %q is not supported (console, json)", c.Logging.Format))
	}

	if len(problems) == 0 {
		return nil
	}
	return errors.New("invalid configuration: " + strings.Join(problems, "; "))
}
