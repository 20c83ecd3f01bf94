// Package preflight verifies the daemon's runtime requirements before work
// starts: writable directories and reachable collaborators. Failures are
// reported together so an operator fixes everything in one pass.
package preflight

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"reelpipe/internal/config"
)

const probeTimeout = 5 * time.Second

// Check is the outcome of one requirement probe.
type Check struct {
	Name string
	Err  error
}

// OK reports whether the check passed.
func (c Check) OK() bool {
	return c.Err == nil
}

// Healthy reports whether every check passed.
func Healthy(checks []Check) bool {
	for _, check := range checks {
		if !check.OK() {
			return false
		}
	}
	return true
}

// Summarize joins the failed checks into one error, or returns nil when all
// passed.
func Summarize(checks []Check) error {
	var failures []string
	for _, check := range checks {
		if check.Err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", check.Name, check.Err))
		}
	}
	if len(failures) == 0 {
		return nil
	}
	return fmt.Errorf("preflight failed: %s", strings.Join(failures, "; "))
}

// Run probes every runtime requirement and returns the full result set.
func Run(ctx context.Context, cfg *config.Config) []Check {
	return []Check{
		{Name: "staging directory", Err: checkWritableDir(cfg.Paths.StagingDir)},
		{Name: "log directory", Err: checkWritableDir(cfg.Paths.LogDir)},
		{Name: "worker endpoint", Err: checkEndpoint(ctx, cfg.Worker.BaseURL, cfg.Worker.APIKey)},
		{Name: "hosting endpoint", Err: checkEndpoint(ctx, cfg.Hosting.BaseURL, cfg.Hosting.APIKey)},
	}
}

func checkWritableDir(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return fmt.Errorf("not configured")
	}
	if err := unix.Access(dir, unix.W_OK|unix.X_OK); err != nil {
		return fmt.Errorf("not writable: %w", err)
	}
	return nil
}

// checkEndpoint verifies the collaborator answers HTTP at all. Any response
// below 500 counts; auth and routing problems surface later with better
// context.
func checkEndpoint(ctx context.Context, baseURL, apiKey string) error {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return fmt.Errorf("base url not configured")
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, baseURL+"/v1/health", nil)
	if err != nil {
		return fmt.Errorf("build probe: %w", err)
	}
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}
