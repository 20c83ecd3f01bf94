package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	StagingDir string `toml:"staging_dir"`
	LogDir     string `toml:"log_dir"`
	APIBind    string `toml:"api_bind"`
	APIToken   string `toml:"api_token"`
}

// Transcode contains batch orchestration settings.
type Transcode struct {
	Tiers            []string `toml:"tiers"`
	ThumbnailCount   int      `toml:"thumbnail_count"`
	PollInterval     int      `toml:"poll_interval"`
	BatchTimeout     int      `toml:"batch_timeout"`
	SegmentedOutput  bool     `toml:"segmented_output"`
	AudioBitrateKbps int      `toml:"audio_bitrate_kbps"`
}

// Worker contains configuration for the external transcoding service.
type Worker struct {
	BaseURL        string  `toml:"base_url"`
	APIKey         string  `toml:"api_key"`
	RequestTimeout int     `toml:"request_timeout"`
	SubmitsPerSec  float64 `toml:"submits_per_sec"`
	SubmitBurst    int     `toml:"submit_burst"`
}

// Hosting contains configuration for the video-hosting collaborator that
// owns playback visibility.
type Hosting struct {
	BaseURL        string  `toml:"base_url"`
	APIKey         string  `toml:"api_key"`
	RequestTimeout int     `toml:"request_timeout"`
	CallsPerSec    float64 `toml:"calls_per_sec"`
	CallBurst      int     `toml:"call_burst"`
}

// AccessSync contains configuration for the sync runner and retry sweeper.
type AccessSync struct {
	RunnerPollInterval   int `toml:"runner_poll_interval"`
	SweepInterval        int `toml:"sweep_interval"`
	SweepBatchLimit      int `toml:"sweep_batch_limit"`
	ReviewRetryThreshold int `toml:"review_retry_threshold"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	AssetReady     bool   `toml:"asset_ready"`
	BatchFailed    bool   `toml:"batch_failed"`
	SyncBacklog    bool   `toml:"sync_backlog"`
	Errors         bool   `toml:"errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for reelpipe.
//
// Configuration sections by subsystem:
//   - Paths: directories, API bind address, API token
//   - Transcode: tiers, thumbnail count, poll interval, batch timeout
//   - Worker: external transcoding service endpoint and rate limits
//   - Hosting: video-hosting visibility endpoint and rate limits
//   - AccessSync: sync runner and retry sweeper timing
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Transcode     Transcode     `toml:"transcode"`
	Worker        Worker        `toml:"worker"`
	Hosting       Hosting       `toml:"hosting"`
	AccessSync    AccessSync    `toml:"access_sync"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration
// file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/reelpipe/config.toml")
}

// SampleConfig returns the embedded annotated sample configuration.
func SampleConfig() string {
	return sampleConfig
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("reelpipe.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

func (c *Config) normalize() error {
	var err error
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return err
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return err
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	c.Worker.BaseURL = strings.TrimRight(strings.TrimSpace(c.Worker.BaseURL), "/")
	c.Hosting.BaseURL = strings.TrimRight(strings.TrimSpace(c.Hosting.BaseURL), "/")
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)

	tiers := make([]string, 0, len(c.Transcode.Tiers))
	for _, tier := range c.Transcode.Tiers {
		if trimmed := strings.ToLower(strings.TrimSpace(tier)); trimmed != "" {
			tiers = append(tiers, trimmed)
		}
	}
	c.Transcode.Tiers = tiers
	return nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StagingDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}
