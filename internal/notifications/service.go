package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"reelpipe/internal/config"
)

const userAgent = "reelpipe/0.1.0"

// Service defines the notification surface exposed to pipeline components.
type Service interface {
	NotifyAssetReady(ctx context.Context, assetID string, tierCount int) error
	NotifyBatchFailed(ctx context.Context, assetID, reason string) error
	NotifySyncBacklog(ctx context.Context, failedCount int) error
	NotifyError(ctx context.Context, err error, contextLabel string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		settings: cfg.Notifications,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	settings config.Notifications
}

func (n *ntfyService) NotifyAssetReady(ctx context.Context, assetID string, tierCount int) error {
	if !n.settings.AssetReady {
		return nil
	}
	data := payload{
		title:   "Reelpipe - Asset Ready",
		message: fmt.Sprintf("Asset %s is streamable in %d quality tiers", assetID, tierCount),
		tags:    []string{"reelpipe", "transcode", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyBatchFailed(ctx context.Context, assetID, reason string) error {
	if !n.settings.BatchFailed {
		return nil
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "unknown"
	}
	data := payload{
		title:    "Reelpipe - Processing Failed",
		message:  fmt.Sprintf("Asset %s failed processing: %s", assetID, reason),
		tags:     []string{"reelpipe", "transcode", "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifySyncBacklog(ctx context.Context, failedCount int) error {
	if !n.settings.SyncBacklog {
		return nil
	}
	data := payload{
		title:   "Reelpipe - Sync Backlog",
		message: fmt.Sprintf("%d access sync jobs are failing and awaiting retry", failedCount),
		tags:    []string{"reelpipe", "access", "backlog"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	if !n.settings.Errors {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    "Reelpipe - Error",
		message:  builder.String(),
		tags:     []string{"reelpipe", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Reelpipe - Test",
		message:  "Notification system test",
		tags:     []string{"reelpipe", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyAssetReady(context.Context, string, int) error  { return nil }
func (noopService) NotifyBatchFailed(context.Context, string, string) error { return nil }
func (noopService) NotifySyncBacklog(context.Context, int) error         { return nil }
func (noopService) NotifyError(context.Context, error, string) error     { return nil }
func (noopService) TestNotification(context.Context) error               { return nil }
