package jobs

import (
	"strings"
	"time"
)

// Kind identifies the unit of work a processing job represents.
type Kind string

const (
	KindTranscode  Kind = "transcode"
	KindThumbnail  Kind = "thumbnail"
	KindAccessSync Kind = "access_sync"
)

// Status represents the lifecycle of a processing job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

var allStatuses = []Status{StatusPending, StatusProcessing, StatusCompleted, StatusFailed}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether a job in this status will not spontaneously
// transition again.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Job represents one unit of asynchronous work persisted in SQLite.
//
// OutputRef is set only when Status is completed; ErrorMessage only when
// failed. Progress is meaningless once the status is terminal.
type Job struct {
	ID             string
	AssetID        string
	Kind           Kind
	Status         Status
	Progress       float64
	ParametersJSON string
	ExternalRef    string
	OutputRef      string
	ErrorMessage   string
	RetryCount     int
	NeedsReview    bool
	Version        int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
	CompletedAt    *time.Time
}

// SetCompleted marks the job as completed with the produced artifact location.
func (j *Job) SetCompleted(outputRef string, now time.Time) {
	j.Status = StatusCompleted
	j.OutputRef = outputRef
	j.ErrorMessage = ""
	j.Progress = 100
	completed := now.UTC()
	j.CompletedAt = &completed
}

// SetFailed marks the job as failed with the given error message.
func (j *Job) SetFailed(message string) {
	j.Status = StatusFailed
	j.ErrorMessage = message
	j.OutputRef = ""
	j.CompletedAt = nil
}

// SyncParameters is the parameters payload of an access_sync job.
type SyncParameters struct {
	SubscriberID string `json:"subscriber_id"`
}

// AssetStatus represents the readiness lifecycle of a content asset.
type AssetStatus string

const (
	AssetDraft      AssetStatus = "draft"
	AssetProcessing AssetStatus = "processing"
	AssetReady      AssetStatus = "ready"
	AssetFailed     AssetStatus = "failed"
)

// Asset is the content entity a transcode batch produces outputs for.
// QualityOutputs maps quality tier to output URL; ThumbnailRefs is ordered.
type Asset struct {
	ID             string
	SourceRef      string
	Status         AssetStatus
	QualityOutputs map[string]string
	ThumbnailRefs  []string
	ErrorMessage   string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// SubscriptionStatus tracks a subscriber's entitlement state.
type SubscriptionStatus string

const (
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionPastDue  SubscriptionStatus = "past_due"
	SubscriptionInactive SubscriptionStatus = "inactive"
)

// Subscriber carries the billing-derived access state read by the access
// sync orchestrator.
type Subscriber struct {
	ID                  string
	Status              SubscriptionStatus
	PaymentFailureCount int
	UpdatedAt           time.Time
}

// AuditAction records the outcome of a completed access sync.
type AuditAction string

const (
	AuditGranted AuditAction = "granted"
	AuditRevoked AuditAction = "revoked"
)

// AuditEntry is one line of the access audit log.
type AuditEntry struct {
	ID           int64
	SubscriberID string
	Action       AuditAction
	CreatedAt    time.Time
}

// StatsSummary aggregates job counts per lifecycle state.
type StatsSummary struct {
	Total      int
	Pending    int
	Processing int
	Completed  int
	Failed     int
}
