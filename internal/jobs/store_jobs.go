package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const jobColumns = "id, asset_id, kind, status, progress, parameters_json, external_ref, output_ref, error_message, retry_count, needs_review, version, created_at, updated_at, completed_at"

// CreateJob inserts a new pending job for an asset.
func (s *Store) CreateJob(ctx context.Context, assetID string, kind Kind, parametersJSON string) (*Job, error) {
	if assetID == "" {
		return nil, errors.New("asset id is required")
	}
	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)
	id := uuid.NewString()

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO processing_jobs (
            id, asset_id, kind, status, progress, parameters_json,
            retry_count, needs_review, version, created_at, updated_at
        ) VALUES (?, ?, ?, ?, 0, ?, 0, 0, 1, ?, ?)`,
		id,
		assetID,
		kind,
		StatusPending,
		nullableString(parametersJSON),
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return s.GetJob(ctx, id)
}

// GetJob fetches a job by identifier. Returns nil when no row matches.
func (s *Store) GetJob(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM processing_jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// UpdateJob persists changes to an existing job using optimistic concurrency.
// The update only applies when the row still carries the version the caller
// read; otherwise ErrVersionConflict is returned and the job is untouched.
// On success the job's Version and UpdatedAt fields are refreshed in place.
func (s *Store) UpdateJob(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("job is nil")
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE processing_jobs
         SET status = ?, progress = ?, parameters_json = ?, external_ref = ?,
             output_ref = ?, error_message = ?, retry_count = ?, needs_review = ?,
             version = version + 1, updated_at = ?, completed_at = ?
         WHERE id = ? AND version = ?`,
		job.Status,
		job.Progress,
		nullableString(job.ParametersJSON),
		nullableString(job.ExternalRef),
		nullableString(job.OutputRef),
		nullableString(job.ErrorMessage),
		job.RetryCount,
		boolToInt(job.NeedsReview),
		now.Format(time.RFC3339Nano),
		nullableTime(job.CompletedAt),
		job.ID,
		job.Version,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("update job %s: %w", job.ID, ErrVersionConflict)
	}
	job.Version++
	job.UpdatedAt = now
	return nil
}

// ListJobs returns jobs filtered by status set (or all jobs when no status is
// provided), ordered by creation time.
func (s *Store) ListJobs(ctx context.Context, statuses ...Status) ([]*Job, error) {
	baseQuery := `SELECT ` + jobColumns + ` FROM processing_jobs`
	orderClause := ` ORDER BY created_at`

	var (
		rows *sql.Rows
		err  error
	)
	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		rows, err = s.db.QueryContext(ctx, baseQuery+` WHERE status IN (`+placeholders+`)`+orderClause, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

// JobsByAsset returns all jobs attached to an asset, oldest first.
func (s *Store) JobsByAsset(ctx context.Context, assetID string) ([]*Job, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+jobColumns+` FROM processing_jobs WHERE asset_id = ? ORDER BY created_at`,
		assetID,
	)
	if err != nil {
		return nil, fmt.Errorf("jobs by asset: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

// NextPending returns the oldest pending job of the given kind, or nil when
// none is queued.
func (s *Store) NextPending(ctx context.Context, kind Kind) (*Job, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+jobColumns+` FROM processing_jobs
         WHERE status = ? AND kind = ? ORDER BY created_at LIMIT 1`,
		StatusPending,
		kind,
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("next pending job: %w", err)
	}
	return job, nil
}

// FailedJobs returns up to limit failed jobs of the given kind, oldest first.
// Jobs flagged for review are excluded; the sweeper no longer owns them.
func (s *Store) FailedJobs(ctx context.Context, kind Kind, limit int) ([]*Job, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+jobColumns+` FROM processing_jobs
         WHERE status = ? AND kind = ? AND needs_review = 0
         ORDER BY created_at LIMIT ?`,
		StatusFailed,
		kind,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed jobs: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

// CountFailed returns the number of failed jobs of the given kind.
func (s *Store) CountFailed(ctx context.Context, kind Kind) (int, error) {
	var count int
	err := s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(1) FROM processing_jobs WHERE status = ? AND kind = ?`,
		StatusFailed,
		kind,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count failed jobs: %w", err)
	}
	return count, nil
}

// ResetStuckProcessing resets jobs left in processing by a crashed daemon
// back to pending so they are picked up again.
func (s *Store) ResetStuckProcessing(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE processing_jobs
         SET status = ?, progress = 0, version = version + 1, updated_at = ?
         WHERE status = ?`,
		StatusPending,
		time.Now().UTC().Format(time.RFC3339Nano),
		StatusProcessing,
	)
	if err != nil {
		return 0, fmt.Errorf("reset stuck jobs: %w", err)
	}
	return res.RowsAffected()
}

// Stats returns aggregate job counts per lifecycle state.
func (s *Store) Stats(ctx context.Context) (StatsSummary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM processing_jobs GROUP BY status`)
	if err != nil {
		return StatsSummary{}, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	summary := StatsSummary{}
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return StatsSummary{}, err
		}
		summary.Total += count
		switch status {
		case StatusPending:
			summary.Pending += count
		case StatusProcessing:
			summary.Processing += count
		case StatusCompleted:
			summary.Completed += count
		case StatusFailed:
			summary.Failed += count
		}
	}
	return summary, rows.Err()
}

func collectJobs(rows *sql.Rows) ([]*Job, error) {
	var out []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id           string
		assetID      string
		kindStr      string
		statusStr    string
		progress     sql.NullFloat64
		parameters   sql.NullString
		externalRef  sql.NullString
		outputRef    sql.NullString
		errorMessage sql.NullString
		retryCount   sql.NullInt64
		needsReview  sql.NullInt64
		version      int64
		createdRaw   sql.NullString
		updatedRaw   sql.NullString
		completedRaw sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&assetID,
		&kindStr,
		&statusStr,
		&progress,
		&parameters,
		&externalRef,
		&outputRef,
		&errorMessage,
		&retryCount,
		&needsReview,
		&version,
		&createdRaw,
		&updatedRaw,
		&completedRaw,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:             id,
		AssetID:        assetID,
		Kind:           Kind(kindStr),
		Status:         Status(statusStr),
		Progress:       progress.Float64,
		ParametersJSON: parameters.String,
		ExternalRef:    externalRef.String,
		OutputRef:      outputRef.String,
		ErrorMessage:   errorMessage.String,
		RetryCount:     int(retryCount.Int64),
		NeedsReview:    needsReview.Int64 != 0,
		Version:        version,
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		job.UpdatedAt = updated
	}
	if completedRaw.Valid {
		if completed, err := parseTimeString(completedRaw.String); err == nil {
			job.CompletedAt = &completed
		}
	}
	return job, nil
}
