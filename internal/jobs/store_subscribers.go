package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// GetSubscriber fetches a subscriber's access state. Returns nil when the
// subscriber has never been seen.
func (s *Store) GetSubscriber(ctx context.Context, id string) (*Subscriber, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, status, payment_failure_count, updated_at FROM subscribers WHERE id = ?`,
		id,
	)
	var (
		sub        Subscriber
		statusStr  string
		updatedRaw sql.NullString
	)
	err := row.Scan(&sub.ID, &statusStr, &sub.PaymentFailureCount, &updatedRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get subscriber: %w", err)
	}
	sub.Status = SubscriptionStatus(statusStr)
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		sub.UpdatedAt = updated
	}
	return &sub, nil
}

// SaveSubscriber inserts or replaces a subscriber's access state.
func (s *Store) SaveSubscriber(ctx context.Context, sub *Subscriber) error {
	if sub == nil {
		return errors.New("subscriber is nil")
	}
	if sub.ID == "" {
		return errors.New("subscriber id is required")
	}
	sub.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO subscribers (id, status, payment_failure_count, updated_at)
         VALUES (?, ?, ?, ?)
         ON CONFLICT(id) DO UPDATE SET
             status = excluded.status,
             payment_failure_count = excluded.payment_failure_count,
             updated_at = excluded.updated_at`,
		sub.ID,
		sub.Status,
		sub.PaymentFailureCount,
		sub.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save subscriber: %w", err)
	}
	return nil
}

// AppendAuditEntry records the outcome of a completed access sync.
func (s *Store) AppendAuditEntry(ctx context.Context, subscriberID string, action AuditAction) error {
	if subscriberID == "" {
		return errors.New("subscriber id is required")
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO access_audit_log (subscriber_id, action, created_at) VALUES (?, ?, ?)`,
		subscriberID,
		action,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

// AuditEntries returns the audit log for one subscriber, oldest first.
func (s *Store) AuditEntries(ctx context.Context, subscriberID string) ([]*AuditEntry, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, subscriber_id, action, created_at FROM access_audit_log
         WHERE subscriber_id = ? ORDER BY created_at, id`,
		subscriberID,
	)
	if err != nil {
		return nil, fmt.Errorf("audit entries: %w", err)
	}
	defer rows.Close()

	var out []*AuditEntry
	for rows.Next() {
		var (
			entry      AuditEntry
			actionStr  string
			createdRaw sql.NullString
		)
		if err := rows.Scan(&entry.ID, &entry.SubscriberID, &actionStr, &createdRaw); err != nil {
			return nil, err
		}
		entry.Action = AuditAction(actionStr)
		if created, err := parseTimeString(createdRaw.String); err == nil {
			entry.CreatedAt = created
		}
		out = append(out, &entry)
	}
	return out, rows.Err()
}
