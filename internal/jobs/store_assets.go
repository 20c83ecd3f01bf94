package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const assetColumns = "id, source_ref, status, quality_outputs_json, thumbnail_refs_json, error_message, created_at, updated_at"

// UpsertAsset inserts an asset record or refreshes its source reference.
// A new asset starts in draft; an existing asset keeps its current status.
func (s *Store) UpsertAsset(ctx context.Context, id, sourceRef string) (*Asset, error) {
	if id == "" {
		return nil, errors.New("asset id is required")
	}
	if sourceRef == "" {
		return nil, errors.New("source ref is required")
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO assets (id, source_ref, status, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?)
         ON CONFLICT(id) DO UPDATE SET source_ref = excluded.source_ref, updated_at = excluded.updated_at`,
		id,
		sourceRef,
		AssetDraft,
		now,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert asset: %w", err)
	}
	return s.GetAsset(ctx, id)
}

// GetAsset fetches an asset by identifier. Returns nil when no row matches.
func (s *Store) GetAsset(ctx context.Context, id string) (*Asset, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+assetColumns+` FROM assets WHERE id = ?`, id)
	asset, err := scanAsset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get asset: %w", err)
	}
	return asset, nil
}

// UpdateAsset persists changes to an existing asset record.
func (s *Store) UpdateAsset(ctx context.Context, asset *Asset) error {
	if asset == nil {
		return errors.New("asset is nil")
	}
	outputsJSON, err := marshalOutputs(asset.QualityOutputs)
	if err != nil {
		return err
	}
	thumbsJSON, err := marshalThumbnails(asset.ThumbnailRefs)
	if err != nil {
		return err
	}

	asset.UpdatedAt = time.Now().UTC()
	_, err = s.db.ExecContext(
		ctx,
		`UPDATE assets
         SET source_ref = ?, status = ?, quality_outputs_json = ?,
             thumbnail_refs_json = ?, error_message = ?, updated_at = ?
         WHERE id = ?`,
		asset.SourceRef,
		asset.Status,
		nullableString(outputsJSON),
		nullableString(thumbsJSON),
		nullableString(asset.ErrorMessage),
		asset.UpdatedAt.Format(time.RFC3339Nano),
		asset.ID,
	)
	if err != nil {
		return fmt.Errorf("update asset: %w", err)
	}
	return nil
}

// PublishedAssets returns every asset whose processed outputs are live,
// ordered by creation time. These are the assets access syncs propagate
// visibility for.
func (s *Store) PublishedAssets(ctx context.Context) ([]*Asset, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+assetColumns+` FROM assets WHERE status = ? ORDER BY created_at`,
		AssetReady,
	)
	if err != nil {
		return nil, fmt.Errorf("published assets: %w", err)
	}
	defer rows.Close()

	var out []*Asset
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, asset)
	}
	return out, rows.Err()
}

func marshalOutputs(outputs map[string]string) (string, error) {
	if len(outputs) == 0 {
		return "", nil
	}
	data, err := json.Marshal(outputs)
	if err != nil {
		return "", fmt.Errorf("marshal quality outputs: %w", err)
	}
	return string(data), nil
}

func marshalThumbnails(refs []string) (string, error) {
	if len(refs) == 0 {
		return "", nil
	}
	data, err := json.Marshal(refs)
	if err != nil {
		return "", fmt.Errorf("marshal thumbnail refs: %w", err)
	}
	return string(data), nil
}

func scanAsset(scanner interface{ Scan(dest ...any) error }) (*Asset, error) {
	var (
		id           string
		sourceRef    string
		statusStr    string
		outputsRaw   sql.NullString
		thumbsRaw    sql.NullString
		errorMessage sql.NullString
		createdRaw   sql.NullString
		updatedRaw   sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&sourceRef,
		&statusStr,
		&outputsRaw,
		&thumbsRaw,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	asset := &Asset{
		ID:           id,
		SourceRef:    sourceRef,
		Status:       AssetStatus(statusStr),
		ErrorMessage: errorMessage.String,
	}
	if outputsRaw.Valid && outputsRaw.String != "" {
		if err := json.Unmarshal([]byte(outputsRaw.String), &asset.QualityOutputs); err != nil {
			return nil, fmt.Errorf("unmarshal quality outputs: %w", err)
		}
	}
	if thumbsRaw.Valid && thumbsRaw.String != "" {
		if err := json.Unmarshal([]byte(thumbsRaw.String), &asset.ThumbnailRefs); err != nil {
			return nil, fmt.Errorf("unmarshal thumbnail refs: %w", err)
		}
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		asset.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		asset.UpdatedAt = updated
	}
	return asset, nil
}
