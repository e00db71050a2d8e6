package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NewAsset captures a freshly produced artifact before upload.
type NewAsset struct {
	JobID     string
	Kind      AssetKind
	Provider  string
	SourceURL string
	Width     int
	Height    int
	Format    string
}

// InsertAsset records a provisional asset (no storage URL yet).
func (s *Store) InsertAsset(ctx context.Context, asset NewAsset) (*Asset, error) {
	ctx = ensureContext(ctx)
	id := uuid.NewString()
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := s.execWithRetry(ctx,
		`INSERT INTO assets (id, job_id, kind, provider, source_url, width, height, format, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, asset.JobID, asset.Kind, asset.Provider,
		nullableString(asset.SourceURL), asset.Width, asset.Height,
		nullableString(asset.Format), now,
	); err != nil {
		return nil, fmt.Errorf("insert asset: %w", err)
	}
	return s.GetAsset(ctx, id)
}

// GetAsset fetches an asset by identifier.
func (s *Store) GetAsset(ctx context.Context, id string) (*Asset, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT `+assetColumns+` FROM assets WHERE id = ?`, id)
	asset, err := scanAsset(row)
	if err != nil {
		return nil, fmt.Errorf("get asset: %w", err)
	}
	return asset, nil
}

// FinalizeAsset attaches the CMS storage location to a provisional asset. The
// dimensions are updated as well because the upload may have used a smaller
// regenerated rendition.
func (s *Store) FinalizeAsset(ctx context.Context, id, storageURL string, mediaID int64, width, height int) error {
	if err := s.execWithoutResultRetry(ctx,
		`UPDATE assets SET storage_url = ?, media_id = ?, width = ?, height = ? WHERE id = ?`,
		nullableString(storageURL), nullableInt64(mediaID), width, height, id,
	); err != nil {
		return fmt.Errorf("finalize asset: %w", err)
	}
	return nil
}

// AssetsForJob returns a job's assets oldest first.
func (s *Store) AssetsForJob(ctx context.Context, jobID string) ([]*Asset, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT `+assetColumns+` FROM assets WHERE job_id = ? ORDER BY created_at, id`, jobID)
	if err != nil {
		return nil, fmt.Errorf("query assets: %w", err)
	}
	defer rows.Close()

	var assets []*Asset
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, asset)
	}
	return assets, rows.Err()
}
