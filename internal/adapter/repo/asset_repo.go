package repo

import (
	"context"

	"github.com/google/uuid"

	"posterd/internal/domain"
	"posterd/internal/infra"
	"posterd/internal/sqlinline"
)

// AssetRepositoryPG implements domain.AssetRepository on the poster_assets table.
type AssetRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewAssetRepository constructs a new asset repository instance.
func NewAssetRepository(sql infra.SQLExecutor) *AssetRepositoryPG {
	return &AssetRepositoryPG{sql: sql}
}

// Save upserts one asset keyed by task, result name and item index.
func (r *AssetRepositoryPG) Save(ctx context.Context, asset *domain.Asset) error {
	if asset.ID == "" {
		asset.ID = uuid.NewString()
	}
	row := r.sql.QueryRow(ctx, sqlinline.QInsertPosterAsset,
		asset.ID,
		asset.TaskID,
		asset.ResultName,
		asset.Index,
		asset.StorageKey,
		asset.Width,
		asset.Height,
		asset.Bytes,
		asset.Checksum,
	)
	return row.Scan(&asset.CreatedAt)
}

// ListByTaskID returns the assets of a task ordered by item index.
func (r *AssetRepositoryPG) ListByTaskID(ctx context.Context, taskID string) ([]domain.Asset, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QListPosterAssets, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assets []domain.Asset
	for rows.Next() {
		var a domain.Asset
		if err := rows.Scan(&a.ID, &a.TaskID, &a.ResultName, &a.Index, &a.StorageKey, &a.Width, &a.Height, &a.Bytes, &a.Checksum, &a.CreatedAt); err != nil {
			return nil, err
		}
		assets = append(assets, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return assets, nil
}

var _ domain.AssetRepository = (*AssetRepositoryPG)(nil)
