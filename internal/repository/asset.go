package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ordistat/ordistat-backend/internal/models"
)

type AssetRepo struct {
	pool *pgxpool.Pool
}

func NewAssetRepo(pool *pgxpool.Pool) *AssetRepo {
	return &AssetRepo{pool: pool}
}

// Get returns the cached asset for a slug and kind, or nil when none
// exists.
func (r *AssetRepo) Get(ctx context.Context, slug, kind string) (*models.CachedAsset, error) {
	var a models.CachedAsset
	err := r.pool.QueryRow(ctx,
		`SELECT slug, kind, content, content_type, updated_at
		 FROM asset_cache WHERE slug = $1 AND kind = $2`,
		slug, kind,
	).Scan(&a.Slug, &a.Kind, &a.Content, &a.ContentType, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

// Put stores or replaces a cached asset.
func (r *AssetRepo) Put(ctx context.Context, a *models.CachedAsset) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO asset_cache (slug, kind, content, content_type, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (slug, kind) DO UPDATE SET
		   content = EXCLUDED.content,
		   content_type = EXCLUDED.content_type,
		   updated_at = EXCLUDED.updated_at`,
		a.Slug, a.Kind, a.Content, a.ContentType, a.UpdatedAt,
	)
	return err
}

// Delete removes one cached asset. Missing rows are not an error.
func (r *AssetRepo) Delete(ctx context.Context, slug, kind string) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM asset_cache WHERE slug = $1 AND kind = $2`,
		slug, kind,
	)
	return err
}
