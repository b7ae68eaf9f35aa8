package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ordistat/ordistat-backend/internal/models"
)

type BundleRepo struct {
	pool *pgxpool.Pool
}

func NewBundleRepo(pool *pgxpool.Pool) *BundleRepo {
	return &BundleRepo{pool: pool}
}

// Save replaces the stored bundle for a slug wholesale. Bundles are
// never merged with a previous run.
func (r *BundleRepo) Save(ctx context.Context, b *models.SeriesBundle) error {
	resolved, err := json.Marshal(b.ResolvedSeries)
	if err != nil {
		return fmt.Errorf("marshal resolved series: %w", err)
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO series_bundles
		   (slug, resolved_json, sample_count, min_value, max_value, mean_value,
		    gradient, upward_trend, stability_score, missing_points, last_computed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (slug) DO UPDATE SET
		   resolved_json = EXCLUDED.resolved_json,
		   sample_count = EXCLUDED.sample_count,
		   min_value = EXCLUDED.min_value,
		   max_value = EXCLUDED.max_value,
		   mean_value = EXCLUDED.mean_value,
		   gradient = EXCLUDED.gradient,
		   upward_trend = EXCLUDED.upward_trend,
		   stability_score = EXCLUDED.stability_score,
		   missing_points = EXCLUDED.missing_points,
		   last_computed_at = EXCLUDED.last_computed_at`,
		b.Slug, resolved,
		b.Analytics.SampleCount, b.Analytics.MinValue, b.Analytics.MaxValue,
		b.Analytics.MeanValue, b.Analytics.Gradient, b.Analytics.UpwardTrend,
		b.Analytics.StabilityScore, b.MissingPoints, b.LastComputedAt,
	)
	return err
}

// Get returns the stored bundle for a slug, or nil when none exists.
func (r *BundleRepo) Get(ctx context.Context, slug string) (*models.SeriesBundle, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT slug, resolved_json, sample_count, min_value, max_value, mean_value,
		        gradient, upward_trend, stability_score, missing_points, last_computed_at
		 FROM series_bundles WHERE slug = $1`,
		slug,
	)

	b, err := scanBundle(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return b, nil
}

// Rank lists slugs ordered by gradient, strongest first. Bundles with
// fewer valid samples than minSamples are excluded so a two-point
// series cannot top the board.
func (r *BundleRepo) Rank(ctx context.Context, minSamples, limit int) ([]models.RankedSlug, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT slug, sample_count, min_value, max_value, mean_value,
		        gradient, upward_trend, stability_score, missing_points, last_computed_at
		 FROM series_bundles
		 WHERE sample_count >= $1
		 ORDER BY gradient DESC, slug ASC
		 LIMIT $2`,
		minSamples, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.RankedSlug
	for rows.Next() {
		var rs models.RankedSlug
		if err := rows.Scan(
			&rs.Slug, &rs.Analytics.SampleCount, &rs.Analytics.MinValue,
			&rs.Analytics.MaxValue, &rs.Analytics.MeanValue, &rs.Analytics.Gradient,
			&rs.Analytics.UpwardTrend, &rs.Analytics.StabilityScore,
			&rs.MissingPoints, &rs.LastComputedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, rs)
	}
	return out, rows.Err()
}

// Slugs returns every slug with a stored bundle.
func (r *BundleRepo) Slugs(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT slug FROM series_bundles ORDER BY slug ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var slugs []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		slugs = append(slugs, s)
	}
	return slugs, rows.Err()
}

// --- scan helpers ---

type scannable interface {
	Scan(dest ...any) error
}

func scanBundle(row scannable) (*models.SeriesBundle, error) {
	var b models.SeriesBundle
	var resolved []byte
	err := row.Scan(
		&b.Slug, &resolved, &b.Analytics.SampleCount, &b.Analytics.MinValue,
		&b.Analytics.MaxValue, &b.Analytics.MeanValue, &b.Analytics.Gradient,
		&b.Analytics.UpwardTrend, &b.Analytics.StabilityScore,
		&b.MissingPoints, &b.LastComputedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(resolved, &b.ResolvedSeries); err != nil {
		return nil, fmt.Errorf("unmarshal resolved series: %w", err)
	}
	return &b, nil
}
