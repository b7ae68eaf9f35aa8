package coordinator

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ordistat/ordistat-backend/internal/analytics"
	"github.com/ordistat/ordistat-backend/internal/models"
	"github.com/ordistat/ordistat-backend/internal/parser"
	"github.com/ordistat/ordistat-backend/internal/pricing"
)

// SeriesSource fetches the raw upstream chart payload for a slug.
type SeriesSource interface {
	FetchChart(ctx context.Context, slug string) ([]byte, error)
}

// BundleStore persists computed series bundles.
type BundleStore interface {
	Get(ctx context.Context, slug string) (*models.SeriesBundle, error)
	Save(ctx context.Context, b *models.SeriesBundle) error
}

// AssetStore persists derived artifacts such as CSV exports.
type AssetStore interface {
	Get(ctx context.Context, slug, kind string) (*models.CachedAsset, error)
	Put(ctx context.Context, a *models.CachedAsset) error
}

// TableSource yields the current reference price table.
type TableSource interface {
	Current() *pricing.Table
}

type Config struct {
	BundleTTL      time.Duration
	AssetTTL       time.Duration
	MinValidPoints int
	Coalesce       bool
}

// Coordinator owns cache staleness: it decides when a stored bundle or
// asset still serves and when the full pipeline must run again.
// Concurrent requests for the same slug share one pipeline run.
type Coordinator struct {
	upstream SeriesSource
	resolver *pricing.Resolver
	tables   TableSource
	bundles  BundleStore
	assets   AssetStore
	calc     analytics.Calculator
	cfg      Config

	group singleflight.Group
	now   func() time.Time
}

func New(upstream SeriesSource, resolver *pricing.Resolver, tables TableSource, bundles BundleStore, assets AssetStore, cfg Config) *Coordinator {
	if cfg.BundleTTL <= 0 {
		cfg.BundleTTL = 24 * time.Hour
	}
	if cfg.AssetTTL <= 0 {
		cfg.AssetTTL = 7 * 24 * time.Hour
	}
	if cfg.MinValidPoints <= 0 {
		cfg.MinValidPoints = 1
	}
	return &Coordinator{
		upstream: upstream,
		resolver: resolver,
		tables:   tables,
		bundles:  bundles,
		assets:   assets,
		calc:     analytics.Calculator{MinSamples: cfg.MinValidPoints},
		cfg:      cfg,
		now:      time.Now,
	}
}

// Resolve returns the bundle for a slug, recomputing when the stored
// one is stale. A cached bundle with unpriced days is also recomputed
// when gap fill is requested, since the supplement source may now cover
// them. When recomputation fails but a stored bundle exists, the stored
// bundle is served and the failure only logged.
func (c *Coordinator) Resolve(ctx context.Context, slug string, useGapFill bool) (*models.SeriesBundle, error) {
	cached, err := c.bundles.Get(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("load bundle: %w", err)
	}

	if cached != nil && c.bundleFresh(cached) {
		if !useGapFill || cached.MissingPoints == 0 {
			return cached, nil
		}
	}

	bundle, err := c.recompute(ctx, slug, useGapFill)
	if err != nil {
		if cached != nil {
			fmt.Printf("[COORD] %s: recompute failed, serving stored bundle: %v\n", slug, err)
			return cached, nil
		}
		return nil, err
	}
	return bundle, nil
}

// Recompute runs the full pipeline unconditionally and replaces the
// stored bundle. The scheduler uses it for the weekly refresh.
func (c *Coordinator) Recompute(ctx context.Context, slug string, useGapFill bool) (*models.SeriesBundle, error) {
	return c.recompute(ctx, slug, useGapFill)
}

func (c *Coordinator) recompute(ctx context.Context, slug string, useGapFill bool) (*models.SeriesBundle, error) {
	if !c.cfg.Coalesce {
		return c.runPipeline(ctx, slug, useGapFill)
	}

	key := slug
	if useGapFill {
		key += "|gapfill"
	}
	v, err, shared := c.group.Do(key, func() (any, error) {
		return c.runPipeline(ctx, slug, useGapFill)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		fmt.Printf("[COORD] %s: pipeline run shared across callers\n", slug)
	}
	return v.(*models.SeriesBundle), nil
}

// runPipeline is parse, resolve, summarize, persist. Nothing is
// persisted unless every stage succeeds.
func (c *Coordinator) runPipeline(ctx context.Context, slug string, useGapFill bool) (*models.SeriesBundle, error) {
	started := c.now()

	raw, err := c.upstream.FetchChart(ctx, slug)
	if err != nil {
		return nil, err
	}

	points, err := parser.Parse(raw)
	if err != nil {
		return nil, err
	}

	resolved, missing := c.resolver.Resolve(ctx, points, c.tables.Current(), useGapFill)

	summary, err := c.calc.Summarize(resolved)
	if err != nil {
		return nil, err
	}

	bundle := &models.SeriesBundle{
		Slug:           slug,
		ResolvedSeries: resolved,
		Analytics:      summary,
		MissingPoints:  missing,
		LastComputedAt: c.now().UTC(),
	}

	if err := c.bundles.Save(ctx, bundle); err != nil {
		// The computed bundle is still good; only the cache write
		// failed.
		fmt.Printf("[COORD] %s: persist failed: %v\n", slug, err)
	} else {
		fmt.Printf("[COORD] %s: computed %d points (%d unpriced) in %s\n",
			slug, len(resolved), missing, c.now().Sub(started).Round(time.Millisecond))
	}
	return bundle, nil
}

func (c *Coordinator) bundleFresh(b *models.SeriesBundle) bool {
	return c.now().Sub(b.LastComputedAt) < c.cfg.BundleTTL
}

// ResolveAsset returns the cached derived artifact for a slug and kind,
// regenerating it via produce when it is older than its TTL or older
// than the bundle it derives from.
func (c *Coordinator) ResolveAsset(ctx context.Context, slug, kind, contentType string, useGapFill bool, produce func(*models.SeriesBundle) ([]byte, error)) (*models.CachedAsset, error) {
	bundle, err := c.Resolve(ctx, slug, useGapFill)
	if err != nil {
		return nil, err
	}

	cached, err := c.assets.Get(ctx, slug, kind)
	if err != nil {
		return nil, fmt.Errorf("load asset: %w", err)
	}
	if cached != nil &&
		c.now().Sub(cached.UpdatedAt) < c.cfg.AssetTTL &&
		!cached.UpdatedAt.Before(bundle.LastComputedAt) {
		return cached, nil
	}

	content, err := produce(bundle)
	if err != nil {
		return nil, fmt.Errorf("produce %s asset: %w", kind, err)
	}

	asset := &models.CachedAsset{
		Slug:        slug,
		Kind:        kind,
		Content:     content,
		ContentType: contentType,
		UpdatedAt:   c.now().UTC(),
	}
	if err := c.assets.Put(ctx, asset); err != nil {
		fmt.Printf("[COORD] %s: asset cache write failed: %v\n", slug, err)
	}
	return asset, nil
}
