// Package scheduler runs the background refresh jobs: the daily
// reference price cache top-up and the weekly analytics recompute.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ordistat/ordistat-backend/internal/external"
	"github.com/ordistat/ordistat-backend/internal/models"
	"github.com/ordistat/ordistat-backend/internal/pricing"
)

// PriceFetcher pulls daily reference prices from the supplement source.
type PriceFetcher interface {
	FetchDailyRange(ctx context.Context, from, to time.Time) ([]external.DayPrice, error)
}

// PriceStore persists cached reference prices.
type PriceStore interface {
	UpsertBatch(ctx context.Context, prices []models.RefPrice) error
	LatestDay(ctx context.Context) (string, error)
	LoadAll(ctx context.Context) ([]models.RefPrice, error)
}

// Recomputer reruns the full pipeline for one slug.
type Recomputer interface {
	Recompute(ctx context.Context, slug string, useGapFill bool) (*models.SeriesBundle, error)
}

// SlugLister enumerates every slug with a stored bundle.
type SlugLister interface {
	Slugs(ctx context.Context) ([]string, error)
}

// Notifier receives operational alerts. The webhook sender satisfies
// it.
type Notifier interface {
	Sendf(format string, args ...any)
}

type RefreshConfig struct {
	PriceCacheSpec string // six-field cron spec, e.g. "0 0 2 * * *"
	AnalyticsSpec  string // e.g. "0 0 3 * * 0"
	CacheStartDay  string // first day to backfill when the cache is empty
	JobTimeout     time.Duration
}

// RefreshScheduler owns both cron jobs. The curated table artifact
// stays fixed for the process lifetime; each price cache refresh
// rebuilds the merged working table and swaps it into the registry.
type RefreshScheduler struct {
	fetcher  PriceFetcher
	store    PriceStore
	recomp   Recomputer
	lister   SlugLister
	registry *pricing.Registry
	base     *pricing.Table
	notify   Notifier
	cfg      RefreshConfig

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

func NewRefreshScheduler(fetcher PriceFetcher, store PriceStore, recomp Recomputer, lister SlugLister, registry *pricing.Registry, base *pricing.Table, notify Notifier, cfg RefreshConfig) *RefreshScheduler {
	if cfg.PriceCacheSpec == "" {
		cfg.PriceCacheSpec = "0 0 2 * * *"
	}
	if cfg.AnalyticsSpec == "" {
		cfg.AnalyticsSpec = "0 0 3 * * 0"
	}
	if cfg.CacheStartDay == "" {
		cfg.CacheStartDay = "2023-01-01"
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 10 * time.Minute
	}
	return &RefreshScheduler{
		fetcher:  fetcher,
		store:    store,
		recomp:   recomp,
		lister:   lister,
		registry: registry,
		base:     base,
		notify:   notify,
		cfg:      cfg,
	}
}

func (s *RefreshScheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		fmt.Println("[REFRESH] Already running")
		return nil
	}

	c := cron.New(cron.WithSeconds(), cron.WithLocation(time.UTC))

	if _, err := c.AddFunc(s.cfg.PriceCacheSpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.JobTimeout)
		defer cancel()
		if err := s.RefreshPriceCache(ctx); err != nil {
			fmt.Printf("[REFRESH] Price cache refresh failed: %v\n", err)
			s.alert("price cache refresh failed: %v", err)
		}
	}); err != nil {
		return fmt.Errorf("schedule price cache job: %w", err)
	}

	if _, err := c.AddFunc(s.cfg.AnalyticsSpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.JobTimeout)
		defer cancel()
		if err := s.RefreshAnalytics(ctx); err != nil {
			fmt.Printf("[REFRESH] Analytics refresh failed: %v\n", err)
			s.alert("analytics refresh failed: %v", err)
		}
	}); err != nil {
		return fmt.Errorf("schedule analytics job: %w", err)
	}

	c.Start()
	s.cron = c
	s.running = true
	fmt.Printf("[REFRESH] Started (price cache %q, analytics %q, UTC)\n",
		s.cfg.PriceCacheSpec, s.cfg.AnalyticsSpec)
	return nil
}

func (s *RefreshScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
	fmt.Println("[REFRESH] Stopped")
}

func (s *RefreshScheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// RefreshPriceCache tops up the cached reference prices from the day
// after the newest cached day through today, then rebuilds the working
// table. With an empty cache the backfill starts at CacheStartDay.
func (s *RefreshScheduler) RefreshPriceCache(ctx context.Context) error {
	latest, err := s.store.LatestDay(ctx)
	if err != nil {
		return fmt.Errorf("latest cached day: %w", err)
	}

	fromDay := s.cfg.CacheStartDay
	if latest != "" {
		d, err := time.ParseInLocation("2006-01-02", latest, time.UTC)
		if err != nil {
			return fmt.Errorf("parse latest day %q: %w", latest, err)
		}
		fromDay = models.DayKey(d.AddDate(0, 0, 1))
	}

	today := models.DayKey(time.Now())
	if fromDay > today {
		fmt.Println("[REFRESH] Price cache already current")
		return nil
	}

	from, _ := time.ParseInLocation("2006-01-02", fromDay, time.UTC)
	to, _ := time.ParseInLocation("2006-01-02", today, time.UTC)
	to = to.Add(24*time.Hour - time.Second)

	rows, err := s.fetcher.FetchDailyRange(ctx, from, to)
	if err != nil {
		return fmt.Errorf("fetch daily range: %w", err)
	}
	if len(rows) == 0 {
		fmt.Printf("[REFRESH] No new prices for %s..%s\n", fromDay, today)
		return nil
	}

	prices := make([]models.RefPrice, 0, len(rows))
	for _, r := range rows {
		prices = append(prices, models.RefPrice{Key: r.Day, Price: r.Price, Source: "coingecko"})
	}
	if err := s.store.UpsertBatch(ctx, prices); err != nil {
		return fmt.Errorf("upsert prices: %w", err)
	}
	fmt.Printf("[REFRESH] Cached %d reference prices (%s..%s)\n", len(prices), fromDay, today)

	return s.RebuildTable(ctx)
}

// RebuildTable merges the curated artifact with every cached price and
// swaps the result into the registry. Curated entries win on conflict.
func (s *RefreshScheduler) RebuildTable(ctx context.Context) error {
	cached, err := s.store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load cached prices: %w", err)
	}

	extra := make(map[string]float64, len(cached))
	for _, p := range cached {
		extra[p.Key] = p.Price
	}

	version := fmt.Sprintf("%s+cache@%s", s.base.Version, models.DayKey(time.Now()))
	merged := s.base.Merge(version, extra)
	s.registry.Swap(merged)
	fmt.Printf("[REFRESH] Working table rebuilt: %d entries (%s)\n", merged.Len(), version)
	return nil
}

// RefreshAnalytics reruns the pipeline for every known slug with gap
// fill enabled. Individual slug failures are collected and reported,
// not fatal.
func (s *RefreshScheduler) RefreshAnalytics(ctx context.Context) error {
	slugs, err := s.lister.Slugs(ctx)
	if err != nil {
		return fmt.Errorf("list slugs: %w", err)
	}
	if len(slugs) == 0 {
		fmt.Println("[REFRESH] No stored bundles to refresh")
		return nil
	}

	var failed []string
	for _, slug := range slugs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, err := s.recomp.Recompute(ctx, slug, true); err != nil {
			fmt.Printf("[REFRESH] %s: recompute failed: %v\n", slug, err)
			failed = append(failed, slug)
		}
	}

	fmt.Printf("[REFRESH] Analytics refreshed: %d/%d slugs\n", len(slugs)-len(failed), len(slugs))
	if len(failed) > 0 {
		s.alert("analytics refresh: %d/%d slugs failed: %v", len(failed), len(slugs), failed)
	}
	return nil
}

func (s *RefreshScheduler) alert(format string, args ...any) {
	if s.notify != nil {
		s.notify.Sendf(format, args...)
	}
}
