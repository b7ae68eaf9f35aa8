package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ordistat/ordistat-backend/internal/api"
	"github.com/ordistat/ordistat-backend/internal/config"
	"github.com/ordistat/ordistat-backend/internal/coordinator"
	"github.com/ordistat/ordistat-backend/internal/db"
	"github.com/ordistat/ordistat-backend/internal/external"
	"github.com/ordistat/ordistat-backend/internal/notifications"
	"github.com/ordistat/ordistat-backend/internal/pricing"
	"github.com/ordistat/ordistat-backend/internal/repository"
	"github.com/ordistat/ordistat-backend/internal/scheduler"
)

const banner = `
╔══════════════════════════════════════╗
║      Ordistat USD Tracker v1.0       ║
║                                      ║
╚══════════════════════════════════════╝
`

func main() {
	fmt.Print(banner)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	cfg.Print()

	// Database
	fmt.Printf("\n[DB] Connecting to %s:%d/%s ...\n", cfg.DBHost, cfg.DBPort, cfg.DBName)
	pool, err := db.Connect(cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "[DB] Connection failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		pool.Close()
		fmt.Println("[DB] Connection pool closed")
	}()

	if err := db.TestConnection(pool); err != nil {
		fmt.Fprintf(os.Stderr, "[DB] Test query failed: %v\n", err)
		os.Exit(1)
	}
	if err := db.Migrate(context.Background(), pool); err != nil {
		fmt.Fprintf(os.Stderr, "[DB] Migration failed: %v\n", err)
		os.Exit(1)
	}

	// Repos
	bundleRepo := repository.NewBundleRepo(pool)
	refRepo := repository.NewRefPriceRepo(pool)
	assetRepo := repository.NewAssetRepo(pool)

	// Curated reference table artifact
	base := pricing.NewTable("empty", nil)
	if cfg.ReferenceTableFile != "" {
		loaded, err := pricing.LoadFile(cfg.ReferenceTableFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[TABLE] Load failed: %v\n", err)
			os.Exit(1)
		}
		base = loaded
		fmt.Printf("[TABLE] Loaded %d curated prices from %s\n", base.Len(), cfg.ReferenceTableFile)
	}
	registry := pricing.NewRegistry(base)

	// Upstream clients
	upstream := external.NewBestInSlotClient(cfg.BestInSlotBaseURL)
	gecko := external.NewCoinGeckoClient(cfg.CoinGeckoBaseURL, cfg.GapFillLookback)

	// Pipeline coordinator
	coord := coordinator.New(
		upstream,
		pricing.NewResolver(gecko),
		registry,
		bundleRepo,
		assetRepo,
		coordinator.Config{
			BundleTTL:      time.Duration(cfg.BundleTTLHours) * time.Hour,
			AssetTTL:       time.Duration(cfg.AssetTTLDays) * 24 * time.Hour,
			MinValidPoints: cfg.MinValidPoints,
			Coalesce:       cfg.CoalesceRuns,
		},
	)

	// Notifications
	notify := notifications.NewSender(cfg.WebhookURL, cfg.ServiceName)

	// Graceful shutdown context
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. Refresh scheduler (price cache + weekly analytics)
	refresher := scheduler.NewRefreshScheduler(
		gecko, refRepo, coord, bundleRepo, registry, base, notify,
		scheduler.RefreshConfig{
			PriceCacheSpec: cfg.PriceCacheCron,
			AnalyticsSpec:  cfg.AnalyticsRefreshCron,
			CacheStartDay:  cfg.CacheStartDay,
		},
	)
	if err := refresher.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "[REFRESH] Start failed: %v\n", err)
		os.Exit(1)
	}

	// Merge previously cached prices into the working table on boot so
	// the first requests do not wait for the next cron run.
	if err := refresher.RebuildTable(ctx); err != nil {
		fmt.Printf("[TABLE] Initial rebuild failed, serving curated table only: %v\n", err)
	}

	// 2. API server
	srv := api.NewServer(pool, coord, registry, cfg.Port, cfg.APIKey, cfg.CORSAllowOrigin, cfg.RankingMinSamples)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(os.Stderr, "[API] Server error: %v\n", err)
			os.Exit(1)
		}
	}()

	fmt.Println("\nAll services started successfully")

	// Wait for shutdown signal
	<-ctx.Done()
	fmt.Println("\nShutting down gracefully...")

	refresher.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "[API] Shutdown error: %v\n", err)
	}
	fmt.Println("[API] Server closed")
	fmt.Println("Shutdown complete")
}
