package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port            int
	APIKey          string
	CORSAllowOrigin string
	ServiceName     string
	WebhookURL      string

	// Database
	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string

	// Upstream sources
	BestInSlotBaseURL string
	CoinGeckoBaseURL  string
	GapFillLookback   int

	// Reference price table
	ReferenceTableFile string

	// Cache staleness
	BundleTTLHours int
	AssetTTLDays   int
	CoalesceRuns   bool

	// Analytics
	MinValidPoints    int
	RankingMinSamples int

	// Background refresh (six-field cron specs, UTC)
	PriceCacheCron       string
	AnalyticsRefreshCron string
	CacheStartDay        string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		// Server
		Port:            envInt("PORT", 8080),
		APIKey:          envStr("API_KEY", ""),
		CORSAllowOrigin: envStr("CORS_ALLOW_ORIGIN", "*"),
		ServiceName:     envStr("SERVICE_NAME", "Ordistat"),
		WebhookURL:      envStr("WEBHOOK_URL", ""),

		// Database
		DBHost:     envStr("DB_HOST", "localhost"),
		DBPort:     envInt("DB_PORT", 5432),
		DBName:     envStr("DB_NAME", "ordistat"),
		DBUser:     envStr("DB_USER", ""),
		DBPassword: envStr("DB_PASSWORD", ""),

		// Upstream sources
		BestInSlotBaseURL: envStr("BESTINSLOT_BASE_URL", ""),
		CoinGeckoBaseURL:  envStr("COINGECKO_BASE_URL", ""),
		GapFillLookback:   envInt("GAPFILL_LOOKBACK_DAYS", 300),

		// Reference price table
		ReferenceTableFile: envStr("REFERENCE_TABLE_FILE", "btc_usd_table.json"),

		// Cache staleness
		BundleTTLHours: envInt("BUNDLE_TTL_HOURS", 24),
		AssetTTLDays:   envInt("ASSET_TTL_DAYS", 7),
		CoalesceRuns:   envBool("COALESCE_RESOLVES", true),

		// Analytics
		MinValidPoints:    envInt("MIN_VALID_POINTS", 1),
		RankingMinSamples: envInt("RANKING_MIN_SAMPLES", 4),

		// Background refresh
		PriceCacheCron:       envStr("PRICE_CACHE_CRON", "0 0 2 * * *"),
		AnalyticsRefreshCron: envStr("ANALYTICS_REFRESH_CRON", "0 0 3 * * 0"),
		CacheStartDay:        envStr("CACHE_START_DAY", "2023-01-01"),
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []string

	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, "PORT must be a valid TCP port")
	}
	if c.DBUser == "" {
		errs = append(errs, "DB_USER is required")
	}
	if c.GapFillLookback <= 0 {
		errs = append(errs, "GAPFILL_LOOKBACK_DAYS must be positive")
	}
	if c.BundleTTLHours <= 0 {
		errs = append(errs, "BUNDLE_TTL_HOURS must be positive")
	}
	if c.AssetTTLDays <= 0 {
		errs = append(errs, "ASSET_TTL_DAYS must be positive")
	}
	if c.MinValidPoints < 1 {
		errs = append(errs, "MIN_VALID_POINTS must be at least 1")
	}
	if c.RankingMinSamples < 1 {
		errs = append(errs, "RANKING_MIN_SAMPLES must be at least 1")
	}
	if c.CacheStartDay != "" {
		if _, err := strconv.Atoi(strings.ReplaceAll(c.CacheStartDay, "-", "")); err != nil || len(c.CacheStartDay) != 10 {
			errs = append(errs, "CACHE_START_DAY must be YYYY-MM-DD")
		}
	}

	if c.APIKey == "" {
		fmt.Println("[WARN] API_KEY not set, REST API has no authentication")
	}
	if c.ReferenceTableFile == "" {
		fmt.Println("[WARN] REFERENCE_TABLE_FILE not set, starting with an empty table")
	}
	if c.WebhookURL == "" {
		fmt.Println("[WARN] WEBHOOK_URL not set, refresh failures only reach stdout")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  %s", strings.Join(errs, "\n  "))
	}
	return nil
}

func (c *Config) Print() {
	fmt.Println("=== Ordistat USD Tracker Configuration ===")
	fmt.Printf("Port: %d\n", c.Port)
	fmt.Printf("Database: %s@%s:%d/%s\n", c.DBUser, c.DBHost, c.DBPort, c.DBName)
	fmt.Println("--------------------------------------")
	fmt.Println("Upstream Sources:")
	fmt.Printf("  BestInSlot: %s\n", orDefault(c.BestInSlotBaseURL, "(default)"))
	fmt.Printf("  CoinGecko:  %s\n", orDefault(c.CoinGeckoBaseURL, "(default)"))
	fmt.Printf("  Gap-fill lookback: %d days\n", c.GapFillLookback)
	fmt.Println("--------------------------------------")
	fmt.Println("Cache Staleness:")
	fmt.Printf("  Bundle TTL: %dh\n", c.BundleTTLHours)
	fmt.Printf("  Asset TTL:  %dd\n", c.AssetTTLDays)
	fmt.Printf("  Coalesce concurrent runs: %v\n", c.CoalesceRuns)
	fmt.Println("--------------------------------------")
	fmt.Println("Analytics:")
	fmt.Printf("  Min valid points: %d\n", c.MinValidPoints)
	fmt.Printf("  Ranking sample floor: %d\n", c.RankingMinSamples)
	fmt.Println("--------------------------------------")
	fmt.Println("Background Refresh (UTC):")
	fmt.Printf("  Price cache: %q\n", c.PriceCacheCron)
	fmt.Printf("  Analytics:   %q\n", c.AnalyticsRefreshCron)
	fmt.Printf("  Cache backfill start: %s\n", c.CacheStartDay)
	fmt.Printf("  Webhook alerts: %s\n", boolLabel(c.WebhookURL != "", "configured", "not set"))
	fmt.Println("======================================")
}

func (c *Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}

// --- helpers ---

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		v = strings.ToLower(v)
		return v == "true" || v == "1" || v == "yes"
	}
	return fallback
}

func orDefault(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

func boolLabel(cond bool, ifTrue, ifFalse string) string {
	if cond {
		return ifTrue
	}
	return ifFalse
}
