package external

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ordistat/ordistat-backend/internal/httputil"
	"github.com/ordistat/ordistat-backend/internal/models"
)

const defaultCoinGeckoURL = "https://api.coingecko.com"

// Gap-fill lookups never reach further back than this many days from
// today. CoinGecko only serves daily granularity inside a trailing
// window on the free tier; asking beyond it returns an error payload.
const DefaultLookbackDays = 300

// DayPrice is one daily closing price keyed by UTC day.
type DayPrice struct {
	Day   string
	Price float64
}

// CoinGeckoClient fetches historical BTC/USD closes from the
// market_chart range endpoint.
type CoinGeckoClient struct {
	baseURL      string
	lookbackDays int
	httpClient   *http.Client
	retry        httputil.RetryConfig
	now          func() time.Time
}

func NewCoinGeckoClient(baseURL string, lookbackDays int) *CoinGeckoClient {
	if baseURL == "" {
		baseURL = defaultCoinGeckoURL
	}
	if lookbackDays <= 0 {
		lookbackDays = DefaultLookbackDays
	}
	return &CoinGeckoClient{
		baseURL:      baseURL,
		lookbackDays: lookbackDays,
		httpClient:   &http.Client{Timeout: 15 * time.Second},
		retry: httputil.RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   2 * time.Second,
			MaxDelay:    10 * time.Second,
		},
		now: time.Now,
	}
}

type marketChartResponse struct {
	Prices [][2]float64 `json:"prices"`
	Error  string       `json:"error"`
}

// FetchRange returns daily closes for [fromDay, toDay], keyed by UTC
// day. The start is clamped to the trailing lookback window; days
// clamped away simply stay absent from the map. With multiple samples
// on one day the latest one wins, matching how series rows fold.
func (c *CoinGeckoClient) FetchRange(ctx context.Context, fromDay, toDay string) (map[string]float64, error) {
	from, err := time.ParseInLocation("2006-01-02", fromDay, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("parse from day %q: %w", fromDay, err)
	}
	to, err := time.ParseInLocation("2006-01-02", toDay, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("parse to day %q: %w", toDay, err)
	}

	earliest := c.now().UTC().AddDate(0, 0, -c.lookbackDays).Truncate(24 * time.Hour)
	if from.Before(earliest) {
		from = earliest
	}
	if to.Before(from) {
		return map[string]float64{}, nil
	}

	chart, err := c.fetchChart(ctx, from.Unix(), to.Unix()+86399)
	if err != nil {
		return nil, err
	}

	prices := make(map[string]float64, len(chart.Prices))
	for _, row := range chart.Prices {
		ms, px := row[0], row[1]
		if px <= 0 {
			continue
		}
		day := models.DayKey(time.UnixMilli(int64(ms)))
		prices[day] = px
	}
	return prices, nil
}

// FetchDailyRange returns the same window as an ordered slice, one
// entry per day with the first sample kept. The scheduler uses it to
// backfill the reference table incrementally.
func (c *CoinGeckoClient) FetchDailyRange(ctx context.Context, from, to time.Time) ([]DayPrice, error) {
	chart, err := c.fetchChart(ctx, from.UTC().Unix(), to.UTC().Unix())
	if err != nil {
		return nil, err
	}

	var out []DayPrice
	seen := make(map[string]bool)
	for _, row := range chart.Prices {
		ms, px := row[0], row[1]
		if px <= 0 {
			continue
		}
		day := models.DayKey(time.UnixMilli(int64(ms)))
		if seen[day] {
			continue
		}
		seen[day] = true
		out = append(out, DayPrice{Day: day, Price: px})
	}
	return out, nil
}

func (c *CoinGeckoClient) fetchChart(ctx context.Context, fromUnix, toUnix int64) (*marketChartResponse, error) {
	endpoint := fmt.Sprintf(
		"%s/api/v3/coins/bitcoin/market_chart/range?vs_currency=usd&from=%d&to=%d",
		c.baseURL, fromUnix, toUnix,
	)

	resp, err := httputil.Do(ctx, c.httpClient, c.retry, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	})
	if err != nil {
		return nil, fmt.Errorf("coingecko fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coingecko returned status %d", resp.StatusCode)
	}

	var chart marketChartResponse
	if err := json.NewDecoder(resp.Body).Decode(&chart); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if chart.Error != "" {
		return nil, fmt.Errorf("coingecko error: %s", chart.Error)
	}
	return &chart, nil
}
