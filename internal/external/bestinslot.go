package external

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/ordistat/ordistat-backend/internal/httputil"
)

// ErrUpstreamUnavailable means the primary series endpoint could not
// be reached or answered with a non-success status.
var ErrUpstreamUnavailable = errors.New("upstream unavailable")

func IsUpstreamUnavailable(err error) bool {
	return errors.Is(err, ErrUpstreamUnavailable)
}

const defaultBestInSlotURL = "https://v2api.bestinslot.xyz"

// Upstream responses are bounded; anything larger is a misbehaving
// endpoint, not a series.
const maxChartResponseBytes = 8 << 20

// BestInSlotClient fetches raw collection chart series. The response
// shape is deliberately left opaque here; the parser owns shape
// detection.
type BestInSlotClient struct {
	baseURL    string
	httpClient *http.Client
	retry      httputil.RetryConfig
}

func NewBestInSlotClient(baseURL string) *BestInSlotClient {
	if baseURL == "" {
		baseURL = defaultBestInSlotURL
	}
	return &BestInSlotClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 20 * time.Second},
		retry: httputil.RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   2 * time.Second,
			MaxDelay:    10 * time.Second,
		},
	}
}

// FetchChart returns the raw JSON body of the collection chart for a
// slug.
func (c *BestInSlotClient) FetchChart(ctx context.Context, slug string) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/collection/chart?slug=%s", c.baseURL, url.QueryEscape(slug))

	resp, err := httputil.Do(ctx, c.httpClient, c.retry, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrUpstreamUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxChartResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrUpstreamUnavailable, err)
	}
	return body, nil
}
