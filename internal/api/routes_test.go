package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ordistat/ordistat-backend/internal/analytics"
	"github.com/ordistat/ordistat-backend/internal/external"
	"github.com/ordistat/ordistat-backend/internal/models"
	"github.com/ordistat/ordistat-backend/internal/parser"
	"github.com/ordistat/ordistat-backend/internal/pricing"
)

func ptr(f float64) *float64 { return &f }

type fakeCoord struct {
	bundle     *models.SeriesBundle
	err        error
	lastGapArg bool
}

func (f *fakeCoord) Resolve(ctx context.Context, slug string, useGapFill bool) (*models.SeriesBundle, error) {
	f.lastGapArg = useGapFill
	if f.err != nil {
		return nil, f.err
	}
	return f.bundle, nil
}

func (f *fakeCoord) ResolveAsset(ctx context.Context, slug, kind, contentType string, useGapFill bool, produce func(*models.SeriesBundle) ([]byte, error)) (*models.CachedAsset, error) {
	f.lastGapArg = useGapFill
	if f.err != nil {
		return nil, f.err
	}
	content, err := produce(f.bundle)
	if err != nil {
		return nil, err
	}
	return &models.CachedAsset{
		Slug: slug, Kind: kind, Content: content,
		ContentType: contentType, UpdatedAt: time.Now(),
	}, nil
}

type fakeRankings struct {
	ranked     []models.RankedSlug
	minSamples int
	limit      int
}

func (f *fakeRankings) Rank(ctx context.Context, minSamples, limit int) ([]models.RankedSlug, error) {
	f.minSamples, f.limit = minSamples, limit
	return f.ranked, nil
}

func testBundle() *models.SeriesBundle {
	return &models.SeriesBundle{
		Slug: "node-monkes",
		ResolvedSeries: []models.ResolvedPoint{
			{Day: "2024-01-01", Quantity: 0.5, ReferencePrice: ptr(42000), Value: ptr(21000)},
			{Day: "2024-01-02", Quantity: 0.6},
		},
		Analytics: models.AnalyticsSummary{
			SampleCount: 1,
			MinValue:    21000,
			MaxValue:    21000,
			MeanValue:   21000,
		},
		MissingPoints:  1,
		LastComputedAt: time.Date(2024, 1, 2, 12, 0, 0, 0, time.UTC),
	}
}

func testServer(coord seriesResolver, rankings rankingSource) *Server {
	return &Server{
		coord:      coord,
		rankings:   rankings,
		tables:     pricing.NewRegistry(pricing.NewTable("test", map[string]float64{"2024-01-01": 42000})),
		minSamples: 4,
	}
}

func TestHandleCollection(t *testing.T) {
	coord := &fakeCoord{bundle: testBundle()}
	s := testServer(coord, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/collections/node-monkes", nil)
	req.SetPathValue("slug", "node-monkes")
	rr := httptest.NewRecorder()
	s.handleCollection(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if coord.lastGapArg {
		t.Fatal("gap fill must be off without useCoinGecko=true")
	}

	var resp struct {
		Success bool   `json:"success"`
		Slug    string `json:"slug"`
		Data    []struct {
			Day      string   `json:"day"`
			BTC      float64  `json:"btc"`
			USD      *float64 `json:"usd"`
			BTCPrice *float64 `json:"btcPrice"`
		} `json:"data"`
		Stats struct {
			TotalPoints   int     `json:"totalPoints"`
			MissingPoints int     `json:"missingPoints"`
			AvgUSD        float64 `json:"avgUsd"`
			DateRange     struct {
				Start *string `json:"start"`
				End   *string `json:"end"`
			} `json:"dateRange"`
		} `json:"stats"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success || resp.Slug != "node-monkes" {
		t.Fatalf("envelope: %+v", resp)
	}
	if len(resp.Data) != 2 {
		t.Fatalf("expected 2 points, got %d", len(resp.Data))
	}
	if resp.Data[0].USD == nil || *resp.Data[0].USD != 21000 {
		t.Fatalf("first point usd: %+v", resp.Data[0])
	}
	if resp.Data[1].USD != nil || resp.Data[1].BTCPrice != nil {
		t.Fatal("unpriced point must serialize null usd and btcPrice")
	}
	if resp.Stats.TotalPoints != 1 || resp.Stats.MissingPoints != 1 {
		t.Fatalf("stats: %+v", resp.Stats)
	}
	dr := resp.Stats.DateRange
	if dr.Start == nil || *dr.Start != "2024-01-01" || dr.End == nil || *dr.End != "2024-01-02" {
		t.Fatalf("dateRange: %+v", dr)
	}
}

func TestHandleCollectionEmptySeriesDateRange(t *testing.T) {
	coord := &fakeCoord{bundle: &models.SeriesBundle{Slug: "node-monkes"}}
	s := testServer(coord, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/collections/node-monkes", nil)
	req.SetPathValue("slug", "node-monkes")
	rr := httptest.NewRecorder()
	s.handleCollection(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp struct {
		Stats struct {
			DateRange struct {
				Start *string `json:"start"`
				End   *string `json:"end"`
			} `json:"dateRange"`
		} `json:"stats"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Stats.DateRange.Start != nil || resp.Stats.DateRange.End != nil {
		t.Fatalf("empty series must serialize null dateRange ends: %+v", resp.Stats.DateRange)
	}
	if !strings.Contains(rr.Body.String(), `"dateRange"`) {
		t.Fatal("dateRange object must always be present")
	}
}

func TestHandleCollectionGapFillFlag(t *testing.T) {
	coord := &fakeCoord{bundle: testBundle()}
	s := testServer(coord, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/collections/node-monkes?useCoinGecko=true", nil)
	req.SetPathValue("slug", "node-monkes")
	rr := httptest.NewRecorder()
	s.handleCollection(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !coord.lastGapArg {
		t.Fatal("useCoinGecko=true must enable gap fill")
	}
}

func TestHandleCollectionErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{parser.ErrEmptySeries, http.StatusUnprocessableEntity},
		{analytics.ErrInsufficientData, http.StatusUnprocessableEntity},
		{external.ErrUpstreamUnavailable, http.StatusBadGateway},
		{parser.ErrMalformedPayload, http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		s := testServer(&fakeCoord{err: tc.err}, nil)
		req := httptest.NewRequest(http.MethodGet, "/v1/collections/node-monkes", nil)
		req.SetPathValue("slug", "node-monkes")
		rr := httptest.NewRecorder()
		s.handleCollection(rr, req)

		if rr.Code != tc.code {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.code, rr.Code)
		}
		var resp map[string]any
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if resp["success"] != false {
			t.Fatalf("%v: expected success=false envelope", tc.err)
		}
	}
}

func TestHandleCollectionCSV(t *testing.T) {
	coord := &fakeCoord{bundle: testBundle()}
	s := testServer(coord, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/collections/node-monkes/csv", nil)
	req.SetPathValue("slug", "node-monkes")
	rr := httptest.NewRecorder()
	s.handleCollectionCSV(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !coord.lastGapArg {
		t.Fatal("CSV export must always request gap fill")
	}
	if ct := rr.Header().Get("Content-Type"); ct != "text/csv" {
		t.Fatalf("content type: %s", ct)
	}
	if cd := rr.Header().Get("Content-Disposition"); !strings.Contains(cd, "node-monkes_usd_timeseries.csv") {
		t.Fatalf("content disposition: %s", cd)
	}

	lines := strings.Split(strings.TrimSpace(rr.Body.String()), "\n")
	if lines[0] != "day,btc,usd,btc_usd_px" {
		t.Fatalf("header: %s", lines[0])
	}
	if lines[1] != "2024-01-01,0.5,21000,42000" {
		t.Fatalf("priced row: %s", lines[1])
	}
	if lines[2] != "2024-01-02,0.6,," {
		t.Fatalf("unpriced row must leave blanks: %s", lines[2])
	}

	// The query flag controls gap fill on the JSON route only.
	coord.lastGapArg = false
	req = httptest.NewRequest(http.MethodGet, "/v1/collections/node-monkes/csv?useCoinGecko=false", nil)
	req.SetPathValue("slug", "node-monkes")
	s.handleCollectionCSV(httptest.NewRecorder(), req)
	if !coord.lastGapArg {
		t.Fatal("useCoinGecko=false must not disable gap fill for CSV")
	}
}

func TestHandleCollectionFormatCSV(t *testing.T) {
	s := testServer(&fakeCoord{bundle: testBundle()}, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/collections/node-monkes?format=csv", nil)
	req.SetPathValue("slug", "node-monkes")
	rr := httptest.NewRecorder()
	s.handleCollection(rr, req)

	if ct := rr.Header().Get("Content-Type"); ct != "text/csv" {
		t.Fatalf("format=csv must return CSV, got %s", ct)
	}
}

func TestHandleRankings(t *testing.T) {
	rankings := &fakeRankings{ranked: []models.RankedSlug{
		{Slug: "alpha", Analytics: models.AnalyticsSummary{Gradient: 5}},
		{Slug: "beta", Analytics: models.AnalyticsSummary{Gradient: 1}},
	}}
	s := testServer(nil, rankings)

	req := httptest.NewRequest(http.MethodGet, "/v1/rankings?limit=10", nil)
	rr := httptest.NewRecorder()
	s.handleRankings(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if rankings.minSamples != 4 || rankings.limit != 10 {
		t.Fatalf("rank args: min=%d limit=%d", rankings.minSamples, rankings.limit)
	}

	var resp rankingResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success || resp.Count != 2 {
		t.Fatalf("envelope: %+v", resp)
	}
}

func TestHandleReferencePrices(t *testing.T) {
	s := testServer(nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/reference-prices?start=2024-01-01&end=2024-12-31", nil)
	rr := httptest.NewRecorder()
	s.handleReferencePrices(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp referencePriceResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Count != 1 || resp.Data[0].Key != "2024-01-01" {
		t.Fatalf("window: %+v", resp)
	}
	if resp.Version != "test" {
		t.Fatalf("version: %s", resp.Version)
	}
}

func TestHandleReferencePricesBadDate(t *testing.T) {
	s := testServer(nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/reference-prices?start=01-2024", nil)
	rr := httptest.NewRecorder()
	s.handleReferencePrices(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}
