package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ordistat/ordistat-backend/internal/analytics"
	"github.com/ordistat/ordistat-backend/internal/external"
	"github.com/ordistat/ordistat-backend/internal/models"
	"github.com/ordistat/ordistat-backend/internal/parser"
)

// dateRange spans the first and last day of the resolved series.
// Both ends serialize as null when the series is empty.
type dateRange struct {
	Start *string `json:"start"`
	End   *string `json:"end"`
}

type collectionStats struct {
	models.AnalyticsSummary
	MissingPoints  int       `json:"missingPoints"`
	DateRange      dateRange `json:"dateRange"`
	LastComputedAt time.Time `json:"lastComputedAt"`
}

type collectionResponse struct {
	Success bool                   `json:"success"`
	Slug    string                 `json:"slug"`
	Data    []models.ResolvedPoint `json:"data"`
	Stats   collectionStats        `json:"stats"`
}

func (s *Server) handleCollection(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")
	if slug == "" {
		writeError(w, http.StatusBadRequest, "missing collection slug")
		return
	}

	if r.URL.Query().Get("format") == "csv" {
		s.handleCollectionCSV(w, r)
		return
	}

	useGapFill := parseBool(r, "useCoinGecko")
	bundle, err := s.coord.Resolve(r.Context(), slug, useGapFill)
	if err != nil {
		writePipelineError(w, slug, err)
		return
	}

	data := bundle.ResolvedSeries
	if data == nil {
		data = []models.ResolvedPoint{}
	}
	var span dateRange
	if len(data) > 0 {
		span.Start = &data[0].Day
		span.End = &data[len(data)-1].Day
	}
	writeJSON(w, http.StatusOK, collectionResponse{
		Success: true,
		Slug:    bundle.Slug,
		Data:    data,
		Stats: collectionStats{
			AnalyticsSummary: bundle.Analytics,
			MissingPoints:    bundle.MissingPoints,
			DateRange:        span,
			LastComputedAt:   bundle.LastComputedAt,
		},
	})
}

func (s *Server) handleCollectionCSV(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")
	if slug == "" {
		writeError(w, http.StatusBadRequest, "missing collection slug")
		return
	}

	// CSV downloads always fill price gaps so the export has as few
	// blank cells as possible, regardless of what the query says.
	asset, err := s.coord.ResolveAsset(r.Context(), slug, "csv", "text/csv", true, buildCSV)
	if err != nil {
		writePipelineError(w, slug, err)
		return
	}

	w.Header().Set("Content-Type", asset.ContentType)
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", slug+"_usd_timeseries.csv"))
	w.WriteHeader(http.StatusOK)
	w.Write(asset.Content)
}

// writePipelineError maps pipeline failures onto status codes: a
// series with nothing usable is the caller's problem, a broken or
// unreachable upstream is a gateway failure.
func writePipelineError(w http.ResponseWriter, slug string, err error) {
	fmt.Printf("[API] %s: %v\n", slug, err)

	switch {
	case errors.Is(err, parser.ErrEmptySeries):
		writeError(w, http.StatusUnprocessableEntity, "series contains no usable points")
	case errors.Is(err, analytics.ErrInsufficientData):
		writeError(w, http.StatusUnprocessableEntity, "not enough valid points for analytics")
	case errors.Is(err, external.ErrUpstreamUnavailable):
		writeError(w, http.StatusBadGateway, "upstream data source unavailable")
	case errors.Is(err, parser.ErrMalformedPayload):
		writeError(w, http.StatusBadGateway, "upstream returned a malformed payload")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
