package models

import "time"

// DailyPoint is one day of an upstream collection series after
// normalization: a UTC calendar day key and the native-unit quantity
// observed on that day. Within a series, days are unique and strictly
// ascending.
type DailyPoint struct {
	Day      string  `json:"day"`
	Quantity float64 `json:"btc"`
}

// ResolvedPoint extends DailyPoint with the reference price applied.
// ReferencePrice and Value are nil together: a day neither the table
// nor the gap-fill source can price still belongs to the series.
type ResolvedPoint struct {
	Day            string   `json:"day"`
	Quantity       float64  `json:"btc"`
	ReferencePrice *float64 `json:"btcPrice"`
	Value          *float64 `json:"usd"`
}

// AnalyticsSummary holds the statistics computed over the valid subset
// of a resolved series (points with a finite, positive value).
type AnalyticsSummary struct {
	SampleCount    int      `json:"totalPoints"`
	MinValue       float64  `json:"minUsd"`
	MaxValue       float64  `json:"maxUsd"`
	MeanValue      float64  `json:"avgUsd"`
	Gradient       float64  `json:"gradient"`
	UpwardTrend    bool     `json:"upwardTrend"`
	StabilityScore *float64 `json:"stabilityScore,omitempty"`
}

// SeriesBundle is the persisted result of one full pipeline run for a
// slug. Bundles are replaced wholesale on recomputation, never merged.
type SeriesBundle struct {
	Slug           string
	ResolvedSeries []ResolvedPoint
	Analytics      AnalyticsSummary
	MissingPoints  int
	LastComputedAt time.Time
}

// RankedSlug is one row of the gradient-ordered listing surface.
type RankedSlug struct {
	Slug           string           `json:"slug"`
	Analytics      AnalyticsSummary `json:"stats"`
	MissingPoints  int              `json:"missingPoints"`
	LastComputedAt time.Time        `json:"lastComputedAt"`
}

// DayKey truncates a timestamp to its UTC calendar day key.
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// MonthKey returns the YYYY-MM prefix of a day key.
func MonthKey(day string) string {
	if len(day) >= 7 {
		return day[:7]
	}
	return day
}
