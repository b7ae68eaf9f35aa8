// Package analytics computes summary statistics and a robust trend
// slope over a resolved daily series. The slope blends the raw
// endpoint line with a half-period average line, damping the influence
// of a single noisy first or last observation while staying O(n) and
// fully deterministic.
package analytics

import (
	"errors"
	"math"

	"github.com/ordistat/ordistat-backend/internal/models"
)

// ErrInsufficientData means the valid-point count is below the
// configured minimum. A user-visible condition, not a system fault.
var ErrInsufficientData = errors.New("insufficient data")

// Calculator summarizes resolved series. MinSamples gates the number
// of valid points required before statistics are trusted; values
// below 1 are treated as 1.
type Calculator struct {
	MinSamples int
}

// Summarize computes the analytics over the valid subset of points:
// those whose value is present, finite, and strictly positive.
func (c Calculator) Summarize(points []models.ResolvedPoint) (models.AnalyticsSummary, error) {
	values := make([]float64, 0, len(points))
	for _, p := range points {
		if p.Value == nil {
			continue
		}
		v := *p.Value
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			continue
		}
		values = append(values, v)
	}

	minSamples := c.MinSamples
	if minSamples < 1 {
		minSamples = 1
	}
	if len(values) < minSamples {
		return models.AnalyticsSummary{}, ErrInsufficientData
	}

	sum := 0.0
	minV, maxV := values[0], values[0]
	for _, v := range values {
		sum += v
		if v < minV {
			minV = v
		}
		if v > maxV {
			maxV = v
		}
	}
	mean := sum / float64(len(values))

	gradient := splitTrendGradient(values)
	stability := stabilityScore(values, mean)

	return models.AnalyticsSummary{
		SampleCount:    len(values),
		MinValue:       minV,
		MaxValue:       maxV,
		MeanValue:      mean,
		Gradient:       gradient,
		UpwardTrend:    gradient > 0,
		StabilityScore: &stability,
	}, nil
}

// splitTrendGradient is the split-trend slope: the average of line A
// (interpolating the first and last values) and line B (interpolating
// the first-half and second-half means), differentiated over the
// normalized [0,1] position axis and scaled back to per-sample units.
func splitTrendGradient(values []float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}

	half := n / 2
	firstSum, lastSum := 0.0, 0.0
	for i, v := range values {
		if i < half {
			firstSum += v
		} else {
			lastSum += v
		}
	}
	firstAvg := firstSum / float64(half)
	lastAvg := lastSum / float64(n-half)

	trendStart := (values[0] + firstAvg) / 2
	trendEnd := (values[n-1] + lastAvg) / 2
	return (trendEnd - trendStart) / float64(n-1)
}

// stabilityScore maps relative volatility onto [0,1]: 1 means no
// variance, 0 means the standard deviation meets or exceeds the mean.
func stabilityScore(values []float64, mean float64) float64 {
	if len(values) < 2 {
		return 1
	}
	var ss float64
	for _, v := range values {
		d := v - mean
		ss += d * d
	}
	stddev := math.Sqrt(ss / float64(len(values)))

	score := 1 - stddev/mean
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
