package analytics

import (
	"errors"
	"math"
	"testing"

	"github.com/ordistat/ordistat-backend/internal/models"
)

func resolved(values ...float64) []models.ResolvedPoint {
	out := make([]models.ResolvedPoint, len(values))
	for i, v := range values {
		val := v
		px := 1.0
		out[i] = models.ResolvedPoint{
			Day:            "2024-01-01",
			Quantity:       v,
			ReferencePrice: &px,
			Value:          &val,
		}
	}
	return out
}

func TestSummarize_SplitTrendGradient(t *testing.T) {
	// n=4, values 100,110,120,140:
	// firstAvg=105, lastAvg=130, A(0)=100, A(1)=140, B(0)=105, B(1)=130
	// trend_0=102.5, trend_3=135 → gradient=(135-102.5)/3 = 10.8333...
	sum, err := Calculator{MinSamples: 2}.Summarize(resolved(100, 110, 120, 140))
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}

	want := (135.0 - 102.5) / 3.0
	if math.Abs(sum.Gradient-want) > 1e-12 {
		t.Fatalf("gradient: expected %.10f, got %.10f", want, sum.Gradient)
	}
	if !sum.UpwardTrend {
		t.Fatal("expected upward trend")
	}
	if sum.MinValue != 100 || sum.MaxValue != 140 {
		t.Fatalf("min/max: %f/%f", sum.MinValue, sum.MaxValue)
	}
	if math.Abs(sum.MeanValue-117.5) > 1e-12 {
		t.Fatalf("mean: expected 117.5, got %f", sum.MeanValue)
	}
	if sum.SampleCount != 4 {
		t.Fatalf("sample count: %d", sum.SampleCount)
	}
}

func TestSummarize_SinglePoint(t *testing.T) {
	sum, err := Calculator{MinSamples: 1}.Summarize(resolved(250))
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if sum.Gradient != 0 {
		t.Fatalf("n=1 must yield gradient 0, got %f", sum.Gradient)
	}
	if sum.UpwardTrend {
		t.Fatal("gradient 0 is not upward")
	}
	if sum.MinValue != 250 || sum.MaxValue != 250 || sum.MeanValue != 250 {
		t.Fatalf("single-point stats: %+v", sum)
	}
}

func TestSummarize_InsufficientData(t *testing.T) {
	_, err := Calculator{MinSamples: 1}.Summarize(nil)
	if !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData for empty input, got %v", err)
	}

	// Points with nil or non-positive values don't count as valid.
	zero := 0.0
	px := 1.0
	points := []models.ResolvedPoint{
		{Day: "2024-01-01", Quantity: 1},
		{Day: "2024-01-02", Quantity: 1, ReferencePrice: &px, Value: &zero},
	}
	_, err = Calculator{MinSamples: 1}.Summarize(points)
	if !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}

	_, err = Calculator{MinSamples: 4}.Summarize(resolved(1, 2, 3))
	if !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData below threshold, got %v", err)
	}
}

func TestSummarize_Deterministic(t *testing.T) {
	points := resolved(104.2, 99.8, 130.33, 121.7, 140.01, 95.5, 160.9)
	calc := Calculator{MinSamples: 2}

	a, err := calc.Summarize(points)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	b, err := calc.Summarize(points)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}

	if a.Gradient != b.Gradient || a.MinValue != b.MinValue ||
		a.MaxValue != b.MaxValue || a.MeanValue != b.MeanValue {
		t.Fatalf("runs must be bit-identical: %+v vs %+v", a, b)
	}
}

func TestSummarize_SkipsInvalidValues(t *testing.T) {
	px := 1.0
	inf := math.Inf(1)
	neg := -10.0
	points := append(resolved(100, 120),
		models.ResolvedPoint{Day: "2024-02-01", Quantity: 1, ReferencePrice: &px, Value: &inf},
		models.ResolvedPoint{Day: "2024-02-02", Quantity: 1, ReferencePrice: &px, Value: &neg},
		models.ResolvedPoint{Day: "2024-02-03", Quantity: 1},
	)

	sum, err := Calculator{MinSamples: 1}.Summarize(points)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if sum.SampleCount != 2 {
		t.Fatalf("expected 2 valid points, got %d", sum.SampleCount)
	}
}

func TestStabilityScore(t *testing.T) {
	sum, err := Calculator{MinSamples: 1}.Summarize(resolved(100, 100, 100))
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if sum.StabilityScore == nil || *sum.StabilityScore != 1 {
		t.Fatalf("flat series must score 1, got %v", sum.StabilityScore)
	}

	// Wildly volatile series (stddev above the mean) clamps to 0.
	sum, err = Calculator{MinSamples: 1}.Summarize(resolved(1, 1, 1, 1, 1, 10000))
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if sum.StabilityScore == nil || *sum.StabilityScore != 0 {
		t.Fatalf("volatile series must clamp to 0, got %v", sum.StabilityScore)
	}
}
