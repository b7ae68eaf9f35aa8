package pricing

import (
	"context"
	"fmt"

	"github.com/ordistat/ordistat-backend/internal/models"
)

// GapFiller supplies day prices for a day-key range from a secondary,
// rate-limited source. Implementations clamp the range to their own
// trailing lookback window.
type GapFiller interface {
	FetchRange(ctx context.Context, fromDay, toDay string) (map[string]float64, error)
}

// Resolver applies a reference price table to a daily series. Price
// resolution per point follows a strict tier order: exact day key,
// then month key, then the gap-fill map. A day no tier can price
// carries nil, so resolution itself never fails.
type Resolver struct {
	gapFill GapFiller
}

func NewResolver(gapFill GapFiller) *Resolver {
	return &Resolver{gapFill: gapFill}
}

// Resolve maps every point to a ResolvedPoint, preserving length and
// day order, and reports how many points stayed unpriced. The gap-fill
// source is consulted with a single batched call spanning the whole
// series; any gap-fill failure degrades to an empty supplement map.
func (r *Resolver) Resolve(ctx context.Context, points []models.DailyPoint, table *Table, useGapFill bool) ([]models.ResolvedPoint, int) {
	supplement := map[string]float64{}
	if useGapFill && r.gapFill != nil && len(points) > 0 {
		fromDay := points[0].Day
		toDay := points[len(points)-1].Day
		m, err := r.gapFill.FetchRange(ctx, fromDay, toDay)
		if err != nil {
			fmt.Printf("[GAPFILL] range fetch failed, continuing without supplements: %v\n", err)
		} else {
			supplement = m
		}
	}

	out := make([]models.ResolvedPoint, len(points))
	missing := 0
	for i, p := range points {
		rp := models.ResolvedPoint{Day: p.Day, Quantity: p.Quantity}

		price, ok := table.Price(p.Day)
		if !ok {
			price, ok = table.Price(models.MonthKey(p.Day))
		}
		if !ok {
			price, ok = supplement[p.Day]
		}

		if ok && price > 0 {
			px := price
			value := p.Quantity * px
			rp.ReferencePrice = &px
			rp.Value = &value
		} else {
			missing++
		}
		out[i] = rp
	}
	return out, missing
}
