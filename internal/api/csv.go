package api

import (
	"bytes"
	"encoding/csv"
	"strconv"

	"github.com/ordistat/ordistat-backend/internal/models"
)

// buildCSV renders a bundle as the flat export format. Unpriced days
// keep their quantity and leave the usd and price columns blank.
func buildCSV(b *models.SeriesBundle) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write([]string{"day", "btc", "usd", "btc_usd_px"}); err != nil {
		return nil, err
	}
	for _, p := range b.ResolvedSeries {
		rec := []string{p.Day, formatFloat(p.Quantity), "", ""}
		if p.Value != nil {
			rec[2] = formatFloat(*p.Value)
		}
		if p.ReferencePrice != nil {
			rec[3] = formatFloat(*p.ReferencePrice)
		}
		if err := w.Write(rec); err != nil {
			return nil, err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
