package pricing

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

var dayPrefixRegexp = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)

// LoadFile reads a reference price table from disk. JSON documents
// (array of 2-element rows in either order, or an object keyed by day
// or month) and CSV files (date and price in the first two columns)
// are both accepted. The file name becomes the table version.
func LoadFile(path string) (*Table, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read reference table: %w", err)
	}

	version := filepath.Base(path)
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && (trimmed[0] == '[' || trimmed[0] == '{') {
		return LoadJSON(version, trimmed)
	}
	return LoadCSV(version, bytes.NewReader(raw))
}

// LoadJSON parses the JSON table forms.
func LoadJSON(version string, raw []byte) (*Table, error) {
	trimmed := bytes.TrimSpace(raw)
	prices := make(map[string]float64)

	if len(trimmed) > 0 && trimmed[0] == '[' {
		var rows [][]any
		if err := json.Unmarshal(trimmed, &rows); err != nil {
			return nil, fmt.Errorf("parse JSON table: %w", err)
		}
		for _, row := range rows {
			if len(row) < 2 {
				continue
			}
			day, price, ok := detectPair(row[0], row[1])
			if !ok {
				continue
			}
			prices[day] = price
		}
		return NewTable(version, prices), nil
	}

	var keyed map[string]any
	if err := json.Unmarshal(trimmed, &keyed); err != nil {
		return nil, fmt.Errorf("parse JSON table: %w", err)
	}
	for k, v := range keyed {
		if price, ok := numify(v); ok {
			prices[truncateKey(k)] = price
		}
	}
	return NewTable(version, prices), nil
}

// LoadCSV parses the CSV form: date in the first column, price in the
// second. Quotes and thousands separators inside the price field are
// stripped, so exports like `2024-01-01,"42,278.00"` load cleanly.
// Rows that do not look like (date, number) are skipped, which also
// drops any header line.
func LoadCSV(version string, r io.Reader) (*Table, error) {
	prices := make(map[string]float64)

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read CSV table: %w", err)
		}
		if len(record) < 2 {
			continue
		}
		date := strings.TrimSpace(record[0])
		if !dayPrefixRegexp.MatchString(date) {
			continue
		}
		priceStr := strings.NewReplacer(`"`, "", ",", "").Replace(strings.TrimSpace(record[1]))
		price, err := strconv.ParseFloat(priceStr, 64)
		if err != nil {
			continue
		}
		prices[truncateKey(date)] = price
	}
	return NewTable(version, prices), nil
}

// detectPair figures out which element of a 2-element row is the date
// and which the price; either order is accepted, and both may arrive
// as strings.
func detectPair(a, b any) (day string, price float64, ok bool) {
	aStr, aIsStr := a.(string)
	bStr, bIsStr := b.(string)

	if aIsStr && dayPrefixRegexp.MatchString(aStr) {
		if p, pOK := numify(b); pOK {
			return truncateKey(aStr), p, true
		}
		return "", 0, false
	}
	if bIsStr && dayPrefixRegexp.MatchString(bStr) {
		if p, pOK := numify(a); pOK {
			return truncateKey(bStr), p, true
		}
	}
	return "", 0, false
}

// numify accepts JSON numbers and numeric strings.
func numify(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// truncateKey normalizes a date-like key to at most the day form;
// month keys (YYYY-MM) pass through unchanged.
func truncateKey(k string) string {
	if len(k) > 10 {
		return k[:10]
	}
	return k
}
