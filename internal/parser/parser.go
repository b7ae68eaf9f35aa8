// Package parser turns an arbitrary upstream JSON response into an
// ordered, duplicate-free daily series. Upstream response shapes are
// not under our control: the row source may be the document itself or
// any top-level array field, rows may be positional arrays or keyed
// objects, timestamps arrive as second/millisecond epochs or date
// strings, and value fields go by several names.
package parser

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/ordistat/ordistat-backend/internal/models"
)

var (
	// ErrMalformedPayload means the response body is not parseable JSON.
	ErrMalformedPayload = errors.New("malformed payload")
	// ErrEmptySeries means no usable rows were found in the response.
	ErrEmptySeries = errors.New("empty series")
)

// Timestamp fields tried in order on keyed rows.
var timestampFields = []string{"timestamp", "time", "t", "date", "day"}

// Value fields tried in order on keyed rows.
var valueFields = []string{"price", "value", "close"}

// Fields never treated as a value during the last-resort numeric scan.
var valueBlocklist = map[string]bool{
	"id": true, "timestamp": true, "time": true, "t": true,
	"date": true, "day": true, "volume": true, "slug": true,
}

// Parse decodes raw upstream JSON and normalizes it into an ascending,
// one-point-per-day series. Rows that cannot yield a timestamp and a
// finite value are discarded silently; when repeated rows share a day,
// the value of the row appearing last in stable day order wins.
func Parse(raw []byte) ([]models.DailyPoint, error) {
	doc, err := decodeDocument(raw)
	if err != nil {
		return nil, err
	}

	rows, err := rowSource(doc)
	if err != nil {
		return nil, err
	}

	type rawPoint struct {
		day      string
		quantity float64
	}
	points := make([]rawPoint, 0, len(rows))
	for _, row := range rows {
		ts, quantity, ok := extractRow(row)
		if !ok {
			continue
		}
		day, ok := normalizeTimestamp(ts)
		if !ok {
			continue
		}
		points = append(points, rawPoint{day: day, quantity: quantity})
	}

	// Stable sort keeps the original relative order of rows sharing a
	// day, so the later original row wins the fold below.
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].day < points[j].day
	})

	byDay := make(map[string]float64, len(points))
	order := make([]string, 0, len(points))
	for _, p := range points {
		if _, seen := byDay[p.day]; !seen {
			order = append(order, p.day)
		}
		byDay[p.day] = p.quantity
	}

	if len(order) == 0 {
		return nil, fmt.Errorf("%w: no valid rows in upstream response", ErrEmptySeries)
	}

	out := make([]models.DailyPoint, len(order))
	for i, day := range order {
		out[i] = models.DailyPoint{Day: day, Quantity: byDay[day]}
	}
	return out, nil
}

// rowSource picks the row array: the document itself when it is an
// array, otherwise the longest top-level array field in document order.
func rowSource(doc jsonValue) ([]jsonValue, error) {
	switch doc.kind {
	case kindArray:
		if len(doc.arr) == 0 {
			return nil, fmt.Errorf("%w: upstream array is empty", ErrEmptySeries)
		}
		return doc.arr, nil
	case kindObject:
		var best []jsonValue
		for _, f := range doc.obj {
			if f.val.kind == kindArray && len(f.val.arr) > len(best) {
				best = f.val.arr
			}
		}
		if len(best) == 0 {
			return nil, fmt.Errorf("%w: no array series in upstream response", ErrEmptySeries)
		}
		return best, nil
	default:
		return nil, fmt.Errorf("%w: upstream response is neither array nor object", ErrEmptySeries)
	}
}

// extractRow pulls (timestamp, value) from a single row. Rows that are
// neither array nor object, or that yield no finite value, report !ok.
func extractRow(row jsonValue) (ts jsonValue, quantity float64, ok bool) {
	switch row.kind {
	case kindArray:
		if len(row.arr) == 0 {
			return jsonValue{}, 0, false
		}
		ts = row.arr[0]
		// Accommodates both [t, price] and [t, volume, price] shapes.
		var rawVal jsonValue
		if len(row.arr) > 2 && row.arr[2].kind != kindNull {
			rawVal = row.arr[2]
		} else if len(row.arr) > 1 {
			rawVal = row.arr[1]
		} else {
			return jsonValue{}, 0, false
		}
		v, numOK := asFloat(rawVal)
		if !numOK {
			return jsonValue{}, 0, false
		}
		return ts, v, true

	case kindObject:
		for _, name := range timestampFields {
			if v, found := row.field(name); found && v.kind != kindNull {
				ts = v
				break
			}
		}
		for _, name := range valueFields {
			if v, found := row.field(name); found && v.kind != kindNull {
				// First present named field decides. Named fields take
				// JSON numbers only (no numeric strings), and anything
				// else discards the row rather than falling through to
				// the scan below.
				if v.kind != kindNumber || !isFinite(v.num) {
					return jsonValue{}, 0, false
				}
				return ts, v.num, true
			}
		}
		// Last resort: first non-blocklisted field, in original key
		// order, whose value parses as a finite number.
		for _, f := range row.obj {
			if valueBlocklist[f.key] {
				continue
			}
			if q, numOK := asFloat(f.val); numOK {
				return ts, q, true
			}
		}
		return jsonValue{}, 0, false

	default:
		return jsonValue{}, 0, false
	}
}

// Epoch values above this are taken as milliseconds, below as seconds.
const millisEpochCutoff = 1e12

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
	time.RFC1123Z,
	time.RFC1123,
}

// normalizeTimestamp converts a raw timestamp value into a UTC day key.
func normalizeTimestamp(ts jsonValue) (string, bool) {
	switch ts.kind {
	case kindNumber:
		sec := ts.num
		if sec > millisEpochCutoff {
			sec = sec / 1000
		}
		return models.DayKey(time.Unix(int64(sec), 0)), true
	case kindString:
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, ts.str); err == nil {
				return models.DayKey(t), true
			}
		}
		return "", false
	default:
		return "", false
	}
}

// asFloat extracts a finite number from a JSON number or numeric string.
func asFloat(v jsonValue) (float64, bool) {
	switch v.kind {
	case kindNumber:
		return v.num, isFinite(v.num)
	case kindString:
		f, err := strconv.ParseFloat(v.str, 64)
		if err != nil {
			return 0, false
		}
		return f, isFinite(f)
	default:
		return 0, false
	}
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// --- ordered JSON document model ---
//
// encoding/json maps lose object key order, but the last-resort value
// scan and the longest-array selection both depend on document order.
// decodeDocument walks the token stream instead, keeping fields in the
// order they appear.

type valueKind int

const (
	kindNull valueKind = iota
	kindBool
	kindNumber
	kindString
	kindArray
	kindObject
)

type jsonValue struct {
	kind valueKind
	num  float64
	str  string
	arr  []jsonValue
	obj  []jsonField
}

type jsonField struct {
	key string
	val jsonValue
}

func (v jsonValue) field(name string) (jsonValue, bool) {
	for _, f := range v.obj {
		if f.key == name {
			return f.val, true
		}
	}
	return jsonValue{}, false
}

func decodeDocument(raw []byte) (jsonValue, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	v, err := decodeValue(dec)
	if err != nil {
		return jsonValue{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return v, nil
}

func decodeValue(dec *json.Decoder) (jsonValue, error) {
	tok, err := dec.Token()
	if err != nil {
		return jsonValue{}, err
	}
	return decodeFromToken(dec, tok)
}

func decodeFromToken(dec *json.Decoder, tok json.Token) (jsonValue, error) {
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '[':
			var arr []jsonValue
			for dec.More() {
				elem, err := decodeValue(dec)
				if err != nil {
					return jsonValue{}, err
				}
				arr = append(arr, elem)
			}
			if _, err := dec.Token(); err != nil { // closing ]
				return jsonValue{}, err
			}
			return jsonValue{kind: kindArray, arr: arr}, nil
		case '{':
			var obj []jsonField
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return jsonValue{}, err
				}
				key, _ := keyTok.(string)
				val, err := decodeValue(dec)
				if err != nil {
					return jsonValue{}, err
				}
				obj = append(obj, jsonField{key: key, val: val})
			}
			if _, err := dec.Token(); err != nil { // closing }
				return jsonValue{}, err
			}
			return jsonValue{kind: kindObject, obj: obj}, nil
		default:
			return jsonValue{}, fmt.Errorf("unexpected delimiter %q", t)
		}
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return jsonValue{}, err
		}
		return jsonValue{kind: kindNumber, num: f}, nil
	case string:
		return jsonValue{kind: kindString, str: t}, nil
	case bool:
		return jsonValue{kind: kindBool}, nil
	case nil:
		return jsonValue{kind: kindNull}, nil
	default:
		return jsonValue{}, fmt.Errorf("unexpected token %v", tok)
	}
}
