// Package pricing converts a daily series into reference-currency
// values using a sparse day/month price table, with an optional
// gap-fill source for days the table cannot resolve.
package pricing

import (
	"sort"
	"sync"
)

// Entry is one key/price pair of a table.
type Entry struct {
	Key   string  `json:"key"`
	Price float64 `json:"price"`
}

// Table is an immutable sparse mapping from a day (YYYY-MM-DD) or
// month (YYYY-MM) key to a positive unit price. Missing keys are a
// normal condition, not an error.
type Table struct {
	Version string
	prices  map[string]float64
}

// NewTable builds a table from the given entries. Non-positive prices
// are dropped. The version labels the artifact (file name, load batch)
// for diagnostics.
func NewTable(version string, prices map[string]float64) *Table {
	cp := make(map[string]float64, len(prices))
	for k, v := range prices {
		if v > 0 {
			cp[k] = v
		}
	}
	return &Table{Version: version, prices: cp}
}

// Price returns the price stored under the exact key.
func (t *Table) Price(key string) (float64, bool) {
	p, ok := t.prices[key]
	return p, ok
}

// Len reports the number of entries.
func (t *Table) Len() int {
	return len(t.prices)
}

// Window returns entries whose key falls in [start, end], sorted by
// key. Empty bounds are open.
func (t *Table) Window(start, end string) []Entry {
	out := make([]Entry, 0, len(t.prices))
	for k, v := range t.prices {
		if start != "" && k < start {
			continue
		}
		if end != "" && k > end {
			continue
		}
		out = append(out, Entry{Key: k, Price: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Merge returns a new table combining t with extra entries; keys
// already in t keep their price (the curated artifact wins over
// cached supplements).
func (t *Table) Merge(version string, extra map[string]float64) *Table {
	cp := make(map[string]float64, len(t.prices)+len(extra))
	for k, v := range extra {
		if v > 0 {
			cp[k] = v
		}
	}
	for k, v := range t.prices {
		cp[k] = v
	}
	return &Table{Version: version, prices: cp}
}

// Registry hands out the current table snapshot and lets the refresh
// scheduler swap in a rebuilt one. Readers always see a complete table.
type Registry struct {
	mu      sync.RWMutex
	current *Table
}

func NewRegistry(initial *Table) *Registry {
	if initial == nil {
		initial = NewTable("empty", nil)
	}
	return &Registry{current: initial}
}

// Current returns the active table snapshot.
func (r *Registry) Current() *Table {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Swap replaces the active table.
func (r *Registry) Swap(t *Table) {
	if t == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = t
}
