package models

import "time"

// RefPrice is one curated or cached BTC/USD reference price. Key is a
// full day (2006-01-02) or a month (2006-01) for older coverage.
type RefPrice struct {
	Key       string    `json:"key"`
	Price     float64   `json:"price"`
	Source    string    `json:"source"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CachedAsset is a derived artifact (CSV export, chart payload) cached
// per collection and kind.
type CachedAsset struct {
	Slug        string    `json:"slug"`
	Kind        string    `json:"kind"`
	Content     []byte    `json:"-"`
	ContentType string    `json:"contentType"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
