// Package models defines data structures shared across the tracker.
package models

import "time"

// ProductRecord is one item's metrics snapshot at a point in time.
// Records produced by the network strategy carry all fields; records
// produced by the DOM fallback carry only Title, ProductClicks, CTR,
// OrdersCreated and ItemsSold.
type ProductRecord struct {
	ItemID        string  `json:"itemId,omitempty"`
	Title         string  `json:"title"`
	CoverImage    string  `json:"coverImage,omitempty"`
	MinPrice      int64   `json:"minPrice"`
	MaxPrice      int64   `json:"maxPrice"`
	ProductClicks int64   `json:"productClicks"`
	CTR           float64 `json:"ctr"`
	OrdersCreated int64   `json:"ordersCreated"`
	ItemsSold     int64   `json:"itemsSold"`
	Revenue       float64 `json:"revenue"`
}

// Snapshot is the result of one extraction cycle for one session.
type Snapshot struct {
	SessionID  string          `json:"sessionId"`
	Records    []ProductRecord `json:"products"`
	Strategy   string          `json:"strategy"`
	CapturedAt time.Time       `json:"capturedAt"`
}
