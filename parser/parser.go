// Package parser normalizes raw dashboard values into typed fields and
// decodes the product-list payload captured off the wire.
package parser

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/letulabs/livetracker/models"
)

// Outcome classifies a product-list payload decode attempt.
type Outcome int

const (
	// Decoded means the payload matched the expected shape and
	// produced at least one record.
	Decoded Outcome = iota
	// SchemaMismatch means the payload was not valid JSON or the
	// expected data.list nesting was absent.
	SchemaMismatch
	// EmptyPayload means the payload matched the shape but carried
	// zero items.
	EmptyPayload
)

func (o Outcome) String() string {
	switch o {
	case Decoded:
		return "decoded"
	case SchemaMismatch:
		return "schema_mismatch"
	case EmptyPayload:
		return "empty"
	default:
		return "unknown"
	}
}

// flexID tolerates the upstream API emitting item IDs as either JSON
// numbers or strings.
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		*f = ""
		return nil
	}
	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

// productEntry mirrors one element of the dashboard's internal
// productList response. Numeric fields absent upstream decode to zero.
type productEntry struct {
	ItemID        flexID      `json:"itemId"`
	Title         string      `json:"title"`
	CoverImage    string      `json:"coverImage"`
	MinPrice      int64       `json:"minPrice"`
	MaxPrice      int64       `json:"maxPrice"`
	ProductClicks int64       `json:"productClicks"`
	CTR           float64     `json:"ctr"`
	OrdersCreated int64       `json:"ordersCreated"`
	ItemsSold     int64       `json:"itemsSold"`
	Revenue       float64     `json:"revenue"`
}

type productListPayload struct {
	Data *struct {
		List []productEntry `json:"list"`
	} `json:"data"`
}

// DecodeProductList parses a captured response body into product
// records. Duplicate item IDs are preserved as separate records.
func DecodeProductList(body []byte) ([]models.ProductRecord, Outcome) {
	var payload productListPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, SchemaMismatch
	}
	if payload.Data == nil || payload.Data.List == nil {
		return nil, SchemaMismatch
	}
	if len(payload.Data.List) == 0 {
		return nil, EmptyPayload
	}

	records := make([]models.ProductRecord, 0, len(payload.Data.List))
	for _, entry := range payload.Data.List {
		records = append(records, models.ProductRecord{
			ItemID:        string(entry.ItemID),
			Title:         entry.Title,
			CoverImage:    entry.CoverImage,
			MinPrice:      entry.MinPrice,
			MaxPrice:      entry.MaxPrice,
			ProductClicks: entry.ProductClicks,
			CTR:           entry.CTR,
			OrdersCreated: entry.OrdersCreated,
			ItemsSold:     entry.ItemsSold,
			Revenue:       entry.Revenue,
		})
	}
	return records, Decoded
}

// ParseCount converts a rendered counter cell to an integer. The
// dashboard renders thousands separators as either commas or dots
// depending on locale, so both are stripped.
func ParseCount(text string) (int64, error) {
	cleaned := strings.TrimSpace(text)
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	cleaned = strings.ReplaceAll(cleaned, ".", "")
	if cleaned == "" {
		return 0, fmt.Errorf("empty count")
	}
	n, err := strconv.ParseInt(cleaned, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse count %q: %w", text, err)
	}
	return n, nil
}

// ParsePercent converts a rendered percentage cell ("1.2%") to a float.
func ParsePercent(text string) (float64, error) {
	cleaned := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(text), "%"))
	if cleaned == "" {
		return 0, fmt.Errorf("empty percentage")
	}
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("parse percentage %q: %w", text, err)
	}
	return f, nil
}
