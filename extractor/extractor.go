// Package extractor pulls product records out of a live dashboard page
// using a two-tier policy: structured network capture first, rendered
// table scrape as fallback.
package extractor

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/letulabs/livetracker/browser"
	"github.com/letulabs/livetracker/models"
	"github.com/letulabs/livetracker/parser"
)

// Strategy labels which tier produced a set of records.
type Strategy string

const (
	StrategyNetwork Strategy = "network"
	StrategyDOM     Strategy = "dom"
	StrategyNone    Strategy = "none"
)

const (
	// Markers that identify the dashboard's internal product-list
	// endpoint among captured traffic.
	endpointMarker     = "productList"
	sessionScopeMarker = "sessionId"

	// Minimum cells for a scrapeable table row: title, clicks, CTR,
	// orders created, items sold, plus trailing action cells.
	minRowCells = 6
)

// Extractor produces product records from one session's dashboard page.
// Extract never returns an error; total failure yields an empty result
// and the caller decides the retry cadence.
type Extractor struct {
	page      browser.Page
	targetURL string
	settle    time.Duration
}

// New binds an extractor to a live page and its target URL.
func New(page browser.Page, targetURL string, settle time.Duration) *Extractor {
	return &Extractor{
		page:      page,
		targetURL: targetURL,
		settle:    settle,
	}
}

// Extract navigates to the target page, waits for dynamic content to
// settle, and runs the two extraction tiers in order.
func (e *Extractor) Extract(ctx context.Context) ([]models.ProductRecord, Strategy) {
	if err := e.page.Navigate(ctx, e.targetURL); err != nil {
		slog.Error("navigation failed",
			slog.String("url", e.targetURL),
			slog.Any("error", err),
		)
		return nil, StrategyNone
	}

	select {
	case <-time.After(e.settle):
	case <-ctx.Done():
		return nil, StrategyNone
	}

	if records, ok := e.fromNetwork(ctx); ok {
		return records, StrategyNetwork
	}

	if records := e.fromDOM(ctx); len(records) > 0 {
		return records, StrategyDOM
	}
	return nil, StrategyNone
}

// fromNetwork scans captured exchanges in observation order for the
// first product-list response and decodes it. Scanning stops at the
// first matching endpoint whose body can be read and parsed; it does
// not aggregate across multiple matches.
func (e *Extractor) fromNetwork(ctx context.Context) ([]models.ProductRecord, bool) {
	for _, ex := range e.page.Exchanges() {
		if !strings.Contains(ex.URL, endpointMarker) || !strings.Contains(ex.URL, sessionScopeMarker) {
			continue
		}

		body, err := e.page.ResponseBody(ctx, ex.RequestID)
		if err != nil {
			// Bodies can be evicted from the browser's buffer;
			// keep scanning the remaining exchanges.
			slog.Debug("response body unavailable",
				slog.String("request_id", ex.RequestID),
				slog.Any("error", err),
			)
			continue
		}

		records, outcome := parser.DecodeProductList(body)
		if outcome == parser.Decoded {
			return records, true
		}

		slog.Warn("product list payload rejected",
			slog.String("url", ex.URL),
			slog.String("outcome", outcome.String()),
		)
		return nil, false
	}
	return nil, false
}

// fromDOM scrapes the rendered product table. Each row is processed
// independently: rows with too few cells or unparseable numbers are
// skipped without dropping their neighbours.
func (e *Extractor) fromDOM(ctx context.Context) []models.ProductRecord {
	html, err := e.page.HTML(ctx)
	if err != nil {
		slog.Error("dom snapshot failed", slog.Any("error", err))
		return nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		slog.Error("dom parse failed", slog.Any("error", err))
		return nil
	}

	var records []models.ProductRecord
	doc.Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < minRowCells {
			return
		}

		clicks, err := parser.ParseCount(cells.Eq(1).Text())
		if err != nil {
			return
		}
		ctr, err := parser.ParsePercent(cells.Eq(2).Text())
		if err != nil {
			return
		}
		orders, err := parser.ParseCount(cells.Eq(3).Text())
		if err != nil {
			return
		}
		sold, err := parser.ParseCount(cells.Eq(4).Text())
		if err != nil {
			return
		}

		records = append(records, models.ProductRecord{
			Title:         strings.TrimSpace(cells.Eq(0).Text()),
			ProductClicks: clicks,
			CTR:           ctr,
			OrdersCreated: orders,
			ItemsSold:     sold,
		})
	})
	return records
}
