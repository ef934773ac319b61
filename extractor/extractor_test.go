package extractor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/letulabs/livetracker/browser"
	"github.com/letulabs/livetracker/models"
)

type fakePage struct {
	navigateErr error
	navigated   []string
	exchanges   []browser.Exchange
	bodies      map[string][]byte
	html        string
	htmlErr     error
	closed      bool
}

func (f *fakePage) Navigate(_ context.Context, url string) error {
	if f.navigateErr != nil {
		return f.navigateErr
	}
	f.navigated = append(f.navigated, url)
	return nil
}

func (f *fakePage) Exchanges() []browser.Exchange {
	return f.exchanges
}

func (f *fakePage) ResponseBody(_ context.Context, requestID string) ([]byte, error) {
	body, ok := f.bodies[requestID]
	if !ok {
		return nil, errors.New("no body for request")
	}
	return body, nil
}

func (f *fakePage) HTML(_ context.Context) (string, error) {
	if f.htmlErr != nil {
		return "", f.htmlErr
	}
	return f.html, nil
}

func (f *fakePage) Close() error {
	f.closed = true
	return nil
}

const productListURL = "https://dashboard.example/api/productList?sessionId=abc"

func TestExtractFromNetwork(t *testing.T) {
	page := &fakePage{
		exchanges: []browser.Exchange{
			{RequestID: "1", URL: "https://dashboard.example/static/app.js"},
			{RequestID: "2", URL: productListURL},
			{RequestID: "3", URL: productListURL},
		},
		bodies: map[string][]byte{
			"2": []byte(`{"data": {"list": [
				{"itemId": "1", "title": "A", "minPrice": 10, "maxPrice": 20,
				 "productClicks": 5, "ctr": 1.2, "ordersCreated": 1,
				 "itemsSold": 1, "revenue": 100}
			]}}`),
			"3": []byte(`{"data": {"list": [{"title": "should not be read"}]}}`),
		},
	}

	e := New(page, "https://dashboard.example/stream?sessionId=abc", time.Millisecond)
	records, strategy := e.Extract(context.Background())

	if strategy != StrategyNetwork {
		t.Fatalf("strategy = %v, want %v", strategy, StrategyNetwork)
	}
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}

	want := models.ProductRecord{
		ItemID:        "1",
		Title:         "A",
		MinPrice:      10,
		MaxPrice:      20,
		ProductClicks: 5,
		CTR:           1.2,
		OrdersCreated: 1,
		ItemsSold:     1,
		Revenue:       100,
	}
	if records[0] != want {
		t.Fatalf("record = %+v, want %+v", records[0], want)
	}
	if len(page.navigated) != 1 {
		t.Fatalf("navigations = %d, want 1", len(page.navigated))
	}
}

func TestExtractSkipsMalformedExchange(t *testing.T) {
	// First matching exchange has no readable body; the scan must
	// continue to the next one rather than abort.
	page := &fakePage{
		exchanges: []browser.Exchange{
			{RequestID: "1", URL: productListURL},
			{RequestID: "2", URL: productListURL},
		},
		bodies: map[string][]byte{
			"2": []byte(`{"data": {"list": [{"itemId": "9", "title": "B"}]}}`),
		},
	}

	e := New(page, "https://dashboard.example/stream?sessionId=abc", time.Millisecond)
	records, strategy := e.Extract(context.Background())

	if strategy != StrategyNetwork {
		t.Fatalf("strategy = %v, want %v", strategy, StrategyNetwork)
	}
	if len(records) != 1 || records[0].Title != "B" {
		t.Fatalf("records = %+v, want the second exchange's payload", records)
	}
}

func TestExtractFallsBackToDOM(t *testing.T) {
	tests := []struct {
		name string
		page *fakePage
	}{
		{
			name: "no matching exchange",
			page: &fakePage{
				exchanges: []browser.Exchange{
					{RequestID: "1", URL: "https://dashboard.example/api/other?sessionId=abc"},
					{RequestID: "2", URL: "https://dashboard.example/api/productList"},
				},
			},
		},
		{
			name: "unparseable body",
			page: &fakePage{
				exchanges: []browser.Exchange{
					{RequestID: "1", URL: productListURL},
				},
				bodies: map[string][]byte{"1": []byte(`<html>not json</html>`)},
			},
		},
		{
			name: "empty payload",
			page: &fakePage{
				exchanges: []browser.Exchange{
					{RequestID: "1", URL: productListURL},
				},
				bodies: map[string][]byte{"1": []byte(`{"data": {"list": []}}`)},
			},
		},
	}

	const html = `<html><body><table>
		<tr><td>Row</td><td>10</td><td>1.5%</td><td>2</td><td>3</td><td>x</td></tr>
	</table></body></html>`

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.page.html = html
			e := New(tt.page, "https://dashboard.example/stream?sessionId=abc", time.Millisecond)

			records, strategy := e.Extract(context.Background())
			if strategy != StrategyDOM {
				t.Fatalf("strategy = %v, want %v", strategy, StrategyDOM)
			}
			if len(records) != 1 || records[0].Title != "Row" {
				t.Fatalf("records = %+v, want one scraped row", records)
			}
		})
	}
}

func TestExtractDOMRowHandling(t *testing.T) {
	page := &fakePage{
		html: `<html><body><table>
			<tr><td>Short</td><td>1</td><td>2%</td><td>3</td></tr>
			<tr><td>Product A</td><td>1,234</td><td>1.2%</td><td>10</td><td>8</td><td>-</td><td>-</td></tr>
			<tr><td>Broken</td><td>abc</td><td>1.0%</td><td>1</td><td>1</td><td>-</td><td>-</td></tr>
			<tr><td>Product B</td><td>567</td><td>0.4%</td><td>2</td><td>1</td><td>-</td><td>-</td></tr>
		</table></body></html>`,
	}

	e := New(page, "https://dashboard.example/stream?sessionId=abc", time.Millisecond)
	records, strategy := e.Extract(context.Background())

	if strategy != StrategyDOM {
		t.Fatalf("strategy = %v, want %v", strategy, StrategyDOM)
	}
	if len(records) != 2 {
		t.Fatalf("records = %d, want 2 (short and broken rows skipped)", len(records))
	}
	if records[0].Title != "Product A" || records[0].ProductClicks != 1234 {
		t.Fatalf("first record = %+v, want Product A with clicks 1234", records[0])
	}
	if records[1].Title != "Product B" || records[1].ProductClicks != 567 {
		t.Fatalf("second record = %+v, want Product B with clicks 567", records[1])
	}
	if records[0].CTR != 1.2 || records[1].CTR != 0.4 {
		t.Fatalf("ctr values = %v, %v; want 1.2, 0.4", records[0].CTR, records[1].CTR)
	}
}

func TestExtractTotalFailureYieldsEmpty(t *testing.T) {
	tests := []struct {
		name string
		page *fakePage
	}{
		{
			name: "navigation failure",
			page: &fakePage{navigateErr: errors.New("tab closed")},
		},
		{
			name: "no exchanges and empty dom",
			page: &fakePage{html: "<html><body></body></html>"},
		},
		{
			name: "dom snapshot failure",
			page: &fakePage{htmlErr: errors.New("target crashed")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := New(tt.page, "https://dashboard.example/stream?sessionId=abc", time.Millisecond)
			records, strategy := e.Extract(context.Background())
			if strategy != StrategyNone {
				t.Fatalf("strategy = %v, want %v", strategy, StrategyNone)
			}
			if len(records) != 0 {
				t.Fatalf("records = %+v, want empty", records)
			}
		})
	}
}

func TestExtractHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	page := &fakePage{html: "<html></html>"}
	e := New(page, "https://dashboard.example/stream?sessionId=abc", time.Hour)

	records, strategy := e.Extract(ctx)
	if strategy != StrategyNone || len(records) != 0 {
		t.Fatalf("cancelled extract = (%v, %v), want empty/none", records, strategy)
	}
}
