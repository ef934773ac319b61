package sheets

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"

	"github.com/letulabs/livetracker/models"
)

func TestExtractSpreadsheetID(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		expected string
		wantErr  bool
	}{
		{
			name:     "full edit url",
			url:      "https://docs.google.com/spreadsheets/d/1AbC-dEf_123/edit#gid=0",
			expected: "1AbC-dEf_123",
		},
		{
			name:     "bare url",
			url:      "https://docs.google.com/spreadsheets/d/xyz",
			expected: "xyz",
		},
		{
			name:    "not a sheets url",
			url:     "https://docs.google.com/document/d/abc/edit",
			wantErr: true,
		},
		{
			name:    "empty",
			url:     "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractSpreadsheetID(tt.url)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ExtractSpreadsheetID(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
			if err == nil && got != tt.expected {
				t.Fatalf("ExtractSpreadsheetID(%q) = %q, want %q", tt.url, got, tt.expected)
			}
		})
	}
}

// sheetFixture emulates the remote spreadsheet's observable state
// behind an httpmock transport.
type sheetFixture struct {
	headerPresent bool

	headerWrites int
	formatCalls  int
	clearCalls   int
	dataWrites   int
	lastRows     [][]interface{}

	clearStatus int
	getStatus   int
}

func newSyncerFixture(t *testing.T) (*Syncer, *sheetFixture) {
	t.Helper()

	fx := &sheetFixture{clearStatus: http.StatusOK, getStatus: http.StatusOK}
	transport := httpmock.NewMockTransport()

	transport.RegisterResponder("GET", `=~/values/A1(%3A|:)K1`,
		func(req *http.Request) (*http.Response, error) {
			if fx.getStatus != http.StatusOK {
				return httpmock.NewStringResponse(fx.getStatus, `{"error": {"code": 500}}`), nil
			}
			if !fx.headerPresent {
				return httpmock.NewStringResponse(http.StatusOK, `{"range": "Sheet1!A1:K1"}`), nil
			}
			return httpmock.NewStringResponse(http.StatusOK,
				`{"range": "Sheet1!A1:K1", "values": [["Item ID"]]}`), nil
		})

	transport.RegisterResponder("PUT", `=~/values/A1(\?|$)`,
		func(req *http.Request) (*http.Response, error) {
			fx.headerWrites++
			fx.headerPresent = true
			return httpmock.NewStringResponse(http.StatusOK, `{}`), nil
		})

	transport.RegisterResponder("POST", `=~:batchUpdate`,
		func(req *http.Request) (*http.Response, error) {
			fx.formatCalls++
			return httpmock.NewStringResponse(http.StatusOK, `{}`), nil
		})

	transport.RegisterResponder("POST", `=~/values/A2.*clear`,
		func(req *http.Request) (*http.Response, error) {
			if fx.clearStatus != http.StatusOK {
				return httpmock.NewStringResponse(fx.clearStatus, `{"error": {"code": 500}}`), nil
			}
			fx.clearCalls++
			return httpmock.NewStringResponse(http.StatusOK, `{}`), nil
		})

	transport.RegisterResponder("PUT", `=~/values/A2(\?|$)`,
		func(req *http.Request) (*http.Response, error) {
			var body struct {
				Values [][]interface{} `json:"values"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				t.Fatalf("decode update body: %v", err)
			}
			fx.dataWrites++
			fx.lastRows = body.Values
			return httpmock.NewStringResponse(http.StatusOK, `{}`), nil
		})

	svc, err := gsheets.NewService(context.Background(),
		option.WithHTTPClient(&http.Client{Transport: transport}))
	if err != nil {
		t.Fatalf("new sheets service: %v", err)
	}

	s, err := NewSyncer(svc, "https://docs.google.com/spreadsheets/d/sheet-1/edit")
	if err != nil {
		t.Fatalf("new syncer: %v", err)
	}
	s.now = func() time.Time {
		return time.Date(2025, 6, 1, 12, 30, 45, 0, time.UTC)
	}
	return s, fx
}

func sampleRecords() []models.ProductRecord {
	return []models.ProductRecord{
		{
			ItemID:        "1",
			Title:         "A",
			CoverImage:    "https://cdn.example/a.jpg",
			MinPrice:      10,
			MaxPrice:      20,
			ProductClicks: 5,
			CTR:           1.2,
			OrdersCreated: 1,
			ItemsSold:     1,
			Revenue:       100,
		},
		{
			Title:         "partial row",
			ProductClicks: 7,
			CTR:           0.5,
			OrdersCreated: 2,
			ItemsSold:     2,
		},
	}
}

func TestSyncWritesHeaderAndRows(t *testing.T) {
	s, fx := newSyncerFixture(t)

	if ok := s.Sync(context.Background(), sampleRecords()); !ok {
		t.Fatalf("sync failed")
	}

	if fx.headerWrites != 1 {
		t.Errorf("header writes = %d, want 1", fx.headerWrites)
	}
	if fx.formatCalls != 1 {
		t.Errorf("format calls = %d, want 1", fx.formatCalls)
	}
	if fx.clearCalls != 1 {
		t.Errorf("clear calls = %d, want 1", fx.clearCalls)
	}
	if fx.dataWrites != 1 {
		t.Errorf("data writes = %d, want 1", fx.dataWrites)
	}
	if len(fx.lastRows) != 2 {
		t.Fatalf("rows written = %d, want 2", len(fx.lastRows))
	}

	first := fx.lastRows[0]
	if len(first) != len(Header) {
		t.Fatalf("columns = %d, want %d", len(first), len(Header))
	}
	if first[0] != "1" || first[1] != "A" || first[2] != "https://cdn.example/a.jpg" {
		t.Errorf("identity columns = %v", first[:3])
	}
	if first[len(first)-1] != "2025-06-01 12:30:45" {
		t.Errorf("timestamp = %v, want 2025-06-01 12:30:45", first[len(first)-1])
	}

	second := fx.lastRows[1]
	if second[0] != "" || second[2] != "" {
		t.Errorf("partial record should serialize absent strings empty, got %v", second)
	}
	if second[len(second)-1] != first[len(first)-1] {
		t.Errorf("all rows in one cycle must share a timestamp")
	}
}

func TestSyncIsIdempotent(t *testing.T) {
	s, fx := newSyncerFixture(t)

	records := sampleRecords()
	for i := 0; i < 2; i++ {
		if ok := s.Sync(context.Background(), records); !ok {
			t.Fatalf("sync %d failed", i+1)
		}
	}

	if fx.headerWrites != 1 {
		t.Errorf("header writes = %d, want 1 (header written at most once)", fx.headerWrites)
	}
	if fx.formatCalls != 1 {
		t.Errorf("format calls = %d, want 1", fx.formatCalls)
	}
	if fx.clearCalls != 2 {
		t.Errorf("clear calls = %d, want 2 (clear runs every cycle)", fx.clearCalls)
	}
	if len(fx.lastRows) != len(records) {
		t.Errorf("final rows = %d, want %d", len(fx.lastRows), len(records))
	}
}

func TestSyncSkipsHeaderWhenPresent(t *testing.T) {
	s, fx := newSyncerFixture(t)
	fx.headerPresent = true

	if ok := s.Sync(context.Background(), sampleRecords()); !ok {
		t.Fatalf("sync failed")
	}
	if fx.headerWrites != 0 {
		t.Errorf("header writes = %d, want 0", fx.headerWrites)
	}
	if fx.formatCalls != 0 {
		t.Errorf("format calls = %d, want 0", fx.formatCalls)
	}
}

func TestSyncEmptySnapshotStillClears(t *testing.T) {
	s, fx := newSyncerFixture(t)

	if ok := s.Sync(context.Background(), nil); !ok {
		t.Fatalf("sync failed")
	}
	if fx.clearCalls != 1 {
		t.Errorf("clear calls = %d, want 1", fx.clearCalls)
	}
	if fx.dataWrites != 0 {
		t.Errorf("data writes = %d, want 0 for an empty snapshot", fx.dataWrites)
	}
}

func TestSyncReportsFailures(t *testing.T) {
	t.Run("header read failure", func(t *testing.T) {
		s, fx := newSyncerFixture(t)
		fx.getStatus = http.StatusInternalServerError
		if ok := s.Sync(context.Background(), sampleRecords()); ok {
			t.Fatalf("sync should fail when the header probe fails")
		}
	})

	t.Run("clear failure", func(t *testing.T) {
		s, fx := newSyncerFixture(t)
		fx.clearStatus = http.StatusInternalServerError
		if ok := s.Sync(context.Background(), sampleRecords()); ok {
			t.Fatalf("sync should fail when clearing the data region fails")
		}
		if fx.dataWrites != 0 {
			t.Errorf("data writes = %d, want 0 after failed clear", fx.dataWrites)
		}
	})
}
