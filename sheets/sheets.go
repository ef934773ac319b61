// Package sheets synchronizes product snapshots into a Google Sheets
// spreadsheet and manages the OAuth token lifecycle for the API.
package sheets

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	gsheets "google.golang.org/api/sheets/v4"

	"github.com/letulabs/livetracker/models"
)

// Header is the fixed first row. The data region below it spans the
// same 11 columns (A through K).
var Header = []string{
	"Item ID",
	"Title",
	"Cover Image",
	"Min Price",
	"Max Price",
	"Product Clicks",
	"CTR (%)",
	"Orders Created",
	"Items Sold",
	"Revenue",
	"Last Updated",
}

const (
	headerRange = "A1:K1"
	dataRange   = "A2:K"
	dataOrigin  = "A2"

	timestampLayout = "2006-01-02 15:04:05"
)

var spreadsheetIDPattern = regexp.MustCompile(`/spreadsheets/d/([a-zA-Z0-9-_]+)`)

// ExtractSpreadsheetID pulls the spreadsheet identifier out of a full
// sheet URL. A URL without the /spreadsheets/d/{id} segment is a
// configuration error.
func ExtractSpreadsheetID(sheetURL string) (string, error) {
	match := spreadsheetIDPattern.FindStringSubmatch(sheetURL)
	if match == nil {
		return "", fmt.Errorf("invalid Google Sheets URL: %q", sheetURL)
	}
	return match[1], nil
}

// Syncer replaces a spreadsheet's data region with the latest snapshot.
// One Syncer is bound to one spreadsheet for its lifetime.
type Syncer struct {
	svc           *gsheets.Service
	spreadsheetID string
	now           func() time.Time
}

// NewSyncer binds a syncer to the spreadsheet identified by sheetURL.
func NewSyncer(svc *gsheets.Service, sheetURL string) (*Syncer, error) {
	id, err := ExtractSpreadsheetID(sheetURL)
	if err != nil {
		return nil, err
	}
	return &Syncer{
		svc:           svc,
		spreadsheetID: id,
		now:           time.Now,
	}, nil
}

// SpreadsheetID returns the bound spreadsheet identifier.
func (s *Syncer) SpreadsheetID() string {
	return s.spreadsheetID
}

// Sync idempotently replaces the data region with records. The header
// row is written and formatted at most once per spreadsheet; the data
// region is cleared unconditionally, then rewritten in one bulk write
// when records is non-empty. API failures are reported as a false
// return; retry cadence belongs to the caller.
func (s *Syncer) Sync(ctx context.Context, records []models.ProductRecord) bool {
	if err := s.ensureHeader(ctx); err != nil {
		slog.Error("sheet header check failed",
			slog.String("spreadsheet_id", s.spreadsheetID),
			slog.Any("error", err),
		)
		return false
	}

	timestamp := s.now().Format(timestampLayout)
	rows := make([][]interface{}, 0, len(records))
	for _, rec := range records {
		rows = append(rows, []interface{}{
			rec.ItemID,
			rec.Title,
			rec.CoverImage,
			rec.MinPrice,
			rec.MaxPrice,
			rec.ProductClicks,
			rec.CTR,
			rec.OrdersCreated,
			rec.ItemsSold,
			rec.Revenue,
			timestamp,
		})
	}

	// Clear even when the new snapshot is empty so no stale rows from
	// a prior cycle survive.
	_, err := s.svc.Spreadsheets.Values.
		Clear(s.spreadsheetID, dataRange, &gsheets.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		slog.Error("sheet clear failed",
			slog.String("spreadsheet_id", s.spreadsheetID),
			slog.Any("error", err),
		)
		return false
	}

	if len(rows) > 0 {
		_, err = s.svc.Spreadsheets.Values.
			Update(s.spreadsheetID, dataOrigin, &gsheets.ValueRange{Values: rows}).
			ValueInputOption("RAW").
			Context(ctx).Do()
		if err != nil {
			slog.Error("sheet write failed",
				slog.String("spreadsheet_id", s.spreadsheetID),
				slog.Int("rows", len(rows)),
				slog.Any("error", err),
			)
			return false
		}
	}

	slog.Info("sheet updated",
		slog.String("spreadsheet_id", s.spreadsheetID),
		slog.Int("rows", len(rows)),
	)
	return true
}

// ensureHeader writes the header row and its one-time formatting if the
// first row is still empty.
func (s *Syncer) ensureHeader(ctx context.Context) error {
	resp, err := s.svc.Spreadsheets.Values.
		Get(s.spreadsheetID, headerRange).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read header row: %w", err)
	}
	if len(resp.Values) > 0 {
		return nil
	}

	headerRow := make([]interface{}, len(Header))
	for i, h := range Header {
		headerRow[i] = h
	}
	_, err = s.svc.Spreadsheets.Values.
		Update(s.spreadsheetID, "A1", &gsheets.ValueRange{Values: [][]interface{}{headerRow}}).
		ValueInputOption("RAW").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("write header row: %w", err)
	}

	format := &gsheets.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheets.Request{
			{
				RepeatCell: &gsheets.RepeatCellRequest{
					Range: &gsheets.GridRange{
						SheetId:       0,
						StartRowIndex: 0,
						EndRowIndex:   1,
					},
					Cell: &gsheets.CellData{
						UserEnteredFormat: &gsheets.CellFormat{
							BackgroundColor: &gsheets.Color{Red: 0.2, Green: 0.6, Blue: 0.9},
							TextFormat: &gsheets.TextFormat{
								Bold:            true,
								ForegroundColor: &gsheets.Color{Red: 1.0, Green: 1.0, Blue: 1.0},
							},
						},
					},
					Fields: "userEnteredFormat(backgroundColor,textFormat)",
				},
			},
		},
	}
	_, err = s.svc.Spreadsheets.
		BatchUpdate(s.spreadsheetID, format).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("format header row: %w", err)
	}
	return nil
}
