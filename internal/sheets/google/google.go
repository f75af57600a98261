package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	ports "financeflow/internal/sheets"
)

const dateLayout = "2006-01-02"

// Header is written by operators as the first row of the entries sheet.
var Header = []any{"Entry ID", "Owner ID", "Date", "Title", "Category", "Amount", "Status"}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
}

var _ ports.EntryMirror = (*Client)(nil)

// New creates a Sheets client for spreadsheetID using Service Account
// credentials from GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE or
// GOOGLE_APPLICATION_CREDENTIALS.
func New(ctx context.Context, spreadsheetID, sheetName string) (*Client, error) {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	sheetName = strings.TrimSpace(sheetName)
	if sheetName == "" {
		sheetName = "Entries"
	}

	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return &Client{svc: svc, spreadsheetID: spreadsheetID, sheetName: sheetName}, nil
}

func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	switch {
	case serviceAccountJSON != "":
		slog.InfoContext(ctx, "Using inline JSON credentials")
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		slog.InfoContext(ctx, "Reading credentials from file", "path", serviceAccountFile)
		var err error
		credentialsJSON, err = os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// AppendEntry adds r after the last non-empty row.
func (c *Client) AppendEntry(ctx context.Context, r ports.Row) (string, error) {
	rng := fmt.Sprintf("%s!A:G", c.sheetName)
	vr := &gsheet.ValueRange{Values: [][]any{rowValues(r)}}

	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append to sheet %s: %w", c.sheetName, err)
	}
	if resp.Updates != nil {
		return resp.Updates.UpdatedRange, nil
	}
	return rng, nil
}

func (c *Client) UpdateEntry(ctx context.Context, r ports.Row) error {
	rowNum, err := c.findRow(ctx, r.EntryID)
	if err != nil {
		return err
	}
	if rowNum == 0 {
		_, err := c.AppendEntry(ctx, r)
		return err
	}

	rng := fmt.Sprintf("%s!A%d:G%d", c.sheetName, rowNum, rowNum)
	vr := &gsheet.ValueRange{Values: [][]any{rowValues(r)}}
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("update %s: %w", rng, err)
	}
	return nil
}

// RemoveEntry clears the row holding entryID. Rows are never deleted.
func (c *Client) RemoveEntry(ctx context.Context, entryID int64) error {
	rowNum, err := c.findRow(ctx, entryID)
	if err != nil {
		return err
	}
	if rowNum == 0 {
		slog.WarnContext(ctx, "Entry not present in sheet, nothing to remove", "entry_id", entryID)
		return nil
	}

	rng := fmt.Sprintf("%s!A%d:G%d", c.sheetName, rowNum, rowNum)
	_, err = c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, rng, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("clear %s: %w", rng, err)
	}
	return nil
}

func (c *Client) findRow(ctx context.Context, entryID int64) (int, error) {
	rng := fmt.Sprintf("%s!A:A", c.sheetName)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", rng, err)
	}
	return findEntryRow(resp.Values, entryID), nil
}

func rowValues(r ports.Row) []any {
	return []any{
		r.EntryID,
		r.OwnerID,
		r.Date.Format(dateLayout),
		r.Title,
		r.Category,
		r.Amount.StringFixed(2),
		string(r.Status),
	}
}

// findEntryRow returns the 1-based sheet row whose first column equals
// entryID, or 0 when absent.
func findEntryRow(values [][]any, entryID int64) int {
	want := strconv.FormatInt(entryID, 10)
	for i, row := range values {
		if len(row) == 0 {
			continue
		}
		cell := strings.TrimSpace(fmt.Sprint(row[0]))
		if cell == want {
			return i + 1
		}
		// USER_ENTERED may hand numbers back as "12.0" or "1,200".
		if d, err := decimal.NewFromString(strings.ReplaceAll(cell, ",", "")); err == nil && d.IsInteger() && d.IntPart() == entryID {
			return i + 1
		}
	}
	return 0
}
