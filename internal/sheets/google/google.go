package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"reisekosten/internal/core"
	"reisekosten/internal/log"
	ports "reisekosten/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

var _ ports.Mirror = (*Client)(nil)

// header is written to row 1 of an empty sheet.
var header = []interface{}{"ID", "Datum", "Kategorie", "Beschreibung", "Betrag", "Kilometer"}

// Config selects the target sheet and the service account used to reach it.
type Config struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsJSON []byte
}

// valuesAPI is the part of the Sheets values service the mirror needs.
type valuesAPI interface {
	get(ctx context.Context, rng string) ([][]interface{}, error)
	update(ctx context.Context, rng string, row []interface{}) error
	clear(ctx context.Context, rng string) error
}

// Client mirrors expenses into one sheet, one row per expense id in column A.
type Client struct {
	values valuesAPI
	sheet  string
	logger *log.Logger

	// Row lookup and write must not interleave, or two new ids could claim
	// the same row.
	mu sync.Mutex
}

// New connects to the Sheets API with service account credentials.
func New(ctx context.Context, cfg Config, logger *log.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	if len(cfg.CredentialsJSON) == 0 {
		return nil, errors.New("missing service account credentials")
	}
	if cfg.SheetName == "" {
		cfg.SheetName = "Ausgaben"
	}
	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(cfg.CredentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope),
	)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return newClient(&sheetsValues{svc: svc, spreadsheetID: cfg.SpreadsheetID}, cfg.SheetName, logger), nil
}

func newClient(values valuesAPI, sheet string, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.NewForComponent(log.ComponentSheets, "info")
	}
	return &Client{values: values, sheet: sheet, logger: logger.WithComponent(log.ComponentSheets)}
}

// LoadCredentials returns inline JSON when set, otherwise the file contents.
func LoadCredentials(file, inline string) ([]byte, error) {
	if s := strings.TrimSpace(inline); s != "" {
		return []byte(s), nil
	}
	if file == "" {
		return nil, errors.New("no service account credentials configured")
	}
	b, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read service account file: %w", err)
	}
	return b, nil
}

func (c *Client) rng(cells string) string {
	return fmt.Sprintf("'%s'!%s", strings.ReplaceAll(c.sheet, "'", "''"), cells)
}

func (c *Client) rowRange(row int) string {
	return c.rng(fmt.Sprintf("A%d:F%d", row, row))
}

// Upsert overwrites the row holding e.ID or appends a new one.
func (c *Client) Upsert(ctx context.Context, e core.Expense) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids, err := c.values.get(ctx, c.rng("A:A"))
	if err != nil {
		return fmt.Errorf("read id column: %w", err)
	}
	if len(ids) == 0 {
		if err := c.values.update(ctx, c.rowRange(1), header); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
		ids = [][]interface{}{{header[0]}}
	}

	row, found := findRow(ids, e.ID)
	if !found {
		row = len(ids) + 1
	}
	if err := c.values.update(ctx, c.rowRange(row), Row(e)); err != nil {
		return fmt.Errorf("write row %d: %w", row, err)
	}

	c.logger.DebugContext(ctx, "Expense mirrored",
		log.FieldExpenseID, e.ID,
		"row", row,
		"appended", !found)
	return nil
}

// Delete clears the row holding id. The emptied row is left in place so the
// row numbers of other expenses stay stable.
func (c *Client) Delete(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids, err := c.values.get(ctx, c.rng("A:A"))
	if err != nil {
		return fmt.Errorf("read id column: %w", err)
	}
	row, found := findRow(ids, id)
	if !found {
		c.logger.DebugContext(ctx, "Expense not mirrored, nothing to delete", log.FieldExpenseID, id)
		return nil
	}
	if err := c.values.clear(ctx, c.rowRange(row)); err != nil {
		return fmt.Errorf("clear row %d: %w", row, err)
	}
	c.logger.DebugContext(ctx, "Mirrored expense removed", log.FieldExpenseID, id, "row", row)
	return nil
}

// List reads every data row. Rows that do not parse are skipped with a warning.
func (c *Client) List(ctx context.Context) ([]core.Expense, error) {
	rows, err := c.values.get(ctx, c.rng("A2:F"))
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	out := make([]core.Expense, 0, len(rows))
	for i, r := range rows {
		if len(r) == 0 || cellString(r, 0) == "" {
			continue
		}
		e, err := ParseRow(r)
		if err != nil {
			c.logger.WarnContext(ctx, "Skipping unreadable sheet row",
				"row", i+2,
				log.FieldError, err)
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// findRow returns the 1-based sheet row whose first cell equals id.
// Row 1 is the header and never matches.
func findRow(col [][]interface{}, id string) (int, bool) {
	for i := 1; i < len(col); i++ {
		if cellString(col[i], 0) == id {
			return i + 1, true
		}
	}
	return 0, false
}

type sheetsValues struct {
	svc           *gsheet.Service
	spreadsheetID string
}

func (v *sheetsValues) get(ctx context.Context, rng string) ([][]interface{}, error) {
	resp, err := v.svc.Spreadsheets.Values.Get(v.spreadsheetID, rng).
		ValueRenderOption("UNFORMATTED_VALUE").
		Context(ctx).
		Do()
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

func (v *sheetsValues) update(ctx context.Context, rng string, row []interface{}) error {
	vr := &gsheet.ValueRange{Values: [][]interface{}{row}}
	_, err := v.svc.Spreadsheets.Values.Update(v.spreadsheetID, rng, vr).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	return err
}

func (v *sheetsValues) clear(ctx context.Context, rng string) error {
	_, err := v.svc.Spreadsheets.Values.Clear(v.spreadsheetID, rng, &gsheet.ClearValuesRequest{}).
		Context(ctx).
		Do()
	return err
}
