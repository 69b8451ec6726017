package google

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"testing"

	"reisekosten/internal/core"
)

// fakeValues is an in-memory sheet addressed with the ranges the client uses.
type fakeValues struct {
	rows    [][]interface{}
	updates int
	getErr  error
}

var (
	rowRangeRe = regexp.MustCompile(`!A(\d+):F(\d+)$`)
	idColRe    = regexp.MustCompile(`!A:A$`)
	dataRe     = regexp.MustCompile(`!A2:F$`)
)

func (f *fakeValues) get(_ context.Context, rng string) ([][]interface{}, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	var out [][]interface{}
	switch {
	case idColRe.MatchString(rng):
		for _, r := range f.rows {
			if len(r) == 0 {
				out = append(out, []interface{}{})
				continue
			}
			out = append(out, r[:1])
		}
	case dataRe.MatchString(rng):
		if len(f.rows) > 1 {
			out = f.rows[1:]
		}
	default:
		return nil, fmt.Errorf("unexpected range %s", rng)
	}
	// The API trims trailing empty rows.
	for len(out) > 0 && len(out[len(out)-1]) == 0 {
		out = out[:len(out)-1]
	}
	return out, nil
}

func (f *fakeValues) row(rng string) (int, error) {
	m := rowRangeRe.FindStringSubmatch(rng)
	if m == nil || m[1] != m[2] {
		return 0, fmt.Errorf("unexpected range %s", rng)
	}
	return strconv.Atoi(m[1])
}

func (f *fakeValues) update(_ context.Context, rng string, row []interface{}) error {
	n, err := f.row(rng)
	if err != nil {
		return err
	}
	for len(f.rows) < n {
		f.rows = append(f.rows, nil)
	}
	f.rows[n-1] = row
	f.updates++
	return nil
}

func (f *fakeValues) clear(_ context.Context, rng string) error {
	n, err := f.row(rng)
	if err != nil {
		return err
	}
	if n <= len(f.rows) {
		f.rows[n-1] = nil
	}
	return nil
}

func km(s string) *core.Distance {
	d, _ := core.ParseDistance(s)
	return &d
}

func expense(id string, cents int64) core.Expense {
	return core.Expense{
		ID:          id,
		Amount:      core.Cents(cents),
		Category:    core.CategoryTravel,
		Description: "Zug " + id,
		Date:        core.NewDate(2025, 6, 3),
		Image:       "data:image/png;base64,AAAA",
		Kilometers:  km("42.5"),
	}
}

func TestClient_UpsertAppendsWithHeader(t *testing.T) {
	fv := &fakeValues{}
	c := newClient(fv, "Ausgaben", nil)
	ctx := context.Background()

	if err := c.Upsert(ctx, expense("a", 1250)); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := c.Upsert(ctx, expense("b", 300)); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	if len(fv.rows) != 3 {
		t.Fatalf("rows = %d, want header plus 2", len(fv.rows))
	}
	if fv.rows[0][0] != "ID" {
		t.Errorf("header = %v", fv.rows[0])
	}
	if fv.rows[1][0] != "a" || fv.rows[2][0] != "b" {
		t.Errorf("ids = %v, %v", fv.rows[1][0], fv.rows[2][0])
	}
	for _, cell := range fv.rows[1] {
		if s, ok := cell.(string); ok && len(s) > 5 && s[:5] == "data:" {
			t.Error("receipt image must not be mirrored")
		}
	}
}

func TestClient_UpsertOverwritesExistingRow(t *testing.T) {
	fv := &fakeValues{}
	c := newClient(fv, "Ausgaben", nil)
	ctx := context.Background()

	_ = c.Upsert(ctx, expense("a", 1250))
	_ = c.Upsert(ctx, expense("b", 300))

	changed := expense("a", 999)
	changed.Description = "geändert"
	if err := c.Upsert(ctx, changed); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if len(fv.rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(fv.rows))
	}
	if fv.rows[1][3] != "geändert" || fv.rows[1][4] != 9.99 {
		t.Errorf("row a = %v", fv.rows[1])
	}
}

func TestClient_DeleteClearsRow(t *testing.T) {
	fv := &fakeValues{}
	c := newClient(fv, "Ausgaben", nil)
	ctx := context.Background()

	_ = c.Upsert(ctx, expense("a", 100))
	_ = c.Upsert(ctx, expense("b", 200))

	if err := c.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(fv.rows[1]) != 0 {
		t.Errorf("row a not cleared: %v", fv.rows[1])
	}
	if err := c.Delete(ctx, "missing"); err != nil {
		t.Errorf("Delete of unknown id: %v", err)
	}

	// A new id takes a fresh row below the cleared one.
	_ = c.Upsert(ctx, expense("c", 300))
	if len(fv.rows) != 4 || fv.rows[3][0] != "c" {
		t.Errorf("rows = %v", fv.rows)
	}

	list, err := c.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 || list[0].ID != "b" || list[1].ID != "c" {
		t.Errorf("List = %+v", list)
	}
}

func TestClient_ReadError(t *testing.T) {
	boom := errors.New("quota exceeded")
	c := newClient(&fakeValues{getErr: boom}, "Ausgaben", nil)
	if err := c.Upsert(context.Background(), expense("a", 1)); !errors.Is(err, boom) {
		t.Errorf("Upsert err = %v", err)
	}
	if err := c.Delete(context.Background(), "a"); !errors.Is(err, boom) {
		t.Errorf("Delete err = %v", err)
	}
}

func TestClient_ListSkipsBadRows(t *testing.T) {
	fv := &fakeValues{rows: [][]interface{}{
		header,
		{"a", "2025-06-01", "Reise", "Zug", 12.5, 42.0},
		{"b", "gestern", "Reise", "Zug", 1.0, ""},
		{"c", "2025-06-02", "Verpflegung", "Mittag", "€ 8,90", ""},
	}}
	c := newClient(fv, "Ausgaben", nil)

	list, err := c.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("List = %+v, want 2 rows", list)
	}
	if list[1].Amount.Cents != 890 || list[1].Category != core.CategoryFood {
		t.Errorf("row c = %+v", list[1])
	}
}

func TestRange_QuotesSheetName(t *testing.T) {
	c := newClient(&fakeValues{}, "Reise's", nil)
	if got := c.rowRange(4); got != "'Reise''s'!A4:F4" {
		t.Errorf("rowRange = %q", got)
	}
}

func TestLoadCredentials(t *testing.T) {
	b, err := LoadCredentials("/does/not/matter", ` {"type":"service_account"} `)
	if err != nil || string(b) != `{"type":"service_account"}` {
		t.Errorf("inline = %q, %v", b, err)
	}
	if _, err := LoadCredentials("", ""); err == nil {
		t.Error("expected error without credentials")
	}
	if _, err := LoadCredentials(t.TempDir()+"/missing.json", ""); err == nil {
		t.Error("expected error for missing file")
	}
}
