package google

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"reisekosten/internal/core"

	"github.com/shopspring/decimal"
)

// Row renders an expense as sheet cells: id, date, category label,
// description, amount in euros and kilometers (empty when absent).
func Row(e core.Expense) []interface{} {
	km := interface{}("")
	if d := e.EffectiveKilometers(); d != nil {
		km = d.InexactFloat64()
	}
	return []interface{}{
		e.ID,
		e.Date.String(),
		e.Category.Label(),
		e.Description,
		e.Amount.Euros(),
		km,
	}
}

// ParseRow is the inverse of Row. Cells may come back as numbers or as
// formatted text depending on how the sheet was edited.
func ParseRow(r []interface{}) (core.Expense, error) {
	var e core.Expense
	e.ID = cellString(r, 0)
	if e.ID == "" {
		return e, fmt.Errorf("missing id")
	}

	date, err := cellDate(r, 1)
	if err != nil {
		return e, fmt.Errorf("date: %w", err)
	}
	e.Date = date

	cat, err := core.ParseCategory(cellString(r, 2))
	if err != nil {
		return e, fmt.Errorf("category: %w", err)
	}
	e.Category = cat
	e.Description = cellString(r, 3)

	amount, err := cellDecimal(r, 4)
	if err != nil {
		return e, fmt.Errorf("amount: %w", err)
	}
	if e.Amount, err = core.MoneyFromDecimal(amount); err != nil {
		return e, fmt.Errorf("amount: %w", err)
	}

	if cellString(r, 5) != "" {
		km, err := cellDecimal(r, 5)
		if err != nil {
			return e, fmt.Errorf("kilometers: %w", err)
		}
		e.Kilometers = &core.Distance{Decimal: km}
	}
	return e, nil
}

func cellString(r []interface{}, i int) string {
	if i >= len(r) || r[i] == nil {
		return ""
	}
	switch v := r[i].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// sheetEpoch is day zero of spreadsheet date serials.
var sheetEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

// cellDate accepts ISO text or a date serial, which is what an edited date
// cell renders as when read unformatted.
func cellDate(r []interface{}, i int) (core.Date, error) {
	if i < len(r) {
		if f, ok := r[i].(float64); ok {
			return core.DateOf(sheetEpoch.AddDate(0, 0, int(f))), nil
		}
	}
	return core.ParseDate(cellString(r, i))
}

// cellDecimal accepts a number or text such as "€ 1.234,56" or "12.50".
func cellDecimal(r []interface{}, i int) (decimal.Decimal, error) {
	if i < len(r) {
		if f, ok := r[i].(float64); ok {
			return decimal.NewFromFloat(f), nil
		}
	}
	s := cellString(r, i)
	s = strings.NewReplacer("€", "", " ", "", "\u00a0", "").Replace(s)
	if strings.Contains(s, ",") {
		// German formatting: dots group thousands, the comma is the separator.
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	}
	if s == "" {
		return decimal.Zero, fmt.Errorf("empty cell")
	}
	return decimal.NewFromString(s)
}
