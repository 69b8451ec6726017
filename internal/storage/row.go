package storage

import (
	"fmt"

	"reisekosten/internal/core"
)

// Row is the column layout shared by the SQL repositories.
type Row struct {
	ID          string
	AmountCents int64
	Category    string
	Description string
	Date        string
	Image       string
	Kilometers  *string
}

// Columns lists the select expressions for a Row, in Scan order.
var Columns = []string{"id", "amount_cents", "category", "description", "date", "image", "kilometers"}

// Dest returns scan destinations in Columns order.
func (r *Row) Dest() []any {
	return []any{&r.ID, &r.AmountCents, &r.Category, &r.Description, &r.Date, &r.Image, &r.Kilometers}
}

// Expense converts a row into the domain type.
func (r Row) Expense() (core.Expense, error) {
	date, err := core.ParseDate(r.Date)
	if err != nil {
		return core.Expense{}, fmt.Errorf("expense %s: %w", r.ID, err)
	}
	e := core.Expense{
		ID:          r.ID,
		Amount:      core.Money{Cents: r.AmountCents},
		Category:    core.Category(r.Category),
		Description: r.Description,
		Date:        date,
		Image:       r.Image,
	}
	if r.Kilometers != nil && *r.Kilometers != "" && e.Category == core.CategoryTravel {
		km, err := core.ParseDistance(*r.Kilometers)
		if err != nil {
			return core.Expense{}, fmt.Errorf("expense %s: %w", r.ID, err)
		}
		e.Kilometers = &km
	}
	return e, nil
}

// KilometersValue is the nullable column value for a distance.
func KilometersValue(d *core.Distance) any {
	if d == nil {
		return nil
	}
	return d.String()
}
