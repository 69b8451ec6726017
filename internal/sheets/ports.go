package sheets

import (
	"context"

	"reisekosten/internal/core"
)

// Mirror is a spreadsheet copy of the expense collection keyed by expense id.
// Receipt images are never mirrored.
type Mirror interface {
	// Upsert writes the expense into its row, appending a row for new ids.
	Upsert(ctx context.Context, e core.Expense) error
	// Delete removes the row for id. Unknown ids are not an error.
	Delete(ctx context.Context, id string) error
	// List returns the mirrored expenses in sheet order.
	List(ctx context.Context) ([]core.Expense, error)
}
