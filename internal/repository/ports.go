// Package repository defines the persistence port for expenses.
package repository

import (
	"context"
	"errors"

	"reisekosten/internal/core"
)

var ErrNotFound = errors.New("expense not found")

// Repository persists expenses keyed by an opaque id.
//
// List returns the whole collection ordered by date descending. Update
// returns the merged record as stored. No operation is retried.
type Repository interface {
	List(ctx context.Context) ([]core.Expense, error)
	Create(ctx context.Context, e core.NewExpense) (core.Expense, error)
	Update(ctx context.Context, id string, patch core.ExpensePatch) (core.Expense, error)
	Delete(ctx context.Context, id string) error
}

// Pinger is implemented by repositories that can report readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}
