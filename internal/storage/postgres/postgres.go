// Package postgres stores expenses in the hosted Postgres database.
//
// The expenses table is owned by the hosting provider: amount is a numeric
// euro value, date a date, and id defaults to gen_random_uuid().
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"reisekosten/internal/core"
	"reisekosten/internal/repository"
	"reisekosten/internal/storage"
)

const table = "expenses"

var selectColumns = []string{
	"id::text",
	"(round(amount * 100))::bigint",
	"category",
	"coalesce(description, '')",
	"date::text",
	"coalesce(image, '')",
	"kilometers::text",
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type Repository struct {
	pool *pgxpool.Pool
}

// Connect opens a pool against dsn and verifies connectivity.
func Connect(ctx context.Context, dsn string) (*Repository, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	poolConfig.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Repository{pool: pool}, nil
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Close() error {
	r.pool.Close()
	return nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *Repository) List(ctx context.Context) ([]core.Expense, error) {
	query, args, err := ListQuery()
	if err != nil {
		return nil, fmt.Errorf("build list query: %w", err)
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	var out []core.Expense
	for rows.Next() {
		var row storage.Row
		if err := rows.Scan(row.Dest()...); err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		e, err := row.Expense()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *Repository) Create(ctx context.Context, e core.NewExpense) (core.Expense, error) {
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	query, args, err := InsertQuery(e.Normalize())
	if err != nil {
		return core.Expense{}, fmt.Errorf("build insert: %w", err)
	}
	created, err := r.scanOne(ctx, query, args...)
	if err != nil {
		return core.Expense{}, fmt.Errorf("create expense: %w", err)
	}
	slog.InfoContext(ctx, "Expense saved to Postgres", "id", created.ID, "amount_cents", created.Amount.Cents)
	return created, nil
}

func (r *Repository) Update(ctx context.Context, id string, patch core.ExpensePatch) (core.Expense, error) {
	query, args, err := UpdateQuery(id, patch)
	if err != nil {
		return core.Expense{}, fmt.Errorf("build update: %w", err)
	}
	updated, err := r.scanOne(ctx, query, args...)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Expense{}, repository.ErrNotFound
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("update expense %s: %w", id, err)
	}
	return updated, nil
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	query, args, err := psql.Delete(table).Where(sq.Eq{"id::text": id}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("delete expense %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *Repository) scanOne(ctx context.Context, query string, args ...any) (core.Expense, error) {
	var row storage.Row
	if err := r.pool.QueryRow(ctx, query, args...).Scan(row.Dest()...); err != nil {
		return core.Expense{}, err
	}
	return row.Expense()
}

// ListQuery selects all expenses, newest date first.
func ListQuery() (string, []any, error) {
	return psql.Select(selectColumns...).
		From(table).
		OrderBy("date DESC", "created_at DESC").
		ToSql()
}

// InsertQuery inserts e and returns the stored row.
func InsertQuery(e core.NewExpense) (string, []any, error) {
	return psql.Insert(table).
		Columns("amount", "category", "description", "date", "image", "kilometers").
		Values(
			sq.Expr("?::text::numeric", e.Amount.Plain()),
			string(e.Category),
			e.Description,
			sq.Expr("?::text::date", e.Date.String()),
			e.Image,
			sq.Expr("?::text::numeric", storage.KilometersValue(e.Kilometers)),
		).
		Suffix("RETURNING " + strings.Join(selectColumns, ", ")).
		ToSql()
}

// UpdateQuery sets only the patched columns. The database merges and
// returns the full row.
func UpdateQuery(id string, p core.ExpensePatch) (string, []any, error) {
	b := psql.Update(table)
	if p.Amount != nil {
		b = b.Set("amount", sq.Expr("?::text::numeric", p.Amount.Plain()))
	}
	if p.Category != nil {
		b = b.Set("category", string(*p.Category))
		if *p.Category != core.CategoryTravel {
			b = b.Set("kilometers", nil)
		}
	}
	if p.Description != nil {
		b = b.Set("description", *p.Description)
	}
	if p.Date != nil {
		b = b.Set("date", sq.Expr("?::text::date", p.Date.String()))
	}
	if p.Image != nil {
		b = b.Set("image", *p.Image)
	}
	switch {
	case p.ClearKilometers:
		b = b.Set("kilometers", nil)
	case p.Kilometers == nil:
	case p.Category == nil:
		// Kilometers only stick to rows that already are travel.
		b = b.Set("kilometers", sq.Expr("CASE WHEN category = 'travel' THEN ?::text::numeric END", p.Kilometers.String()))
	case *p.Category == core.CategoryTravel:
		b = b.Set("kilometers", sq.Expr("?::text::numeric", p.Kilometers.String()))
	}
	return b.Where(sq.Eq{"id::text": id}).
		Suffix("RETURNING " + strings.Join(selectColumns, ", ")).
		ToSql()
}

var _ repository.Repository = (*Repository)(nil)
