package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"reisekosten/internal/core"
	"reisekosten/internal/repository"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) List(ctx context.Context) ([]core.Expense, error) {
	query, args, err := sq.Select(Columns...).
		From("expenses").
		OrderBy("date DESC", "created_at DESC", "rowid DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	var out []core.Expense
	for rows.Next() {
		var row Row
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

func (r *SQLiteRepository) Create(ctx context.Context, e core.NewExpense) (core.Expense, error) {
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	e = e.Normalize()
	id := uuid.NewString()

	query, args, err := sq.Insert("expenses").
		Columns(Columns...).
		Values(id, e.Amount.Cents, string(e.Category), e.Description, e.Date.String(), e.Image, KilometersValue(e.Kilometers)).
		ToSql()
	if err != nil {
		return core.Expense{}, fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return core.Expense{}, fmt.Errorf("create expense: %w", err)
	}

	slog.InfoContext(ctx, "Expense saved to SQLite",
		"id", id,
		"amount_cents", e.Amount.Cents,
		"category", e.Category,
		"date", e.Date.String())

	return r.get(ctx, r.db, id)
}

// Update merges the patch inside a transaction and returns the stored record.
func (r *SQLiteRepository) Update(ctx context.Context, id string, patch core.ExpensePatch) (core.Expense, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Expense{}, fmt.Errorf("begin update: %w", err)
	}
	defer tx.Rollback()

	current, err := r.get(ctx, tx, id)
	if err != nil {
		return core.Expense{}, err
	}
	merged := current.Apply(patch)

	query, args, err := sq.Update("expenses").
		SetMap(map[string]any{
			"amount_cents": merged.Amount.Cents,
			"category":     string(merged.Category),
			"description":  merged.Description,
			"date":         merged.Date.String(),
			"image":        merged.Image,
			"kilometers":   KilometersValue(merged.Kilometers),
			"updated_at":   sq.Expr("strftime('%Y-%m-%dT%H:%M:%fZ', 'now')"),
		}).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return core.Expense{}, fmt.Errorf("build update: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return core.Expense{}, fmt.Errorf("update expense %s: %w", id, err)
	}

	stored, err := r.get(ctx, tx, id)
	if err != nil {
		return core.Expense{}, err
	}
	if err := tx.Commit(); err != nil {
		return core.Expense{}, fmt.Errorf("commit update: %w", err)
	}
	return stored, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	query, args, err := sq.Delete("expenses").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("delete expense %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *SQLiteRepository) get(ctx context.Context, q queryRower, id string) (core.Expense, error) {
	query, args, err := sq.Select(Columns...).From("expenses").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return core.Expense{}, fmt.Errorf("build get: %w", err)
	}
	var row Row
	if err := q.QueryRowContext(ctx, query, args...).Scan(row.Dest()...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Expense{}, repository.ErrNotFound
		}
		return core.Expense{}, fmt.Errorf("get expense %s: %w", id, err)
	}
	return row.Expense()
}

var _ repository.Repository = (*SQLiteRepository)(nil)
