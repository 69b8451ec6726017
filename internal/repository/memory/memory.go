// Package memory is an in-process expense repository for tests and local runs.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"reisekosten/internal/core"
	"reisekosten/internal/repository"
)

type Store struct {
	mu    sync.Mutex
	seq   int64
	items []entry
}

type entry struct {
	expense core.Expense
	seq     int64
}

func New(seed ...core.Expense) *Store {
	s := &Store{}
	for _, e := range seed {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		s.seq++
		s.items = append(s.items, entry{expense: e, seq: s.seq})
	}
	return s
}

// List returns a copy ordered by date descending, newest insert first on ties.
func (s *Store) List(_ context.Context) ([]core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sorted := append([]entry(nil), s.items...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if !a.expense.Date.Equal(b.expense.Date.Time) {
			return a.expense.Date.After(b.expense.Date.Time)
		}
		return a.seq > b.seq
	})
	out := make([]core.Expense, len(sorted))
	for i, it := range sorted {
		out[i] = it.expense
	}
	return out, nil
}

func (s *Store) Create(_ context.Context, e core.NewExpense) (core.Expense, error) {
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	e = e.Normalize()
	rec := core.Expense{
		ID:          uuid.NewString(),
		Amount:      e.Amount,
		Category:    e.Category,
		Description: e.Description,
		Date:        e.Date,
		Image:       e.Image,
		Kilometers:  e.Kilometers,
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.items = append(s.items, entry{expense: rec, seq: s.seq})
	return rec, nil
}

func (s *Store) Update(_ context.Context, id string, patch core.ExpensePatch) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].expense.ID == id {
			s.items[i].expense = s.items[i].expense.Apply(patch)
			return s.items[i].expense, nil
		}
	}
	return core.Expense{}, repository.ErrNotFound
}

func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].expense.ID == id {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return nil
		}
	}
	return repository.ErrNotFound
}

func (s *Store) Ping(context.Context) error { return nil }

// Len reports how many expenses are stored.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

var _ repository.Repository = (*Store)(nil)
