package memory

import (
	"context"
	"errors"
	"testing"

	"reisekosten/internal/core"
	"reisekosten/internal/repository"
)

func sample(day int, cat core.Category) core.NewExpense {
	return core.NewExpense{
		Amount:   core.Money{Cents: int64(100 * day)},
		Category: cat,
		Date:     core.NewDate(2025, 5, day),
		Image:    "data:image/png;base64,AA==",
	}
}

func TestStoreCreateListOrder(t *testing.T) {
	ctx := context.Background()
	s := New()
	for _, d := range []int{3, 10, 1} {
		if _, err := s.Create(ctx, sample(d, core.CategoryFood)); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	got, err := s.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 items, got %d", len(got))
	}
	for i, want := range []int{10, 3, 1} {
		if got[i].Date.Day() != want {
			t.Fatalf("position %d: expected day %d, got %d", i, want, got[i].Date.Day())
		}
		if got[i].ID == "" {
			t.Fatalf("position %d: missing id", i)
		}
	}
}

func TestStoreCreateRejectsInvalid(t *testing.T) {
	s := New()
	e := sample(1, core.CategoryFood)
	e.Amount = core.Money{}
	if _, err := s.Create(context.Background(), e); err == nil {
		t.Fatal("expected validation error")
	}
	if s.Len() != 0 {
		t.Fatalf("invalid expense was stored")
	}
}

func TestStoreUpdateDelete(t *testing.T) {
	ctx := context.Background()
	s := New()
	rec, _ := s.Create(ctx, sample(2, core.CategoryTravel))

	amount := core.Money{Cents: 777}
	merged, err := s.Update(ctx, rec.ID, core.ExpensePatch{Amount: &amount})
	if err != nil {
		t.Fatal(err)
	}
	if merged.Amount.Cents != 777 || merged.Category != core.CategoryTravel || merged.ID != rec.ID {
		t.Fatalf("unexpected merge: %+v", merged)
	}

	if _, err := s.Update(ctx, "missing", core.ExpensePatch{Amount: &amount}); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.Delete(ctx, rec.ID); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, rec.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
