package memory

import (
	"context"
	"errors"
	"testing"

	"reisekosten/internal/core"
)

func TestMirror_UpsertDeleteList(t *testing.T) {
	m := New()
	ctx := context.Background()

	a := core.Expense{ID: "a", Amount: core.Cents(100), Category: core.CategoryFood, Image: "data:image/png;base64,AAAA"}
	b := core.Expense{ID: "b", Amount: core.Cents(200), Category: core.CategoryOther}
	_ = m.Upsert(ctx, a)
	_ = m.Upsert(ctx, b)

	a.Amount = core.Cents(150)
	_ = m.Upsert(ctx, a)

	list, _ := m.List(ctx)
	if len(list) != 2 || list[0].ID != "a" || list[0].Amount.Cents != 150 {
		t.Fatalf("List = %+v", list)
	}
	if list[0].Image != "" {
		t.Error("image must not be mirrored")
	}

	if err := m.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := m.Delete(ctx, "a"); err != nil {
		t.Fatalf("repeated Delete: %v", err)
	}
	if m.Len() != 1 {
		t.Errorf("Len = %d, want 1", m.Len())
	}
}

func TestMirror_FailWith(t *testing.T) {
	m := New()
	boom := errors.New("offline")
	m.FailWith(boom)
	if err := m.Upsert(context.Background(), core.Expense{ID: "a"}); !errors.Is(err, boom) {
		t.Errorf("Upsert err = %v", err)
	}
	m.FailWith(nil)
	if err := m.Upsert(context.Background(), core.Expense{ID: "a"}); err != nil {
		t.Errorf("Upsert after reset: %v", err)
	}
}
