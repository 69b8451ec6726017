package memory

import (
	"context"
	"sync"

	"reisekosten/internal/core"
	"reisekosten/internal/sheets"
)

var _ sheets.Mirror = (*Mirror)(nil)

// Mirror keeps mirrored rows in memory, in insertion order.
type Mirror struct {
	mu   sync.Mutex
	ids  []string
	rows map[string]core.Expense
	err  error
}

func New() *Mirror {
	return &Mirror{rows: map[string]core.Expense{}}
}

// FailWith makes every following call return err until it is reset with nil.
func (m *Mirror) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *Mirror) Upsert(_ context.Context, e core.Expense) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if _, ok := m.rows[e.ID]; !ok {
		m.ids = append(m.ids, e.ID)
	}
	e.Image = ""
	e.Kilometers = e.EffectiveKilometers()
	m.rows[e.ID] = e
	return nil
}

func (m *Mirror) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if _, ok := m.rows[id]; !ok {
		return nil
	}
	delete(m.rows, id)
	for i, v := range m.ids {
		if v == id {
			m.ids = append(m.ids[:i], m.ids[i+1:]...)
			break
		}
	}
	return nil
}

func (m *Mirror) List(_ context.Context) ([]core.Expense, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	out := make([]core.Expense, 0, len(m.ids))
	for _, id := range m.ids {
		out = append(out, m.rows[id])
	}
	return out, nil
}

// Len returns the number of mirrored rows.
func (m *Mirror) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ids)
}
