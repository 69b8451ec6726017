package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"reisekosten/internal/core"
)

type EventType string

const (
	EventCreated EventType = "expense.created"
	EventUpdated EventType = "expense.updated"
	EventDeleted EventType = "expense.deleted"
)

// ExpenseSnapshot is the expense without its receipt payload, which is too
// large to ship through the broker and is not needed by consumers.
type ExpenseSnapshot struct {
	ID          string         `json:"id"`
	Amount      core.Money     `json:"amount"`
	Category    core.Category  `json:"category"`
	Description string         `json:"description"`
	Date        core.Date      `json:"date"`
	Kilometers  *core.Distance `json:"kilometers,omitempty"`
}

// ExpenseEvent announces a committed change to the expense collection.
type ExpenseEvent struct {
	Type      EventType        `json:"type"`
	ID        string           `json:"id"`
	Expense   *ExpenseSnapshot `json:"expense,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

func SnapshotOf(e core.Expense) *ExpenseSnapshot {
	return &ExpenseSnapshot{
		ID:          e.ID,
		Amount:      e.Amount,
		Category:    e.Category,
		Description: e.Description,
		Date:        e.Date,
		Kilometers:  e.EffectiveKilometers(),
	}
}

// Expense rebuilds the expense without its receipt.
func (s *ExpenseSnapshot) Expense() core.Expense {
	return core.Expense{
		ID:          s.ID,
		Amount:      s.Amount,
		Category:    s.Category,
		Description: s.Description,
		Date:        s.Date,
		Kilometers:  s.Kilometers,
	}
}

func NewCreatedEvent(e core.Expense) *ExpenseEvent {
	return &ExpenseEvent{Type: EventCreated, ID: e.ID, Expense: SnapshotOf(e), Timestamp: time.Now()}
}

func NewUpdatedEvent(e core.Expense) *ExpenseEvent {
	return &ExpenseEvent{Type: EventUpdated, ID: e.ID, Expense: SnapshotOf(e), Timestamp: time.Now()}
}

func NewDeletedEvent(id string) *ExpenseEvent {
	return &ExpenseEvent{Type: EventDeleted, ID: id, Timestamp: time.Now()}
}

// ToJSON converts the message to JSON bytes
func (m *ExpenseEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ExpenseEventFromJSON decodes and checks an event.
func ExpenseEventFromJSON(data []byte) (*ExpenseEvent, error) {
	var msg ExpenseEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.ID == "" {
		return nil, errors.New("event without expense id")
	}
	switch msg.Type {
	case EventCreated, EventUpdated:
		if msg.Expense == nil {
			return nil, fmt.Errorf("%s event without expense", msg.Type)
		}
	case EventDeleted:
	default:
		return nil, fmt.Errorf("unknown event type %q", msg.Type)
	}
	return &msg, nil
}
