package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"reisekosten/internal/amqp"
	"reisekosten/internal/auth"
	"reisekosten/internal/core"
	"reisekosten/internal/log"
	"reisekosten/internal/repository"
)

// User-facing failure messages, one per operation.
const (
	MsgFetchFailed  = "Failed to fetch expenses"
	MsgAddFailed    = "Failed to add expense"
	MsgUpdateFailed = "Failed to update expense"
	MsgDeleteFailed = "Failed to delete expense"
)

// State is an immutable snapshot of the store.
type State struct {
	Expenses []core.Expense
	Loading  bool
	Error    string
}

// Observer receives a snapshot after every state transition.
type Observer func(State)

// EventPublisher announces committed changes. The AMQP client implements it.
type EventPublisher interface {
	PublishExpenseEvent(ctx context.Context, event *amqp.ExpenseEvent) error
}

// ExpenseStore is the single owner of the client-side expense collection.
//
// Operations are not serialized against each other: two concurrent updates
// of the same id race and the last response to arrive wins locally.
type ExpenseStore struct {
	repo      repository.Repository
	session   auth.Session
	publisher EventPublisher
	logger    *log.Logger

	mu        sync.Mutex
	expenses  []core.Expense
	inflight  int
	errMsg    string
	observers map[int]Observer
	nextObs   int
}

type StoreOption func(*ExpenseStore)

func WithPublisher(p EventPublisher) StoreOption {
	return func(s *ExpenseStore) { s.publisher = p }
}

func WithSession(session auth.Session) StoreOption {
	return func(s *ExpenseStore) { s.session = session }
}

func WithLogger(l *log.Logger) StoreOption {
	return func(s *ExpenseStore) { s.logger = l }
}

func NewExpenseStore(repo repository.Repository, opts ...StoreOption) *ExpenseStore {
	s := &ExpenseStore{
		repo:      repo,
		session:   auth.StaticSession(true),
		logger:    log.New(log.DefaultConfig()).WithComponent(log.ComponentStore),
		observers: map[int]Observer{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe registers fn and returns a function that removes it.
func (s *ExpenseStore) Subscribe(fn Observer) (cancel func()) {
	s.mu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.observers, id)
		s.mu.Unlock()
	}
}

func (s *ExpenseStore) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *ExpenseStore) snapshotLocked() State {
	return State{
		Expenses: append([]core.Expense(nil), s.expenses...),
		Loading:  s.inflight > 0,
		Error:    s.errMsg,
	}
}

// mutate applies fn under the lock and notifies observers afterwards.
func (s *ExpenseStore) mutate(fn func()) {
	s.mu.Lock()
	fn()
	st := s.snapshotLocked()
	obs := make([]Observer, 0, len(s.observers))
	for _, o := range s.observers {
		obs = append(obs, o)
	}
	s.mu.Unlock()
	for _, o := range obs {
		o(st)
	}
}

func (s *ExpenseStore) begin(ctx context.Context) error {
	if !s.session.IsAuthenticated(ctx) {
		return auth.ErrUnauthenticated
	}
	s.mutate(func() { s.inflight++ })
	return nil
}

func (s *ExpenseStore) fail(ctx context.Context, op, msg string, err error) error {
	s.mutate(func() {
		s.inflight--
		s.errMsg = msg
	})
	s.logger.ErrorContext(ctx, msg, log.NewFields().WithOperation(op).WithError(err).ToSlice()...)
	return &core.PersistenceError{Op: op, Message: msg, Err: err}
}

// FetchAll replaces the collection with the repository's list.
// On failure the collection is left unchanged.
func (s *ExpenseStore) FetchAll(ctx context.Context) error {
	if err := s.begin(ctx); err != nil {
		return err
	}
	list, err := s.repo.List(ctx)
	if err != nil {
		return s.fail(ctx, log.OpFetch, MsgFetchFailed, err)
	}
	s.mutate(func() {
		s.inflight--
		s.expenses = list
		s.errMsg = ""
	})
	return nil
}

// Add validates locally, creates the expense and appends the stored record.
func (s *ExpenseStore) Add(ctx context.Context, e core.NewExpense) (core.Expense, error) {
	if !s.session.IsAuthenticated(ctx) {
		return core.Expense{}, auth.ErrUnauthenticated
	}
	e = e.Normalize()
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	if err := s.begin(ctx); err != nil {
		return core.Expense{}, err
	}
	created, err := s.repo.Create(ctx, e)
	if err != nil {
		return core.Expense{}, s.fail(ctx, log.OpCreate, MsgAddFailed, err)
	}
	s.mutate(func() {
		s.inflight--
		s.errMsg = ""
		s.expenses = append(s.expenses, created)
	})
	s.logger.InfoContext(ctx, "Expense added",
		log.NewFields().
			WithExpense(created.ID, created.Amount.Cents, string(created.Category)).
			WithOperation(log.OpCreate).
			ToSlice()...)
	s.publish(ctx, amqp.NewCreatedEvent(created))
	return created, nil
}

// Update sends a partial update and replaces the local record with the
// repository's merged result.
func (s *ExpenseStore) Update(ctx context.Context, id string, patch core.ExpensePatch) (core.Expense, error) {
	if !s.session.IsAuthenticated(ctx) {
		return core.Expense{}, auth.ErrUnauthenticated
	}
	if err := patch.Validate(); err != nil {
		return core.Expense{}, err
	}
	if err := s.begin(ctx); err != nil {
		return core.Expense{}, err
	}
	updated, err := s.repo.Update(ctx, id, patch)
	if err != nil {
		return core.Expense{}, s.fail(ctx, log.OpUpdate, MsgUpdateFailed, err)
	}
	s.mutate(func() {
		s.inflight--
		s.errMsg = ""
		for i := range s.expenses {
			if s.expenses[i].ID == id {
				s.expenses[i] = updated
			}
		}
	})
	s.logger.InfoContext(ctx, "Expense updated",
		log.NewFields().
			WithExpense(updated.ID, updated.Amount.Cents, string(updated.Category)).
			WithOperation(log.OpUpdate).
			ToSlice()...)
	s.publish(ctx, amqp.NewUpdatedEvent(updated))
	return updated, nil
}

// Remove deletes the expense and drops it from the local collection.
func (s *ExpenseStore) Remove(ctx context.Context, id string) error {
	if err := s.begin(ctx); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return s.fail(ctx, log.OpDelete, MsgDeleteFailed, err)
	}
	s.mutate(func() {
		s.inflight--
		s.errMsg = ""
		kept := s.expenses[:0:0]
		for _, e := range s.expenses {
			if e.ID != id {
				kept = append(kept, e)
			}
		}
		s.expenses = kept
	})
	s.logger.InfoContext(ctx, "Expense removed", log.FieldExpenseID, id, log.FieldOperation, log.OpDelete)
	s.publish(ctx, amqp.NewDeletedEvent(id))
	return nil
}

// Get returns the locally cached expense with the given id.
func (s *ExpenseStore) Get(id string) (core.Expense, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.expenses {
		if e.ID == id {
			return e, true
		}
	}
	return core.Expense{}, false
}

func (s *ExpenseStore) publish(ctx context.Context, event *amqp.ExpenseEvent) {
	if s.publisher == nil {
		return
	}
	// The change is already persisted; a lost event only delays the mirror.
	if err := s.publisher.PublishExpenseEvent(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish expense event",
			log.FieldEventType, event.Type,
			log.FieldExpenseID, event.ID,
			log.FieldError, err)
	}
}

// Criteria narrows the cached collection for listing.
type Criteria struct {
	Category core.Category
	From     core.Date
	To       core.Date
	Query    string
}

// Filter returns the cached expenses matching c, newest first.
func (s *ExpenseStore) Filter(c Criteria) []core.Expense {
	st := s.Snapshot()
	q := strings.ToLower(strings.TrimSpace(c.Query))
	var out []core.Expense
	for _, e := range st.Expenses {
		if c.Category != "" && e.Category != c.Category {
			continue
		}
		if !c.From.IsZero() && e.Date.Before(c.From.Time) {
			continue
		}
		if !c.To.IsZero() && e.Date.After(c.To.Time) {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(e.Description), q) &&
			!strings.Contains(strings.ToLower(e.Category.Label()), q) {
			continue
		}
		out = append(out, e)
	}
	sortNewestFirst(out)
	return out
}

// Latest returns the n most recent expenses by date.
func (s *ExpenseStore) Latest(n int) []core.Expense {
	all := s.Filter(Criteria{})
	if n >= 0 && len(all) > n {
		all = all[:n]
	}
	return all
}

func sortNewestFirst(list []core.Expense) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Date.After(list[j].Date.Time)
	})
}

// IsNotFound reports whether err came from an unknown expense id.
func IsNotFound(err error) bool {
	return errors.Is(err, repository.ErrNotFound)
}
