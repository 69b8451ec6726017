package intake

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reisekosten/internal/analyzer"
	"reisekosten/internal/core"
	"reisekosten/internal/repository"
	"reisekosten/internal/repository/memory"
	"reisekosten/internal/services"
)

var fixedNow = time.Date(2025, 6, 18, 9, 30, 0, 0, time.UTC)

func png(tag string) Upload {
	return Upload{Name: tag + ".png", Data: []byte("\x89PNG\r\n\x1a\n" + tag)}
}

// scriptedAnalyzer answers per file content; files listed in fail error out.
type scriptedAnalyzer struct {
	mu      sync.Mutex
	results map[string]analyzer.Result
	fail    map[string]error
	calls   []string
}

func (s *scriptedAnalyzer) Analyze(_ context.Context, doc analyzer.Document) (analyzer.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, doc.Name)
	if err, ok := s.fail[doc.Name]; ok {
		return analyzer.Result{}, err
	}
	return s.results[doc.Name], nil
}

func result(amount string, cat core.Category, desc string) analyzer.Result {
	a := decimal.RequireFromString(amount)
	d := core.NewDate(2025, 6, 2)
	return analyzer.Result{Amount: &a, Category: &cat, Description: &desc, Date: &d}
}

type noticeRecorder struct {
	notices []Notice
}

func (r *noticeRecorder) Notify(_ context.Context, n Notice) { r.notices = append(r.notices, n) }

type harness struct {
	repo     *memory.Store
	store    *services.ExpenseStore
	pipeline *Pipeline
	notices  *noticeRecorder
	sleeps   []time.Duration
}

func newHarness(t *testing.T, an analyzer.Analyzer, analyze bool, repo repository.Repository) *harness {
	t.Helper()
	h := &harness{notices: &noticeRecorder{}}
	if repo == nil {
		h.repo = memory.New()
		repo = h.repo
	}
	h.store = services.NewExpenseStore(repo)
	h.pipeline = New(h.store, an, Options{
		Analyze:     analyze,
		SettleDelay: time.Second,
		Notifier:    h.notices,
	})
	h.pipeline.now = func() time.Time { return fixedNow }
	h.pipeline.sleep = func(ctx context.Context, d time.Duration) error {
		h.sleeps = append(h.sleeps, d)
		return ctx.Err()
	}
	return h
}

func TestSelect_NoFilesIsNoop(t *testing.T) {
	h := newHarness(t, nil, false, nil)
	require.NoError(t, h.pipeline.Select(context.Background()))
	assert.Equal(t, Idle, h.pipeline.State())
}

func TestSelect_RejectsWholeBatchOnBadFile(t *testing.T) {
	h := newHarness(t, nil, false, nil)
	err := h.pipeline.Select(context.Background(), png("a"), Upload{Name: "notes.txt", Data: []byte("hello")})
	assert.Equal(t, "image", core.FieldOf(err))
	assert.Equal(t, Idle, h.pipeline.State())
}

func TestManualSubmit_PreservesFields(t *testing.T) {
	h := newHarness(t, nil, false, nil)
	ctx := context.Background()
	require.NoError(t, h.pipeline.Select(ctx, png("hotel")))
	assert.Equal(t, DraftReady, h.pipeline.State())

	draft, ok := h.pipeline.Draft()
	require.True(t, ok)
	assert.Equal(t, "2025-06-18", draft.Date.String(), "draft date defaults to today")

	amount := core.Cents(11900)
	cat := core.CategoryAccommodation
	desc := "Hotel Leipzig"
	date := core.NewDate(2025, 6, 16)
	_, err := h.pipeline.Edit(DraftPatch{Amount: &amount, Category: &cat, Description: &desc, Date: &date})
	require.NoError(t, err)

	res, err := h.pipeline.Submit(ctx)
	require.NoError(t, err)
	require.NotNil(t, res.Completion)
	assert.Equal(t, ListingPath, res.Completion.ViewAll)
	assert.Equal(t, UploadPath, res.Completion.AddAnother)
	assert.Equal(t, Idle, h.pipeline.State())

	expenses := h.store.Snapshot().Expenses
	require.Len(t, expenses, 1)
	got := expenses[0]
	assert.NotEmpty(t, got.ID)
	assert.Equal(t, int64(11900), got.Amount.Cents)
	assert.Equal(t, core.CategoryAccommodation, got.Category)
	assert.Equal(t, "Hotel Leipzig", got.Description)
	assert.Equal(t, "2025-06-16", got.Date.String())
	assert.Contains(t, got.Image, "data:image/png;base64,")
}

func TestSubmit_ValidationBlocksCommit(t *testing.T) {
	h := newHarness(t, nil, false, nil)
	ctx := context.Background()
	require.NoError(t, h.pipeline.Select(ctx, png("taxi")))

	_, err := h.pipeline.Submit(ctx)
	assert.Equal(t, "amount", core.FieldOf(err))

	amount := core.Cents(1500)
	_, err = h.pipeline.Edit(DraftPatch{Amount: &amount})
	require.NoError(t, err)
	_, err = h.pipeline.Submit(ctx)
	assert.Equal(t, "category", core.FieldOf(err))

	assert.Equal(t, DraftReady, h.pipeline.State())
	assert.Zero(t, h.repo.Len())
}

func TestEdit_RejectsInvalidValues(t *testing.T) {
	h := newHarness(t, nil, false, nil)
	require.NoError(t, h.pipeline.Select(context.Background(), png("x")))

	zero := core.Money{}
	_, err := h.pipeline.Edit(DraftPatch{Amount: &zero})
	assert.Equal(t, "amount", core.FieldOf(err))

	bad := core.Category("fuel")
	_, err = h.pipeline.Edit(DraftPatch{Category: &bad})
	assert.ErrorIs(t, err, core.ErrInvalidCategory)
}

func TestEdit_LeavingTravelClearsKilometers(t *testing.T) {
	h := newHarness(t, nil, false, nil)
	require.NoError(t, h.pipeline.Select(context.Background(), png("train")))

	travel := core.CategoryTravel
	km, err := core.ParseDistance("42")
	require.NoError(t, err)
	d, err := h.pipeline.Edit(DraftPatch{Category: &travel, Kilometers: &km})
	require.NoError(t, err)
	require.NotNil(t, d.Kilometers)

	food := core.CategoryFood
	d, err = h.pipeline.Edit(DraftPatch{Category: &food})
	require.NoError(t, err)
	assert.Nil(t, d.Kilometers)
}

func TestFoodExpenseDropsKilometers(t *testing.T) {
	h := newHarness(t, nil, false, nil)
	ctx := context.Background()
	require.NoError(t, h.pipeline.Select(ctx, png("lunch")))

	amount := core.Cents(1890)
	food := core.CategoryFood
	km, err := core.ParseDistance("12.5")
	require.NoError(t, err)
	_, err = h.pipeline.Edit(DraftPatch{Amount: &amount, Category: &food, Kilometers: &km})
	require.NoError(t, err)

	res, err := h.pipeline.Submit(ctx)
	require.NoError(t, err)
	assert.Nil(t, res.Expense.Kilometers)
	assert.Nil(t, res.Expense.EffectiveKilometers())

	require.NoError(t, h.store.FetchAll(ctx))
	stored, ok := h.store.Get(res.Expense.ID)
	require.True(t, ok)
	assert.Nil(t, stored.EffectiveKilometers())
}

func TestAnalyzerFailureDoesNotLoseFiles(t *testing.T) {
	an := &scriptedAnalyzer{
		results: map[string]analyzer.Result{
			"one.png":   result("12.40", core.CategoryFood, "Bäckerei"),
			"three.png": result("230.00", core.CategoryTravel, "Bahnticket"),
		},
		fail: map[string]error{"two.png": &core.AnalysisError{File: "two.png", Err: errors.New("timeout")}},
	}
	h := newHarness(t, an, true, nil)
	ctx := context.Background()

	require.NoError(t, h.pipeline.Select(ctx, png("one"), png("two"), png("three")))
	assert.Equal(t, 3, h.pipeline.Remaining())

	d, _ := h.pipeline.Draft()
	assert.Equal(t, int64(1240), d.Amount.Cents)
	assert.Equal(t, core.CategoryFood, d.Category)
	res, err := h.pipeline.Submit(ctx)
	require.NoError(t, err)
	assert.Nil(t, res.Completion)

	d, ok := h.pipeline.Draft()
	require.True(t, ok)
	assert.True(t, d.Amount.IsZero(), "failed analysis leaves the draft empty")
	assert.Empty(t, d.Category)
	require.Len(t, h.notices.notices, 1)
	assert.Equal(t, LevelError, h.notices.notices[0].Level)
	assert.Equal(t, "two.png", h.notices.notices[0].File)

	amount := core.Cents(850)
	other := core.CategoryOther
	_, err = h.pipeline.Edit(DraftPatch{Amount: &amount, Category: &other})
	require.NoError(t, err)
	_, err = h.pipeline.Submit(ctx)
	require.NoError(t, err)

	d, _ = h.pipeline.Draft()
	assert.Equal(t, int64(23000), d.Amount.Cents)
	res, err = h.pipeline.Submit(ctx)
	require.NoError(t, err)
	require.NotNil(t, res.Completion)

	assert.Equal(t, 3, h.repo.Len())
	assert.Equal(t, []string{"one.png", "two.png", "three.png"}, an.calls)
}

func TestConfigurationErrorDisablesAnalysisForRun(t *testing.T) {
	h := newHarness(t, analyzer.Disabled{}, true, nil)
	ctx := context.Background()
	require.NoError(t, h.pipeline.Select(ctx, png("a"), png("b")))

	amount := core.Cents(100)
	cat := core.CategoryOther
	for i := 0; i < 2; i++ {
		_, err := h.pipeline.Edit(DraftPatch{Amount: &amount, Category: &cat})
		require.NoError(t, err)
		_, err = h.pipeline.Submit(ctx)
		require.NoError(t, err)
	}

	require.Len(t, h.notices.notices, 1, "configuration problem is reported once")
	assert.Equal(t, LevelWarning, h.notices.notices[0].Level)
	assert.Equal(t, 2, h.repo.Len())
}

func TestAutomaticMode_EndToEnd(t *testing.T) {
	an := &scriptedAnalyzer{results: map[string]analyzer.Result{
		"a.png": result("45.00", core.CategoryAccommodation, "Pension"),
		"b.png": result("7.20", core.CategoryFood, "Kaffee"),
	}}
	h := newHarness(t, an, true, nil)
	ctx := context.Background()

	require.NoError(t, h.pipeline.Select(ctx, png("a"), png("b")))
	res, err := h.pipeline.RunAutomatic(ctx)
	require.NoError(t, err)

	assert.Len(t, res.Committed, 2)
	assert.Empty(t, res.Skipped)
	assert.Equal(t, ListingPath, res.Redirect)
	assert.Equal(t, Idle, h.pipeline.State())
	assert.Equal(t, 2, h.repo.Len())
	assert.Equal(t, []time.Duration{time.Second, time.Second}, h.sleeps)
}

func TestAutomaticMode_DefaultsAndSkips(t *testing.T) {
	noCategory := result("19.99", core.CategoryOther, "Parken")
	noCategory.Category = nil
	an := &scriptedAnalyzer{
		results: map[string]analyzer.Result{"a.png": noCategory},
		fail:    map[string]error{"b.png": errors.New("unreadable")},
	}
	h := newHarness(t, an, true, nil)
	ctx := context.Background()

	require.NoError(t, h.pipeline.Select(ctx, png("a"), png("b")))
	res, err := h.pipeline.RunAutomatic(ctx)
	require.NoError(t, err)

	require.Len(t, res.Committed, 1)
	assert.Equal(t, core.CategoryOther, res.Committed[0].Category)

	require.Len(t, res.Skipped, 1, "zero amount cannot be stored but must be reported")
	assert.Equal(t, "b.png", res.Skipped[0].File.Name)
	assert.Equal(t, core.CategoryOther, res.Skipped[0].Draft.Category)
	assert.True(t, res.Skipped[0].Draft.Amount.IsZero())
	assert.Equal(t, ListingPath, res.Redirect)
}

func TestAutomaticMode_CancelKeepsRemainingQueue(t *testing.T) {
	an := &scriptedAnalyzer{results: map[string]analyzer.Result{
		"a.png": result("10", core.CategoryFood, "A"),
		"b.png": result("20", core.CategoryFood, "B"),
	}}
	h := newHarness(t, an, true, nil)
	ctx, cancel := context.WithCancel(context.Background())
	h.pipeline.sleep = func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}

	require.NoError(t, h.pipeline.Select(ctx, png("a"), png("b")))
	res, err := h.pipeline.RunAutomatic(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, res.Committed, 1)

	assert.Equal(t, DraftReady, h.pipeline.State())
	cur, ok := h.pipeline.Current()
	require.True(t, ok)
	assert.Equal(t, "b.png", cur.Name)
	assert.Equal(t, 1, h.repo.Len())
}

func TestStoreFailureKeepsDraft(t *testing.T) {
	h := newHarness(t, nil, false, failingRepo{memory.New()})
	ctx := context.Background()
	require.NoError(t, h.pipeline.Select(ctx, png("a")))

	amount := core.Cents(500)
	cat := core.CategoryFood
	_, err := h.pipeline.Edit(DraftPatch{Amount: &amount, Category: &cat})
	require.NoError(t, err)

	_, err = h.pipeline.Submit(ctx)
	var perr *core.PersistenceError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, DraftReady, h.pipeline.State())

	d, ok := h.pipeline.Draft()
	require.True(t, ok)
	assert.Equal(t, int64(500), d.Amount.Cents)
	assert.Empty(t, h.store.Snapshot().Expenses)
	require.Len(t, h.notices.notices, 1)
}

func TestRemoveCurrentAllowsReselect(t *testing.T) {
	h := newHarness(t, nil, false, nil)
	ctx := context.Background()
	require.NoError(t, h.pipeline.Select(ctx, png("a")))

	h.pipeline.RemoveCurrent()
	assert.Equal(t, Idle, h.pipeline.State())
	_, ok := h.pipeline.Current()
	assert.False(t, ok)

	require.NoError(t, h.pipeline.Select(ctx, png("a")))
	assert.Equal(t, DraftReady, h.pipeline.State())

	h.pipeline.Cancel()
	assert.Equal(t, Idle, h.pipeline.State())
	assert.Zero(t, h.pipeline.Remaining())
}

func TestOperationsRequireDraft(t *testing.T) {
	h := newHarness(t, nil, false, nil)
	ctx := context.Background()

	_, err := h.pipeline.Submit(ctx)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = h.pipeline.Edit(DraftPatch{})
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = h.pipeline.RunAutomatic(ctx)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	require.NoError(t, h.pipeline.Select(ctx, png("a")))
	err = h.pipeline.Select(ctx, png("b"))
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

type failingRepo struct {
	repository.Repository
}

func (failingRepo) Create(context.Context, core.NewExpense) (core.Expense, error) {
	return core.Expense{}, errors.New("connection reset")
}
