// Package intake turns selected receipt files into persisted expenses.
//
// A Pipeline owns one run: the queue of encoded files, the index of the
// current item and its draft. Each item is optionally analyzed, then
// committed to the expense store either by an explicit Submit (manual mode)
// or unattended by RunAutomatic. Analyzer failures are reported per item and
// never drop queued files.
package intake

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"reisekosten/internal/analyzer"
	"reisekosten/internal/core"
	"reisekosten/internal/log"
)

const (
	// ListingPath is where a finished automatic run sends the user.
	ListingPath = "/entries"
	// UploadPath starts a new run.
	UploadPath = "/upload"
)

// Adder persists a new expense. *services.ExpenseStore implements it.
type Adder interface {
	Add(ctx context.Context, e core.NewExpense) (core.Expense, error)
}

// Completion is offered once the queue is exhausted in manual mode.
type Completion struct {
	AddAnother string `json:"add_another"`
	ViewAll    string `json:"view_all"`
}

// SubmitResult reports a manual commit. Completion is nil while files remain queued.
type SubmitResult struct {
	Expense    core.Expense `json:"expense"`
	Completion *Completion  `json:"completion,omitempty"`
}

// Skipped is a queue item automatic mode could not commit. Its file and
// draft are kept so the user can finish it by hand.
type Skipped struct {
	File  PendingFile `json:"file"`
	Draft Draft       `json:"draft"`
	Error string      `json:"error"`
}

type AutoResult struct {
	Committed []core.Expense `json:"committed"`
	Skipped   []Skipped      `json:"skipped"`
	Redirect  string         `json:"redirect"`
}

// View is a read-only snapshot of a pipeline.
type View struct {
	State     State          `json:"state"`
	Index     int            `json:"index"`
	Total     int            `json:"total"`
	Current   *PendingFile   `json:"current,omitempty"`
	Draft     *Draft         `json:"draft,omitempty"`
	Analyze   bool           `json:"analyze"`
	Committed []core.Expense `json:"committed"`
	Notices   []Notice       `json:"notices"`
}

type Options struct {
	// Analyze enables receipt analysis for each queued item.
	Analyze bool
	// SettleDelay is the pause between items in automatic mode.
	SettleDelay time.Duration
	Location    *time.Location
	Notifier    Notifier
	Logger      *log.Logger
}

type Pipeline struct {
	store    Adder
	analyzer analyzer.Analyzer
	opts     Options
	logger   *log.Logger
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error

	mu          sync.Mutex
	state       State
	queue       []PendingFile
	index       int
	draft       Draft
	analysisOff bool
	committed   []core.Expense
	notices     []Notice
}

func New(store Adder, an analyzer.Analyzer, opts Options) *Pipeline {
	if an == nil {
		an = analyzer.Disabled{}
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Logger == nil {
		opts.Logger = log.New(log.DefaultConfig())
	}
	logger := opts.Logger.WithComponent(log.ComponentIntake)
	if opts.Notifier == nil {
		opts.Notifier = LogNotifier{Logger: logger}
	}
	return &Pipeline{
		store:    store,
		analyzer: an,
		opts:     opts,
		logger:   logger,
		now:      time.Now,
		sleep:    sleepContext,
		state:    Idle,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Pipeline) View() View {
	p.mu.Lock()
	defer p.mu.Unlock()
	v := View{
		State:     p.state,
		Index:     p.index,
		Total:     len(p.queue),
		Analyze:   p.opts.Analyze && !p.analysisOff,
		Committed: append([]core.Expense{}, p.committed...),
		Notices:   append([]Notice{}, p.notices...),
	}
	if p.index < len(p.queue) && p.state != Idle {
		f := p.queue[p.index]
		v.Current = &f
	}
	if p.state == DraftReady || p.state == Committing {
		d := p.draft
		v.Draft = &d
	}
	return v
}

// Remaining is the number of queued files including the current one.
func (p *Pipeline) Remaining() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == Idle {
		return 0
	}
	return len(p.queue) - p.index
}

func (p *Pipeline) transition(to State) error {
	if !p.state.canTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, p.state, to)
	}
	p.logger.Debug("Intake state change",
		append(log.NewFields().WithQueue(p.index, len(p.queue)).ToSlice(), log.FieldIntakeState, to.String())...)
	p.state = to
	return nil
}

func (p *Pipeline) notify(ctx context.Context, n Notice) {
	p.notices = append(p.notices, n)
	p.opts.Notifier.Notify(ctx, n)
}

// Select encodes the files and queues them. Selecting nothing is a no-op.
// If any file is rejected nothing is queued.
func (p *Pipeline) Select(ctx context.Context, uploads ...Upload) error {
	if len(uploads) == 0 {
		return nil
	}

	files := make([]PendingFile, 0, len(uploads))
	for _, u := range uploads {
		f, err := Encode(u)
		if err != nil {
			return err
		}
		files = append(files, f)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != Idle {
		return fmt.Errorf("%w: files already queued", ErrInvalidTransition)
	}

	p.queue = files
	p.index = 0
	p.committed = nil
	p.notices = nil
	p.analysisOff = false
	if err := p.transition(FilesQueued); err != nil {
		return err
	}
	p.logger.InfoContext(ctx, "Receipts queued", log.FieldQueueSize, len(files))
	return p.prepare(ctx)
}

// prepare builds the draft for the current item. Must hold mu in FilesQueued.
func (p *Pipeline) prepare(ctx context.Context) error {
	file := p.queue[p.index]
	p.draft = Draft{Date: core.DateOf(p.now().In(p.opts.Location))}

	if p.opts.Analyze && !p.analysisOff {
		if err := p.transition(Analyzing); err != nil {
			return err
		}
		p.analyze(ctx, file)
	}
	return p.transition(DraftReady)
}

func (p *Pipeline) analyze(ctx context.Context, file PendingFile) {
	doc, err := analyzer.DocumentFromDataURI(file.Name, file.DataURI)
	if err == nil {
		var res analyzer.Result
		res, err = p.analyzer.Analyze(ctx, doc)
		if err == nil {
			p.draft = p.draft.merge(res)
			return
		}
	}

	var cfgErr *core.ConfigurationError
	if errors.As(err, &cfgErr) {
		p.analysisOff = true
		p.notify(ctx, Notice{
			Level:   LevelWarning,
			Message: "Belegerkennung ist nicht konfiguriert. Bitte Angaben manuell erfassen.",
		})
		return
	}
	p.logger.WarnContext(ctx, "Receipt analysis failed",
		log.FieldOperation, log.OpAnalyze,
		log.FieldFile, file.Name,
		log.FieldQueueIndex, p.index,
		log.FieldError, err)
	p.notify(ctx, Notice{
		Level:   LevelError,
		Message: "Beleg konnte nicht analysiert werden. Bitte Angaben manuell erfassen.",
		File:    file.Name,
	})
}

// Draft returns the current draft, if one is ready.
func (p *Pipeline) Draft() (Draft, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.draft, p.state == DraftReady
}

// Current returns the file being reviewed.
func (p *Pipeline) Current() (PendingFile, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == Idle || p.index >= len(p.queue) {
		return PendingFile{}, false
	}
	return p.queue[p.index], true
}

// Edit changes the current draft.
func (p *Pipeline) Edit(patch DraftPatch) (Draft, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != DraftReady {
		return Draft{}, fmt.Errorf("%w: no draft to edit in state %s", ErrInvalidTransition, p.state)
	}
	if err := patch.validate(); err != nil {
		return p.draft, err
	}
	p.draft = p.draft.apply(patch)
	return p.draft, nil
}

// Submit commits the current draft. On success the pipeline advances to the
// next file, or returns to Idle with a Completion when the queue is done.
// A failed commit leaves the draft in place for another attempt.
func (p *Pipeline) Submit(ctx context.Context) (SubmitResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != DraftReady {
		return SubmitResult{}, fmt.Errorf("%w: cannot submit in state %s", ErrInvalidTransition, p.state)
	}

	file := p.queue[p.index]
	if err := p.draft.check(file); err != nil {
		return SubmitResult{}, err
	}

	created, err := p.commit(ctx, file, p.draft)
	if err != nil {
		return SubmitResult{}, err
	}

	res := SubmitResult{Expense: created}
	if err := p.advance(ctx); err != nil {
		return res, err
	}
	if p.state == Idle {
		res.Completion = &Completion{AddAnother: UploadPath, ViewAll: ListingPath}
	}
	return res, nil
}

// commit runs DraftReady -> Committing -> Committed. Must hold mu.
func (p *Pipeline) commit(ctx context.Context, file PendingFile, d Draft) (core.Expense, error) {
	if err := p.transition(Committing); err != nil {
		return core.Expense{}, err
	}
	created, err := p.store.Add(ctx, d.expense(file))
	if err != nil {
		p.state = DraftReady
		var perr *core.PersistenceError
		if errors.As(err, &perr) {
			p.notify(ctx, Notice{Level: LevelError, Message: "Fehler beim Speichern der Ausgabe", File: file.Name})
		}
		return core.Expense{}, err
	}
	p.committed = append(p.committed, created)
	p.logger.InfoContext(ctx, "Receipt committed",
		log.FieldOperation, log.OpCommit,
		log.FieldExpenseID, created.ID,
		log.FieldFile, file.Name,
		log.FieldQueueIndex, p.index)
	return created, p.transition(Committed)
}

// advance moves past a committed or skipped item. Must hold mu.
func (p *Pipeline) advance(ctx context.Context) error {
	p.index++
	if p.index >= len(p.queue) {
		p.reset()
		return nil
	}
	if p.state == DraftReady {
		// skipped in automatic mode
		p.state = Committed
	}
	if err := p.transition(FilesQueued); err != nil {
		return err
	}
	return p.prepare(ctx)
}

func (p *Pipeline) reset() {
	p.state = Idle
	p.queue = nil
	p.index = 0
	p.draft = Draft{}
}

// RemoveCurrent discards the file under review and ends the run, so the
// same file can be selected again.
func (p *Pipeline) RemoveCurrent() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == Idle {
		return
	}
	p.logger.Info("Current receipt removed", log.FieldQueueIndex, p.index, log.FieldQueueSize, len(p.queue))
	p.reset()
}

// Cancel abandons the run. Committed expenses stay committed.
func (p *Pipeline) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reset()
}

// RunAutomatic commits every remaining item without user interaction, one
// at a time. Unknown categories default to other and unknown amounts to
// zero; items that still fail validation or cannot be stored are returned
// as Skipped. If ctx is cancelled the run stops and the current item stays
// queued.
func (p *Pipeline) RunAutomatic(ctx context.Context) (AutoResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != DraftReady {
		return AutoResult{}, fmt.Errorf("%w: nothing queued in state %s", ErrInvalidTransition, p.state)
	}

	start := len(p.committed)
	var skipped []Skipped
	for p.state != Idle {
		if err := ctx.Err(); err != nil {
			return AutoResult{Committed: p.committedSince(start), Skipped: skipped}, err
		}

		file := p.queue[p.index]
		d := p.draft.withDefaults()
		p.draft = d

		if err := d.check(file); err != nil {
			skipped = append(skipped, Skipped{File: file, Draft: d, Error: err.Error()})
			p.notify(ctx, Notice{Level: LevelWarning, Message: "Ausgabe ohne Betrag übersprungen", File: file.Name})
		} else if _, err := p.commit(ctx, file, d); err != nil {
			skipped = append(skipped, Skipped{File: file, Draft: d, Error: err.Error()})
		}

		waitErr := p.sleep(ctx, p.opts.SettleDelay)
		next := ctx
		if waitErr != nil {
			// prepare the following item anyway so nothing is committed twice
			next = context.WithoutCancel(ctx)
		}
		if err := p.advance(next); err != nil {
			return AutoResult{Committed: p.committedSince(start), Skipped: skipped}, err
		}
		if waitErr != nil {
			return AutoResult{Committed: p.committedSince(start), Skipped: skipped}, waitErr
		}
	}

	res := AutoResult{Committed: p.committedSince(start), Skipped: skipped, Redirect: ListingPath}
	p.logger.InfoContext(ctx, "Automatic intake finished",
		"committed", len(res.Committed),
		"skipped", len(res.Skipped))
	return res, nil
}

func (p *Pipeline) committedSince(start int) []core.Expense {
	return append([]core.Expense{}, p.committed[start:]...)
}
