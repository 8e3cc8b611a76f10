package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/keyward/go/internal/audit"
	"github.com/keyward/go/internal/gate"
	"github.com/keyward/go/internal/remediation"
	"github.com/keyward/go/internal/search"
	"github.com/keyward/go/internal/vault"
)

// ErrAmbiguous is returned when a name matches more than one record
var ErrAmbiguous = errors.New("more than one password matches")

// Presenter shows the results of granted operations to the user
type Presenter interface {
	// Reveal displays the plaintext of a record
	Reveal(ctx context.Context, record *vault.Password) error
	// History displays the prior values of a record
	History(ctx context.Context, record *vault.Password, entries []vault.HistoryEntry) error
	// Edit lets the user replace the value of a flagged record
	Edit(ctx context.Context, edit *remediation.Edit) error
}

// Options configures an Engine
type Options struct {
	Logger    *slog.Logger
	Clock     func() time.Time
	Presenter Presenter
}

// Engine is the security engine for one vault view: it owns the in-memory
// record set and routes every plaintext operation through the access gate.
type Engine struct {
	store      vault.Store
	collection *vault.Collection
	auditor    *audit.Auditor
	gate       *gate.Gate
	flow       *remediation.Flow
	presenter  Presenter
	logger     *slog.Logger

	// revealHistory turns the pending reveal into a history view
	revealHistory bool
}

// New creates an engine over store, verifying master passwords with auth
func New(store vault.Store, auth vault.Authenticator, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	presenter := opts.Presenter
	if presenter == nil {
		presenter = discardPresenter{}
	}

	collection := vault.NewCollection(nil)
	e := &Engine{
		store:      store,
		collection: collection,
		auditor:    audit.NewAuditorWithClock(clock),
		gate:       gate.New(auth, logger),
		flow:       remediation.NewFlow(store, collection, logger),
		presenter:  presenter,
		logger:     logger.With("component", "engine"),
	}

	e.gate.Handle(gate.IntentReveal, e.reveal)
	e.gate.Handle(gate.IntentDelete, e.delete)
	e.gate.Handle(gate.IntentFix, e.flow.Continuation(e.edit))
	return e
}

// Gate returns the access gate, e.g. to observe decisions
func (e *Engine) Gate() *gate.Gate {
	return e.gate
}

// Load replaces the vault view with the store's current records
func (e *Engine) Load(ctx context.Context) error {
	records, err := e.store.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to load passwords: %w", err)
	}
	e.collection.Reset(records)
	e.logger.Debug("vault loaded", "count", e.collection.Len())
	return nil
}

// Records returns the records of the vault view in order
func (e *Engine) Records() []*vault.Password {
	return e.collection.All()
}

// Add validates and creates a new record. Nothing changes on failure.
func (e *Engine) Add(ctx context.Context, draft vault.Draft) (*vault.Password, error) {
	d := draft.Normalize()
	if err := d.Validate(); err != nil {
		return nil, err
	}
	if err := vault.CheckUnique(e.collection.All(), d); err != nil {
		return nil, err
	}

	created, err := e.store.Create(ctx, d)
	if err != nil {
		return nil, fmt.Errorf("failed to add password: %w", err)
	}
	e.collection.Add(created)
	e.logger.Info("password added", "record", created.ID, "category", created.Category)
	return created, nil
}

// Audit computes a fresh snapshot of the vault view
func (e *Engine) Audit() audit.Snapshot {
	return e.auditor.Audit(e.collection.All())
}

// AgeReport buckets the vault view by age
func (e *Engine) AgeReport() []audit.Bucket {
	return e.auditor.AgeReport(e.collection.All())
}

// Search filters the vault view by name, account or category
func (e *Engine) Search(term string) []*vault.Password {
	return search.Filter(e.collection.All(), term)
}

// Find resolves a reference to a record: an exact id first, then a
// case-insensitive name or label.
func (e *Engine) Find(ref string) (*vault.Password, error) {
	ref = strings.TrimSpace(ref)
	if p, ok := e.collection.Get(ref); ok {
		return p, nil
	}

	var matches []*vault.Password
	for _, p := range e.collection.All() {
		if strings.EqualFold(p.Name, ref) || strings.EqualFold(p.Label(), ref) {
			matches = append(matches, p)
		}
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("%w: %s", vault.ErrNotFound, ref)
	case 1:
		return matches[0], nil
	}
	return nil, fmt.Errorf("%w: %q (%d records)", ErrAmbiguous, ref, len(matches))
}

// RequestAccess asks the gate for access to a record with the given intent
func (e *Engine) RequestAccess(id string, intent gate.Intent) error {
	record, ok := e.collection.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", vault.ErrNotFound, id)
	}
	if err := e.gate.RequestAccess(record, intent); err != nil {
		return err
	}
	e.revealHistory = false
	return nil
}

// RequestHistory asks the gate to reveal the prior values of a record
func (e *Engine) RequestHistory(id string) error {
	if err := e.RequestAccess(id, gate.IntentReveal); err != nil {
		return err
	}
	e.revealHistory = true
	return nil
}

// Submit forwards the master password to the gate
func (e *Engine) Submit(ctx context.Context, masterPassword string) (gate.Decision, error) {
	return e.gate.Submit(ctx, masterPassword)
}

// Cancel drops the pending request
func (e *Engine) Cancel() {
	e.gate.Cancel()
	e.revealHistory = false
}

func (e *Engine) reveal(ctx context.Context, grant gate.Grant) error {
	id := grant.Record().ID

	// The store stamps lastViewed on this fetch
	record, err := e.store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to fetch password: %w", err)
	}
	e.collection.Replace(record)

	if e.revealHistory {
		e.revealHistory = false
		entries, err := e.store.History(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to fetch history: %w", err)
		}
		vault.SortHistory(entries, true)
		return e.presenter.History(ctx, record, entries)
	}
	return e.presenter.Reveal(ctx, record)
}

func (e *Engine) delete(ctx context.Context, grant gate.Grant) error {
	id := grant.Record().ID
	if err := e.store.Remove(ctx, id); err != nil {
		return fmt.Errorf("failed to delete password: %w", err)
	}
	e.collection.Remove(id)
	e.logger.Info("password deleted", "record", id)
	return nil
}

func (e *Engine) edit(ctx context.Context, edit *remediation.Edit) error {
	if err := e.presenter.Edit(ctx, edit); err != nil {
		return err
	}
	if edit.Saved() {
		snap := e.Audit()
		e.logger.Info("audit recomputed", "score", snap.SecurityScore, "flagged", len(snap.Flagged()))
	}
	return nil
}

type discardPresenter struct{}

func (discardPresenter) Reveal(context.Context, *vault.Password) error { return nil }

func (discardPresenter) History(context.Context, *vault.Password, []vault.HistoryEntry) error {
	return nil
}

func (discardPresenter) Edit(context.Context, *remediation.Edit) error { return nil }
