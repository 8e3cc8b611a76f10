package remediation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/keyward/go/internal/gate"
	"github.com/keyward/go/internal/vault"
)

// ErrNotGranted is returned when editing without an active fix grant
var ErrNotGranted = errors.New("remediation requires a granted fix request")

// Editor presents a record for editing and saves through the Edit. Returning
// nil without calling Save dismisses the edit.
type Editor func(ctx context.Context, edit *Edit) error

// Flow updates flagged records in place once the gate has granted a fix
type Flow struct {
	store      vault.Store
	collection *vault.Collection
	logger     *slog.Logger
}

// NewFlow creates a remediation flow over one vault view
func NewFlow(store vault.Store, collection *vault.Collection, logger *slog.Logger) *Flow {
	if logger == nil {
		logger = slog.Default()
	}
	return &Flow{
		store:      store,
		collection: collection,
		logger:     logger.With("component", "remediation"),
	}
}

// Begin opens an edit for the granted record
func (f *Flow) Begin(grant gate.Grant) (*Edit, error) {
	if grant.Intent() != gate.IntentFix || !grant.Valid() {
		return nil, ErrNotGranted
	}
	return &Edit{flow: f, grant: grant}, nil
}

// Continuation adapts an editor to the gate's fix intent
func (f *Flow) Continuation(editor Editor) gate.Continuation {
	return func(ctx context.Context, grant gate.Grant) error {
		edit, err := f.Begin(grant)
		if err != nil {
			return err
		}
		if err := editor(ctx, edit); err != nil {
			return err
		}
		if !edit.Saved() {
			f.logger.Debug("fix dismissed", "record", grant.Record().ID)
		}
		return nil
	}
}

// Edit is one open fix of a record
type Edit struct {
	flow    *Flow
	grant   gate.Grant
	updated *vault.Password
}

// Current returns a copy of the record as it was when the fix was granted
func (e *Edit) Current() *vault.Password {
	return e.grant.Record().Clone()
}

// Saved reports whether Save succeeded
func (e *Edit) Saved() bool {
	return e.updated != nil
}

// Updated returns the record returned by the store after a successful save
func (e *Edit) Updated() *vault.Password {
	return e.updated
}

// Save stores the new value and replaces the record in the vault view.
// On failure the vault view is left unchanged.
func (e *Edit) Save(ctx context.Context, value string) (*vault.Password, error) {
	if !e.grant.Valid() {
		return nil, ErrNotGranted
	}
	if strings.TrimSpace(value) == "" {
		return nil, vault.NewValidationError("password", "password is required")
	}

	id := e.grant.Record().ID
	updated, err := e.flow.store.Update(ctx, id, value)
	if err != nil {
		e.flow.logger.Warn("fix failed", "record", id, "error", err)
		return nil, fmt.Errorf("failed to update password: %w", err)
	}
	if updated == nil || updated.ID != id {
		return nil, vault.NewStoreError("update", fmt.Errorf("store returned a different record for %s", id))
	}

	if !e.flow.collection.Replace(updated) {
		return nil, fmt.Errorf("%w: %s is no longer in the vault", vault.ErrNotFound, id)
	}

	e.updated = updated
	e.flow.logger.Info("password fixed", "record", id)
	return updated, nil
}
