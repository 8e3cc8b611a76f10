package gate

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/keyward/go/internal/vault"
)

// Grant is the proof that the master password was verified for one record
// and intent. Only the gate mints grants, and a grant is only valid while the
// gate is in the Granted state it was issued for.
type Grant struct {
	record *vault.Password
	intent Intent
	seq    uint64
	gate   *Gate
}

// Record returns the record access was granted to
func (g Grant) Record() *vault.Password { return g.record }

// Intent returns the granted intent
func (g Grant) Intent() Intent { return g.intent }

// Valid reports whether the grant is still the active one
func (g Grant) Valid() bool {
	if g.gate == nil || g.record == nil {
		return false
	}
	g.gate.mu.Lock()
	defer g.gate.mu.Unlock()
	return g.gate.state == Granted && g.gate.seq == g.seq
}

// Continuation performs the granted operation. It runs at most once per
// successful submission.
type Continuation func(ctx context.Context, grant Grant) error

// Decision reports the outcome of one submission
type Decision struct {
	Verdict  Verdict
	Intent   Intent
	RecordID string
	Message  string
}

// Granted reports whether the submission was accepted
func (d Decision) Granted() bool {
	return d.Verdict == VerdictGranted
}

// Observer is notified of every decision
type Observer func(Decision)

// Gate is the master password re-authentication state machine for one
// vault view. It holds at most one pending request; a new request replaces it.
type Gate struct {
	mu            sync.Mutex
	auth          vault.Authenticator
	logger        *slog.Logger
	state         State
	record        *vault.Password
	intent        Intent
	input         string
	message       string
	seq           uint64
	continuations map[Intent]Continuation
	observers     []Observer
}

// New creates a gate verifying submissions with auth
func New(auth vault.Authenticator, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		auth:          auth,
		logger:        logger.With("component", "gate"),
		state:         Idle,
		continuations: make(map[Intent]Continuation),
	}
}

// Handle registers the continuation for an intent, replacing any previous one
func (g *Gate) Handle(intent Intent, cont Continuation) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.continuations[intent] = cont
}

// Observe registers an observer of decisions
func (g *Gate) Observe(o Observer) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.observers = append(g.observers, o)
}

// State returns the current state
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Pending returns the remembered record and intent, if any
func (g *Gate) Pending() (*vault.Password, Intent, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.record == nil {
		return nil, "", false
	}
	return g.record, g.intent, true
}

// Input returns the value currently entered
func (g *Gate) Input() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.input
}

// SetInput records the value being entered for the pending request
func (g *Gate) SetInput(value string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != AwaitingMasterPassword {
		return ErrNoPendingRequest
	}
	g.input = value
	return nil
}

// Message returns the last user-visible signal, empty after a new request
func (g *Gate) Message() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.message
}

// RequestAccess remembers record and intent and waits for the master password.
// A request made while another is pending replaces it.
func (g *Gate) RequestAccess(record *vault.Password, intent Intent) error {
	if record == nil {
		return fmt.Errorf("%w: no record", vault.ErrNotFound)
	}
	if !intent.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownIntent, intent)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.transition(AwaitingMasterPassword); err != nil {
		return err
	}
	if g.record != nil {
		g.logger.Debug("pending request replaced", "record", g.record.ID, "intent", g.intent)
	}

	g.record = record
	g.intent = intent
	g.input = ""
	g.message = ""

	g.logger.Debug("access requested", "record", record.ID, "intent", intent)
	return nil
}

// Submit verifies masterPassword for the pending request. A mismatch is not
// an error: the decision is Denied and the gate waits for another attempt.
// On a match the continuation for the pending intent runs exactly once and
// the gate returns to Idle. Verification errors leave the request pending.
func (g *Gate) Submit(ctx context.Context, masterPassword string) (Decision, error) {
	g.mu.Lock()
	if g.state != AwaitingMasterPassword {
		g.mu.Unlock()
		return Decision{}, ErrNoPendingRequest
	}
	g.input = masterPassword
	record, intent := g.record, g.intent
	g.mu.Unlock()

	ok, err := g.auth.Verify(ctx, masterPassword)

	g.mu.Lock()
	g.input = ""
	// The request may have been replaced or cancelled while verifying
	if g.state != AwaitingMasterPassword || g.record != record || g.intent != intent {
		g.mu.Unlock()
		return Decision{}, ErrNoPendingRequest
	}

	if err != nil {
		g.mu.Unlock()
		g.logger.Warn("master password verification failed", "record", record.ID, "intent", intent, "error", err)
		return Decision{}, fmt.Errorf("verify master password: %w", err)
	}

	decision := Decision{Intent: intent, RecordID: record.ID}

	if !ok {
		decision.Verdict = VerdictDenied
		decision.Message = MsgInvalidMasterPassword
		g.mustTransition(Denied)
		g.message = MsgInvalidMasterPassword
		g.mustTransition(AwaitingMasterPassword)
		observers := g.observers
		g.mu.Unlock()

		g.logger.Info("access denied", "record", record.ID, "intent", intent)
		notify(observers, decision)
		return decision, nil
	}

	decision.Verdict = VerdictGranted
	g.mustTransition(Granted)
	g.message = ""
	g.seq++
	grant := Grant{record: record, intent: intent, seq: g.seq, gate: g}
	cont := g.continuations[intent]
	observers := g.observers
	g.mu.Unlock()

	g.logger.Info("access granted", "record", record.ID, "intent", intent)
	notify(observers, decision)

	var contErr error
	if cont == nil {
		contErr = fmt.Errorf("%w: %s", ErrNoHandler, intent)
	} else {
		contErr = cont(ctx, grant)
	}

	g.mu.Lock()
	g.record = nil
	g.intent = ""
	g.mustTransition(Idle)
	g.mu.Unlock()

	if contErr != nil {
		g.logger.Warn("granted operation failed", "record", record.ID, "intent", intent, "error", contErr)
		return decision, fmt.Errorf("%s %s: %w", intent, record.ID, contErr)
	}
	return decision, nil
}

// Cancel drops the pending request and entered value. It has no effect while
// a granted operation is running.
func (g *Gate) Cancel() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state == Granted || g.state == Idle {
		return
	}
	if g.record != nil {
		g.logger.Debug("access request cancelled", "record", g.record.ID, "intent", g.intent)
	}
	g.record = nil
	g.intent = ""
	g.input = ""
	g.message = ""
	g.mustTransition(Idle)
}

func (g *Gate) transition(to State) error {
	if !CanTransition(g.state, to) {
		return &TransitionError{From: g.state, To: to}
	}
	g.state = to
	return nil
}

func (g *Gate) mustTransition(to State) {
	if err := g.transition(to); err != nil {
		panic(err)
	}
}

func notify(observers []Observer, d Decision) {
	for _, o := range observers {
		o(d)
	}
}
