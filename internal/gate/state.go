package gate

import (
	"fmt"
	"strings"
)

// State is the position of the gate in the re-authentication cycle
type State int

const (
	Idle State = iota
	AwaitingMasterPassword
	Granted
	Denied
)

// String returns the state name
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingMasterPassword:
		return "awaiting master password"
	case Granted:
		return "granted"
	case Denied:
		return "denied"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// transitions lists the legal next states for each state.
// AwaitingMasterPassword -> AwaitingMasterPassword is a replaced request.
var transitions = map[State][]State{
	Idle:                   {AwaitingMasterPassword},
	AwaitingMasterPassword: {AwaitingMasterPassword, Granted, Denied, Idle},
	Granted:                {Idle},
	Denied:                 {AwaitingMasterPassword, Idle},
}

// CanTransition reports whether the gate may move from one state to another
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Intent is the operation a request for access will perform once granted
type Intent string

const (
	IntentReveal Intent = "reveal"
	IntentDelete Intent = "delete"
	IntentFix    Intent = "fix"
)

// Intents lists every known intent
func Intents() []Intent {
	return []Intent{IntentReveal, IntentDelete, IntentFix}
}

// Valid reports whether the intent is known
func (i Intent) Valid() bool {
	switch i {
	case IntentReveal, IntentDelete, IntentFix:
		return true
	}
	return false
}

// ParseIntent converts a string into an Intent, ignoring case
func ParseIntent(s string) (Intent, error) {
	i := Intent(strings.ToLower(strings.TrimSpace(s)))
	if !i.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownIntent, s)
	}
	return i, nil
}

// Verdict is the outcome of a submitted master password
type Verdict string

const (
	VerdictGranted Verdict = "granted"
	VerdictDenied  Verdict = "denied"
)
