package gate

import (
	"errors"
	"fmt"
)

var (
	// ErrNoPendingRequest is returned when submitting without a pending request
	ErrNoPendingRequest = errors.New("no pending access request")

	// ErrUnknownIntent is returned for intents the gate does not handle
	ErrUnknownIntent = errors.New("unknown intent")

	// ErrNoHandler is returned when an intent has no registered continuation
	ErrNoHandler = errors.New("no continuation registered for intent")

	// ErrInvalidTransition is the base error of TransitionError
	ErrInvalidTransition = errors.New("invalid gate transition")
)

// MsgInvalidMasterPassword is the user-visible signal of a denied submission
const MsgInvalidMasterPassword = "Invalid master password"

// TransitionError describes a rejected state change
type TransitionError struct {
	From State
	To   State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid gate transition from %s to %s", e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}
