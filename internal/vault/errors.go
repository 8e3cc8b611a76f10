package vault

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized indicates the call was made without a valid session
	ErrUnauthorized = errors.New("unauthorized: no valid session")

	// ErrNotFound indicates the requested record does not exist
	ErrNotFound = errors.New("password not found")

	// ErrDuplicateEntry indicates a record with the same identity already exists
	ErrDuplicateEntry = errors.New("password entry already exists")

	// ErrValidation is matched by every *ValidationError
	ErrValidation = errors.New("validation failed")

	// ErrStoreFailure is matched by every *StoreError
	ErrStoreFailure = errors.New("vault store failure")
)

// ValidationError reports a user-supplied field that failed a required-field rule
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Is makes errors.Is(err, ErrValidation) hold for any ValidationError
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// StoreError wraps a failed Vault Store or Authenticator call. Status holds the
// HTTP status for remote stores and is zero for local ones.
type StoreError struct {
	Operation string
	Status    int
	Err       error
}

func (e *StoreError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("vault operation '%s' failed with status %d: %v", e.Operation, e.Status, e.Err)
	}
	return fmt.Sprintf("vault operation '%s' failed: %v", e.Operation, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrStoreFailure) hold for any StoreError
func (e *StoreError) Is(target error) bool {
	return target == ErrStoreFailure
}

// NewStoreError creates a new StoreError without a status code
func NewStoreError(operation string, err error) *StoreError {
	return &StoreError{Operation: operation, Err: err}
}
