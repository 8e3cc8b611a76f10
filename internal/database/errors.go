package database

import (
	"errors"
	"fmt"
	"strings"

	"github.com/keyward/go/internal/vault"
)

var (
	// ErrAuthenticationFailed indicates the vault file could not be opened with the given password
	ErrAuthenticationFailed = errors.New("authentication failed: incorrect password")

	// ErrDatabaseNotConnected indicates no active database connection
	ErrDatabaseNotConnected = fmt.Errorf("%w: database not connected", vault.ErrUnauthorized)

	// ErrMasterPasswordNotSet indicates the vault has not been initialized
	ErrMasterPasswordNotSet = errors.New("master password has not been set up")

	// ErrMasterPasswordExists indicates the vault is already initialized
	ErrMasterPasswordExists = errors.New("master password is already set up")
)

// storeError wraps a SQL failure of operation as a vault.StoreError
func storeError(operation string, err error) error {
	return vault.NewStoreError(operation, err)
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
