package keyring

import "errors"

var (
	// ErrDisabled is returned when keyring integration is turned off
	ErrDisabled = errors.New("keyring is disabled")

	// ErrNotFound is returned when nothing is stored for the vault
	ErrNotFound = errors.New("vault password not found in keyring")

	// ErrCorrupt is returned when the stored item cannot be decoded or opened
	ErrCorrupt = errors.New("keyring item is corrupt")
)
