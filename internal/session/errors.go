package session

import (
	"errors"
	"fmt"

	"github.com/keyward/go/internal/vault"
)

var (
	// ErrLocked is returned when no session has been started
	ErrLocked = fmt.Errorf("%w: vault is locked", vault.ErrUnauthorized)

	// ErrSessionExpired is returned once the idle timeout has passed
	ErrSessionExpired = fmt.Errorf("%w: session expired", vault.ErrUnauthorized)

	// ErrNoKeyring is returned by UnlockWithKeyring when no keyring is wired
	ErrNoKeyring = errors.New("no keyring configured")
)
