package cli

import (
	"context"
	"io"
	"log/slog"

	"github.com/keyward/go/internal/database"
	"github.com/keyward/go/internal/remote"
	"github.com/keyward/go/internal/vault"
)

// Backend is a vault the CLI can run against: the local SQLCipher file or
// the remote HTTP backend
type Backend interface {
	vault.Store
	vault.Authenticator
	HasMasterPassword(ctx context.Context) (bool, error)
	SetupMasterPassword(ctx context.Context, password string) error
	ChangeMasterPassword(ctx context.Context, current, next, confirm string) error
}

// newLogger builds the stderr handler: debug output with --verbose,
// warnings and errors otherwise
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

var (
	_ Backend = (*database.VaultDatabase)(nil)
	_ Backend = (*remote.Client)(nil)
)
