package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os/user"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/keyward/go/internal/vault"
)

// AuthAttempt is one logged master password verification
type AuthAttempt struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Username  string    `json:"username"`
	Success   bool      `json:"success"`
}

// HasMasterPassword reports whether the vault has been initialized
func (vd *VaultDatabase) HasMasterPassword(ctx context.Context) (bool, error) {
	if err := vd.ensureConnected(); err != nil {
		return false, err
	}

	var count int
	if err := vd.connection.QueryRowContext(ctx, `SELECT count(*) FROM master_credential`).Scan(&count); err != nil {
		return false, storeError("check_master_password", err)
	}
	return count > 0, nil
}

// SetupMasterPassword stores the hash of the initial master password
func (vd *VaultDatabase) SetupMasterPassword(ctx context.Context, password string) error {
	if err := vault.ValidateMasterPassword(password); err != nil {
		return err
	}

	exists, err := vd.HasMasterPassword(ctx)
	if err != nil {
		return err
	}
	if exists {
		return ErrMasterPasswordExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash master password: %w", err)
	}

	now := vd.now().UTC()
	if _, err := vd.connection.ExecContext(ctx,
		`INSERT INTO master_credential (id, hash, created_at, updated_at) VALUES (1, ?, ?, ?)`,
		string(hash), now, now); err != nil {
		return storeError("setup_master_password", err)
	}

	vd.logger.Info("master password set up")
	return nil
}

// Verify compares candidate with the stored master password hash. Every
// attempt is logged.
func (vd *VaultDatabase) Verify(ctx context.Context, candidate string) (bool, error) {
	if err := vd.ensureConnected(); err != nil {
		return false, err
	}

	var hash string
	err := vd.connection.QueryRowContext(ctx, `SELECT hash FROM master_credential WHERE id = 1`).Scan(&hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, ErrMasterPasswordNotSet
		}
		return false, storeError("read_master_password", err)
	}

	match := true
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(candidate)); err != nil {
		if !errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, fmt.Errorf("failed to compare master password: %w", err)
		}
		match = false
	}

	if err := vd.LogAuthAttempt(ctx, currentUsername(), match); err != nil {
		vd.logger.Warn("failed to log authentication attempt", "error", err)
	}
	return match, nil
}

// ChangeMasterPassword verifies current, re-encrypts the vault with next and
// stores its hash
func (vd *VaultDatabase) ChangeMasterPassword(ctx context.Context, current, next, confirm string) error {
	if err := vault.ValidateMasterPasswordChange(next, confirm); err != nil {
		return err
	}
	if err := vault.ValidateMasterPassword(next); err != nil {
		return err
	}

	ok, err := vd.Verify(ctx, current)
	if err != nil {
		return err
	}
	if !ok {
		return ErrAuthenticationFailed
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash master password: %w", err)
	}

	// The file key and the stored hash must always belong to the same password
	if err := vd.rekey(next); err != nil {
		return err
	}
	if _, err := vd.connection.ExecContext(ctx,
		`UPDATE master_credential SET hash = ?, updated_at = ? WHERE id = 1`,
		string(hash), vd.now().UTC()); err != nil {
		if rbErr := vd.rekey(current); rbErr != nil {
			vd.logger.Error("failed to restore vault key after hash update failure", "error", rbErr)
			return fmt.Errorf("%w (restoring the previous key also failed: %v)", storeError("update_master_password", err), rbErr)
		}
		return storeError("update_master_password", err)
	}

	// Pooled connections would still carry the old key
	if vd.dbPath != "" {
		if err := vd.Close(); err != nil {
			return err
		}
		if err := vd.Connect(next); err != nil {
			return fmt.Errorf("failed to verify new password after rekey: %w", err)
		}
	}

	vd.logger.Info("master password changed")
	return nil
}

// LogAuthAttempt records a master password verification
func (vd *VaultDatabase) LogAuthAttempt(ctx context.Context, username string, success bool) error {
	if err := vd.ensureConnected(); err != nil {
		return err
	}

	_, err := vd.connection.ExecContext(ctx,
		`INSERT INTO auth_attempts (timestamp, username, success) VALUES (?, ?, ?)`,
		vd.now().UTC(), username, success)
	if err != nil {
		return storeError("log_auth_attempt", err)
	}
	return nil
}

// RecentAuthAttempts returns the latest verification attempts, newest first
func (vd *VaultDatabase) RecentAuthAttempts(ctx context.Context, limit int) ([]AuthAttempt, error) {
	if err := vd.ensureConnected(); err != nil {
		return nil, err
	}

	rows, err := vd.connection.QueryContext(ctx, `
		SELECT id, timestamp, username, success
		FROM auth_attempts
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, storeError("list_auth_attempts", err)
	}
	defer rows.Close()

	var out []AuthAttempt
	for rows.Next() {
		var a AuthAttempt
		if err := rows.Scan(&a.ID, &a.Timestamp, &a.Username, &a.Success); err != nil {
			return nil, storeError("scan_auth_attempt", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("list_auth_attempts_iteration", err)
	}
	return out, nil
}

func currentUsername() string {
	u, err := user.Current()
	if err != nil {
		return "unknown"
	}
	return u.Username
}
