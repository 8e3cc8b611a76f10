// Package session tracks the unlocked state of the local vault: which
// password opened it, how long it stays open without activity, and the
// optional keyring auto-unlock.
package session

import (
	"context"
	"log/slog"
	"os/user"
	"sync"
	"time"
)

// DefaultTimeout is the idle period after which the vault locks itself
const DefaultTimeout = 15 * time.Minute

// Vault is the part of the local store a session drives
type Vault interface {
	Connect(password string) error
	Close() error
	IsConnected() bool
	LogAuthAttempt(ctx context.Context, username string, success bool) error
}

// Keyring holds the vault password between runs
type Keyring interface {
	Enabled() bool
	Has() bool
	Password() (string, error)
	Save(password string) error
}

// Method records how a session was unlocked
type Method string

const (
	MethodPassword Method = "password"
	MethodKeyring  Method = "keyring"
)

// Manager owns the session of one vault
type Manager struct {
	mu      sync.Mutex
	vault   Vault
	keyring Keyring
	timeout time.Duration
	now     func() time.Time
	logger  *slog.Logger

	active       bool
	method       Method
	unlockedAt   time.Time
	lastActivity time.Time
}

// Option configures a Manager
type Option func(*Manager)

// WithTimeout sets the idle timeout; zero or less keeps the default
func WithTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.timeout = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithKeyring enables keyring auto-unlock
func WithKeyring(kr Keyring) Option {
	return func(m *Manager) { m.keyring = kr }
}

// NewManager creates a locked session for v
func NewManager(v Vault, opts ...Option) *Manager {
	m := &Manager{
		vault:   v,
		timeout: DefaultTimeout,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "session")
	return m
}

// Unlock opens the vault with password and starts a session
func (m *Manager) Unlock(ctx context.Context, password string) error {
	return m.unlock(ctx, password, MethodPassword)
}

// UnlockWithKeyring opens the vault with the password stored in the keyring
func (m *Manager) UnlockWithKeyring(ctx context.Context) error {
	if m.keyring == nil {
		return ErrNoKeyring
	}
	password, err := m.keyring.Password()
	if err != nil {
		return err
	}
	return m.unlock(ctx, password, MethodKeyring)
}

func (m *Manager) unlock(ctx context.Context, password string, method Method) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.vault.Connect(password); err != nil {
		m.logger.Warn("unlock failed", "method", method)
		return err
	}
	if err := m.vault.LogAuthAttempt(ctx, currentUsername(), true); err != nil {
		m.logger.Warn("failed to log unlock", "error", err)
	}

	now := m.now()
	m.active = true
	m.method = method
	m.unlockedAt = now
	m.lastActivity = now
	m.logger.Debug("vault unlocked", "method", method, "timeout", m.timeout)
	return nil
}

// CanRemember reports whether a password-unlocked session could store its
// password in the keyring
func (m *Manager) CanRemember() bool {
	if m.keyring == nil || !m.keyring.Enabled() || m.keyring.Has() {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active && m.method == MethodPassword
}

// Remember stores password in the keyring for the next unlock
func (m *Manager) Remember(password string) error {
	if m.keyring == nil {
		return ErrNoKeyring
	}
	return m.keyring.Save(password)
}

// Check fails when the session is locked or has timed out. An expired
// session closes the vault.
func (m *Manager) Check() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.checkLocked()
}

func (m *Manager) checkLocked() error {
	if !m.active {
		return ErrLocked
	}
	if m.now().Sub(m.lastActivity) >= m.timeout {
		m.expireLocked()
		return ErrSessionExpired
	}
	if !m.vault.IsConnected() {
		m.active = false
		return ErrLocked
	}
	return nil
}

// Refresh records activity and extends the session
func (m *Manager) Refresh() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkLocked(); err != nil {
		return err
	}
	m.lastActivity = m.now()
	return nil
}

// Active reports whether the session is usable right now
func (m *Manager) Active() bool {
	return m.Check() == nil
}

// Lock ends the session and closes the vault
func (m *Manager) Lock() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.active && !m.vault.IsConnected() {
		return nil
	}
	m.active = false
	return m.vault.Close()
}

func (m *Manager) expireLocked() {
	m.active = false
	if err := m.vault.Close(); err != nil {
		m.logger.Warn("failed to close expired vault", "error", err)
	}
	m.logger.Info("session expired", "idle", m.now().Sub(m.lastActivity))
}

// Info describes the session for display
type Info struct {
	Active       bool          `json:"active"`
	Method       Method        `json:"method,omitempty"`
	UnlockedAt   time.Time     `json:"unlocked_at,omitzero"`
	LastActivity time.Time     `json:"last_activity,omitzero"`
	Remaining    time.Duration `json:"remaining"`
	Timeout      time.Duration `json:"timeout"`
}

func (m *Manager) Info() Info {
	m.mu.Lock()
	defer m.mu.Unlock()

	info := Info{Timeout: m.timeout}
	if m.checkLocked() != nil {
		return info
	}
	info.Active = true
	info.Method = m.method
	info.UnlockedAt = m.unlockedAt
	info.LastActivity = m.lastActivity
	info.Remaining = m.timeout - m.now().Sub(m.lastActivity)
	return info
}

func currentUsername() string {
	u, err := user.Current()
	if err != nil {
		return "unknown"
	}
	return u.Username
}
