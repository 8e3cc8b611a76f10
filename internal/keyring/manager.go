// Package keyring keeps the vault password in the OS keyring so the local
// vault can be unlocked without a prompt. The password is sealed with an
// envelope key stored next to it; the vault file itself stays portable.
package keyring

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/zalando/go-keyring"

	"github.com/keyward/go/internal/crypto"
)

const (
	// ServiceName identifies keyward items in the OS keyring
	ServiceName = "keyward"

	// DefaultAccount is used when no vault path is bound
	DefaultAccount = "default"
)

// item is the JSON stored as the keyring secret
type item struct {
	Key    string `json:"key"`
	Sealed string `json:"sealed"`
}

// Manager stores and retrieves one vault's password
type Manager struct {
	mu      sync.Mutex
	service string
	account string
	enabled bool
	key     crypto.Key
}

// Option configures a Manager
type Option func(*Manager)

// WithService overrides the keyring service name
func WithService(name string) Option {
	return func(m *Manager) { m.service = name }
}

// ForVault binds the manager to a vault file so several vaults can keep
// separate passwords
func ForVault(path string) Option {
	return func(m *Manager) {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
		m.account = "vault:" + path
	}
}

// Disabled starts the manager disabled
func Disabled() Option {
	return func(m *Manager) { m.enabled = false }
}

func NewManager(opts ...Option) *Manager {
	m := &Manager{
		service: ServiceName,
		account: DefaultAccount,
		enabled: true,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) Service() string { return m.service }
func (m *Manager) Account() string { return m.account }

func (m *Manager) Enabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled
}

func (m *Manager) SetEnabled(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = enabled
}

// Save seals password and stores it, reusing the envelope key already in
// the keyring when there is one
func (m *Manager) Save(password string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.enabled {
		return ErrDisabled
	}

	key := m.key
	if key == nil {
		existing, err := m.load()
		switch {
		case err == nil:
			if key, err = crypto.DecodeKey(existing.Key); err != nil {
				key = nil
			}
		case !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrCorrupt):
			return err
		}
	}
	if key == nil {
		var err error
		if key, err = crypto.GenerateKey(); err != nil {
			return err
		}
	}

	env, err := crypto.New(key)
	if err != nil {
		return err
	}
	sealed, err := env.Seal(password)
	if err != nil {
		return fmt.Errorf("failed to seal vault password: %w", err)
	}

	payload, err := json.Marshal(item{Key: key.Encode(), Sealed: sealed})
	if err != nil {
		return fmt.Errorf("failed to encode keyring item: %w", err)
	}
	if err := keyring.Set(m.service, m.account, string(payload)); err != nil {
		return fmt.Errorf("failed to save to keyring: %w", err)
	}
	m.key = key
	return nil
}

// Password returns the stored vault password
func (m *Manager) Password() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.enabled {
		return "", ErrDisabled
	}

	it, err := m.load()
	if err != nil {
		return "", err
	}
	key, err := crypto.DecodeKey(it.Key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	env, err := crypto.New(key)
	if err != nil {
		return "", err
	}
	password, err := env.Open(it.Sealed)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	m.key = key
	return password, nil
}

// Has reports whether a password is stored
func (m *Manager) Has() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.enabled {
		return false
	}
	_, err := m.load()
	return err == nil
}

// Delete removes the stored item; a missing item is not an error
func (m *Manager) Delete() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.enabled {
		return ErrDisabled
	}

	m.forget()
	if err := keyring.Delete(m.service, m.account); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to delete from keyring: %w", err)
	}
	return nil
}

// ClearCache drops the cached envelope key
func (m *Manager) ClearCache() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forget()
}

func (m *Manager) forget() {
	if m.key != nil {
		m.key.Zeroize()
		m.key = nil
	}
}

func (m *Manager) load() (*item, error) {
	raw, err := keyring.Get(m.service, m.account)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read from keyring: %w", err)
	}

	var it item
	if err := json.Unmarshal([]byte(raw), &it); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return &it, nil
}

// Status describes the keyring integration for display
type Status struct {
	Service   string `json:"service"`
	Account   string `json:"account"`
	Enabled   bool   `json:"enabled"`
	Stored    bool   `json:"stored"`
	Supported bool   `json:"supported"`
}

func (m *Manager) Status() Status {
	return Status{
		Service:   m.service,
		Account:   m.account,
		Enabled:   m.Enabled(),
		Stored:    m.Has(),
		Supported: IsSupported(),
	}
}

// IsSupported probes the OS keyring with a throwaway item
func IsSupported() bool {
	const probe = ServiceName + "-probe"
	if err := keyring.Set(probe, "probe", "probe"); err != nil {
		return false
	}
	keyring.Delete(probe, "probe")
	return true
}
