// Package clipboard copies secrets to the system clipboard and clears them
// again after a delay, unless something else was copied meanwhile.
package clipboard

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultClearDelay is how long a copied secret stays on the clipboard
	DefaultClearDelay = 60 * time.Second

	// MaxSize caps what may be copied
	MaxSize = 1 << 20
)

// Manager copies text and schedules the auto-clear
type Manager struct {
	backend Backend
	delay   time.Duration
	logger  *slog.Logger

	mu    sync.Mutex
	timer *time.Timer
	gen   uint64
	last  string
	done  chan struct{}
}

// Option configures a Manager
type Option func(*Manager)

// WithClearDelay sets the auto-clear delay; zero disables it
func WithClearDelay(d time.Duration) Option {
	return func(m *Manager) { m.delay = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

func NewManager(backend Backend, opts ...Option) *Manager {
	m := &Manager{
		backend: backend,
		delay:   DefaultClearDelay,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "clipboard")
	return m
}

func (m *Manager) ClearDelay() time.Duration { return m.delay }
func (m *Manager) Backend() string           { return m.backend.Name() }

// Copy puts text on the clipboard and schedules it to be cleared. A newer
// Copy replaces the pending clear.
func (m *Manager) Copy(text string) error {
	if len(text) > MaxSize {
		return fmt.Errorf("clipboard content too large: %d bytes (max %d)", len(text), MaxSize)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopLocked()
	if err := m.backend.Write(text); err != nil {
		return fmt.Errorf("failed to copy to clipboard: %w", err)
	}
	m.last = text
	m.gen++

	if m.delay > 0 {
		done := make(chan struct{})
		gen := m.gen
		m.done = done
		m.timer = time.AfterFunc(m.delay, func() {
			defer close(done)
			if err := m.clearIfUnchanged(gen); err != nil {
				m.logger.Warn("failed to auto-clear clipboard", "error", err)
			}
		})
	}
	return nil
}

// Wait blocks until the pending auto-clear has run. It returns at once
// when nothing is scheduled.
func (m *Manager) Wait() {
	m.mu.Lock()
	done := m.done
	m.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Pending reports whether an auto-clear is scheduled
func (m *Manager) Pending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timer != nil
}

// Clear empties the clipboard now and cancels any pending auto-clear
func (m *Manager) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()
	m.last = ""
	m.gen++
	if err := m.backend.Write(""); err != nil {
		return fmt.Errorf("failed to clear clipboard: %w", err)
	}
	return nil
}

func (m *Manager) stopLocked() {
	if m.timer != nil {
		if m.timer.Stop() && m.done != nil {
			close(m.done)
		}
		m.timer = nil
		m.done = nil
	}
}

// clearIfUnchanged runs from the timer of copy generation gen; a later
// Copy or Clear makes it a no-op
func (m *Manager) clearIfUnchanged(gen uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.gen {
		return nil
	}
	m.timer = nil
	m.done = nil
	if m.last == "" {
		return nil
	}
	secret := m.last
	m.last = ""

	current, err := m.backend.Read()
	if err != nil {
		// Unreadable clipboard is left alone
		return fmt.Errorf("cannot verify clipboard content: %w", err)
	}
	if current != secret {
		m.logger.Debug("clipboard changed, not clearing")
		return nil
	}
	if err := m.backend.Write(""); err != nil {
		return err
	}
	m.logger.Debug("clipboard cleared")
	return nil
}
