// Package vaulttest provides in-memory collaborators for tests.
package vaulttest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/keyward/go/internal/vault"
)

// Store is an in-memory vault.Store. Fail makes the named operation return
// the given error until cleared.
type Store struct {
	mu      sync.Mutex
	now     func() time.Time
	nextID  int
	records []*vault.Password
	history map[string][]vault.HistoryEntry
	fail    map[string]error
	Calls   map[string]int
}

// NewStore creates a store seeded with copies of records
func NewStore(records ...*vault.Password) *Store {
	s := &Store{
		now:     time.Now,
		history: make(map[string][]vault.HistoryEntry),
		fail:    make(map[string]error),
		Calls:   make(map[string]int),
	}
	for _, r := range records {
		s.records = append(s.records, r.Clone())
	}
	return s
}

// SetClock replaces the clock used for timestamps
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Fail makes op return err; a nil err clears it
func (s *Store) Fail(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.fail, op)
		return
	}
	s.fail[op] = err
}

func (s *Store) enter(op string) error {
	s.Calls[op]++
	return s.fail[op]
}

func (s *Store) List(context.Context) ([]*vault.Password, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("list"); err != nil {
		return nil, err
	}
	out := make([]*vault.Password, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r.Clone())
	}
	return out, nil
}

func (s *Store) Get(_ context.Context, id string) (*vault.Password, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("get"); err != nil {
		return nil, err
	}
	r := s.find(id)
	if r == nil {
		return nil, fmt.Errorf("%w: %s", vault.ErrNotFound, id)
	}
	r.LastViewed = s.now()
	return r.Clone(), nil
}

func (s *Store) Create(_ context.Context, d vault.Draft) (*vault.Password, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("create"); err != nil {
		return nil, err
	}
	s.nextID++
	now := s.now()
	r := &vault.Password{
		ID:        fmt.Sprintf("pw-%d", s.nextID),
		Name:      d.Name,
		Password:  d.Password,
		Category:  d.Category,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if d.Category == vault.CategoryApplication {
		r.Application = &vault.ApplicationDetails{AccountName: d.AccountName, URL: d.URL}
	}
	s.records = append(s.records, r)
	return r.Clone(), nil
}

func (s *Store) Update(_ context.Context, id, password string) (*vault.Password, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("update"); err != nil {
		return nil, err
	}
	r := s.find(id)
	if r == nil {
		return nil, fmt.Errorf("%w: %s", vault.ErrNotFound, id)
	}
	now := s.now()
	s.history[id] = append(s.history[id], vault.HistoryEntry{
		ID:         fmt.Sprintf("h-%s-%d", id, len(s.history[id])+1),
		Value:      r.Password,
		CreatedAt:  now,
		PasswordID: id,
	})
	r.Password = password
	r.UpdatedAt = now
	return r.Clone(), nil
}

func (s *Store) Remove(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("remove"); err != nil {
		return err
	}
	for i, r := range s.records {
		if r.ID == id {
			s.records = append(s.records[:i:i], s.records[i+1:]...)
			delete(s.history, id)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", vault.ErrNotFound, id)
}

func (s *Store) History(_ context.Context, id string) ([]vault.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("history"); err != nil {
		return nil, err
	}
	if s.find(id) == nil {
		return nil, fmt.Errorf("%w: %s", vault.ErrNotFound, id)
	}
	out := make([]vault.HistoryEntry, len(s.history[id]))
	copy(out, s.history[id])
	return out, nil
}

// Snapshot returns a copy of the stored record, or nil
func (s *Store) Snapshot(id string) *vault.Password {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r := s.find(id); r != nil {
		return r.Clone()
	}
	return nil
}

func (s *Store) find(id string) *vault.Password {
	for _, r := range s.records {
		if r.ID == id {
			return r
		}
	}
	return nil
}

// Authenticator accepts exactly one master password
type Authenticator struct {
	Master string
	Err    error
	Calls  int
}

func (a *Authenticator) Verify(_ context.Context, candidate string) (bool, error) {
	a.Calls++
	if a.Err != nil {
		return false, a.Err
	}
	return candidate == a.Master, nil
}
