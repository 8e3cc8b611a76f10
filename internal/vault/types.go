package vault

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Category selects which optional fields of a Password are meaningful
type Category string

const (
	CategoryDevice      Category = "device"
	CategoryApplication Category = "application"
)

// ParseCategory parses a category name case-insensitively
func ParseCategory(s string) (Category, error) {
	switch Category(strings.ToLower(strings.TrimSpace(s))) {
	case CategoryDevice:
		return CategoryDevice, nil
	case CategoryApplication:
		return CategoryApplication, nil
	}
	return "", NewValidationError("category", fmt.Sprintf("unknown category %q", s))
}

// ApplicationDetails holds the fields only application records carry
type ApplicationDetails struct {
	AccountName string `json:"accountName"`
	URL         string `json:"url,omitempty"`
}

// Password is a stored credential. Application is non-nil iff Category is
// CategoryApplication. A zero time means the backend did not report it.
type Password struct {
	ID          string
	Name        string
	Password    string
	Category    Category
	Application *ApplicationDetails
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastViewed  time.Time
}

// AccountName returns the account of an application record, "" for devices
func (p *Password) AccountName() string {
	if p.Application == nil {
		return ""
	}
	return p.Application.AccountName
}

// URL returns the url of an application record, "" for devices
func (p *Password) URL() string {
	if p.Application == nil {
		return ""
	}
	return p.Application.URL
}

// Label returns a human readable identifier for the record
func (p *Password) Label() string {
	if account := p.AccountName(); account != "" {
		return fmt.Sprintf("%s (%s)", p.Name, account)
	}
	return p.Name
}

// Clone returns a copy that shares no mutable state with p
func (p *Password) Clone() *Password {
	c := *p
	if p.Application != nil {
		details := *p.Application
		c.Application = &details
	}
	return &c
}

// HistoryEntry is one prior plaintext value of a record
type HistoryEntry struct {
	ID         string    `json:"id"`
	Value      string    `json:"value"`
	CreatedAt  time.Time `json:"createdAt"`
	PasswordID string    `json:"passwordId"`
}

// SortHistory orders entries by creation time
func SortHistory(entries []HistoryEntry, newestFirst bool) {
	sort.SliceStable(entries, func(i, j int) bool {
		if newestFirst {
			return entries[i].CreatedAt.After(entries[j].CreatedAt)
		}
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
}

// Store is the Vault Store collaborator. Every call is scoped to the
// authenticated session and fails with ErrUnauthorized without one.
type Store interface {
	List(ctx context.Context) ([]*Password, error)
	// Get fetches a single record for display; the store records the view in LastViewed.
	Get(ctx context.Context, id string) (*Password, error)
	Create(ctx context.Context, draft Draft) (*Password, error)
	// Update replaces the plaintext value after snapshotting the previous one into history.
	Update(ctx context.Context, id, password string) (*Password, error)
	Remove(ctx context.Context, id string) error
	History(ctx context.Context, id string) ([]HistoryEntry, error)
}

// Authenticator verifies a master password for the current session
type Authenticator interface {
	Verify(ctx context.Context, candidate string) (bool, error)
}
