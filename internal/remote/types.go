package remote

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/keyward/go/internal/vault"
)

// passwordDTO is the backend's JSON shape of a record
type passwordDTO struct {
	ID          flexID     `json:"id"`
	Name        string     `json:"name"`
	AccountName string     `json:"accountName"`
	Password    string     `json:"password"`
	URL         string     `json:"url,omitempty"`
	Category    string     `json:"category"`
	CreatedAt   *time.Time `json:"createdAt,omitempty"`
	UpdatedAt   *time.Time `json:"updatedAt,omitempty"`
	LastViewed  *time.Time `json:"lastViewed,omitempty"`
}

func (d passwordDTO) toPassword() *vault.Password {
	p := &vault.Password{
		ID:       string(d.ID),
		Name:     d.Name,
		Password: d.Password,
		Category: vault.Category(d.Category),
	}
	if p.Category == vault.CategoryApplication {
		p.Application = &vault.ApplicationDetails{AccountName: d.AccountName, URL: d.URL}
	}
	if d.CreatedAt != nil {
		p.CreatedAt = *d.CreatedAt
	}
	if d.UpdatedAt != nil {
		p.UpdatedAt = *d.UpdatedAt
	}
	if d.LastViewed != nil {
		p.LastViewed = *d.LastViewed
	}
	return p
}

// createRequest is the body of POST /passwords
type createRequest struct {
	Name        string `json:"name"`
	AccountName string `json:"accountName"`
	Password    string `json:"password"`
	URL         string `json:"url,omitempty"`
	Category    string `json:"category"`
}

// secretRequest carries a single password value
type secretRequest struct {
	Password string `json:"password"`
}

// changeRequest is the body of POST /auth/update-password
type changeRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type verifyResponse struct {
	IsMatch bool `json:"isMatch"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// historyDTO tolerates numeric ids
type historyDTO struct {
	ID         flexID    `json:"id"`
	Value      string    `json:"value"`
	CreatedAt  time.Time `json:"createdAt"`
	PasswordID flexID    `json:"passwordId"`
}

// flexID decodes a JSON string or number into a string
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}
