package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/keyward/go/internal/vault"
)

// DefaultTimeout bounds every backend call unless overridden
const DefaultTimeout = 15 * time.Second

// ErrTokenExpired is returned, wrapped in vault.ErrUnauthorized, when the
// bearer token's exp claim has passed
var ErrTokenExpired = errors.New("access token has expired")

// Client talks to the vault backend over HTTP/JSON. It implements
// vault.Store and vault.Authenticator.
type Client struct {
	baseURL    *url.URL
	token      string
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout; zero disables it
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClock sets the clock used to check token expiry
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// NewClient creates a client for the backend at baseURL
func NewClient(baseURL, token string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid backend url %q", baseURL)
	}

	c := &Client{
		baseURL:    u,
		token:      strings.TrimSpace(token),
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "remote")
	return c, nil
}

// checkToken fails fast when no request could succeed
func (c *Client) checkToken() error {
	if c.token == "" {
		return fmt.Errorf("%w: no access token", vault.ErrUnauthorized)
	}

	// Opaque tokens are left to the backend
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(c.token, claims); err != nil {
		return nil
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil
	}
	if !c.now().Before(exp.Time) {
		return fmt.Errorf("%w: %w", vault.ErrUnauthorized, ErrTokenExpired)
	}
	return nil
}

func (c *Client) endpoint(parts ...string) string {
	u := *c.baseURL
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	u.RawPath = strings.TrimRight(c.baseURL.EscapedPath(), "/") + "/" + strings.Join(escaped, "/")
	u.Path = strings.TrimRight(c.baseURL.Path, "/") + "/" + strings.Join(parts, "/")
	return u.String()
}

// do sends a request and decodes a 2xx JSON body into out. 401 becomes
// vault.ErrUnauthorized, 404 vault.ErrNotFound, anything else non-2xx a
// *vault.StoreError.
func (c *Client) do(ctx context.Context, op, method, endpoint string, body, out any) error {
	if err := c.checkToken(); err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode %s request: %w", op, err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := c.now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return vault.NewStoreError(op, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("backend call", "op", op, "method", method, "status", resp.StatusCode, "elapsed", c.now().Sub(start))

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", vault.ErrUnauthorized, backendMessage(resp.Body, "session rejected"))
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", vault.ErrNotFound, backendMessage(resp.Body, op))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return &vault.StoreError{
			Operation: op,
			Status:    resp.StatusCode,
			Err:       errors.New(backendMessage(resp.Body, http.StatusText(resp.StatusCode))),
		}
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return vault.NewStoreError(op, fmt.Errorf("invalid response body: %w", err))
	}
	return nil
}

func backendMessage(r io.Reader, fallback string) string {
	var e errorResponse
	if err := json.NewDecoder(io.LimitReader(r, 64<<10)).Decode(&e); err == nil {
		if e.Error != "" {
			return e.Error
		}
		if e.Message != "" {
			return e.Message
		}
	}
	return fallback
}

// List returns every record of the session's vault
func (c *Client) List(ctx context.Context) ([]*vault.Password, error) {
	var dtos []passwordDTO
	if err := c.do(ctx, "list_passwords", http.MethodGet, c.endpoint("passwords"), nil, &dtos); err != nil {
		return nil, err
	}
	out := make([]*vault.Password, 0, len(dtos))
	for _, d := range dtos {
		out = append(out, d.toPassword())
	}
	return out, nil
}

// Get fetches one record; the backend records the view
func (c *Client) Get(ctx context.Context, id string) (*vault.Password, error) {
	var dto passwordDTO
	if err := c.do(ctx, "get_password", http.MethodGet, c.endpoint("passwords", id), nil, &dto); err != nil {
		return nil, err
	}
	return dto.toPassword(), nil
}

// Create validates draft and stores it
func (c *Client) Create(ctx context.Context, draft vault.Draft) (*vault.Password, error) {
	d := draft.Normalize()
	if err := d.Validate(); err != nil {
		return nil, err
	}

	body := createRequest{
		Name:        d.Name,
		AccountName: d.AccountName,
		Password:    d.Password,
		URL:         d.URL,
		Category:    string(d.Category),
	}
	var dto passwordDTO
	if err := c.do(ctx, "create_password", http.MethodPost, c.endpoint("passwords"), body, &dto); err != nil {
		var se *vault.StoreError
		if errors.As(err, &se) && se.Status == http.StatusConflict {
			return nil, fmt.Errorf("%w: %v", vault.ErrDuplicateEntry, se.Err)
		}
		return nil, err
	}
	return dto.toPassword(), nil
}

// Update replaces the value of a record; the backend keeps the previous one
func (c *Client) Update(ctx context.Context, id, password string) (*vault.Password, error) {
	var dto passwordDTO
	if err := c.do(ctx, "update_password", http.MethodPut, c.endpoint("passwords", id), secretRequest{Password: password}, &dto); err != nil {
		return nil, err
	}
	return dto.toPassword(), nil
}

// Remove deletes a record
func (c *Client) Remove(ctx context.Context, id string) error {
	return c.do(ctx, "delete_password", http.MethodDelete, c.endpoint("passwords", id), nil, nil)
}

// History returns the prior values of a record
func (c *Client) History(ctx context.Context, id string) ([]vault.HistoryEntry, error) {
	var dtos []historyDTO
	if err := c.do(ctx, "password_history", http.MethodGet, c.endpoint("passwords", id, "history"), nil, &dtos); err != nil {
		return nil, err
	}
	out := make([]vault.HistoryEntry, 0, len(dtos))
	for _, d := range dtos {
		out = append(out, vault.HistoryEntry{
			ID:         string(d.ID),
			Value:      d.Value,
			CreatedAt:  d.CreatedAt,
			PasswordID: string(d.PasswordID),
		})
	}
	return out, nil
}

// Verify checks a master password with the backend
func (c *Client) Verify(ctx context.Context, candidate string) (bool, error) {
	var resp verifyResponse
	if err := c.do(ctx, "verify_password", http.MethodPost, c.endpoint("auth", "verify-password"), secretRequest{Password: candidate}, &resp); err != nil {
		return false, err
	}
	return resp.IsMatch, nil
}

// HasMasterPassword reports whether the account has a master password
func (c *Client) HasMasterPassword(ctx context.Context) (bool, error) {
	err := c.do(ctx, "check_master_password", http.MethodGet, c.endpoint("auth", "check-master-password"), nil, nil)
	if errors.Is(err, vault.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// SetupMasterPassword sets the initial master password
func (c *Client) SetupMasterPassword(ctx context.Context, password string) error {
	if err := vault.ValidateMasterPassword(password); err != nil {
		return err
	}
	return c.do(ctx, "setup_master_password", http.MethodPost, c.endpoint("auth", "setup-master-password"), secretRequest{Password: password}, nil)
}

// ChangeMasterPassword replaces the master password after the backend has
// checked current
func (c *Client) ChangeMasterPassword(ctx context.Context, current, next, confirm string) error {
	if err := vault.ValidateMasterPasswordChange(next, confirm); err != nil {
		return err
	}
	body := changeRequest{CurrentPassword: current, NewPassword: next}
	return c.do(ctx, "update_master_password", http.MethodPost, c.endpoint("auth", "update-password"), body, nil)
}
