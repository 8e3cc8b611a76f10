package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyward/go/internal/vault"
)

const token = "opaque-token"

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(srv.URL+"/api", token, opts...)
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func TestClient_ListSendsBearerAndDecodes(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/passwords", r.URL.Path)
		assert.Equal(t, "Bearer "+token, r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"id":"1","name":"Router","accountName":"","password":"abc","category":"device","createdAt":"2025-01-02T03:04:05Z"},
			{"id":2,"name":"Mail","accountName":"me","password":"xyz","url":"https://mail","category":"application","lastViewed":"2025-05-01T00:00:00Z"}
		]`))
	})

	records, err := c.List(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "1", records[0].ID)
	assert.Nil(t, records[0].Application)
	assert.Equal(t, time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC), records[0].CreatedAt.UTC())

	assert.Equal(t, "2", records[1].ID)
	assert.Equal(t, "me", records[1].AccountName())
	assert.Equal(t, "https://mail", records[1].URL())
	assert.True(t, records[1].CreatedAt.IsZero())
	assert.False(t, records[1].LastViewed.IsZero())
}

func TestClient_StatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   any
		check  func(t *testing.T, err error)
	}{
		{"unauthorized", http.StatusUnauthorized, map[string]string{"error": "Unauthorized"}, func(t *testing.T, err error) {
			assert.ErrorIs(t, err, vault.ErrUnauthorized)
			assert.NotErrorIs(t, err, vault.ErrStoreFailure)
		}},
		{"not found", http.StatusNotFound, map[string]string{"error": "Password not found"}, func(t *testing.T, err error) {
			assert.ErrorIs(t, err, vault.ErrNotFound)
		}},
		{"server error", http.StatusInternalServerError, map[string]string{"error": "Failed to fetch password"}, func(t *testing.T, err error) {
			var se *vault.StoreError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, http.StatusInternalServerError, se.Status)
			assert.Equal(t, "get_password", se.Operation)
			assert.Contains(t, err.Error(), "Failed to fetch password")
			assert.ErrorIs(t, err, vault.ErrStoreFailure)
		}},
		{"bad gateway without body", http.StatusBadGateway, nil, func(t *testing.T, err error) {
			assert.ErrorIs(t, err, vault.ErrStoreFailure)
			assert.Contains(t, err.Error(), "Bad Gateway")
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if tt.body == nil {
					w.WriteHeader(tt.status)
					return
				}
				writeJSON(w, tt.status, tt.body)
			})
			_, err := c.Get(context.Background(), "42")
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestClient_GetEscapesID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/passwords/a%2Fb", r.URL.RawPath)
		writeJSON(w, http.StatusOK, map[string]any{"id": "a/b", "name": "x", "password": "p", "category": "device"})
	})
	p, err := c.Get(context.Background(), "a/b")
	require.NoError(t, err)
	assert.Equal(t, "a/b", p.ID)
}

func TestClient_CreateAndUpdateBodies(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		switch r.Method {
		case http.MethodPost:
			assert.Equal(t, "/api/passwords", r.URL.Path)
			assert.Equal(t, map[string]any{
				"name": "Mail", "accountName": "me", "password": "pw", "category": "application",
			}, body)
			writeJSON(w, http.StatusCreated, map[string]any{"id": "9", "name": "Mail", "accountName": "me", "password": "pw", "category": "application"})
		case http.MethodPut:
			assert.Equal(t, "/api/passwords/9", r.URL.Path)
			assert.Equal(t, map[string]any{"password": "new"}, body)
			writeJSON(w, http.StatusOK, map[string]any{"id": "9", "name": "Mail", "accountName": "me", "password": "new", "category": "application"})
		}
	})

	created, err := c.Create(context.Background(), vault.NewApplicationDraft(" Mail ", "me", "", "pw"))
	require.NoError(t, err)
	assert.Equal(t, "9", created.ID)

	updated, err := c.Update(context.Background(), "9", "new")
	require.NoError(t, err)
	assert.Equal(t, "new", updated.Password)
}

func TestClient_CreateValidatesBeforeRequest(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) { calls++ })

	_, err := c.Create(context.Background(), vault.NewApplicationDraft("Mail", "", "", "pw"))
	assert.ErrorIs(t, err, vault.ErrValidation)
	assert.Equal(t, 0, calls)
}

func TestClient_CreateConflict(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "A device with this name already exists"})
	})
	_, err := c.Create(context.Background(), vault.NewDeviceDraft("Router", "pw"))
	assert.ErrorIs(t, err, vault.ErrDuplicateEntry)
}

func TestClient_RemoveAndHistory(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodDelete && r.URL.Path == "/api/passwords/9":
			w.WriteHeader(http.StatusNoContent)
		case r.Method == http.MethodGet && r.URL.Path == "/api/passwords/9/history":
			w.Write([]byte(`[{"id":1,"value":"old","createdAt":"2025-01-01T00:00:00Z","passwordId":9}]`))
		default:
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
	})

	require.NoError(t, c.Remove(context.Background(), "9"))

	history, err := c.History(context.Background(), "9")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "1", history[0].ID)
	assert.Equal(t, "9", history[0].PasswordID)
	assert.Equal(t, "old", history[0].Value)
}

func TestClient_Verify(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/auth/verify-password", r.URL.Path)
		var body secretRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		writeJSON(w, http.StatusOK, verifyResponse{IsMatch: body.Password == "right"})
	})

	ok, err := c.Verify(context.Background(), "right")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.Verify(context.Background(), "wrong")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClient_MasterPasswordSetup(t *testing.T) {
	configured := false
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/check-master-password":
			if !configured {
				writeJSON(w, http.StatusNotFound, map[string]string{"error": "Master password not set up"})
				return
			}
			writeJSON(w, http.StatusOK, map[string]bool{"hasMasterPassword": true})
		case "/api/auth/setup-master-password":
			configured = true
			writeJSON(w, http.StatusOK, map[string]string{"message": "ok"})
		}
	})
	ctx := context.Background()

	has, err := c.HasMasterPassword(ctx)
	require.NoError(t, err)
	assert.False(t, has)

	assert.ErrorIs(t, c.SetupMasterPassword(ctx, "weak"), vault.ErrValidation)
	require.NoError(t, c.SetupMasterPassword(ctx, "Master-Passw0rd!"))

	has, err = c.HasMasterPassword(ctx)
	require.NoError(t, err)
	assert.True(t, has)
}

func TestClient_MissingTokenShortCircuits(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { calls++ }))
	defer srv.Close()

	c, err := NewClient(srv.URL, "  ")
	require.NoError(t, err)

	_, err = c.List(context.Background())
	assert.ErrorIs(t, err, vault.ErrUnauthorized)
	_, err = c.Verify(context.Background(), "x")
	assert.ErrorIs(t, err, vault.ErrUnauthorized)
	assert.Equal(t, 0, calls)
}

func TestClient_ExpiredJWTShortCircuits(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	sign := func(exp time.Time) string {
		tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "42", "exp": exp.Unix()})
		s, err := tok.SignedString([]byte("test-key"))
		require.NoError(t, err)
		return s
	}

	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	expired, err := NewClient(srv.URL, sign(now.Add(-time.Minute)), WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	_, err = expired.List(context.Background())
	assert.ErrorIs(t, err, vault.ErrUnauthorized)
	assert.ErrorIs(t, err, ErrTokenExpired)
	assert.Equal(t, 0, calls)

	valid, err := NewClient(srv.URL, sign(now.Add(time.Hour)), WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	_, err = valid.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestClient_TransportFailureIsStoreError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	c, err := NewClient(url, token, WithTimeout(time.Second))
	require.NoError(t, err)
	_, err = c.List(context.Background())
	assert.ErrorIs(t, err, vault.ErrStoreFailure)
}

func TestNewClient_RejectsBadURL(t *testing.T) {
	_, err := NewClient("not a url", token)
	assert.Error(t, err)
}

func TestClient_ChangeMasterPassword(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/auth/update-password", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["currentPassword"] != "Master-Passw0rd!" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Current password is incorrect"})
			return
		}
		assert.Equal(t, map[string]string{"currentPassword": "Master-Passw0rd!", "newPassword": "N3w-Passw0rd!"}, body)
		writeJSON(w, http.StatusOK, map[string]string{"message": "Password updated"})
	})
	ctx := context.Background()

	// Confirmation and length are checked before any request
	assert.ErrorIs(t, c.ChangeMasterPassword(ctx, "Master-Passw0rd!", "N3w-Passw0rd!", "other"), vault.ErrValidation)
	assert.ErrorIs(t, c.ChangeMasterPassword(ctx, "Master-Passw0rd!", "short", "short"), vault.ErrValidation)
	assert.Equal(t, 0, calls)

	err := c.ChangeMasterPassword(ctx, "wrong", "N3w-Passw0rd!", "N3w-Passw0rd!")
	assert.ErrorIs(t, err, vault.ErrUnauthorized)
	assert.Contains(t, err.Error(), "Current password is incorrect")

	require.NoError(t, c.ChangeMasterPassword(ctx, "Master-Passw0rd!", "N3w-Passw0rd!", "N3w-Passw0rd!"))
	assert.Equal(t, 2, calls)
}
