package keyring

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func newTestManager(t *testing.T, opts ...Option) *Manager {
	t.Helper()
	keyring.MockInit()
	return NewManager(append([]Option{WithService("keyward-test")}, opts...)...)
}

func TestNewManager(t *testing.T) {
	m := NewManager()
	assert.Equal(t, ServiceName, m.Service())
	assert.Equal(t, DefaultAccount, m.Account())
	assert.True(t, m.Enabled())

	assert.False(t, NewManager(Disabled()).Enabled())
}

func TestForVaultUsesAbsolutePath(t *testing.T) {
	m := NewManager(ForVault("/tmp/a/vault.db"))
	assert.Equal(t, "vault:/tmp/a/vault.db", m.Account())
}

func TestSaveAndPassword(t *testing.T) {
	m := newTestManager(t)

	assert.False(t, m.Has())
	_, err := m.Password()
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, m.Save("my-super-secret-password-123!"))
	assert.True(t, m.Has())

	pw, err := m.Password()
	require.NoError(t, err)
	assert.Equal(t, "my-super-secret-password-123!", pw)
}

func TestStoredItemIsSealed(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Save("plaintext-secret"))

	raw, err := keyring.Get(m.Service(), m.Account())
	require.NoError(t, err)
	assert.NotContains(t, raw, "plaintext-secret")
	assert.Contains(t, raw, `"sealed"`)
}

func TestSaveReusesEnvelopeKey(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Save("first"))
	first, err := keyring.Get(m.Service(), m.Account())
	require.NoError(t, err)

	// A fresh manager picks the key up from the keyring
	other := NewManager(WithService(m.Service()))
	require.NoError(t, other.Save("second"))
	second, err := keyring.Get(m.Service(), m.Account())
	require.NoError(t, err)

	var a, b item
	require.NoError(t, jsonUnmarshal(first, &a))
	require.NoError(t, jsonUnmarshal(second, &b))
	assert.Equal(t, a.Key, b.Key)
	assert.NotEqual(t, a.Sealed, b.Sealed)

	pw, err := m.Password()
	require.NoError(t, err)
	assert.Equal(t, "second", pw)
}

func TestVaultsAreIsolated(t *testing.T) {
	keyring.MockInit()
	a := NewManager(WithService("keyward-test"), ForVault("/vaults/a.db"))
	b := NewManager(WithService("keyward-test"), ForVault("/vaults/b.db"))

	require.NoError(t, a.Save("alpha"))
	assert.False(t, b.Has())

	require.NoError(t, b.Save("bravo"))
	pa, err := a.Password()
	require.NoError(t, err)
	pb, err := b.Password()
	require.NoError(t, err)
	assert.Equal(t, "alpha", pa)
	assert.Equal(t, "bravo", pb)
}

func TestDelete(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Save("test"))

	require.NoError(t, m.Delete())
	assert.False(t, m.Has())

	// Deleting again is fine
	assert.NoError(t, m.Delete())
}

func TestDisabled(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Save("kept"))

	m.SetEnabled(false)
	assert.ErrorIs(t, m.Save("x"), ErrDisabled)
	assert.ErrorIs(t, m.Delete(), ErrDisabled)
	assert.False(t, m.Has())
	_, err := m.Password()
	assert.ErrorIs(t, err, ErrDisabled)

	m.SetEnabled(true)
	pw, err := m.Password()
	require.NoError(t, err)
	assert.Equal(t, "kept", pw)
}

func TestCorruptItem(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, keyring.Set(m.Service(), m.Account(), "not json"))

	_, err := m.Password()
	assert.ErrorIs(t, err, ErrCorrupt)

	// Saving over a corrupt item replaces it
	require.NoError(t, m.Save("fresh"))
	pw, err := m.Password()
	require.NoError(t, err)
	assert.Equal(t, "fresh", pw)
}

func TestClearCacheKeepsStoredItem(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Save("test"))
	m.ClearCache()

	pw, err := m.Password()
	require.NoError(t, err)
	assert.Equal(t, "test", pw)
}

func TestBackendFailure(t *testing.T) {
	keyring.MockInitWithError(errors.New("dbus unavailable"))
	t.Cleanup(keyring.MockInit)
	m := NewManager(WithService("keyward-test"))

	err := m.Save("x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dbus unavailable")
	assert.False(t, m.Has())
	assert.False(t, IsSupported())
}

func TestStatus(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Save("x"))

	st := m.Status()
	assert.Equal(t, "keyward-test", st.Service)
	assert.True(t, st.Enabled)
	assert.True(t, st.Stored)
	assert.True(t, st.Supported)
}

func jsonUnmarshal(s string, v any) error {
	return json.Unmarshal([]byte(s), v)
}
