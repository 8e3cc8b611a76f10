package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allEnvKeys = []string{
	EnvBackend, EnvVaultPath, EnvAPIURL, EnvToken,
	EnvRemoteTimeout, EnvSessionTimeout, EnvClipboard, EnvClipboardClearDelay,
}

// isolateEnv unsets every KEYWARD_ variable for the test and restores it after
func isolateEnv(t *testing.T) {
	t.Helper()
	for _, key := range allEnvKeys {
		if orig, ok := os.LookupEnv(key); ok {
			t.Cleanup(func() { os.Setenv(key, orig) })
		} else {
			t.Cleanup(func() { os.Unsetenv(key) })
		}
		os.Unsetenv(key)
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	isolateEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	require.NoError(t, err)

	assert.Equal(t, BackendLocal, cfg.Backend)
	assert.Equal(t, DefaultVaultPath(), cfg.VaultPath)
	assert.Equal(t, 15*time.Second, cfg.Remote.Timeout)
	assert.Equal(t, 15*time.Minute, cfg.Session.Timeout)
	assert.True(t, cfg.Clipboard.Enabled)
	assert.Equal(t, 60*time.Second, cfg.Clipboard.ClearDelay)
	assert.Equal(t, 16, cfg.Generator.Length)
}

func TestLoad_YAML(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yml", `
backend: remote
remote:
  url: https://vault.example.com/api
  token: abc
  timeout: 0s
session:
  timeout: 5m
clipboard:
  enabled: false
  clear_delay: 30s
generator:
  length: 24
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, BackendRemote, cfg.Backend)
	assert.Equal(t, "https://vault.example.com/api", cfg.Remote.URL)
	assert.Equal(t, "abc", cfg.Remote.Token)
	assert.Equal(t, time.Duration(0), cfg.Remote.Timeout)
	assert.Equal(t, 5*time.Minute, cfg.Session.Timeout)
	assert.False(t, cfg.Clipboard.Enabled)
	assert.Equal(t, 30*time.Second, cfg.Clipboard.ClearDelay)
	assert.Equal(t, 24, cfg.Generator.Length)

	// Keys absent from the file keep their defaults
	assert.Equal(t, DefaultVaultPath(), cfg.VaultPath)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yml", "session:\n  timeout: 5m\n")

	t.Setenv(EnvSessionTimeout, "1h")
	t.Setenv(EnvVaultPath, "/tmp/other.db")
	t.Setenv(EnvClipboard, "false")
	t.Setenv(EnvClipboardClearDelay, "10s")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, time.Hour, cfg.Session.Timeout)
	assert.Equal(t, "/tmp/other.db", cfg.VaultPath)
	assert.False(t, cfg.Clipboard.Enabled)
	assert.Equal(t, 10*time.Second, cfg.Clipboard.ClearDelay)
}

func TestLoad_DotEnv(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	writeFile(t, dir, ".env", "KEYWARD_BACKEND=remote\nKEYWARD_API_URL=https://api.example.com\nKEYWARD_TOKEN=from-dotenv\n")

	cfg, err := Load(filepath.Join(dir, "config.yml"))
	require.NoError(t, err)
	assert.Equal(t, BackendRemote, cfg.Backend)
	assert.Equal(t, "https://api.example.com", cfg.Remote.URL)
	assert.Equal(t, "from-dotenv", cfg.Remote.Token)
}

func TestLoad_DotEnvDoesNotOverrideEnvironment(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	writeFile(t, dir, ".env", "KEYWARD_TOKEN=from-dotenv\n")
	t.Setenv(EnvToken, "from-env")

	cfg, err := Load(filepath.Join(dir, "config.yml"))
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Remote.Token)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		env  map[string]string
		msg  string
	}{
		{"malformed yaml", "backend: [", nil, "invalid config"},
		{"unknown backend", "backend: cloud", nil, "unknown backend"},
		{"remote without url", "backend: remote", nil, "requires remote.url"},
		{"bad duration", "", map[string]string{EnvSessionTimeout: "soon"}, EnvSessionTimeout},
		{"bad boolean", "", map[string]string{EnvClipboard: "maybe"}, EnvClipboard},
		{"zero session timeout", "session:\n  timeout: 0s", nil, "session.timeout"},
		{"negative remote timeout", "remote:\n  timeout: -1s", nil, "remote.timeout"},
		{"length too short", "generator:\n  length: 4", nil, "generator.length"},
		{"length too long", "generator:\n  length: 64", nil, "generator.length"},
		{"empty vault path", "vault_path: ' '", nil, "vault_path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolateEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := writeFile(t, t.TempDir(), "config.yml", tt.yaml)

			_, err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}
