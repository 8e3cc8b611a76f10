// Package config loads keyward configuration from an optional .env file,
// an optional YAML file and KEYWARD_* environment variables, in that order
// of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/keyward/go/internal/generator"
)

// Backend selects where the vault lives
type Backend string

const (
	BackendLocal  Backend = "local"
	BackendRemote Backend = "remote"
)

// Environment variables read by Load
const (
	EnvBackend             = "KEYWARD_BACKEND"
	EnvVaultPath           = "KEYWARD_VAULT_PATH"
	EnvAPIURL              = "KEYWARD_API_URL"
	EnvToken               = "KEYWARD_TOKEN"
	EnvRemoteTimeout       = "KEYWARD_REMOTE_TIMEOUT"
	EnvSessionTimeout      = "KEYWARD_SESSION_TIMEOUT"
	EnvClipboard           = "KEYWARD_CLIPBOARD"
	EnvClipboardClearDelay = "KEYWARD_CLIPBOARD_CLEAR_DELAY"
)

// Config is the resolved configuration
type Config struct {
	Backend   Backend         `yaml:"backend"`
	VaultPath string          `yaml:"vault_path"`
	Remote    RemoteConfig    `yaml:"remote"`
	Session   SessionConfig   `yaml:"session"`
	Clipboard ClipboardConfig `yaml:"clipboard"`
	Generator GeneratorConfig `yaml:"generator"`
}

type RemoteConfig struct {
	URL     string        `yaml:"url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

type SessionConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

type ClipboardConfig struct {
	Enabled    bool          `yaml:"enabled"`
	ClearDelay time.Duration `yaml:"clear_delay"`
}

type GeneratorConfig struct {
	Length int `yaml:"length"`
}

// Default returns the configuration used when nothing overrides it
func Default() *Config {
	return &Config{
		Backend:   BackendLocal,
		VaultPath: DefaultVaultPath(),
		Remote:    RemoteConfig{Timeout: 15 * time.Second},
		Session:   SessionConfig{Timeout: 15 * time.Minute},
		Clipboard: ClipboardConfig{Enabled: true, ClearDelay: 60 * time.Second},
		Generator: GeneratorConfig{Length: generator.DefaultLength},
	}
}

// Dir is the per-user keyward directory
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".keyward"
	}
	return filepath.Join(home, ".keyward")
}

func DefaultVaultPath() string  { return filepath.Join(Dir(), "vault.db") }
func DefaultConfigPath() string { return filepath.Join(Dir(), "config.yml") }

// Load resolves the configuration. A missing config or .env file is not an
// error; a malformed one is.
func Load(path string) (*Config, error) {
	cfg := Default()

	envFile := filepath.Join(filepath.Dir(path), ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	if err := cfg.readFile(path); err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) readFile(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("invalid config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v, ok := os.LookupEnv(EnvBackend); ok {
		c.Backend = Backend(strings.ToLower(strings.TrimSpace(v)))
	}
	if v, ok := os.LookupEnv(EnvVaultPath); ok {
		c.VaultPath = v
	}
	if v, ok := os.LookupEnv(EnvAPIURL); ok {
		c.Remote.URL = v
	}
	if v, ok := os.LookupEnv(EnvToken); ok {
		c.Remote.Token = v
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{EnvRemoteTimeout, &c.Remote.Timeout},
		{EnvSessionTimeout, &c.Session.Timeout},
		{EnvClipboardClearDelay, &c.Clipboard.ClearDelay},
	}
	for _, d := range durations {
		v, ok := os.LookupEnv(d.key)
		if !ok {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s has invalid duration %q: %w", d.key, v, err)
		}
		*d.dst = parsed
	}

	if v, ok := os.LookupEnv(EnvClipboard); ok {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s has invalid boolean %q: %w", EnvClipboard, v, err)
		}
		c.Clipboard.Enabled = enabled
	}
	return nil
}

// Validate checks the resolved values
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendLocal:
		if strings.TrimSpace(c.VaultPath) == "" {
			return errors.New("vault_path must not be empty")
		}
	case BackendRemote:
		if strings.TrimSpace(c.Remote.URL) == "" {
			return fmt.Errorf("remote backend requires remote.url or %s", EnvAPIURL)
		}
	default:
		return fmt.Errorf("unknown backend %q (want %q or %q)", c.Backend, BackendLocal, BackendRemote)
	}

	if c.Remote.Timeout < 0 {
		return errors.New("remote.timeout must not be negative")
	}
	if c.Session.Timeout <= 0 {
		return errors.New("session.timeout must be positive")
	}
	if c.Clipboard.ClearDelay < 0 {
		return errors.New("clipboard.clear_delay must not be negative")
	}
	if c.Generator.Length < generator.MinLength || c.Generator.Length > generator.MaxLength {
		return fmt.Errorf("generator.length must be between %d and %d", generator.MinLength, generator.MaxLength)
	}
	return nil
}
