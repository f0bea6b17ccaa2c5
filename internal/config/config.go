package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for hub.
type Config struct {
	AppID    string         `toml:"app_id"`
	BaseDir  string         `toml:"base_dir"`
	LogDir   string         `toml:"log_dir"`
	LogLevel string         `toml:"log_level"` // "debug", "info" (default), "warn", "error"
	Store    StoreConfig    `toml:"store"`
	Identity IdentityConfig `toml:"identity"`
	Articles ArticlesConfig `toml:"articles"`
}

// StoreConfig represents configuration for the remote collection store.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type StoreConfig struct {
	Type string `toml:"type"` // "memory", "sqlite" or "firestore"

	// SQLite-specific fields (only used when Type == "sqlite")
	DataDir      string `toml:"data_dir,omitempty"`
	PollInterval string `toml:"poll_interval,omitempty"` // e.g. "2s"; empty disables cross-process polling

	// Firestore-specific fields (only used when Type == "firestore")
	ProjectID       string `toml:"project_id,omitempty"`
	CredentialsFile string `toml:"credentials_file,omitempty"`
}

// PollEvery parses PollInterval. An empty interval returns zero.
func (c StoreConfig) PollEvery() (time.Duration, error) {
	if c.PollInterval == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.PollInterval)
	if err != nil {
		return 0, fmt.Errorf("invalid poll_interval %q: %w", c.PollInterval, err)
	}
	return d, nil
}

// IdentityConfig represents configuration for the identity source.
type IdentityConfig struct {
	Type        string `toml:"type"`               // "local"
	Accounts    string `toml:"accounts"`           // "memory" or "sqlite"
	DataDir     string `toml:"data_dir,omitempty"` // only used for accounts=sqlite
	TokenSecret string `toml:"token_secret"`
	TokenTTL    string `toml:"token_ttl,omitempty"` // e.g. "720h"; defaults to 30 days
	SessionPath string `toml:"session_path"`
}

// TokenLifetime parses TokenTTL, defaulting to 30 days.
func (c IdentityConfig) TokenLifetime() (time.Duration, error) {
	if c.TokenTTL == "" {
		return 30 * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(c.TokenTTL)
	if err != nil {
		return 0, fmt.Errorf("invalid token_ttl %q: %w", c.TokenTTL, err)
	}
	return d, nil
}

// ArticlesConfig controls article visibility.
type ArticlesConfig struct {
	Scope string `toml:"scope"` // "user" (default) or "public"
}

// NewConfig creates a new Config with the provided values and local sqlite defaults.
func NewConfig(appID, baseDir, tokenSecret string) *Config {
	dataDir := filepath.Join(baseDir, "data")
	return &Config{
		AppID:    appID,
		BaseDir:  baseDir,
		LogDir:   filepath.Join(baseDir, "log"),
		LogLevel: "info",
		Store: StoreConfig{
			Type:    "sqlite",
			DataDir: dataDir,
		},
		Identity: IdentityConfig{
			Type:        "local",
			Accounts:    "sqlite",
			DataDir:     dataDir,
			TokenSecret: tokenSecret,
			SessionPath: filepath.Join(baseDir, "session"),
		},
		Articles: ArticlesConfig{Scope: "user"},
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
// The file holds the token secret, so it is only readable by the owner.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
