package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Adapter string        `yaml:"adapter"`
	Demo    bool          `yaml:"demo"`
	Classic bool          `yaml:"classic"`
	Scan    ScanConfig    `yaml:"scan"`
	Connect ConnectConfig `yaml:"connect"`
	Read    ReadConfig    `yaml:"read"`
	Cache   CacheConfig   `yaml:"cache"`
	Log     LogConfig     `yaml:"log"`
}

// ScanConfig holds device discovery settings.
type ScanConfig struct {
	// TimeoutSeconds stops scanning after this many seconds.
	// 0 scans until paused by the user.
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// ConnectConfig holds connection settings.
type ConnectConfig struct {
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// ReadConfig holds characteristic read settings.
type ReadConfig struct {
	// PreviewBytes truncates value previews in list rows and profile
	// snapshots. The hexdump pane always shows the full read buffer.
	PreviewBytes int `yaml:"preview_bytes"`
}

// CacheConfig holds GATT profile cache settings.
type CacheConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LogConfig holds logging settings. Logs go to a file because the
// terminal belongs to the UI.
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "gattscope")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	home, _ := os.UserHomeDir()
	stateDir := filepath.Join(home, ".cache", "gattscope")

	return &Config{
		Adapter: "hci0",
		Classic: false,
		Scan: ScanConfig{
			TimeoutSeconds: 0,
		},
		Connect: ConnectConfig{
			TimeoutSeconds: 15,
		},
		Read: ReadConfig{
			PreviewBytes: 64,
		},
		Cache: CacheConfig{
			Enabled: true,
			Path:    filepath.Join(stateDir, "profiles.json"),
		},
		Log: LogConfig{
			Level: "info",
			File:  filepath.Join(stateDir, "gattscope.log"),
		},
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults. Tilde (~) in paths is expanded to the user's home
// directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading config file")
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "parsing config file")
	}

	cfg.Cache.Path = expandTilde(cfg.Cache.Path)
	cfg.Log.File = expandTilde(cfg.Log.File)

	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.Adapter == "" {
		return errors.New("adapter must not be empty")
	}

	if c.Scan.TimeoutSeconds < 0 {
		return errors.Errorf("scan.timeout_seconds must be >= 0, got %d", c.Scan.TimeoutSeconds)
	}

	if c.Connect.TimeoutSeconds <= 0 {
		return errors.Errorf("connect.timeout_seconds must be > 0, got %d", c.Connect.TimeoutSeconds)
	}

	if c.Read.PreviewBytes <= 0 {
		return errors.Errorf("read.preview_bytes must be > 0, got %d", c.Read.PreviewBytes)
	}

	if c.Cache.Enabled && c.Cache.Path == "" {
		return errors.New("cache.path must not be empty when cache is enabled")
	}

	switch c.Log.Level {
	case "trace", "debug", "info", "warn", "error":
	default:
		return errors.Errorf("log.level must be trace, debug, info, warn, or error, got %q", c.Log.Level)
	}

	return nil
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
