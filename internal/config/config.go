// Package config loads the h2gb YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// EnvConfig names the environment variable that points at a config file.
const EnvConfig = "H2GB_CONFIG"

// Storage backends.
const (
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
)

// Config is the top-level configuration file.
type Config struct {
	Database string        `yaml:"database,omitempty" json:"database,omitempty"`
	Storage  StorageConfig `yaml:"storage" json:"storage"`
	Server   ServerConfig  `yaml:"server" json:"server"`
	Log      LogConfig     `yaml:"log" json:"log"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Backend    string `yaml:"backend" json:"backend"`
	BadgerPath string `yaml:"badger_path,omitempty" json:"badger_path,omitempty"`
	InMemory   bool   `yaml:"in_memory,omitempty" json:"in_memory,omitempty"`
}

// ServerConfig configures the HTTP boundary.
type ServerConfig struct {
	Addr string `yaml:"addr" json:"addr"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Storage: StorageConfig{Backend: BackendSQLite},
		Server:  ServerConfig{Addr: "127.0.0.1:8080"},
		Log:     LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads the config at path over the defaults. An empty path falls back to
// $H2GB_CONFIG. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv(EnvConfig)
	}
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks field values that yaml cannot.
func (c Config) Validate() error {
	switch c.Storage.Backend {
	case BackendSQLite:
	case BackendBadger:
		if c.Storage.BadgerPath == "" && !c.Storage.InMemory {
			return errors.New("storage.badger_path is required for the badger backend")
		}
	default:
		return fmt.Errorf("unknown storage.backend %q", c.Storage.Backend)
	}
	return nil
}

// Write saves cfg as YAML at path.
func Write(path string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
