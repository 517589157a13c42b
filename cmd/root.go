package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"h2gb/engine/internal/config"
	"h2gb/engine/internal/db"
	"h2gb/engine/internal/logging"
	"h2gb/engine/internal/vault"
)

var (
	dbPath     string
	configPath string
	logLevel   string
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:           "h2gb",
	Short:         "Binary annotation workspaces: segments, nodes, refs, undo",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Path to .h2gb.db database")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to h2gb.yaml (default $H2GB_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
}

// loadConfig reads the config file and applies flag overrides.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return cfg, nil
}

func newLogger(cfg config.Config) (*slog.Logger, error) {
	return logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
}

// DiscoverDB finds the database path using priority: env > flag > config > walk-up > XDG fallback.
// The XDG fallback is created when nothing else is found.
func DiscoverDB(cfg config.Config) (string, error) {
	// 1. Environment variable
	if envPath := os.Getenv("H2GB_DB"); envPath != "" {
		return envPath, nil
	}

	// 2. CLI flag
	if dbPath != "" {
		if _, err := os.Stat(filepath.Dir(dbPath)); err != nil {
			return "", fmt.Errorf("database directory not found for --db path: %s", dbPath)
		}
		return dbPath, nil
	}

	// 3. Config file
	if cfg.Database != "" {
		return cfg.Database, nil
	}

	// 4. Walk up from CWD
	dir, err := os.Getwd()
	if err == nil {
		for {
			candidate := filepath.Join(dir, ".h2gb.db")
			if _, err := os.Stat(candidate); err == nil {
				return candidate, nil
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}

	// 5. XDG fallback
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("no .h2gb.db found (set H2GB_DB, use --db, or run from a directory containing .h2gb.db)")
	}
	xdgDir := filepath.Join(home, ".local", "share", "h2gb")
	if err := os.MkdirAll(xdgDir, 0o755); err != nil {
		return "", fmt.Errorf("creating %s: %w", xdgDir, err)
	}
	return filepath.Join(xdgDir, "h2gb.db"), nil
}

// OpenVault loads the config, opens the configured store and wraps it in a Vault.
// Close the vault's store when done.
func OpenVault() (*vault.Vault, *slog.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	return openVault(cfg)
}

func openVault(cfg config.Config) (*vault.Vault, *slog.Logger, error) {
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, nil, err
	}

	var path string
	if cfg.Storage.Backend == "" || cfg.Storage.Backend == config.BackendSQLite {
		if path, err = DiscoverDB(cfg); err != nil {
			return nil, nil, err
		}
	}
	store, err := db.Open(cfg.Storage, path, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("opening store: %w", err)
	}
	logger.Debug("store opened", "backend", cfg.Storage.Backend, "path", path)
	return vault.New(store, logger), logger, nil
}

// withVault runs fn against an open vault and closes it afterwards.
func withVault(fn func(v *vault.Vault) error) error {
	v, _, err := OpenVault()
	if err != nil {
		return err
	}
	defer v.Store().Close()
	return fn(v)
}

// printJSON writes v as indented JSON to stdout.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// resolveID finds a record by full ID, ID prefix, or exact name.
func resolveID[T any](kind, reference string, items []T, id, name func(T) string) (T, error) {
	var zero T

	// 1. Exact ID match
	for _, it := range items {
		if id(it) == reference {
			return it, nil
		}
	}

	// 2. ID prefix match (≥6 hex/dash chars), then 3. name match
	var matches []T
	if len(reference) >= 6 && isHexDash(reference) {
		for _, it := range items {
			if strings.HasPrefix(id(it), reference) {
				matches = append(matches, it)
			}
		}
	}
	if len(matches) == 0 {
		for _, it := range items {
			if name(it) == reference {
				matches = append(matches, it)
			}
		}
	}

	switch len(matches) {
	case 0:
		return zero, fmt.Errorf("%s not found: %s", kind, reference)
	case 1:
		return matches[0], nil
	}
	lines := make([]string, len(matches))
	for i, m := range matches {
		lines[i] = fmt.Sprintf("  %s %s", truncID(id(m)), name(m))
	}
	return zero, fmt.Errorf("ambiguous reference '%s'. %d matches:\n%s\nUse a full %s ID instead.",
		reference, len(matches), strings.Join(lines, "\n"), kind)
}

func isHexDash(s string) bool {
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F') || c == '-') {
			return false
		}
	}
	return true
}

func truncID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
