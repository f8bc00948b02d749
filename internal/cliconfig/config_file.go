package cliconfig

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config but uses strings for durations to make TOML
// friendly.
type FileConfig struct {
	DataDir           string `toml:"data_dir"`
	SnapshotPath      string `toml:"snapshot_path"`
	RequirePassword   *bool  `toml:"require_password"`
	Debounce          string `toml:"debounce"`
	SimUsers          int    `toml:"sim_users"`
	SimOps            int    `toml:"sim_ops"`
	SimInitialBalance int64  `toml:"sim_initial_balance"`
	Verbose           *bool  `toml:"verbose"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns the default configuration file path,
// ~/.ledgerd/config.toml, if the user home directory is accessible.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".ledgerd", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("data-dir", fc.DataDir, &cfg.DataDir)
	s.setString("snapshot", fc.SnapshotPath, &cfg.SnapshotPath)

	if err := s.setDuration("debounce", fc.Debounce, &cfg.Debounce); err != nil {
		return err
	}

	s.setInt("sim-users", fc.SimUsers, &cfg.SimUsers)
	s.setInt("sim-ops", fc.SimOps, &cfg.SimOps)
	s.setInt64("sim-initial-balance", fc.SimInitialBalance, &cfg.SimInitialBalance)

	s.setBool("require-password", fc.RequirePassword, &cfg.RequirePassword)
	s.setBool("verbose", fc.Verbose, &cfg.Verbose)

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
