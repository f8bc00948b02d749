// Package cliconfig loads ledgerd's CLI configuration from a TOML file,
// LEDGERD_* environment variables, and command-line flags, in increasing
// order of precedence.
package cliconfig

import (
	"fmt"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds CLI configuration for ledgerd.
type Config struct {
	// DataDir is the directory holding account records, the audit log, and
	// the snapshot file.
	DataDir string

	// SnapshotPath is where the balance listing is written. Derived from
	// DataDir during Validate when empty.
	SnapshotPath string

	// RequirePassword enables the credential gate: accounts are created with
	// a password and protected operations must present it.
	RequirePassword bool

	// Debounce is how long the watch command waits after a record change
	// before regenerating the snapshot.
	Debounce time.Duration

	// SimUsers and SimOps control the simulate command: SimUsers concurrent
	// accounts each performing SimOps random operations.
	SimUsers int
	SimOps   int

	// SimInitialBalance is the balance each simulated account starts with.
	SimInitialBalance int64

	// Verbose enables debug-level logging.
	Verbose bool
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		DataDir:           "accounts",
		Debounce:          200 * time.Millisecond,
		SimUsers:          3,
		SimOps:            10,
		SimInitialBalance: 1000,
	}
}

// Validate checks the configuration for errors and sets derived defaults.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data-dir is required")
	}
	if c.SnapshotPath == "" {
		c.SnapshotPath = filepath.Join(c.DataDir, "central_log.txt")
	}
	if c.Debounce <= 0 {
		return fmt.Errorf("debounce must be positive")
	}
	if c.SimUsers < 2 {
		return fmt.Errorf("sim-users must be at least 2")
	}
	if c.SimOps <= 0 {
		return fmt.Errorf("sim-ops must be positive")
	}
	if c.SimInitialBalance < 0 {
		return fmt.Errorf("sim-initial-balance must not be negative")
	}
	return nil
}

// configSetter helps apply configuration values while respecting flag
// precedence. It only applies values if the corresponding flag hasn't been
// explicitly set.
type configSetter struct {
	changed map[string]bool
}

func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt64 sets an int64 value if non-negative and flag not changed.
func (s *configSetter) setInt64(flag string, value int64, dst *int64) {
	if value < 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setDuration parses and sets a duration from string if valid and flag not
// changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setBool sets a bool value from a pointer if not nil and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setIntFromString parses a string to int and sets the destination if
// valid. Used for environment variables that come as strings.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

// setInt64FromString parses a string to int64 and sets the destination.
func (s *configSetter) setInt64FromString(flag, value string, dst *int64) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i < 0 {
		return nil
	}
	*dst = i
	return nil
}

// setBoolFromString parses a string to bool and sets the destination.
// Accepts "true", "1" as true, anything else as false.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
