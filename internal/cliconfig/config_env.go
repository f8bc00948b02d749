package cliconfig

import "os"

// ApplyEnvConfig applies configuration from environment variables
// (LEDGERD_*). It respects flags that have been explicitly set (changed
// map). Returns an error if any variable has an invalid format.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("data-dir", os.Getenv("LEDGERD_DATA_DIR"), &cfg.DataDir)
	s.setString("snapshot", os.Getenv("LEDGERD_SNAPSHOT_PATH"), &cfg.SnapshotPath)

	if err := s.setDuration("debounce", os.Getenv("LEDGERD_DEBOUNCE"), &cfg.Debounce); err != nil {
		return err
	}

	if err := s.setIntFromString("sim-users", os.Getenv("LEDGERD_SIM_USERS"), &cfg.SimUsers); err != nil {
		return err
	}
	if err := s.setIntFromString("sim-ops", os.Getenv("LEDGERD_SIM_OPS"), &cfg.SimOps); err != nil {
		return err
	}
	if err := s.setInt64FromString("sim-initial-balance", os.Getenv("LEDGERD_SIM_INITIAL_BALANCE"), &cfg.SimInitialBalance); err != nil {
		return err
	}

	s.setBoolFromString("require-password", os.Getenv("LEDGERD_REQUIRE_PASSWORD"), &cfg.RequirePassword)
	s.setBoolFromString("verbose", os.Getenv("LEDGERD_VERBOSE"), &cfg.Verbose)

	return nil
}
