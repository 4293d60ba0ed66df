// Package paths centralizes file and directory names used across the project.
// All data directory file names are defined here as the single source of truth.
package paths

import "path/filepath"

// ///////////////////////////////////////////////
// Constants
// ///////////////////////////////////////////////

// Data directory file names.
const (
	PIDFile    = "clockcord.pid"
	ConfigFile = "config.toml"
	LogFile    = "clockcord.log"
	LedgerFile = "ledger.json"
)

// Install locations.
const (
	BinaryName = "clockcord"
	DataDirRel = ".clockcord" // relative to $HOME
)

// ///////////////////////////////////////////////
// DataDir
// ///////////////////////////////////////////////

// DataDir provides path construction methods rooted at a data directory.
type DataDir struct {
	Root string
}

// PID returns the full path to the PID file.
func (d DataDir) PID() string { return filepath.Join(d.Root, PIDFile) }

// Config returns the full path to the config file.
func (d DataDir) Config() string { return filepath.Join(d.Root, ConfigFile) }

// Log returns the full path to the log file.
func (d DataDir) Log() string { return filepath.Join(d.Root, LogFile) }

// Ledger resolves the ledger location. An empty name selects [LedgerFile];
// absolute names are returned unchanged, relative ones are joined to Root.
func (d DataDir) Ledger(name string) string {
	if name == "" {
		name = LedgerFile
	}
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(d.Root, name)
}
