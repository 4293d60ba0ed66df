package main

import (
	"os"
	"path/filepath"

	"tools.zach/dev/clockcord/internal/paths"
)

// DataPaths aliases [paths.DataDir] into the main package.
type DataPaths = paths.DataDir

// homeEnv overrides the default data directory.
const homeEnv = "CLOCKCORD_HOME"

// defaultDataDir returns $CLOCKCORD_HOME, or ~/.clockcord. Falls back to
// ./.clockcord if the home directory cannot be determined.
func defaultDataDir() string {
	if dir := os.Getenv(homeEnv); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", paths.DataDirRel)
	}
	return filepath.Join(home, paths.DataDirRel)
}
