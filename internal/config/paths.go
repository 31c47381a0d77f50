package config

import (
	"os"
	"path/filepath"
	"time"
)

// defaultRetentionAge is how long terminal task records are kept when
// retention is enabled without an explicit max_age.
const defaultRetentionAge = time.Hour

// TaskgatePath returns the root directory for taskgate data.
// It uses $TASKGATE_PATH if set, otherwise defaults to ~/.taskgate.
func TaskgatePath() string {
	if v := os.Getenv("TASKGATE_PATH"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".taskgate")
	}
	return filepath.Join(home, ".taskgate")
}

// ConfigPath returns the path to the taskgate config file.
func ConfigPath() string {
	return filepath.Join(TaskgatePath(), "config.jsonc")
}

// DotenvPath returns the path to the taskgate .env file.
func DotenvPath() string {
	return filepath.Join(TaskgatePath(), ".env")
}
