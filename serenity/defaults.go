package serenity

import (
	"os"
	"path/filepath"
)

const (
	DefaultAppName      = "serenity"
	DefaultDatabaseType = "sqlite"
	DefaultContactPath  = "/care/contact"
)

var (
	DefaultConfigPath  = filepath.Join(userConfigDir(), DefaultAppName)
	DefaultDataDir     = filepath.Join(userDataDir(), DefaultAppName)
	DefaultDatabaseDSN = "file:" + filepath.Join(DefaultDataDir, DefaultAppName+".db")
)

func userConfigDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return dir
	}
	return "."
}

// userDataDir follows XDG_DATA_HOME, falling back to ~/.local/share.
func userDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return dir
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share")
	}
	return "."
}
