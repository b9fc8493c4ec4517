// Package env locates the directories llpm keeps its state in.
package env

import (
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

const appName = "llpm"

// HomeEnv overrides the cache root.
const HomeEnv = "LLPM_HOME"

// Home returns the cache root: $LLPM_HOME, or <XDG_CACHE_HOME>/llpm.
// The directory is created with 0700 permissions if it doesn't exist.
func Home() (string, error) {
	dir := os.Getenv(HomeEnv)
	if dir == "" {
		dir = filepath.Join(xdg.CacheHome, appName)
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", err
	}
	return dir, nil
}

// ConfigDir returns <XDG_CONFIG_HOME>/llpm.
func ConfigDir() string {
	return filepath.Join(xdg.ConfigHome, appName)
}

// ConfigFile returns the path of the user configuration file.
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

// ProfilesDir returns the directory named profiles are looked up in.
func ProfilesDir() string {
	return filepath.Join(ConfigDir(), "profiles")
}

// ProfilePath resolves a profile argument: an existing path is used as
// is, anything else names a file in ProfilesDir.
func ProfilePath(name string) string {
	if _, err := os.Stat(name); err == nil || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(ProfilesDir(), name+".toml")
}

// LogFile returns <XDG_STATE_HOME>/llpm/llpm.log.
func LogFile() string {
	return filepath.Join(xdg.StateHome, appName, appName+".log")
}
