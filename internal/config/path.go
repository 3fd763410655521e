// Package config loads the application configuration through viper.
package config

import (
	"os"
	"path/filepath"
	"strings"
)

// appDir names the application directory under the XDG base directories.
const appDir = "balance"

// ExpandPath resolves a leading ~ to the home directory and then expands
// $VAR references. A ~ that is not the first path element is kept.
func ExpandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return os.ExpandEnv(path)
}

// dataPath is the default location of a state file: under $XDG_DATA_HOME
// when set, otherwise under ~/.local/share.
func dataPath(name string) string {
	return xdgPath("XDG_DATA_HOME", "~/.local/share", name)
}

// configPath is the default location of a user config file: under
// $XDG_CONFIG_HOME when set, otherwise under ~/.config.
func configPath(name string) string {
	return xdgPath("XDG_CONFIG_HOME", "~/.config", name)
}

// xdgPath leaves the ~ fallback unexpanded; Load expands it.
func xdgPath(envVar, fallback, name string) string {
	if base := os.Getenv(envVar); base != "" {
		return filepath.Join(base, appDir, name)
	}
	return fallback + "/" + appDir + "/" + name
}
