package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// Environment overrides for the well-known locations.
const (
	EnvConfigDir  = "NICOTINE_CONFIG_DIR"
	EnvRuntimeDir = "XDG_RUNTIME_DIR"
)

// ConfigDir resolves the config directory.
// Priority: NICOTINE_CONFIG_DIR > $XDG_CONFIG_HOME/nicotine > ~/.config/nicotine
func ConfigDir() string {
	if env := os.Getenv(EnvConfigDir); env != "" {
		return env
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "nicotine")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "nicotine")
}

// DefaultConfigPath returns the full path to config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// RuntimeDir is where sockets and the index record live. It falls back to
// the system temp dir when no per-user runtime dir exists.
func RuntimeDir() string {
	if dir := os.Getenv(EnvRuntimeDir); dir != "" {
		return dir
	}
	return os.TempDir()
}

// DefaultSocketPath is the control channel location.
func DefaultSocketPath() string {
	if os.Getenv(EnvRuntimeDir) != "" {
		return filepath.Join(RuntimeDir(), "nicotine.sock")
	}
	// Shared /tmp: keep users apart.
	return filepath.Join(RuntimeDir(), fmt.Sprintf("nicotine-%d.sock", os.Getuid()))
}

// DefaultStatusSocketPath is the read-only status server location.
func DefaultStatusSocketPath() string {
	if os.Getenv(EnvRuntimeDir) != "" {
		return filepath.Join(RuntimeDir(), "nicotine-status.sock")
	}
	return filepath.Join(RuntimeDir(), fmt.Sprintf("nicotine-status-%d.sock", os.Getuid()))
}

// DefaultIndexPath is the persisted index record location.
func DefaultIndexPath() string {
	return filepath.Join(RuntimeDir(), "nicotine-index")
}

// DefaultOrderFile lists window titles in preferred cycle order.
func DefaultOrderFile() string {
	return filepath.Join(ConfigDir(), "characters.txt")
}
