package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// DefaultDataDir returns the platform-specific default data directory.
// Linux/Mac: ~/.local/share/pfagent
// Windows: %LOCALAPPDATA%\pfagent
func DefaultDataDir() string {
	if runtime.GOOS == "windows" {
		localAppData := os.Getenv("LOCALAPPDATA")
		if localAppData == "" {
			userProfile := os.Getenv("USERPROFILE")
			localAppData = filepath.Join(userProfile, "AppData", "Local")
		}
		return filepath.Join(localAppData, "pfagent")
	}

	home := os.Getenv("HOME")
	return filepath.Join(home, ".local", "share", "pfagent")
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home := os.Getenv("HOME")
		if runtime.GOOS == "windows" {
			home = os.Getenv("USERPROFILE")
		}
		if path == "~" {
			return home
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// EnsureDir creates dir with user-only access if it does not exist.
func EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0700)
}

// FileExists reports whether path exists and is not a directory.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
