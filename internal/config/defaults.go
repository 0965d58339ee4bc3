package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// PlatformConfigDir returns the platform-specific config directory.
//
// Platform paths:
//   - macOS:   ~/Library/Application Support/authscan/
//   - Linux:   ~/.config/authscan/
//   - Windows: %APPDATA%\authscan\
func PlatformConfigDir() string {
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(homeDir(), "Library", "Application Support", "authscan")
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "authscan")
		}
		return filepath.Join(homeDir(), "AppData", "Roaming", "authscan")
	default:
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			return filepath.Join(xdgConfig, "authscan")
		}
		return filepath.Join(homeDir(), ".config", "authscan")
	}
}

// PlatformLogDir returns the platform-specific log directory.
//
// Platform paths:
//   - macOS:   ~/Library/Logs/authscan/
//   - Linux:   $XDG_STATE_HOME/authscan/ or ~/.local/state/authscan/
//   - Windows: %LOCALAPPDATA%\authscan\logs\
func PlatformLogDir() string {
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(homeDir(), "Library", "Logs", "authscan")
	case "windows":
		if localAppData := os.Getenv("LOCALAPPDATA"); localAppData != "" {
			return filepath.Join(localAppData, "authscan", "logs")
		}
		return filepath.Join(homeDir(), "AppData", "Local", "authscan", "logs")
	default:
		if stateHome := os.Getenv("XDG_STATE_HOME"); stateHome != "" {
			return filepath.Join(stateHome, "authscan")
		}
		return filepath.Join(homeDir(), ".local", "state", "authscan")
	}
}

func homeDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return home
}
