package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// GetDefaults resolves where hub keeps its config file and its data.
//
// HUB_CONFIG_PATH overrides the config file (normally ~/.config/hub.toml) and
// HUB_HOME overrides the data root (normally ~/.local/share/hub). Logs, the
// SQLite database and the saved session all live under the data root.
func GetDefaults() (map[string]string, error) {
	configPath, err := fromEnvOrHome("HUB_CONFIG_PATH", ".config", "hub.toml")
	if err != nil {
		return nil, err
	}
	home, err := fromEnvOrHome("HUB_HOME", ".local", "share", "hub")
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path":  configPath,
		"base_dir":     home,
		"log_dir":      filepath.Join(home, "log"),
		"data_dir":     filepath.Join(home, "data"),
		"session_path": filepath.Join(home, "session"),
	}, nil
}

// fromEnvOrHome returns $env if set, otherwise rel joined onto the user's home.
func fromEnvOrHome(env string, rel ...string) (string, error) {
	if v := os.Getenv(env); v != "" {
		return v, nil
	}
	userHome, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving %s: no home directory: %w", env, err)
	}
	return filepath.Join(append([]string{userHome}, rel...)...), nil
}
