package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultAPIURL is the backend a fresh install talks to when neither
// MINDCARE_API_URL nor --api says otherwise.
const DefaultAPIURL = "http://localhost:8080"

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - MINDCARE_CONFIG_PATH: config file location (default: ~/.config/mindcare.toml)
//   - MINDCARE_HOME: base directory for local data (default: ~/.local/share/mindcare)
//   - MINDCARE_API_URL: backend base URL written by "config init"
//
// The db, media and log directories all live under the base directory so a
// single MINDCARE_HOME holds every piece of offline student data.
func GetDefaults() (map[string]string, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}

	baseDir, err := getBaseDir()
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path": configPath,
		"base_dir":    baseDir,
		"db_dir":      filepath.Join(baseDir, "db"),
		"media_dir":   filepath.Join(baseDir, "media"),
		"log_dir":     filepath.Join(baseDir, "log"),
		"api_url":     getAPIURL(),
	}, nil
}

func getConfigPath() (string, error) {
	if path := os.Getenv("MINDCARE_CONFIG_PATH"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "mindcare.toml"), nil
}

// getBaseDir returns the data directory, checking MINDCARE_HOME first, then
// falling back to the XDG default ~/.local/share/mindcare.
func getBaseDir() (string, error) {
	if path := os.Getenv("MINDCARE_HOME"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "mindcare"), nil
}

func getAPIURL() string {
	if u := strings.TrimRight(os.Getenv("MINDCARE_API_URL"), "/"); u != "" {
		return u
	}
	return DefaultAPIURL
}
