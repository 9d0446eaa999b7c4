package app

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGetDefaults(t *testing.T) {
	t.Run("uses env vars when set", func(t *testing.T) {
		t.Setenv("MINDCARE_CONFIG_PATH", "/custom/mindcare.toml")
		t.Setenv("MINDCARE_HOME", "/custom/mindcare")
		t.Setenv("MINDCARE_API_URL", "https://care.example.edu/")

		defaults, err := GetDefaults()
		if err != nil {
			t.Fatalf("GetDefaults() error = %v", err)
		}

		if defaults["config_path"] != "/custom/mindcare.toml" {
			t.Errorf("config_path = %q, want %q", defaults["config_path"], "/custom/mindcare.toml")
		}
		if defaults["base_dir"] != "/custom/mindcare" {
			t.Errorf("base_dir = %q, want %q", defaults["base_dir"], "/custom/mindcare")
		}
		want := map[string]string{
			"db_dir":    "/custom/mindcare/db",
			"media_dir": "/custom/mindcare/media",
			"log_dir":   "/custom/mindcare/log",
			"api_url":   "https://care.example.edu",
		}
		for key, w := range want {
			if defaults[key] != w {
				t.Errorf("%s = %q, want %q", key, defaults[key], w)
			}
		}
	})

	t.Run("falls back to home dir defaults", func(t *testing.T) {
		t.Setenv("MINDCARE_CONFIG_PATH", "")
		t.Setenv("MINDCARE_HOME", "")
		t.Setenv("MINDCARE_API_URL", "")

		defaults, err := GetDefaults()
		if err != nil {
			t.Fatalf("GetDefaults() error = %v", err)
		}

		homeDir, _ := os.UserHomeDir()

		wantConfig := filepath.Join(homeDir, ".config", "mindcare.toml")
		if defaults["config_path"] != wantConfig {
			t.Errorf("config_path = %q, want %q", defaults["config_path"], wantConfig)
		}

		wantBase := filepath.Join(homeDir, ".local", "share", "mindcare")
		if defaults["base_dir"] != wantBase {
			t.Errorf("base_dir = %q, want %q", defaults["base_dir"], wantBase)
		}
		if defaults["api_url"] != DefaultAPIURL {
			t.Errorf("api_url = %q, want %q", defaults["api_url"], DefaultAPIURL)
		}
	})
}
