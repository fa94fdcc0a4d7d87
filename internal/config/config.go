// Package config handles the persisted application configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	// ConfigDir is the directory name under XDG_CONFIG_HOME.
	ConfigDir = "bibkeep"
	// ConfigFile is the config file name.
	ConfigFile = "config.yml"
)

// Config is the persisted configuration stored in ~/.config/bibkeep/config.yml.
type Config struct {
	PDFBaseDir      string      `yaml:"pdf_base_dir,omitempty"`
	DownloadDir     string      `yaml:"download_dir,omitempty"`
	UnpaywallEmail  string      `yaml:"unpaywall_email,omitempty"`
	AutoFetchPDF    bool        `yaml:"auto_fetch_pdf"`
	CheckForUpdates bool        `yaml:"check_for_updates"`
	Updates         UpdateState `yaml:"updates,omitempty"`
}

// UpdateState is the update checker's persisted state, kept in its own group
// so it survives independently of any open collection. Timestamps are RFC
// 3339 UTC strings; empty means never.
type UpdateState struct {
	LastCheck     string `yaml:"last_check,omitempty"`
	LastNotified  string `yaml:"last_notified,omitempty"`
	LatestVersion string `yaml:"latest_version,omitempty"`
}

// Default returns the built-in configuration used when no file exists or the
// file cannot be read.
func Default() *Config {
	cfg := &Config{CheckForUpdates: true}
	if home, err := os.UserHomeDir(); err == nil {
		cfg.PDFBaseDir = filepath.Join(home, "Documents", "papers")
		cfg.DownloadDir = filepath.Join(home, "Downloads")
	}
	return cfg
}

// Path returns the config file location. Respects XDG_CONFIG_HOME, defaults
// to ~/.config/bibkeep/config.yml.
func Path() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, ConfigDir, ConfigFile)
}

// Load reads the configuration from path. An absent, unreadable or invalid
// file silently yields the defaults: bad configuration never aborts startup.
// Pass "" to use the standard location.
func Load(path string) *Config {
	if path == "" {
		path = Path()
	}
	cfg := Default()
	if path == "" {
		return cfg
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg
	}
	// Decode over a copy of the defaults so absent keys keep their default
	// values; a corrupt file falls back to defaults entirely.
	loaded := *cfg
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return cfg
	}
	loaded.PDFBaseDir = ExpandTilde(loaded.PDFBaseDir)
	loaded.DownloadDir = ExpandTilde(loaded.DownloadDir)
	return &loaded
}

// Save writes the configuration to path, creating parent directories as
// needed. Pass "" to use the standard location.
func (c *Config) Save(path string) error {
	if path == "" {
		path = Path()
	}
	if path == "" {
		return fmt.Errorf("no config location available")
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// ExpandTilde expands a leading ~ to the user's home directory.
func ExpandTilde(path string) string {
	if len(path) == 0 || path[0] != '~' {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
