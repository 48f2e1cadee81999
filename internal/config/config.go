// Package config provides application configuration management for tailt.
package config

import (
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds the tailt configuration.
type Config struct {
	Theme    string       `json:"theme"`              // Name of the active theme
	Language string       `json:"language,omitempty"` // UI language tag (e.g. "en", "es")
	Server   ServerConfig `json:"server"`             // Server address settings
	List     ListConfig   `json:"list"`               // Transcript list tuning
	Sync     SyncConfig   `json:"sync"`               // Reconnect sync settings
	Ingest   IngestConfig `json:"ingest"`             // Server-side ingest settings
}

// ServerConfig holds the address the server listens on and the client
// connects to.
type ServerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// Addr returns the host:port form of the server address.
func (c ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// ListConfig holds transcript list tuning. Heights and buffers are in
// terminal rows.
type ListConfig struct {
	EstimatedRowHeight int    `json:"estimated_row_height"` // Height assumed before an entry is measured
	LoadBuffer         int    `json:"load_buffer"`          // Rows rendered beyond the viewport
	UnloadBuffer       int    `json:"unload_buffer"`        // Rows kept rendered once loaded
	NearBottomRows     int    `json:"near_bottom_rows"`     // Distance still counting as top/bottom
	StabilityWindow    string `json:"stability_window"`     // Quiet period before layout counts as settled (e.g. "150ms")
}

// StabilityWindowDuration returns the parsed stability window (default: 150ms).
func (c ListConfig) StabilityWindowDuration() time.Duration {
	if c.StabilityWindow != "" {
		if d, err := time.ParseDuration(c.StabilityWindow); err == nil {
			return d
		}
	}
	return 150 * time.Millisecond
}

// SyncConfig holds reconnect reconciliation settings.
type SyncConfig struct {
	MaxAttempts int `json:"max_attempts"` // Passes over a failing branch before eviction
}

// IngestConfig holds server-side ingest settings.
type IngestConfig struct {
	Roots    []string `json:"roots,omitempty"` // Extra transcript roots to scan (empty = defaults)
	Watch    bool     `json:"watch"`           // Enable file watching
	Debounce string   `json:"debounce"`        // Debounce duration (e.g. "2s")
}

// DebounceDuration returns the parsed debounce duration (default: 2s).
func (c IngestConfig) DebounceDuration() time.Duration {
	if c.Debounce != "" {
		if d, err := time.ParseDuration(c.Debounce); err == nil {
			return d
		}
	}
	return 2 * time.Second
}

// Dir returns the path to the .tailt directory.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".tailt"), nil
}

// Path returns the path to the main config file.
func Path() (string, error) {
	configDir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.json"), nil
}

// Load loads the configuration from ~/.tailt/config.json.
func Load() (Config, error) {
	configPath, err := Path()
	if err != nil {
		return Config{}, err
	}

	data, err := os.ReadFile(configPath)
	if os.IsNotExist(err) {
		cfg := Default()
		// Persist the initial config to disk
		if saveErr := Save(cfg); saveErr != nil {
			return cfg, nil // return defaults even if save fails
		}
		return cfg, nil
	} else if err != nil {
		return Config{}, err
	}

	// Start from defaults so missing keys get correct values
	// (e.g. existing configs without list/sync sections won't get
	// zeroes which would break layout and retries).
	config := Default()
	if err := json.Unmarshal(data, &config); err != nil {
		return Config{}, err
	}

	if config.Theme == "" {
		config.Theme = "dark"
	}

	return config, nil
}

// Default returns a default configuration with all defaults set.
func Default() Config {
	return Config{
		Theme:    "dark",
		Language: "en",
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8719,
		},
		List: ListConfig{
			EstimatedRowHeight: 2,
			LoadBuffer:         40,
			UnloadBuffer:       80,
			NearBottomRows:     2,
			StabilityWindow:    "150ms",
		},
		Sync: SyncConfig{
			MaxAttempts: 5,
		},
		Ingest: IngestConfig{
			Roots:    []string{},
			Watch:    true,
			Debounce: "2s",
		},
	}
}

// Save saves the configuration to ~/.tailt/config.json.
func Save(config Config) error {
	configPath, err := Path()
	if err != nil {
		return err
	}

	// Ensure directory exists
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(configPath, data, 0600)
}
