package config

import (
	"encoding/json"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	if cfg.Theme != "dark" {
		t.Errorf("default theme should be 'dark', got %q", cfg.Theme)
	}
	if cfg.Server.Addr() != "127.0.0.1:8719" {
		t.Errorf("default server addr = %q", cfg.Server.Addr())
	}
	if cfg.List.UnloadBuffer <= cfg.List.LoadBuffer {
		t.Errorf("unload buffer %d must exceed load buffer %d",
			cfg.List.UnloadBuffer, cfg.List.LoadBuffer)
	}
	if cfg.Sync.MaxAttempts != 5 {
		t.Errorf("default sync attempts = %d, want 5", cfg.Sync.MaxAttempts)
	}
	if !cfg.Ingest.Watch {
		t.Error("watching should default to on")
	}
}

func TestPartialConfigKeepsDefaults(t *testing.T) {
	// Load starts from Default() and unmarshals over it, so a config
	// file that only sets the theme must not zero the tuning sections.
	cfg := Default()
	if err := json.Unmarshal([]byte(`{"theme":"light","sync":{"max_attempts":3}}`), &cfg); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if cfg.Theme != "light" {
		t.Errorf("theme = %q, want light", cfg.Theme)
	}
	if cfg.Sync.MaxAttempts != 3 {
		t.Errorf("sync attempts = %d, want 3", cfg.Sync.MaxAttempts)
	}
	if cfg.List.EstimatedRowHeight != 2 || cfg.List.LoadBuffer != 40 {
		t.Errorf("list defaults lost: %+v", cfg.List)
	}
	if cfg.Server.Port != 8719 {
		t.Errorf("server port default lost: %d", cfg.Server.Port)
	}
}

func TestStabilityWindowDuration(t *testing.T) {
	tests := []struct {
		raw  string
		want time.Duration
	}{
		{"", 150 * time.Millisecond},
		{"150ms", 150 * time.Millisecond},
		{"1s", time.Second},
		{"bogus", 150 * time.Millisecond},
	}

	for _, tt := range tests {
		c := ListConfig{StabilityWindow: tt.raw}
		if got := c.StabilityWindowDuration(); got != tt.want {
			t.Errorf("StabilityWindowDuration(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestDebounceDuration(t *testing.T) {
	tests := []struct {
		raw  string
		want time.Duration
	}{
		{"", 2 * time.Second},
		{"500ms", 500 * time.Millisecond},
		{"nonsense", 2 * time.Second},
	}

	for _, tt := range tests {
		c := IngestConfig{Debounce: tt.raw}
		if got := c.DebounceDuration(); got != tt.want {
			t.Errorf("DebounceDuration(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestConfigJSONRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Language = "es"
	cfg.List.StabilityWindow = "200ms"

	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var decoded Config
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if decoded.Language != "es" {
		t.Errorf("language = %q, want es", decoded.Language)
	}
	if decoded.List.StabilityWindowDuration() != 200*time.Millisecond {
		t.Errorf("stability window = %v", decoded.List.StabilityWindowDuration())
	}
}
