package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Port)
	}
	if cfg.DataVariable != "dynadashData" {
		t.Errorf("expected default data_variable %q, got %q", "dynadashData", cfg.DataVariable)
	}
	if cfg.DownloadName != "dashboard.html" {
		t.Errorf("expected default download_name %q, got %q", "dashboard.html", cfg.DownloadName)
	}
	if cfg.LoadTimeout() != 8*time.Second {
		t.Errorf("expected default load timeout 8s, got %v", cfg.LoadTimeout())
	}
}

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.dynadash.yml")

	original := DefaultConfig()
	original.Port = 9090
	original.DataDir = "var/dynadash"
	original.DownloadName = "dynadash_dashboard.html"
	original.LoadTimeoutSeconds = 5
	original.Include = []string{"dashboards/**/*.html", "*.htm"}

	// Save.
	if err := original.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// Load back.
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded.Port != original.Port {
		t.Errorf("port: got %d, want %d", loaded.Port, original.Port)
	}
	if loaded.DataDir != original.DataDir {
		t.Errorf("data_dir: got %q, want %q", loaded.DataDir, original.DataDir)
	}
	if loaded.DownloadName != original.DownloadName {
		t.Errorf("download_name: got %q, want %q", loaded.DownloadName, original.DownloadName)
	}
	if loaded.LoadTimeout() != 5*time.Second {
		t.Errorf("load timeout: got %v, want 5s", loaded.LoadTimeout())
	}
	if len(loaded.Include) != len(original.Include) {
		t.Fatalf("include length: got %d, want %d", len(loaded.Include), len(original.Include))
	}
	for i, v := range loaded.Include {
		if v != original.Include[i] {
			t.Errorf("include[%d]: got %q, want %q", i, v, original.Include[i])
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nonexistent.yml")

	// Loading a missing file should return defaults, not an error.
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load should not fail for missing file: %v", err)
	}
	if cfg.Port != 8080 {
		t.Errorf("expected default port, got %d", cfg.Port)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yml")

	cfg := DefaultConfig()
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	t.Setenv("DYNADASH_DATA_DIR", "/tmp/override")
	t.Setenv("DYNADASH_DATA_VARIABLE", "chartData")

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.DataDir != "/tmp/override" {
		t.Errorf("env override failed: got %q", loaded.DataDir)
	}
	if loaded.DataVariable != "chartData" {
		t.Errorf("env override failed: got %q", loaded.DataVariable)
	}
}

func TestValidateValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultConfig should be valid, got: %v", err)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port", func(c *Config) { c.Port = 70000 }},
		{"empty data dir", func(c *Config) { c.DataDir = "" }},
		{"variable with dot", func(c *Config) { c.DataVariable = "window.x" }},
		{"variable starting with digit", func(c *Config) { c.DataVariable = "1data" }},
		{"download name with slash", func(c *Config) { c.DownloadName = "../dashboard.html" }},
		{"empty download name", func(c *Config) { c.DownloadName = "" }},
		{"zero ttl", func(c *Config) { c.DownloadTTLSeconds = 0 }},
		{"zero timeout", func(c *Config) { c.LoadTimeoutSeconds = 0 }},
		{"negative max bytes", func(c *Config) { c.MaxDocumentBytes = -1 }},
	}
	for _, tt := range tests {
		cfg := DefaultConfig()
		tt.mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tt.name)
		}
	}
}

func TestSplitAndTrim(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"a,b,c", []string{"a", "b", "c"}},
		{" a , b , c ", []string{"a", "b", "c"}},
		{"**/*.html", []string{"**/*.html"}},
		{"", nil},
		{"  ,  , ", nil},
	}
	for _, tt := range tests {
		got := splitAndTrim(tt.input)
		if len(got) != len(tt.want) {
			t.Errorf("splitAndTrim(%q) len = %d, want %d", tt.input, len(got), len(tt.want))
			continue
		}
		for i, v := range got {
			if v != tt.want[i] {
				t.Errorf("splitAndTrim(%q)[%d] = %q, want %q", tt.input, i, v, tt.want[i])
			}
		}
	}
}
