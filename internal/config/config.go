package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

// Load reads configuration from the given YAML file, then overlays
// environment variable overrides (DYNADASH_*).
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Start from defaults.
	cfg := DefaultConfig()

	// Load YAML file if it exists.
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("accessing config %s: %w", path, err)
	}

	// Overlay environment variables: DYNADASH_DATA_DIR -> data_dir, etc.
	if err := k.Load(env.Provider("DYNADASH_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "DYNADASH_"))
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration to the given YAML file path.
func (c *Config) Save(path string) error {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

var jsIdentifier = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

// Validate checks that the configuration contains valid values.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}

	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}

	if !jsIdentifier.MatchString(c.DataVariable) {
		return fmt.Errorf("invalid data_variable %q: must be a JavaScript identifier", c.DataVariable)
	}

	if c.DownloadName == "" || strings.ContainsAny(c.DownloadName, `/\"`) {
		return fmt.Errorf("invalid download_name %q", c.DownloadName)
	}

	if c.DownloadTTLSeconds <= 0 {
		return fmt.Errorf("download_ttl_seconds must be positive")
	}

	if c.LoadTimeoutSeconds <= 0 {
		return fmt.Errorf("load_timeout_seconds must be positive")
	}

	if c.MaxDocumentBytes < 0 {
		return fmt.Errorf("max_document_bytes must be non-negative")
	}

	return nil
}
