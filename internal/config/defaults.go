package config

import "github.com/ziadkadry99/dynadash/internal/inject"

// DefaultPath is where init writes and commands look for configuration.
const DefaultPath = ".dynadash.yml"

// DefaultExcludes are glob patterns skipped during catalog imports.
var DefaultExcludes = []string{
	"node_modules/**",
	".git/**",
	"dist/**",
	"*.min.html",
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Port:               8080,
		AllowAllOrigins:    false,
		DataDir:            "data",
		DataVariable:       inject.DefaultVariable,
		DownloadName:       "dashboard.html",
		DownloadTTLSeconds: 60,
		LoadTimeoutSeconds: 8,
		MaxDocumentBytes:   8 << 20,
		Include:            []string{"**/*.html"},
		Exclude:            DefaultExcludes,
	}
}
