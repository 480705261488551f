package config

import "time"

// Config is the top-level dynadash configuration, corresponding to .dynadash.yml.
type Config struct {
	Port               int      `yaml:"port" koanf:"port"`
	AllowAllOrigins    bool     `yaml:"allow_all_origins" koanf:"allow_all_origins"`
	DataDir            string   `yaml:"data_dir" koanf:"data_dir"`
	DataVariable       string   `yaml:"data_variable" koanf:"data_variable"`
	DownloadName       string   `yaml:"download_name" koanf:"download_name"`
	DownloadTTLSeconds int      `yaml:"download_ttl_seconds" koanf:"download_ttl_seconds"`
	LoadTimeoutSeconds int      `yaml:"load_timeout_seconds" koanf:"load_timeout_seconds"`
	MaxDocumentBytes   int      `yaml:"max_document_bytes" koanf:"max_document_bytes"`
	Include            []string `yaml:"include" koanf:"include"`
	Exclude            []string `yaml:"exclude" koanf:"exclude"`
}

// LoadTimeout is the viewer's bounded wait.
func (c *Config) LoadTimeout() time.Duration {
	return time.Duration(c.LoadTimeoutSeconds) * time.Second
}

// DownloadTTL is how long an unclaimed download stays available.
func (c *Config) DownloadTTL() time.Duration {
	return time.Duration(c.DownloadTTLSeconds) * time.Second
}
