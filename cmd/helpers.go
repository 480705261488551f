package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ziadkadry99/dynadash/internal/config"
	"github.com/ziadkadry99/dynadash/internal/db"
)

// loadConfig loads and validates the config, providing a user-friendly error.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w\nRun `dynadash init` to create a config file", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", cfgFile, err)
	}
	return cfg, nil
}

// databasePath is where the server and import commands keep visualisations.
func databasePath(cfg *config.Config) string {
	return filepath.Join(cfg.DataDir, "dynadash.db")
}

func openDatabase(cfg *config.Config) (*db.DB, error) {
	database, err := db.Open(databasePath(cfg))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return database, nil
}

// readDataset loads a JSON dataset file. An empty path yields nil.
func readDataset(path string) (json.RawMessage, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading dataset: %w", err)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("dataset %s is not valid JSON", path)
	}
	return json.RawMessage(data), nil
}
