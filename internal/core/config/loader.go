package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.RPC.Timeout == 0 {
		cfg.RPC.Timeout = 10 * time.Second
	}
	if cfg.Watcher.PollInterval == 0 {
		cfg.Watcher.PollInterval = 5 * time.Second
	}
	if cfg.Watcher.RetryDelay == 0 {
		cfg.Watcher.RetryDelay = time.Second
	}
	if cfg.Watcher.MaxRetries == 0 {
		cfg.Watcher.MaxRetries = 10
	}
	if cfg.Watcher.PageSize == 0 {
		cfg.Watcher.PageSize = 100
	}
	if cfg.Watcher.DedupWindow == 0 {
		cfg.Watcher.DedupWindow = 10000
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "data/stream-lifecycle-db.json"
	}
}
