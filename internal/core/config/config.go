package config

import (
	"time"

	redisclient "github.com/stellarstream/watcher/internal/infra/redis"
	"github.com/stellarstream/watcher/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig       `yaml:"server"`
	RPC      RPCConfig          `yaml:"rpc"`
	Watcher  WatcherConfig      `yaml:"watcher"`
	Store    StoreConfig        `yaml:"store"`
	Redis    redisclient.Config `yaml:"redis"`
	Logging  LoggingConfig      `yaml:"logging"`
	Database postgres.Config    `yaml:"database"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// RPCConfig holds settings for the Soroban RPC event source.
type RPCConfig struct {
	URL        string        `yaml:"url"`
	ContractID string        `yaml:"contract_id"`
	Timeout    time.Duration `yaml:"timeout"`
}

// WatcherConfig holds poll loop settings.
type WatcherConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	RetryDelay   time.Duration `yaml:"retry_delay"`
	MaxRetries   int           `yaml:"max_retries"`
	PageSize     int           `yaml:"page_size"`
	// StrictCancel rejects cancellations for unknown streams instead of
	// synthesizing a placeholder record.
	StrictCancel bool `yaml:"strict_cancel"`
	// DedupWindow is the number of applied event IDs remembered for replay
	// protection when Redis is not configured.
	DedupWindow int `yaml:"dedup_window"`
}

// StoreConfig selects the stream store backend when no database URL is set.
type StoreConfig struct {
	Path string `yaml:"path"` // JSON file path, e.g. data/stream-lifecycle-db.json
}
