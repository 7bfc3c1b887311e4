// Package config loads service configuration from the environment,
// with an optional TOML file overlay for deployments that prefer
// files over environment blocks.
package config

import (
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Root      RootConfig
	Limits    LimitConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
	Webhook   WebhookConfig
	Session   SessionConfig
	Protect   ProtectConfig
}

// ServerConfig holds HTTP ingress configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8420" toml:"port"`
	Host string `envconfig:"HOST" default:"0.0.0.0" toml:"host"`
}

// RootConfig defines the filesystem subtree the service may expose.
// Unrestricted widens the root to "/" but the containment check in the
// resolver stays active; it is a policy toggle, never an omission.
type RootConfig struct {
	Path         string `envconfig:"PERMITTED_ROOT" default:"/srv/files" toml:"path"`
	Unrestricted bool   `envconfig:"ROOT_UNRESTRICTED" default:"false" toml:"unrestricted"`
}

// LimitConfig bounds transfer sizes and recursive operations.
type LimitConfig struct {
	MaxTransferBytes int64  `envconfig:"MAX_TRANSFER_BYTES" default:"52428800" toml:"max_transfer_bytes"`
	MaxCatBytes      int64  `envconfig:"MAX_CAT_BYTES" default:"262144" toml:"max_cat_bytes"`
	TailDefault      int    `envconfig:"TAIL_DEFAULT" default:"10" toml:"tail_default"`
	TailMax          int    `envconfig:"TAIL_MAX" default:"1000" toml:"tail_max"`
	TreeDepthDefault int    `envconfig:"TREE_DEPTH_DEFAULT" default:"3" toml:"tree_depth_default"`
	TreeDepthMax     int    `envconfig:"TREE_DEPTH_MAX" default:"8" toml:"tree_depth_max"`
	FindLimit        int    `envconfig:"FIND_LIMIT" default:"200" toml:"find_limit"`
	SearchLimit      int    `envconfig:"SEARCH_LIMIT" default:"20" toml:"search_limit"`
	ProcessLimit     int    `envconfig:"PROCESS_LIMIT" default:"20" toml:"process_limit"`
	HashAlgorithm    string `envconfig:"HASH_ALGORITHM" default:"sha256" toml:"hash_algorithm"`
}

// LogConfig holds logging configuration. Dir is where rotating file
// output lands; the logs command bundles this directory.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info" toml:"level"`
	Development bool   `envconfig:"LOG_DEV" default:"false" toml:"development"`
	Dir         string `envconfig:"LOG_DIR" default:"logs" toml:"dir"`
}

// RateLimitConfig holds per-operator rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"10" toml:"requests_per_second"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"20" toml:"burst"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true" toml:"enabled"`
}

// WebhookConfig holds the push transport endpoint for replies.
type WebhookConfig struct {
	URL     string `envconfig:"WEBHOOK_URL" default:"" toml:"url"`
	Enabled bool   `envconfig:"WEBHOOK_ENABLED" default:"false" toml:"enabled"`
}

// SessionConfig holds session store tuning.
type SessionConfig struct {
	SnapshotPath string `envconfig:"BOOKMARK_SNAPSHOT" default:"" toml:"snapshot_path"`
}

// ProtectConfig lists pids the kill command must refuse. The service's
// own pid is always protected regardless of this list.
type ProtectConfig struct {
	Pids []int `envconfig:"PROTECTED_PIDS" toml:"pids"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadFile loads environment configuration and overlays a TOML file on
// top of it. Missing file is an error; callers gate on the flag.
func LoadFile(path string) (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: "8420", Host: "0.0.0.0"},
		Root:   RootConfig{Path: "/srv/files"},
		Limits: LimitConfig{
			MaxTransferBytes: 50 * 1024 * 1024,
			MaxCatBytes:      256 * 1024,
			TailDefault:      10,
			TailMax:          1000,
			TreeDepthDefault: 3,
			TreeDepthMax:     8,
			FindLimit:        200,
			SearchLimit:      20,
			ProcessLimit:     20,
			HashAlgorithm:    "sha256",
		},
		Logging:   LogConfig{Level: "info", Dir: "logs"},
		RateLimit: RateLimitConfig{RequestsPerSecond: 10, Burst: 20, Enabled: true},
	}
}
