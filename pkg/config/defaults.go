package config

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/ACT3ai/jfk-blossom-server/pkg/backend/s3"
	"github.com/ACT3ai/jfk-blossom-server/pkg/retention"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Zero values are replaced with defaults; explicit values are preserved.
// Top-level booleans are left alone, so every feature flag defaults to off.
// The S3 use_ssl and path_style options default to on.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyIndexDefaults(&cfg.Index)
	applyStorageDefaults(&cfg.Storage)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 9090
	}
}

func applyIndexDefaults(cfg *IndexConfig) {
	if cfg.Path == "" {
		cfg.Path = filepath.Join(defaultDataDir(), "index.db")
	}
}

func applyStorageDefaults(cfg *StorageConfig) {
	if cfg.Backend == "" {
		cfg.Backend = "local"
	}

	if cfg.Local == nil {
		cfg.Local = make(map[string]any)
	}
	if cfg.S3 == nil {
		cfg.S3 = make(map[string]any)
	}

	// Defaults for every backend so generated samples are complete.
	if _, ok := cfg.Local["path"]; !ok {
		cfg.Local["path"] = filepath.Join(defaultDataDir(), "blobs")
	}
	if _, ok := cfg.S3["region"]; !ok {
		cfg.S3["region"] = s3.DefaultRegion
	}
	if _, ok := cfg.S3["max_retries"]; !ok {
		cfg.S3["max_retries"] = s3.DefaultMaxRetries
	}
	if _, ok := cfg.S3["use_ssl"]; !ok {
		cfg.S3["use_ssl"] = true
	}
	if _, ok := cfg.S3["path_style"]; !ok {
		cfg.S3["path_style"] = true
	}
	if _, ok := cfg.S3["accelerate"]; !ok {
		cfg.S3["accelerate"] = false
	}

	if cfg.UntrackedGrace == 0 {
		cfg.UntrackedGrace = retention.DefaultUntrackedGrace
	}
	if cfg.PruneInterval == 0 {
		cfg.PruneInterval = time.Hour
	}
	if cfg.PruneTimeout == 0 {
		cfg.PruneTimeout = 10 * time.Minute
	}
}

// defaultDataDir is ./data, relative to the working directory.
func defaultDataDir() string {
	return "data"
}

// GetDefaultConfig returns a Config with all default values applied and a
// single catch-all retention rule.
func GetDefaultConfig() *Config {
	cfg := &Config{
		Storage: StorageConfig{
			Rules: []RuleConfig{
				{Type: "*", Expiration: "1 month"},
			},
			RemoveWhenNoOwners: true,
		},
	}
	ApplyDefaults(cfg)
	return cfg
}
