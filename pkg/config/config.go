package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete blob store configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (BLOSSOM_*)
//  2. Configuration file (YAML)
//  3. Default values
//
// Backend Configuration Pattern:
// Each backend defines its own options. Storage holds one options map per
// backend (storage.local, storage.s3) and only the map matching
// storage.backend is decoded.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Server contains process-wide settings
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	// Index locates the metadata database
	Index IndexConfig `mapstructure:"index" yaml:"index"`

	// Storage selects the backend and the retention policy
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" yaml:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" yaml:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" yaml:"output" validate:"required"`
}

// ServerConfig contains process-wide settings.
type ServerConfig struct {
	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"required,gt=0"`

	// Metrics configures the Prometheus endpoint
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// MetricsConfig controls Prometheus metrics collection.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port for the metrics HTTP server
	Port int `mapstructure:"port" yaml:"port" validate:"omitempty,min=1,max=65535"`
}

// IndexConfig locates the SQLite metadata index.
type IndexConfig struct {
	// Path is the database file. Parent directories are created on open.
	Path string `mapstructure:"path" yaml:"path" validate:"required"`
}

// StorageConfig selects the backend and configures retention.
type StorageConfig struct {
	// Backend specifies which backend implementation to use
	// Valid values: local, s3
	Backend string `mapstructure:"backend" yaml:"backend" validate:"required,oneof=local s3"`

	// Local contains local backend options (path)
	// Only used when Backend = "local"
	Local map[string]any `mapstructure:"local" yaml:"local"`

	// S3 contains S3 backend options (bucket, endpoint, credentials, ...)
	// Only used when Backend = "s3"
	S3 map[string]any `mapstructure:"s3" yaml:"s3"`

	// Rules are retention rules, evaluated in order
	Rules []RuleConfig `mapstructure:"rules" yaml:"rules" validate:"dive"`

	// RemoveWhenNoOwners removes blobs that have no owners left
	RemoveWhenNoOwners bool `mapstructure:"remove_when_no_owners" yaml:"remove_when_no_owners"`

	// RemoveUntracked removes backend objects with no index row
	RemoveUntracked bool `mapstructure:"remove_untracked" yaml:"remove_untracked"`

	// UntrackedGrace is the minimum age of an untracked object before removal
	UntrackedGrace time.Duration `mapstructure:"untracked_grace" yaml:"untracked_grace" validate:"gte=0"`

	// PruneInterval is how often the retention sweep runs while serving
	PruneInterval time.Duration `mapstructure:"prune_interval" yaml:"prune_interval" validate:"required,gt=0"`

	// PruneTimeout bounds a single sweep
	PruneTimeout time.Duration `mapstructure:"prune_timeout" yaml:"prune_timeout" validate:"required,gt=0"`

	// PruneOnStart runs a sweep as soon as the server starts
	PruneOnStart bool `mapstructure:"prune_on_start" yaml:"prune_on_start"`

	// PruneRateLimit caps removals per second during a sweep (0 = unlimited)
	PruneRateLimit float64 `mapstructure:"prune_rate_limit" yaml:"prune_rate_limit" validate:"gte=0"`
}

// RuleConfig is the configured form of a retention rule.
type RuleConfig struct {
	// Type is a MIME type glob, e.g. "image/*" or "*"
	Type string `mapstructure:"type" yaml:"type" validate:"required"`

	// Expiration is e.g. "30 days", "1 week", "2 months", "12h" or seconds
	Expiration string `mapstructure:"expiration" yaml:"expiration" validate:"required"`

	// Pubkeys restricts the rule to blobs owned by one of these hex pubkeys
	Pubkeys []string `mapstructure:"pubkeys" yaml:"pubkeys,omitempty" validate:"dive,len=64,hexadecimal"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (BLOSSOM_*)
//  2. Configuration file
//  3. Default values
//
// An empty configPath searches the default location; a missing file there is
// not an error.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// envKeys are bound explicitly so environment variables apply even when
// the config file omits the key.
var envKeys = []string{
	"logging.level",
	"logging.format",
	"logging.output",
	"server.shutdown_timeout",
	"server.metrics.enabled",
	"server.metrics.port",
	"index.path",
	"storage.backend",
	"storage.local.path",
	"storage.s3.endpoint",
	"storage.s3.region",
	"storage.s3.bucket",
	"storage.s3.access_key",
	"storage.s3.secret_key",
	"storage.s3.public_url",
	"storage.s3.port",
	"storage.s3.use_ssl",
	"storage.s3.path_style",
	"storage.s3.accelerate",
	"storage.s3.max_retries",
	"storage.remove_when_no_owners",
	"storage.remove_untracked",
	"storage.untracked_grace",
	"storage.prune_interval",
	"storage.prune_timeout",
	"storage.prune_on_start",
	"storage.prune_rate_limit",
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Example: BLOSSOM_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("BLOSSOM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// $XDG_CONFIG_HOME/blossom/config.yaml
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to the
// current directory if the home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "blossom")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "blossom")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// GetConfigDir returns the configuration directory path.
func GetConfigDir() string {
	return getConfigDir()
}
