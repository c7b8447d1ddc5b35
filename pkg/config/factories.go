package config

import (
	"context"
	"fmt"

	"github.com/ACT3ai/jfk-blossom-server/internal/logger"
	"github.com/ACT3ai/jfk-blossom-server/internal/ratelimiter"
	"github.com/ACT3ai/jfk-blossom-server/pkg/backend"
	"github.com/ACT3ai/jfk-blossom-server/pkg/backend/local"
	"github.com/ACT3ai/jfk-blossom-server/pkg/backend/s3"
	"github.com/ACT3ai/jfk-blossom-server/pkg/index"
	"github.com/ACT3ai/jfk-blossom-server/pkg/retention"
	"github.com/mitchellh/mapstructure"
)

// localOptions are the storage.local options.
type localOptions struct {
	Path string `mapstructure:"path"`
}

// s3Options are the storage.s3 options.
type s3Options struct {
	Endpoint   string `mapstructure:"endpoint"`
	Port       int    `mapstructure:"port"`
	Region     string `mapstructure:"region"`
	AccessKey  string `mapstructure:"access_key"`
	SecretKey  string `mapstructure:"secret_key"`
	Bucket     string `mapstructure:"bucket"`
	PublicURL  string `mapstructure:"public_url"`
	UseSSL     bool   `mapstructure:"use_ssl"`
	PathStyle  bool   `mapstructure:"path_style"`
	Accelerate bool   `mapstructure:"accelerate"`
	MaxRetries int    `mapstructure:"max_retries"`
}

// decodeOptions decodes a backend options map. Input is weakly typed so
// values from environment variables ("true", "9000") decode into bools and
// ints.
func decodeOptions(options map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(options)
}

// CreateBackend creates the backend selected by cfg.Backend from its options
// map. The backend is not set up; callers run Setup before use.
//
// metrics may be nil.
func CreateBackend(ctx context.Context, cfg *StorageConfig, metrics backend.Metrics) (backend.Backend, error) {
	switch cfg.Backend {
	case "local":
		return createLocalBackend(cfg.Local, metrics)
	case "s3":
		return createS3Backend(ctx, cfg.S3, metrics)
	default:
		return nil, fmt.Errorf("unknown storage backend: %q", cfg.Backend)
	}
}

func createLocalBackend(options map[string]any, metrics backend.Metrics) (backend.Backend, error) {
	var opts localOptions
	if err := decodeOptions(options, &opts); err != nil {
		return nil, fmt.Errorf("failed to decode local backend config: %w", err)
	}
	if opts.Path == "" {
		return nil, fmt.Errorf("local backend: path is required")
	}

	logger.Info("Local backend: path=%s", opts.Path)
	return local.New(local.Config{Path: opts.Path, Metrics: metrics}), nil
}

func createS3Backend(ctx context.Context, options map[string]any, metrics backend.Metrics) (backend.Backend, error) {
	var opts s3Options
	if err := decodeOptions(options, &opts); err != nil {
		return nil, fmt.Errorf("failed to decode S3 backend config: %w", err)
	}

	be, err := s3.Open(ctx, s3.Config{
		Endpoint:   opts.Endpoint,
		Port:       opts.Port,
		Region:     opts.Region,
		AccessKey:  opts.AccessKey,
		SecretKey:  opts.SecretKey,
		Bucket:     opts.Bucket,
		PublicURL:  opts.PublicURL,
		UseSSL:     opts.UseSSL,
		PathStyle:  opts.PathStyle,
		Accelerate: opts.Accelerate,
		MaxRetries: opts.MaxRetries,
		Metrics:    metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 backend: %w", err)
	}

	logger.Info("S3 backend: bucket=%s region=%s endpoint=%s", opts.Bucket, opts.Region, opts.Endpoint)
	return be, nil
}

// OpenIndex opens the metadata index and applies pending migrations.
func OpenIndex(ctx context.Context, cfg *IndexConfig) (*index.Index, error) {
	idx, err := index.Open(ctx, index.Config{Path: cfg.Path})
	if err != nil {
		return nil, fmt.Errorf("failed to open index %s: %w", cfg.Path, err)
	}
	return idx, nil
}

// CreateRules parses the configured retention rules.
func CreateRules(cfg *StorageConfig) ([]retention.Rule, error) {
	rules := make([]retention.Rule, 0, len(cfg.Rules))
	for i, rc := range cfg.Rules {
		rule, err := retention.ParseRule(rc.Type, rc.Expiration, rc.Pubkeys)
		if err != nil {
			return nil, fmt.Errorf("storage.rules[%d]: %w", i, err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// RetentionConfig builds the sweeper configuration.
func RetentionConfig(cfg *StorageConfig) (retention.Config, error) {
	rules, err := CreateRules(cfg)
	if err != nil {
		return retention.Config{}, err
	}
	return retention.Config{
		Rules:              rules,
		RemoveWhenNoOwners: cfg.RemoveWhenNoOwners,
		RemoveUntracked:    cfg.RemoveUntracked,
		UntrackedGrace:     cfg.UntrackedGrace,
	}, nil
}

// SchedulerConfig builds the periodic sweep configuration.
func SchedulerConfig(cfg *StorageConfig) retention.SchedulerConfig {
	return retention.SchedulerConfig{
		Interval:   cfg.PruneInterval,
		Timeout:    cfg.PruneTimeout,
		RunOnStart: cfg.PruneOnStart,
	}
}

// CreateRateLimiter returns the limiter pacing sweep removals.
func CreateRateLimiter(cfg *StorageConfig) *ratelimiter.RateLimiter {
	return ratelimiter.New(cfg.PruneRateLimit, 0)
}

// ConfigureLogging applies the logging section to the global logger.
func ConfigureLogging(cfg *LoggingConfig) error {
	return logger.Configure(cfg.Level, cfg.Format, cfg.Output)
}
