package config

import (
	"errors"
	"fmt"

	"github.com/ACT3ai/jfk-blossom-server/pkg/retention"
	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate = validator.New()

// Validate validates the configuration using struct tags and custom rules.
//
// Log level normalization happens in ApplyDefaults; validation accepts
// both cases.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if err := validateCustomRules(cfg); err != nil {
		return err
	}
	return nil
}

// validateCustomRules performs validation that struct tags cannot express.
func validateCustomRules(cfg *Config) error {
	switch cfg.Storage.Backend {
	case "local":
		if path, _ := cfg.Storage.Local["path"].(string); path == "" {
			return fmt.Errorf("storage.local.path: required when backend is local")
		}
	case "s3":
		if bucket, _ := cfg.Storage.S3["bucket"].(string); bucket == "" {
			return fmt.Errorf("storage.s3.bucket: required when backend is s3")
		}
	}

	for i, rule := range cfg.Storage.Rules {
		if _, err := retention.ParseExpiration(rule.Expiration); err != nil {
			return fmt.Errorf("storage.rules[%d].expiration: %w", i, err)
		}
	}
	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
