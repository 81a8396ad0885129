package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// ErrConfigInvalid indicates that configuration failed validation.
// The wrapped error carries the field-level details.
var ErrConfigInvalid = errors.New("invalid configuration")

// Load reads configuration from environment variables and an optional
// config file. Environment variables take precedence over values from
// config files. Returns a populated Config struct or an error if
// loading or validation fails.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// Optional config file: ./config.yaml, silently skipped if absent.
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Environment variables use the EMBEDQ_ prefix with underscores for
	// nesting, e.g. EMBEDQ_DATABASE_URL, EMBEDQ_SERVER_PORT.
	v.SetEnvPrefix("EMBEDQ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks a Config against its declared validation tags.
// Returns an error wrapping ErrConfigInvalid on failure.
func Validate(cfg *Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("%w: %v", ErrConfigInvalid, err)
	}
	return nil
}

// setDefaults registers default values so a minimal environment
// (just EMBEDQ_DATABASE_URL) produces a runnable configuration.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("provider.default_provider", "gemini")
	v.SetDefault("provider.embedding_model", "gemini-embedding-001")

	v.SetDefault("queue.batch_size", 5)
	v.SetDefault("queue.max_concurrent_workers", 4)
	v.SetDefault("queue.base_retry_delay_ms", 1000)
	v.SetDefault("queue.max_retry_delay_ms", 300000)
	v.SetDefault("queue.stale_worker_seconds", 120)
	v.SetDefault("queue.processing_timeout_sec", 600)
	v.SetDefault("queue.retention_hours", 168)
	v.SetDefault("queue.default_cooldown_sec", 60)
	v.SetDefault("queue.strategy", "balanced")
	v.SetDefault("queue.poll_interval_ms", 1000)
	v.SetDefault("queue.heartbeat_interval_ms", 15000)
	v.SetDefault("queue.maintenance_interval_sec", 60)
}
