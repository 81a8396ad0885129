package config

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"   validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Provider ProviderConfig `mapstructure:"provider" validate:"required"`
	Queue    QueueConfig    `mapstructure:"queue"    validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required,url"`
}

// ProviderConfig contains settings for the embedding providers.
type ProviderConfig struct {
	// DefaultProvider is the provider used for items that carry no
	// explicit routing metadata.
	DefaultProvider string `mapstructure:"default_provider" validate:"required"`

	// GeminiAPIKey authenticates the Gemini embedding client.
	GeminiAPIKey string `mapstructure:"gemini_api_key"`

	// EmbeddingModel is the model identifier passed to the Gemini client.
	EmbeddingModel string `mapstructure:"embedding_model" validate:"required"`
}

// QueueConfig contains the initial queue engine settings. These seed the
// runtime queue configuration singleton on first boot; afterwards the
// stored configuration takes precedence and is mutable via the admin API.
type QueueConfig struct {
	BatchSize            int    `mapstructure:"batch_size"              validate:"required,gt=0,lte=100"`
	MaxConcurrentWorkers int    `mapstructure:"max_concurrent_workers"  validate:"required,gt=0,lte=64"`
	BaseRetryDelayMs     int    `mapstructure:"base_retry_delay_ms"     validate:"required,gt=0"`
	MaxRetryDelayMs      int    `mapstructure:"max_retry_delay_ms"      validate:"required,gt=0"`
	StaleWorkerSeconds   int    `mapstructure:"stale_worker_seconds"    validate:"required,gt=0"`
	ProcessingTimeoutSec int    `mapstructure:"processing_timeout_sec"  validate:"required,gt=0"`
	RetentionHours       int    `mapstructure:"retention_hours"         validate:"required,gt=0"`
	DefaultCooldownSec   int    `mapstructure:"default_cooldown_sec"    validate:"required,gt=0"`
	Strategy             string `mapstructure:"strategy"                validate:"required,oneof=conservative balanced adaptive aggressive"`
	PollIntervalMs       int    `mapstructure:"poll_interval_ms"        validate:"required,gt=0"`
	HeartbeatIntervalMs  int    `mapstructure:"heartbeat_interval_ms"   validate:"required,gt=0"`
	MaintenanceIntervalS int    `mapstructure:"maintenance_interval_sec" validate:"required,gt=0"`
}
