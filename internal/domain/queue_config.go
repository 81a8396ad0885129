package domain

import (
	"errors"
	"time"
)

// Strategy selects how aggressively the scheduler sizes batches and
// worker concurrency in response to recent provider behavior.
type Strategy string

// Processing strategies
const (
	StrategyConservative Strategy = "conservative"
	StrategyBalanced     Strategy = "balanced"
	StrategyAdaptive     Strategy = "adaptive"
	StrategyAggressive   Strategy = "aggressive"
)

// Common validation errors for QueueConfig
var (
	ErrInvalidBatchSize       = errors.New("batch size must be positive")
	ErrInvalidWorkerCap       = errors.New("max concurrent workers must be positive")
	ErrInvalidRetryDelays     = errors.New("base retry delay must be positive and not exceed max retry delay")
	ErrInvalidBackoff         = errors.New("backoff multiplier must be at least 1")
	ErrInvalidJitter          = errors.New("jitter fraction must be in [0, 1]")
	ErrInvalidStaleThreshold  = errors.New("stale worker threshold must be positive")
	ErrInvalidProcessingLimit = errors.New("processing timeout must be positive")
	ErrInvalidRetention       = errors.New("retention period must be positive")
	ErrInvalidCooldown        = errors.New("default cooldown must be positive")
	ErrInvalidStrategy        = errors.New("invalid processing strategy")
)

// QueueConfig is the mutable queue engine configuration. It is persisted
// as a singleton row and read as an immutable snapshot at the start of
// each scheduling cycle; updates replace the whole snapshot rather than
// mutating it in place.
type QueueConfig struct {
	BatchSize            int           `json:"batch_size"`
	MaxConcurrentWorkers int           `json:"max_concurrent_workers"`
	QueueEnabled         bool          `json:"queue_enabled"`
	BaseRetryDelay       time.Duration `json:"base_retry_delay_ms"`
	MaxRetryDelay        time.Duration `json:"max_retry_delay_ms"`
	BackoffMultiplier    float64       `json:"backoff_multiplier"`
	JitterFraction       float64       `json:"jitter_fraction"`
	StaleWorkerThreshold time.Duration `json:"stale_worker_threshold_ms"`
	ProcessingTimeout    time.Duration `json:"processing_timeout_ms"`
	RetentionPeriod      time.Duration `json:"retention_period_ms"`
	DefaultCooldown      time.Duration `json:"default_cooldown_ms"`
	Strategy             Strategy      `json:"strategy"`
	UpdatedAt            time.Time     `json:"updated_at"`
}

// DefaultQueueConfig returns the configuration applied on first boot,
// before any stored or operator-supplied settings exist.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		BatchSize:            5,
		MaxConcurrentWorkers: 4,
		QueueEnabled:         true,
		BaseRetryDelay:       time.Second,
		MaxRetryDelay:        5 * time.Minute,
		BackoffMultiplier:    2.0,
		JitterFraction:       0.1,
		StaleWorkerThreshold: 2 * time.Minute,
		ProcessingTimeout:    10 * time.Minute,
		RetentionPeriod:      7 * 24 * time.Hour,
		DefaultCooldown:      time.Minute,
		Strategy:             StrategyBalanced,
		UpdatedAt:            time.Now().UTC(),
	}
}

// Validate checks the configuration. Invalid updates are rejected at the
// boundary; the previous configuration stays in effect.
func (c *QueueConfig) Validate() error {
	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}
	if c.MaxConcurrentWorkers <= 0 {
		return ErrInvalidWorkerCap
	}
	if c.BaseRetryDelay <= 0 || c.BaseRetryDelay > c.MaxRetryDelay {
		return ErrInvalidRetryDelays
	}
	if c.BackoffMultiplier < 1 {
		return ErrInvalidBackoff
	}
	if c.JitterFraction < 0 || c.JitterFraction > 1 {
		return ErrInvalidJitter
	}
	if c.StaleWorkerThreshold <= 0 {
		return ErrInvalidStaleThreshold
	}
	if c.ProcessingTimeout <= 0 {
		return ErrInvalidProcessingLimit
	}
	if c.RetentionPeriod <= 0 {
		return ErrInvalidRetention
	}
	if c.DefaultCooldown <= 0 {
		return ErrInvalidCooldown
	}
	if !isValidStrategy(c.Strategy) {
		return ErrInvalidStrategy
	}
	return nil
}

func isValidStrategy(s Strategy) bool {
	switch s {
	case StrategyConservative, StrategyBalanced, StrategyAdaptive, StrategyAggressive:
		return true
	default:
		return false
	}
}
