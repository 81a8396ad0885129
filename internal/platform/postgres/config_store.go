package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/docuvec/embedq/internal/domain"
	"github.com/docuvec/embedq/internal/platform/logger"
	"github.com/docuvec/embedq/internal/store"
)

// PostgresConfigStore implements the store.ConfigStore interface using
// PostgreSQL. The queue configuration is a singleton row; durations are
// stored as millisecond integers.
type PostgresConfigStore struct {
	db store.DBTX
}

// Ensure PostgresConfigStore implements store.ConfigStore.
var _ store.ConfigStore = (*PostgresConfigStore)(nil)

// NewPostgresConfigStore creates a new PostgresConfigStore.
func NewPostgresConfigStore(db store.DBTX) *PostgresConfigStore {
	return &PostgresConfigStore{
		db: db,
	}
}

// Load implements store.ConfigStore.Load.
// Returns store.ErrNotFound when no configuration has been saved yet; the
// caller falls back to defaults.
func (s *PostgresConfigStore) Load(ctx context.Context) (*domain.QueueConfig, error) {
	log := logger.FromContext(ctx)

	query := `
		SELECT batch_size, max_concurrent_workers, queue_enabled,
			base_retry_delay_ms, max_retry_delay_ms, backoff_multiplier, jitter_fraction,
			stale_worker_threshold_ms, processing_timeout_ms, retention_period_ms,
			default_cooldown_ms, strategy, updated_at
		FROM queue_config
		WHERE id = 1
	`

	var (
		cfg                 domain.QueueConfig
		baseRetryMs         int64
		maxRetryMs          int64
		staleThresholdMs    int64
		processingTimeoutMs int64
		retentionPeriodMs   int64
		defaultCooldownMs   int64
	)

	err := s.db.QueryRowContext(ctx, query).Scan(
		&cfg.BatchSize,
		&cfg.MaxConcurrentWorkers,
		&cfg.QueueEnabled,
		&baseRetryMs,
		&maxRetryMs,
		&cfg.BackoffMultiplier,
		&cfg.JitterFraction,
		&staleThresholdMs,
		&processingTimeoutMs,
		&retentionPeriodMs,
		&defaultCooldownMs,
		&cfg.Strategy,
		&cfg.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		log.Error("failed to load queue config", "error", err)
		return nil, fmt.Errorf("failed to load queue config: %w", MapError(err))
	}

	cfg.BaseRetryDelay = time.Duration(baseRetryMs) * time.Millisecond
	cfg.MaxRetryDelay = time.Duration(maxRetryMs) * time.Millisecond
	cfg.StaleWorkerThreshold = time.Duration(staleThresholdMs) * time.Millisecond
	cfg.ProcessingTimeout = time.Duration(processingTimeoutMs) * time.Millisecond
	cfg.RetentionPeriod = time.Duration(retentionPeriodMs) * time.Millisecond
	cfg.DefaultCooldown = time.Duration(defaultCooldownMs) * time.Millisecond

	return &cfg, nil
}

// Save implements store.ConfigStore.Save.
func (s *PostgresConfigStore) Save(ctx context.Context, cfg domain.QueueConfig) error {
	log := logger.FromContext(ctx)

	if err := cfg.Validate(); err != nil {
		return store.NewStoreError("queue_config", "save", "validation failed", err)
	}

	query := `
		INSERT INTO queue_config (id, batch_size, max_concurrent_workers, queue_enabled,
			base_retry_delay_ms, max_retry_delay_ms, backoff_multiplier, jitter_fraction,
			stale_worker_threshold_ms, processing_timeout_ms, retention_period_ms,
			default_cooldown_ms, strategy, updated_at)
		VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE
		SET batch_size = EXCLUDED.batch_size,
			max_concurrent_workers = EXCLUDED.max_concurrent_workers,
			queue_enabled = EXCLUDED.queue_enabled,
			base_retry_delay_ms = EXCLUDED.base_retry_delay_ms,
			max_retry_delay_ms = EXCLUDED.max_retry_delay_ms,
			backoff_multiplier = EXCLUDED.backoff_multiplier,
			jitter_fraction = EXCLUDED.jitter_fraction,
			stale_worker_threshold_ms = EXCLUDED.stale_worker_threshold_ms,
			processing_timeout_ms = EXCLUDED.processing_timeout_ms,
			retention_period_ms = EXCLUDED.retention_period_ms,
			default_cooldown_ms = EXCLUDED.default_cooldown_ms,
			strategy = EXCLUDED.strategy,
			updated_at = EXCLUDED.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		cfg.BatchSize,
		cfg.MaxConcurrentWorkers,
		cfg.QueueEnabled,
		cfg.BaseRetryDelay.Milliseconds(),
		cfg.MaxRetryDelay.Milliseconds(),
		cfg.BackoffMultiplier,
		cfg.JitterFraction,
		cfg.StaleWorkerThreshold.Milliseconds(),
		cfg.ProcessingTimeout.Milliseconds(),
		cfg.RetentionPeriod.Milliseconds(),
		cfg.DefaultCooldown.Milliseconds(),
		cfg.Strategy,
		cfg.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to save queue config", "error", err)
		return store.NewStoreError("queue_config", "save", "upsert failed", MapError(err))
	}

	return nil
}
