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

// PostgresRateLimitStore implements the store.RateLimitStore interface using
// PostgreSQL. Windows are keyed by provider name; providers are open-ended
// identifiers, so rows are created on first save.
type PostgresRateLimitStore struct {
	db store.DBTX
}

// Ensure PostgresRateLimitStore implements store.RateLimitStore.
var _ store.RateLimitStore = (*PostgresRateLimitStore)(nil)

// NewPostgresRateLimitStore creates a new PostgresRateLimitStore.
func NewPostgresRateLimitStore(db store.DBTX) *PostgresRateLimitStore {
	return &PostgresRateLimitStore{
		db: db,
	}
}

// Get implements store.RateLimitStore.Get.
func (s *PostgresRateLimitStore) Get(ctx context.Context, provider string) (*domain.RateLimitWindow, error) {
	log := logger.FromContext(ctx)

	query := `
		SELECT provider, cooldown_until, consecutive_failures, updated_at
		FROM rate_limit_windows
		WHERE provider = $1
	`

	window, err := scanRateLimitWindow(s.db.QueryRowContext(ctx, query, provider))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrRateLimitNotFound
		}
		log.Error("failed to get rate limit window", "provider", provider, "error", err)
		return nil, fmt.Errorf("failed to get rate limit window: %w", MapError(err))
	}

	return window, nil
}

// List implements store.RateLimitStore.List.
func (s *PostgresRateLimitStore) List(ctx context.Context) ([]*domain.RateLimitWindow, error) {
	log := logger.FromContext(ctx)

	query := `
		SELECT provider, cooldown_until, consecutive_failures, updated_at
		FROM rate_limit_windows
		ORDER BY provider ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		log.Error("failed to list rate limit windows", "error", err)
		return nil, fmt.Errorf("failed to list rate limit windows: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var windows []*domain.RateLimitWindow
	for rows.Next() {
		window, err := scanRateLimitWindow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rate limit window: %w", err)
		}
		windows = append(windows, window)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rate limit windows: %w", err)
	}

	return windows, nil
}

// Save implements store.RateLimitStore.Save.
// Saves are upserts: the first cooldown for a provider creates its row.
func (s *PostgresRateLimitStore) Save(ctx context.Context, window *domain.RateLimitWindow) error {
	log := logger.FromContext(ctx)

	if err := window.Validate(); err != nil {
		return store.NewStoreError("rate_limit_window", "save", "validation failed", err)
	}

	query := `
		INSERT INTO rate_limit_windows (provider, cooldown_until, consecutive_failures, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (provider) DO UPDATE
		SET cooldown_until = EXCLUDED.cooldown_until,
			consecutive_failures = EXCLUDED.consecutive_failures,
			updated_at = EXCLUDED.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		window.Provider,
		window.CooldownUntil,
		window.ConsecutiveFailures,
		window.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to save rate limit window", "provider", window.Provider, "error", err)
		return store.NewStoreError("rate_limit_window", "save", "upsert failed", MapError(err))
	}

	return nil
}

// ActiveProviders implements store.RateLimitStore.ActiveProviders.
func (s *PostgresRateLimitStore) ActiveProviders(ctx context.Context, now time.Time) ([]string, error) {
	log := logger.FromContext(ctx)

	query := `
		SELECT provider FROM rate_limit_windows
		WHERE cooldown_until IS NOT NULL AND cooldown_until > $1
		ORDER BY provider ASC
	`

	rows, err := s.db.QueryContext(ctx, query, now)
	if err != nil {
		log.Error("failed to query active cooldowns", "error", err)
		return nil, fmt.Errorf("failed to query active cooldowns: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var providers []string
	for rows.Next() {
		var provider string
		if err := rows.Scan(&provider); err != nil {
			return nil, fmt.Errorf("failed to scan provider: %w", err)
		}
		providers = append(providers, provider)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating providers: %w", err)
	}

	return providers, nil
}

// Reset implements store.RateLimitStore.Reset.
// Resetting an unknown provider is a no-op, not an error.
func (s *PostgresRateLimitStore) Reset(ctx context.Context, provider string) error {
	log := logger.FromContext(ctx)

	query := `
		UPDATE rate_limit_windows
		SET cooldown_until = NULL, consecutive_failures = 0, updated_at = NOW()
		WHERE provider = $1
	`

	if _, err := s.db.ExecContext(ctx, query, provider); err != nil {
		log.Error("failed to reset rate limit window", "provider", provider, "error", err)
		return store.NewStoreError("rate_limit_window", "reset", "update failed", MapError(err))
	}

	return nil
}

// scanRateLimitWindow scans a row into a RateLimitWindow.
func scanRateLimitWindow(row rowScanner) (*domain.RateLimitWindow, error) {
	var (
		window        domain.RateLimitWindow
		cooldownUntil sql.NullTime
	)

	err := row.Scan(
		&window.Provider,
		&cooldownUntil,
		&window.ConsecutiveFailures,
		&window.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if cooldownUntil.Valid {
		v := cooldownUntil.Time
		window.CooldownUntil = &v
	}

	return &window, nil
}
