package store

import (
	"context"
	"time"

	"github.com/docuvec/embedq/internal/domain"
)

// RateLimitStore defines the interface for per-provider cooldown
// persistence. The cooldown state is shared read/write across all
// workers; last-writer-wins on CooldownUntil is acceptable because
// cooldowns only ever extend forward.
// Version: 1.0
type RateLimitStore interface {
	// Get retrieves the rate-limit window for a provider.
	// Returns ErrRateLimitNotFound if no window has been recorded.
	Get(ctx context.Context, provider string) (*domain.RateLimitWindow, error)

	// List returns all recorded windows.
	List(ctx context.Context) ([]*domain.RateLimitWindow, error)

	// Save upserts a window keyed by its provider.
	Save(ctx context.Context, window *domain.RateLimitWindow) error

	// ActiveProviders returns the providers whose cooldown is still in
	// effect at the given instant.
	ActiveProviders(ctx context.Context, now time.Time) ([]string, error)

	// Reset clears a provider's cooldown and failure streak. Used for
	// administrative recovery; resetting an unknown provider is a no-op.
	Reset(ctx context.Context, provider string) error
}
