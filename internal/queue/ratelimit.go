package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/docuvec/embedq/internal/domain"
	"github.com/docuvec/embedq/internal/platform/logger"
	"github.com/docuvec/embedq/internal/store"
)

// Coordinator tracks per-provider cooldowns. When a provider signals a
// rate limit, the coordinator opens a cooldown window; while the window is
// active, the scheduler excludes that provider's items from claims instead
// of burning their retry budgets.
type Coordinator struct {
	windows store.RateLimitStore
	config  *ConfigCache
	now     func() time.Time
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(windows store.RateLimitStore, config *ConfigCache) *Coordinator {
	return &Coordinator{
		windows: windows,
		config:  config,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the coordinator's clock. Test helper.
func (c *Coordinator) SetClock(now func() time.Time) {
	c.now = now
}

// OpenCooldown opens or extends the provider's cooldown window and
// returns its deadline. A zero retryAfter falls back to the configured
// default cooldown. Windows only ever extend forward: a shorter hint
// never trims an active cooldown.
func (c *Coordinator) OpenCooldown(ctx context.Context, provider string, retryAfter time.Duration) (time.Time, error) {
	log := logger.FromContext(ctx)

	if retryAfter <= 0 {
		retryAfter = c.config.Snapshot().DefaultCooldown
	}

	now := c.now()
	until := now.Add(retryAfter)

	window, err := c.windows.Get(ctx, provider)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return time.Time{}, fmt.Errorf("failed to load rate limit window: %w", err)
		}
		window = &domain.RateLimitWindow{Provider: provider, UpdatedAt: now}
	}

	window.Extend(until, now)
	if err := c.windows.Save(ctx, window); err != nil {
		return time.Time{}, fmt.Errorf("failed to save rate limit window: %w", err)
	}

	log.Warn("provider cooldown opened",
		"provider", provider,
		"cooldown_until", *window.CooldownUntil,
		"consecutive_failures", window.ConsecutiveFailures)

	return *window.CooldownUntil, nil
}

// ExcludedProviders returns the providers whose cooldown is currently
// active. Claims for their items are deferred, not failed.
func (c *Coordinator) ExcludedProviders(ctx context.Context) ([]string, error) {
	return c.windows.ActiveProviders(ctx, c.now())
}

// RecordSuccess clears the provider's failure streak after a successful
// call. Providers that never hit a limit have no window and nothing to
// clear.
func (c *Coordinator) RecordSuccess(ctx context.Context, provider string) error {
	window, err := c.windows.Get(ctx, provider)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to load rate limit window: %w", err)
	}

	if window.CooldownUntil == nil && window.ConsecutiveFailures == 0 {
		return nil
	}

	window.Clear(c.now())
	if err := c.windows.Save(ctx, window); err != nil {
		return fmt.Errorf("failed to save rate limit window: %w", err)
	}
	return nil
}

// Reset clears the provider's cooldown immediately. Admin override for
// windows known to be stale, for example after a quota increase.
func (c *Coordinator) Reset(ctx context.Context, provider string) error {
	log := logger.FromContext(ctx)

	if err := c.windows.Reset(ctx, provider); err != nil {
		return fmt.Errorf("failed to reset rate limit window: %w", err)
	}

	log.Info("provider cooldown reset", "provider", provider)
	return nil
}
