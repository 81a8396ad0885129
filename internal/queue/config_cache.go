package queue

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/docuvec/embedq/internal/domain"
	"github.com/docuvec/embedq/internal/store"
)

// ConfigCache holds the active queue configuration as an immutable
// snapshot. Readers take the whole snapshot at the start of a cycle and
// never observe a half-applied update; writers validate, persist, then
// swap the pointer.
type ConfigCache struct {
	current atomic.Pointer[domain.QueueConfig]
	store   store.ConfigStore
}

// NewConfigCache creates a ConfigCache backed by the given store. The
// cache starts with the stored configuration, or seed when none has been
// saved yet.
func NewConfigCache(ctx context.Context, configStore store.ConfigStore, seed domain.QueueConfig) (*ConfigCache, error) {
	if err := seed.Validate(); err != nil {
		return nil, fmt.Errorf("invalid seed configuration: %w", err)
	}

	c := &ConfigCache{store: configStore}

	stored, err := configStore.Load(ctx)
	switch {
	case err == nil:
		c.current.Store(stored)
	case errors.Is(err, store.ErrNotFound):
		if err := configStore.Save(ctx, seed); err != nil {
			return nil, fmt.Errorf("failed to persist seed configuration: %w", err)
		}
		c.current.Store(&seed)
	default:
		return nil, fmt.Errorf("failed to load stored configuration: %w", err)
	}

	return c, nil
}

// Snapshot returns the active configuration by value. The snapshot stays
// coherent for the caller's whole cycle regardless of concurrent updates.
func (c *ConfigCache) Snapshot() domain.QueueConfig {
	return *c.current.Load()
}

// Update validates, persists, and activates a new configuration. An
// invalid configuration is rejected and the previous one stays in effect.
func (c *ConfigCache) Update(ctx context.Context, cfg domain.QueueConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	cfg.UpdatedAt = time.Now().UTC()

	if err := c.store.Save(ctx, cfg); err != nil {
		return fmt.Errorf("failed to persist configuration: %w", err)
	}

	c.current.Store(&cfg)
	return nil
}
