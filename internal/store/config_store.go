package store

import (
	"context"

	"github.com/docuvec/embedq/internal/domain"
)

// ConfigStore persists the mutable queue configuration singleton.
// Version: 1.0
type ConfigStore interface {
	// Load returns the stored configuration.
	// Returns ErrNotFound when no configuration has been saved yet.
	Load(ctx context.Context) (*domain.QueueConfig, error)

	// Save replaces the stored configuration wholesale.
	Save(ctx context.Context, cfg domain.QueueConfig) error
}
