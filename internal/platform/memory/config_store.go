package memory

import (
	"context"
	"sync"

	"github.com/docuvec/embedq/internal/domain"
	"github.com/docuvec/embedq/internal/store"
)

// ConfigStore is an in-memory store.ConfigStore.
type ConfigStore struct {
	mu  sync.Mutex
	cfg *domain.QueueConfig
}

// NewConfigStore creates an empty in-memory config store.
func NewConfigStore() *ConfigStore {
	return &ConfigStore{}
}

// Load implements store.ConfigStore.
func (s *ConfigStore) Load(ctx context.Context) (*domain.QueueConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg == nil {
		return nil, store.ErrNotFound
	}
	dup := *s.cfg
	return &dup, nil
}

// Save implements store.ConfigStore.
func (s *ConfigStore) Save(ctx context.Context, cfg domain.QueueConfig) error {
	if err := cfg.Validate(); err != nil {
		return store.NewStoreError("queue_config", "save", "validation failed", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.cfg = &cfg
	return nil
}
