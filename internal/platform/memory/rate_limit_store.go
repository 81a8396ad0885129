package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/docuvec/embedq/internal/domain"
	"github.com/docuvec/embedq/internal/store"
)

// RateLimitStore is an in-memory store.RateLimitStore.
type RateLimitStore struct {
	mu      sync.Mutex
	windows map[string]*domain.RateLimitWindow
}

// NewRateLimitStore creates an empty in-memory rate-limit store.
func NewRateLimitStore() *RateLimitStore {
	return &RateLimitStore{windows: make(map[string]*domain.RateLimitWindow)}
}

// Get implements store.RateLimitStore.
func (s *RateLimitStore) Get(ctx context.Context, provider string) (*domain.RateLimitWindow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[provider]
	if !ok {
		return nil, store.ErrRateLimitNotFound
	}
	return copyWindow(w), nil
}

// List implements store.RateLimitStore.
func (s *RateLimitStore) List(ctx context.Context) ([]*domain.RateLimitWindow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*domain.RateLimitWindow, 0, len(s.windows))
	for _, w := range s.windows {
		out = append(out, copyWindow(w))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Provider < out[j].Provider
	})
	return out, nil
}

// Save implements store.RateLimitStore.
func (s *RateLimitStore) Save(ctx context.Context, window *domain.RateLimitWindow) error {
	if err := window.Validate(); err != nil {
		return store.NewStoreError("rate_limit_window", "save", "validation failed", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.windows[window.Provider] = copyWindow(window)
	return nil
}

// ActiveProviders implements store.RateLimitStore.
func (s *RateLimitStore) ActiveProviders(ctx context.Context, now time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var active []string
	for provider, w := range s.windows {
		if w.Active(now) {
			active = append(active, provider)
		}
	}
	sort.Strings(active)
	return active, nil
}

// Reset implements store.RateLimitStore.
func (s *RateLimitStore) Reset(ctx context.Context, provider string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[provider]
	if !ok {
		return nil
	}
	w.Clear(time.Now().UTC())
	return nil
}

func copyWindow(w *domain.RateLimitWindow) *domain.RateLimitWindow {
	dup := *w
	if w.CooldownUntil != nil {
		v := *w.CooldownUntil
		dup.CooldownUntil = &v
	}
	return &dup
}
