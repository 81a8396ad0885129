package domain

import (
	"errors"
	"time"
)

// ErrEmptyRateLimitProvider indicates a rate-limit window without a
// provider identifier.
var ErrEmptyRateLimitProvider = errors.New("rate limit provider cannot be empty")

// RateLimitWindow tracks a per-provider cooldown. While CooldownUntil is
// in the future, the scheduler must not claim items routed to the
// provider. Providers are open-ended identifiers, not a fixed set.
type RateLimitWindow struct {
	Provider            string     `json:"provider"`
	CooldownUntil       *time.Time `json:"cooldown_until,omitempty"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// Validate checks the window's fields.
func (w *RateLimitWindow) Validate() error {
	if w.Provider == "" {
		return ErrEmptyRateLimitProvider
	}
	return nil
}

// Active reports whether the cooldown is still in effect at the given
// instant.
func (w *RateLimitWindow) Active(now time.Time) bool {
	return w.CooldownUntil != nil && now.Before(*w.CooldownUntil)
}

// Extend moves the cooldown forward to the given deadline and records
// another failure. Cooldowns only ever extend forward: an earlier
// deadline never shortens an active window.
func (w *RateLimitWindow) Extend(until time.Time, now time.Time) {
	if w.CooldownUntil == nil || until.After(*w.CooldownUntil) {
		w.CooldownUntil = &until
	}
	w.ConsecutiveFailures++
	w.UpdatedAt = now
}

// Clear removes the cooldown and resets the failure streak.
func (w *RateLimitWindow) Clear(now time.Time) {
	w.CooldownUntil = nil
	w.ConsecutiveFailures = 0
	w.UpdatedAt = now
}
