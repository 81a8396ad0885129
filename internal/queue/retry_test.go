package queue

import (
	"testing"
	"time"

	"github.com/docuvec/embedq/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestRetryPolicyDelayGrowsMonotonically(t *testing.T) {
	cfg := domain.DefaultQueueConfig()
	cfg.JitterFraction = 0
	policy := NewRetryPolicy(cfg)

	prev := time.Duration(0)
	for attempt := 0; attempt < 12; attempt++ {
		delay := policy.Delay(attempt)
		assert.GreaterOrEqual(t, delay, prev, "attempt %d", attempt)
		prev = delay
	}
}

func TestRetryPolicyDelayCapped(t *testing.T) {
	cfg := domain.DefaultQueueConfig()
	cfg.JitterFraction = 0
	policy := NewRetryPolicy(cfg)

	// base 1s, multiplier 2: attempt 20 is far past the 5m cap.
	assert.Equal(t, cfg.MaxRetryDelay, policy.Delay(20))
}

func TestRetryPolicyJitterBounded(t *testing.T) {
	cfg := domain.DefaultQueueConfig()
	policy := NewRetryPolicy(cfg)

	for attempt := 0; attempt < 8; attempt++ {
		floor := time.Duration(float64(cfg.BaseRetryDelay) * pow(cfg.BackoffMultiplier, attempt))
		if floor > cfg.MaxRetryDelay {
			floor = cfg.MaxRetryDelay
		}
		ceiling := floor + time.Duration(float64(floor)*cfg.JitterFraction)

		for i := 0; i < 50; i++ {
			delay := policy.Delay(attempt)
			assert.GreaterOrEqual(t, delay, floor, "attempt %d", attempt)
			assert.LessOrEqual(t, delay, ceiling, "attempt %d", attempt)
		}
	}
}

func TestRetryPolicyNegativeAttempt(t *testing.T) {
	cfg := domain.DefaultQueueConfig()
	cfg.JitterFraction = 0
	policy := NewRetryPolicy(cfg)

	assert.Equal(t, cfg.BaseRetryDelay, policy.Delay(-3))
}

func pow(base float64, exp int) float64 {
	out := 1.0
	for i := 0; i < exp; i++ {
		out *= base
	}
	return out
}
