package queue

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/docuvec/embedq/internal/domain"
)

// RetryPolicy computes exponential backoff delays with additive jitter.
// The deterministic part of the delay is min(base * multiplier^attempt,
// max); jitter adds up to JitterFraction of that on top, so delays for
// successive attempts never shrink below the previous attempt's
// deterministic floor.
type RetryPolicy struct {
	Base           time.Duration
	Max            time.Duration
	Multiplier     float64
	JitterFraction float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewRetryPolicy builds a RetryPolicy from the active queue configuration.
func NewRetryPolicy(cfg domain.QueueConfig) *RetryPolicy {
	return &RetryPolicy{
		Base:           cfg.BaseRetryDelay,
		Max:            cfg.MaxRetryDelay,
		Multiplier:     cfg.BackoffMultiplier,
		JitterFraction: cfg.JitterFraction,
		rng:            rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Delay returns the backoff delay for the given zero-based attempt number.
func (p *RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	base := float64(p.Base) * math.Pow(p.Multiplier, float64(attempt))
	if base > float64(p.Max) {
		base = float64(p.Max)
	}

	return time.Duration(base) + p.jitter(base)
}

func (p *RetryPolicy) jitter(base float64) time.Duration {
	if p.JitterFraction <= 0 {
		return 0
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rng == nil {
		p.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return time.Duration(base * p.JitterFraction * p.rng.Float64())
}
