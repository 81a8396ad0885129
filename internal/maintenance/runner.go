package maintenance

import (
	"context"
	"time"

	"github.com/docuvec/embedq/internal/platform/logger"
)

// Runner executes the maintenance jobs on a fixed interval until its
// context is cancelled.
type Runner struct {
	jobs     *Jobs
	interval time.Duration
}

// NewRunner creates a maintenance Runner.
func NewRunner(jobs *Jobs, interval time.Duration) *Runner {
	return &Runner{
		jobs:     jobs,
		interval: interval,
	}
}

// Run blocks, executing the job set every interval, until ctx ends.
func (r *Runner) Run(ctx context.Context) {
	log := logger.FromContext(ctx)
	log.Info("maintenance runner started", "interval", r.interval)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("maintenance runner stopped")
			return
		case <-ticker.C:
			r.jobs.RunAll(ctx)
		}
	}
}
