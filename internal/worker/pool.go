package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/docuvec/embedq/internal/domain"
	"github.com/docuvec/embedq/internal/platform/logger"
	"github.com/docuvec/embedq/internal/provider"
	"github.com/docuvec/embedq/internal/queue"
	"github.com/docuvec/embedq/internal/store"
	"github.com/google/uuid"
)

// ErrWorkerCapReached indicates a start request that would exceed the
// configured concurrency cap.
var ErrWorkerCapReached = errors.New("max concurrent workers reached")

// ErrWorkerNotRunning indicates a stop request for a worker this pool is
// not running.
var ErrWorkerNotRunning = errors.New("worker not running in this pool")

// ReclaimReport summarizes one stale-worker reclamation pass.
type ReclaimReport struct {
	StaleWorkers  int `json:"stale_workers"`
	ReleasedItems int `json:"released_items"`
	ExpiredClaims int `json:"expired_claims"`
}

// Pool manages worker runner lifecycles. It enforces the configured
// concurrency cap, stops runners cooperatively, and reclaims items from
// workers that died without releasing their claims.
type Pool struct {
	cfg       RunnerConfig
	scheduler *queue.Scheduler
	engine    *queue.RetryEngine
	router    *provider.Router
	tuner     *queue.StrategyTuner
	config    *queue.ConfigCache
	workers   store.WorkerStore
	tasks     store.TaskStore

	mu      sync.Mutex
	running map[uuid.UUID]*runnerHandle
}

type runnerHandle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPool creates a Pool.
func NewPool(
	cfg RunnerConfig,
	scheduler *queue.Scheduler,
	engine *queue.RetryEngine,
	router *provider.Router,
	tuner *queue.StrategyTuner,
	config *queue.ConfigCache,
	workers store.WorkerStore,
	tasks store.TaskStore,
) *Pool {
	return &Pool{
		cfg:       cfg,
		scheduler: scheduler,
		engine:    engine,
		router:    router,
		tuner:     tuner,
		config:    config,
		workers:   workers,
		tasks:     tasks,
		running:   make(map[uuid.UUID]*runnerHandle),
	}
}

// StartWorker registers a new worker and starts its processing loop.
// Returns ErrWorkerCapReached when the configured concurrency cap is
// already met.
func (p *Pool) StartWorker(ctx context.Context) (*domain.Worker, error) {
	log := logger.FromContext(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()

	// The effective cap is strategy-tuned: adaptive shrinks it while the
	// recent rate-limit rate is elevated, conservative halves it.
	maxWorkers := p.tuner.ConcurrencyCap(p.config.Snapshot())
	if len(p.running) >= maxWorkers {
		return nil, fmt.Errorf("%w: %d running", ErrWorkerCapReached, len(p.running))
	}

	w := domain.NewWorker()
	if err := p.workers.Create(ctx, w); err != nil {
		return nil, fmt.Errorf("failed to register worker: %w", err)
	}

	runner := NewRunner(w.ID, p.cfg, p.scheduler, p.engine, p.router, p.tuner, p.workers, p.tasks)

	// Runner contexts hang off Background, not the request context: the
	// worker outlives the API call that started it.
	runCtx, cancel := context.WithCancel(logger.WithLogger(context.Background(), logger.FromContext(ctx)))
	handle := &runnerHandle{cancel: cancel, done: make(chan struct{})}
	p.running[w.ID] = handle

	go func() {
		defer close(handle.done)
		defer p.forget(w.ID)
		runner.Run(runCtx)
	}()

	log.Info("worker launched", "worker_id", w.ID, "running", len(p.running), "cap", maxWorkers)
	return w, nil
}

// StopWorker cancels the worker's loop and waits for it to finish its
// cooperative shutdown, which releases its claims and marks it stopped.
func (p *Pool) StopWorker(ctx context.Context, id uuid.UUID) error {
	p.mu.Lock()
	handle, ok := p.running[id]
	p.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrWorkerNotRunning, id)
	}

	handle.cancel()
	select {
	case <-handle.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// StopAll stops every running worker and waits for their shutdowns.
func (p *Pool) StopAll(ctx context.Context) error {
	p.mu.Lock()
	handles := make([]*runnerHandle, 0, len(p.running))
	for _, handle := range p.running {
		handles = append(handles, handle)
	}
	p.mu.Unlock()

	for _, handle := range handles {
		handle.cancel()
	}
	for _, handle := range handles {
		select {
		case <-handle.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// RunningCount reports how many runners this pool currently has.
func (p *Pool) RunningCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.running)
}

// IsRunning reports whether the pool runs the given worker.
func (p *Pool) IsRunning(id uuid.UUID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.running[id]
	return ok
}

// ReclaimStaleWorkers releases the claims of workers whose heartbeat aged
// past the configured threshold and marks them stopped, then releases any
// individual claims older than the processing timeout. Workers running in
// this pool are skipped; their heartbeats are only late, not lost.
func (p *Pool) ReclaimStaleWorkers(ctx context.Context) (ReclaimReport, error) {
	log := logger.FromContext(ctx)
	cfg := p.config.Snapshot()

	var report ReclaimReport

	stale, err := p.workers.StaleWorkers(ctx, cfg.StaleWorkerThreshold)
	if err != nil {
		return report, fmt.Errorf("failed to list stale workers: %w", err)
	}

	for _, w := range stale {
		if p.IsRunning(w.ID) {
			continue
		}

		released, err := p.tasks.ReleaseByWorker(ctx, w.ID)
		if err != nil {
			return report, fmt.Errorf("failed to release claims of stale worker %s: %w", w.ID, err)
		}
		if err := p.workers.MarkStopped(ctx, w.ID); err != nil {
			return report, fmt.Errorf("failed to stop stale worker %s: %w", w.ID, err)
		}

		report.StaleWorkers++
		report.ReleasedItems += released
		log.Warn("reclaimed stale worker",
			"worker_id", w.ID,
			"released_items", released,
			"last_heartbeat", w.LastHeartbeat)
	}

	expired, err := p.tasks.ReleaseExpiredClaims(ctx, cfg.ProcessingTimeout)
	if err != nil {
		return report, fmt.Errorf("failed to release expired claims: %w", err)
	}
	report.ExpiredClaims = expired
	if expired > 0 {
		log.Warn("released expired claims", "count", expired)
	}

	return report, nil
}

// forget removes a finished runner from the running set.
func (p *Pool) forget(id uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.running, id)
}
