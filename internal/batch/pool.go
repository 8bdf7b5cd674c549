package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// RunRequest asks the pool to execute one quality job run.
type RunRequest struct {
	Scope     string
	BatchSize int
}

// Pool is a bounded set of workers pulling job-run requests from a queue.
// Each run owns its orchestrator invocation for the full duration and is
// wrapped in the retry policy; jobs for different scopes proceed in
// parallel up to the worker count.
type Pool struct {
	orchestrator *Orchestrator
	retry        RetryPolicy
	logger       zerolog.Logger

	requests chan RunRequest
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	started  bool
	mu       sync.Mutex
}

// NewPool creates a pool with a request queue sized to the worker count.
func NewPool(orchestrator *Orchestrator, retry RetryPolicy, workers int, logger zerolog.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	p := &Pool{
		orchestrator: orchestrator,
		retry:        retry,
		logger:       logger.With().Str("component", "pool").Logger(),
		requests:     make(chan RunRequest, workers*2),
	}
	p.startWorkers(workers)
	return p
}

func (p *Pool) startWorkers(count int) {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.started = true

	p.logger.Info().Int("workers", count).Msg("starting workers")

	for i := 0; i < count; i++ {
		id := fmt.Sprintf("worker-%d", i)
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.runWorker(ctx, id)
		}()
	}
}

func (p *Pool) runWorker(ctx context.Context, id string) {
	logger := p.logger.With().Str("worker", id).Logger()
	logger.Debug().Msg("worker started")

	for {
		select {
		case <-ctx.Done():
			logger.Debug().Msg("worker stopping")
			return
		case req := <-p.requests:
			p.execute(ctx, logger, req)
		}
	}
}

func (p *Pool) execute(ctx context.Context, logger zerolog.Logger, req RunRequest) {
	start := time.Now()

	err := p.retry.Execute(ctx, func(ctx context.Context) error {
		_, runErr := p.orchestrator.Run(ctx, req.Scope, req.BatchSize)
		return runErr
	})

	elapsed := time.Since(start)
	if err != nil {
		logger.Error().
			Err(err).
			Str("scope", req.Scope).
			Dur("elapsed", elapsed).
			Msg("job run exhausted retries")
		return
	}
	logger.Info().
		Str("scope", req.Scope).
		Dur("elapsed", elapsed).
		Msg("job run finished")
}

// Enqueue submits a job run. It fails when the queue is full rather than
// blocking the caller.
func (p *Pool) Enqueue(req RunRequest) error {
	select {
	case p.requests <- req:
		return nil
	default:
		return fmt.Errorf("job queue is full")
	}
}

// Shutdown stops the workers, waiting up to timeout for in-flight runs.
func (p *Pool) Shutdown(timeout time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return
	}
	p.started = false
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info().Msg("all workers exited cleanly")
	case <-time.After(timeout):
		p.logger.Error().Dur("timeout", timeout).Msg("shutdown timed out, some workers may still be running")
	}
}
