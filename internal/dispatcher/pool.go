package dispatcher

import (
	"context"
	"log/slog"
	"sync"
)

// jobRunner performs one delivery attempt. *Deliverer implements it.
type jobRunner interface {
	Deliver(ctx context.Context, job Job)
}

// Pool runs a fixed number of worker goroutines that execute delivery jobs.
type Pool struct {
	size   int
	jobs   chan Job
	runner jobRunner
	logger *slog.Logger
	wg     sync.WaitGroup
}

func NewPool(size int, runner jobRunner, logger *slog.Logger) *Pool {
	return &Pool{
		size:   size,
		jobs:   make(chan Job, size*2),
		runner: runner,
		logger: logger,
	}
}

// Start launches the workers. They drain the jobs channel until it is closed
// or the context is cancelled.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
	p.logger.Info("dispatch workers started", "count", p.size)
}

// Submit hands a job to the pool. Blocks when all workers are busy and the
// buffer is full, which applies backpressure to the poller.
func (p *Pool) Submit(job Job) {
	p.jobs <- job
}

// Stop closes the jobs channel and waits for in-flight deliveries to finish.
func (p *Pool) Stop() {
	close(p.jobs)
	p.wg.Wait()
	p.logger.Info("dispatch workers stopped")
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()

	for job := range p.jobs {
		select {
		case <-ctx.Done():
			return
		default:
			p.runner.Deliver(ctx, job)
		}
	}
}
