package dispatcher

import (
	"context"
	"log/slog"
	"time"
)

// Poller moves due jobs from the delay queue into the worker pool.
type Poller struct {
	queue    *Queue
	pool     *Pool
	logger   *slog.Logger
	interval time.Duration
	batch    int64
}

func NewPoller(queue *Queue, pool *Pool, logger *slog.Logger) *Poller {
	return &Poller{
		queue:    queue,
		pool:     pool,
		logger:   logger,
		interval: 100 * time.Millisecond,
		batch:    16,
	}
}

// Run polls until the context is cancelled.
func (p *Poller) Run(ctx context.Context) {
	p.logger.Info("queue poller started")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("queue poller stopping")
			return
		case <-ticker.C:
			jobs, err := p.queue.ClaimDue(ctx, time.Now(), p.batch)
			if err != nil {
				if ctx.Err() == nil {
					p.logger.Error("failed to claim due jobs", "error", err)
				}
				continue
			}
			for _, job := range jobs {
				p.pool.Submit(job)
			}
		}
	}
}
