package dispatcher

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// CursorLoop tails one bucket's change feed on behalf of one subscriber. It
// turns new events into pending delivery records, releases jobs that are not
// blocked behind an earlier event for the same key, and advances the durable
// cursor past records that have reached a terminal state.
type CursorLoop struct {
	store        Store
	queue        *Queue
	bucket       string
	subscriberID string
	interval     time.Duration
	batch        int
	logger       *slog.Logger

	// highWater is the in-memory frontier of events already turned into
	// records. It resets to the durable cursor on restart; re-scanned
	// events are absorbed by the record insert and queue dedup.
	highWater int64
}

func NewCursorLoop(st Store, queue *Queue, bucket, subscriberID string, logger *slog.Logger) *CursorLoop {
	return &CursorLoop{
		store:        st,
		queue:        queue,
		bucket:       bucket,
		subscriberID: subscriberID,
		interval:     250 * time.Millisecond,
		batch:        64,
		logger: logger.With(
			"bucket", bucket,
			"subscriber_id", subscriberID,
		),
	}
}

// Run tails the feed until the context is cancelled. Feed read errors back
// off exponentially instead of hammering a struggling store.
func (c *CursorLoop) Run(ctx context.Context) {
	cursor, err := c.loadCursor(ctx)
	if err != nil {
		// Only happens when the context died during startup retries.
		return
	}
	c.highWater = cursor
	c.logger.Info("cursor loop started", "cursor", cursor)

	errBackoff := backoff.NewExponentialBackOff()
	errBackoff.MaxInterval = 5 * time.Second

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("cursor loop stopping", "high_water", c.highWater)
			return
		case <-ticker.C:
			if err := c.sweep(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				c.logger.Error("feed sweep failed", "error", err)
				sleep := errBackoff.NextBackOff()
				if sleep == backoff.Stop {
					sleep = 5 * time.Second
				}
				select {
				case <-ctx.Done():
					return
				case <-time.After(sleep):
				}
				continue
			}
			errBackoff.Reset()
		}
	}
}

// sweep reads one batch of new events and advances the durable cursor. An
// error mid-batch leaves highWater at the last fully handled event, so the
// failed event is retried on the next sweep.
func (c *CursorLoop) sweep(ctx context.Context) error {
	events, err := c.store.ReadFeed(ctx, c.bucket, c.highWater, c.batch)
	if err != nil {
		return err
	}

	for _, ev := range events {
		if _, err := c.store.CreateDeliveryRecord(ctx, ev, c.subscriberID); err != nil {
			return err
		}

		blocked, err := c.store.HasEarlierPending(ctx, c.subscriberID, ev.Bucket, ev.Key, ev.EventID)
		if err != nil {
			return err
		}
		if !blocked {
			job := Job{EventID: ev.EventID, SubscriberID: c.subscriberID}
			if err := c.queue.EnqueueIfAbsent(ctx, job, time.Now()); err != nil {
				return err
			}
		}

		c.highWater = ev.EventID
	}

	if _, err := c.store.AdvanceCursor(ctx, c.subscriberID, c.bucket, c.highWater); err != nil {
		return err
	}
	return nil
}

func (c *CursorLoop) loadCursor(ctx context.Context) (int64, error) {
	bo := backoff.NewExponentialBackOff()
	bo.MaxInterval = 5 * time.Second

	for {
		cursor, err := c.store.Cursor(ctx, c.subscriberID, c.bucket)
		if err == nil {
			return cursor, nil
		}
		c.logger.Error("failed to load cursor", "error", err)

		sleep := bo.NextBackOff()
		if sleep == backoff.Stop {
			sleep = 5 * time.Second
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(sleep):
		}
	}
}
