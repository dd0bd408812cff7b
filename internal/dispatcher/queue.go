package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

const readyQueueKey = "dispatch:ready"

// Job identifies one (event, subscriber) delivery unit in the ready queue.
// The member encoding is deterministic, so enqueueing the same job twice
// yields a single queue entry.
type Job struct {
	EventID      int64  `json:"event_id"`
	SubscriberID string `json:"subscriber_id"`
}

// Queue is the delay queue for delivery jobs: a Redis sorted set whose score
// is the time a job becomes ready.
type Queue struct {
	client *redis.Client
	logger *slog.Logger
}

func NewQueue(client *redis.Client, logger *slog.Logger) *Queue {
	return &Queue{client: client, logger: logger}
}

// Enqueue schedules a job, overwriting the ready time of an existing entry.
// Used for retries, where the member was removed when the job was claimed.
func (q *Queue) Enqueue(ctx context.Context, job Job, readyAt time.Time) error {
	member, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshaling job: %w", err)
	}
	err = q.client.ZAdd(ctx, readyQueueKey, redis.Z{
		Score:  float64(readyAt.UnixMicro()),
		Member: string(member),
	}).Err()
	if err != nil {
		return fmt.Errorf("enqueueing job: %w", err)
	}
	return nil
}

// EnqueueIfAbsent schedules a job only when it is not already queued, so a
// restart rescan cannot reset the ready time of a scheduled retry.
func (q *Queue) EnqueueIfAbsent(ctx context.Context, job Job, readyAt time.Time) error {
	member, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshaling job: %w", err)
	}
	err = q.client.ZAddNX(ctx, readyQueueKey, redis.Z{
		Score:  float64(readyAt.UnixMicro()),
		Member: string(member),
	}).Err()
	if err != nil {
		return fmt.Errorf("enqueueing job: %w", err)
	}
	return nil
}

// ClaimDue removes and returns up to limit jobs whose ready time has passed.
// Removal is the claim: a member another poller already removed is skipped.
func (q *Queue) ClaimDue(ctx context.Context, now time.Time, limit int64) ([]Job, error) {
	results, err := q.client.ZRangeByScore(ctx, readyQueueKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatFloat(float64(now.UnixMicro()), 'f', -1, 64),
		Count: limit,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("polling ready queue: %w", err)
	}

	jobs := make([]Job, 0, len(results))
	for _, member := range results {
		removed, err := q.client.ZRem(ctx, readyQueueKey, member).Result()
		if err != nil {
			return jobs, fmt.Errorf("claiming job: %w", err)
		}
		if removed == 0 {
			continue
		}

		var job Job
		if err := json.Unmarshal([]byte(member), &job); err != nil {
			q.logger.Error("dropping unreadable queue member", "error", err, "member", member)
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// Depth returns the number of queued jobs, due or not.
func (q *Queue) Depth(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, readyQueueKey).Result()
}
