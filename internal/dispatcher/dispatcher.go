// Package dispatcher delivers change-feed events to subscriber endpoints.
//
// One cursor loop per (bucket, subscriber) tails the feed and turns events
// into pending delivery records; jobs flow through a Redis sorted set scored
// by ready-at time, a poller claims due jobs, and a fixed worker pool posts
// them. Events for the same key are released one at a time in feed order;
// events for different keys run in parallel.
package dispatcher

import (
	"context"
	"time"

	"github.com/Priya8975/object-sync-pipeline/internal/domain"
	"github.com/Priya8975/object-sync-pipeline/internal/store"
)

// Store is the persistence surface the dispatcher needs. *store.PostgresStore
// implements it.
type Store interface {
	ReadFeed(ctx context.Context, bucket string, after int64, limit int) ([]domain.ChangeEvent, error)
	CreateDeliveryRecord(ctx context.Context, ev domain.ChangeEvent, subscriberID string) (bool, error)
	HasEarlierPending(ctx context.Context, subscriberID, bucket, key string, beforeEventID int64) (bool, error)
	NextPendingForKey(ctx context.Context, subscriberID, bucket, key string) (int64, bool, error)
	LoadDeliveryJob(ctx context.Context, eventID int64, subscriberID string) (*store.DeliveryJob, error)
	MarkDelivered(ctx context.Context, eventID int64, subscriberID string, attempt, httpStatus int) error
	ScheduleRetry(ctx context.Context, eventID int64, subscriberID string, attempt int, nextRetryAt time.Time, lastErr string, httpStatus *int) error
	MarkDeadLettered(ctx context.Context, eventID int64, subscriberID string, totalAttempts int, lastErr string, httpStatus *int) error
	Cursor(ctx context.Context, subscriberID, bucket string) (int64, error)
	AdvanceCursor(ctx context.Context, subscriberID, bucket string, upTo int64) (int64, error)
}

// statusHub receives live delivery updates; *websocket.Hub satisfies it.
type statusHub interface {
	Broadcast(v any)
}

// DeliveryUpdate is the status message broadcast after each attempt.
type DeliveryUpdate struct {
	Type         string    `json:"type"` // "delivery_delivered", "delivery_retrying", "delivery_dead_lettered"
	EventID      int64     `json:"event_id"`
	SubscriberID string    `json:"subscriber_id"`
	Bucket       string    `json:"bucket"`
	Key          string    `json:"key"`
	Attempt      int       `json:"attempt"`
	StatusCode   *int      `json:"status_code,omitempty"`
	Error        string    `json:"error,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}
