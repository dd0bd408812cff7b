package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Breaker states. Transitions: closed -> open on consecutive failures,
// open -> half-open after the cooldown, half-open -> closed on success or
// back to open on failure.
const (
	BreakerClosed   = "closed"
	BreakerOpen     = "open"
	BreakerHalfOpen = "half-open"
)

// Breaker is a per-subscriber circuit breaker backed by a Redis hash, so
// multiple dispatcher instances share endpoint health.
type Breaker struct {
	client    *redis.Client
	logger    *slog.Logger
	threshold int
	cooldown  time.Duration
}

// BreakerState is the operator-visible snapshot of one subscriber's circuit.
type BreakerState struct {
	State        string `json:"state"`
	Failures     int    `json:"failures"`
	LastFailedAt string `json:"last_failed_at,omitempty"`
}

func NewBreaker(client *redis.Client, logger *slog.Logger) *Breaker {
	return &Breaker{
		client:    client,
		logger:    logger,
		threshold: 5,
		cooldown:  30 * time.Second,
	}
}

func breakerKey(subscriberID string) string {
	return fmt.Sprintf("breaker:%s", subscriberID)
}

// Allow reports whether a delivery to this subscriber may proceed. An open
// circuit past its cooldown flips to half-open and admits one probe.
func (b *Breaker) Allow(ctx context.Context, subscriberID string) bool {
	key := breakerKey(subscriberID)

	data, err := b.client.HGetAll(ctx, key).Result()
	if err != nil || len(data) == 0 {
		return true
	}

	if data["state"] != BreakerOpen {
		return true
	}

	lastFailedAt, _ := strconv.ParseInt(data["last_failed_at"], 10, 64)
	if time.Now().Unix()-lastFailedAt >= int64(b.cooldown.Seconds()) {
		b.client.HSet(ctx, key, "state", BreakerHalfOpen)
		b.logger.Info("circuit half-open", "subscriber_id", subscriberID)
		return true
	}
	return false
}

// RecordSuccess closes the circuit and clears the failure count.
func (b *Breaker) RecordSuccess(ctx context.Context, subscriberID string) {
	key := breakerKey(subscriberID)

	state, _ := b.client.HGet(ctx, key, "state").Result()
	b.client.HSet(ctx, key, "state", BreakerClosed, "failures", 0)

	if state == BreakerHalfOpen {
		b.logger.Info("circuit closed after recovery", "subscriber_id", subscriberID)
	}
}

// RecordFailure counts a failed delivery and opens the circuit when the
// threshold is reached, or immediately when a half-open probe fails.
func (b *Breaker) RecordFailure(ctx context.Context, subscriberID string) {
	key := breakerKey(subscriberID)

	failures, err := b.client.HIncrBy(ctx, key, "failures", 1).Result()
	if err != nil {
		b.logger.Error("failed to record circuit failure", "error", err)
		return
	}
	b.client.HSet(ctx, key, "last_failed_at", time.Now().Unix())

	state, _ := b.client.HGet(ctx, key, "state").Result()
	switch {
	case state == BreakerHalfOpen:
		b.client.HSet(ctx, key, "state", BreakerOpen)
		b.logger.Warn("circuit re-opened after failed probe", "subscriber_id", subscriberID)
	case failures >= int64(b.threshold):
		b.client.HSet(ctx, key, "state", BreakerOpen)
		b.logger.Warn("circuit opened",
			"subscriber_id", subscriberID,
			"failures", failures,
		)
	case state == "":
		b.client.HSet(ctx, key, "state", BreakerClosed)
	}
}

// State returns the current snapshot for a subscriber.
func (b *Breaker) State(ctx context.Context, subscriberID string) BreakerState {
	data, err := b.client.HGetAll(ctx, breakerKey(subscriberID)).Result()
	if err != nil || len(data) == 0 {
		return BreakerState{State: BreakerClosed}
	}

	state := data["state"]
	if state == "" {
		state = BreakerClosed
	}
	failures, _ := strconv.Atoi(data["failures"])
	lastFailedAt, _ := strconv.ParseInt(data["last_failed_at"], 10, 64)

	if state == BreakerOpen && time.Now().Unix()-lastFailedAt >= int64(b.cooldown.Seconds()) {
		state = BreakerHalfOpen
	}

	snapshot := BreakerState{State: state, Failures: failures}
	if lastFailedAt > 0 {
		snapshot.LastFailedAt = time.Unix(lastFailedAt, 0).Format(time.RFC3339)
	}
	return snapshot
}
