package dispatcher

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testRedis(t *testing.T) *redis.Client {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	return NewQueue(testRedis(t), testLogger())
}

func TestQueueClaimDue(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)
	now := time.Now()

	due := Job{EventID: 1, SubscriberID: "sub-a"}
	future := Job{EventID: 2, SubscriberID: "sub-a"}

	if err := q.Enqueue(ctx, due, now.Add(-time.Second)); err != nil {
		t.Fatalf("enqueue due: %v", err)
	}
	if err := q.Enqueue(ctx, future, now.Add(time.Hour)); err != nil {
		t.Fatalf("enqueue future: %v", err)
	}

	jobs, err := q.ClaimDue(ctx, now, 10)
	if err != nil {
		t.Fatalf("ClaimDue: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected 1 due job, got %d", len(jobs))
	}
	if jobs[0] != due {
		t.Errorf("claimed job = %+v, want %+v", jobs[0], due)
	}

	// Claiming removes the member; a second poll returns nothing.
	jobs, err = q.ClaimDue(ctx, now, 10)
	if err != nil {
		t.Fatalf("second ClaimDue: %v", err)
	}
	if len(jobs) != 0 {
		t.Fatalf("expected no jobs on second claim, got %d", len(jobs))
	}

	depth, err := q.Depth(ctx)
	if err != nil {
		t.Fatalf("Depth: %v", err)
	}
	if depth != 1 {
		t.Errorf("depth = %d, want 1 (the future job)", depth)
	}
}

func TestQueueEnqueueIsIdempotent(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	job := Job{EventID: 7, SubscriberID: "sub-a"}
	for i := 0; i < 3; i++ {
		if err := q.Enqueue(ctx, job, time.Now()); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	depth, err := q.Depth(ctx)
	if err != nil {
		t.Fatalf("Depth: %v", err)
	}
	if depth != 1 {
		t.Errorf("depth = %d, want 1 after duplicate enqueues", depth)
	}
}

func TestQueueEnqueueIfAbsentKeepsReadyTime(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)
	now := time.Now()

	job := Job{EventID: 9, SubscriberID: "sub-b"}

	// Scheduled as a retry an hour out; a rescan must not pull it earlier.
	if err := q.Enqueue(ctx, job, now.Add(time.Hour)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := q.EnqueueIfAbsent(ctx, job, now); err != nil {
		t.Fatalf("EnqueueIfAbsent: %v", err)
	}

	jobs, err := q.ClaimDue(ctx, now.Add(time.Minute), 10)
	if err != nil {
		t.Fatalf("ClaimDue: %v", err)
	}
	if len(jobs) != 0 {
		t.Fatalf("retry job became due early: %+v", jobs)
	}
}
