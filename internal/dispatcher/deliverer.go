package dispatcher

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/Priya8975/object-sync-pipeline/internal/domain"
	"github.com/Priya8975/object-sync-pipeline/internal/store"
	"github.com/goccy/go-json"
)

// webhookPayload is the wire body of an object-created delivery.
type webhookPayload struct {
	EventID     int64     `json:"eventId"`
	Bucket      string    `json:"bucket"`
	Key         string    `json:"key"`
	EventType   string    `json:"eventType"`
	ContentHash string    `json:"contentHash"`
	Timestamp   time.Time `json:"timestamp"`
}

// Deliverer performs one HTTP delivery attempt per job and decides what
// happens next: mark delivered, schedule a retry, or dead-letter.
type Deliverer struct {
	httpClient *http.Client
	store      Store
	queue      *Queue
	breaker    *Breaker
	policy     RetryPolicy
	hub        statusHub
	logger     *slog.Logger
}

func NewDeliverer(st Store, queue *Queue, breaker *Breaker, policy RetryPolicy, hub statusHub, logger *slog.Logger) *Deliverer {
	return &Deliverer{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		store:      st,
		queue:      queue,
		breaker:    breaker,
		policy:     policy,
		hub:        hub,
		logger:     logger,
	}
}

// Deliver attempts the job. The job stays at-least-once: a crash between the
// HTTP call and the store update leaves the record pending, and the cursor
// loop re-enqueues it on restart.
func (d *Deliverer) Deliver(ctx context.Context, job Job) {
	dj, err := d.store.LoadDeliveryJob(ctx, job.EventID, job.SubscriberID)
	if err != nil {
		d.logger.Error("failed to load delivery job",
			"error", err,
			"event_id", job.EventID,
			"subscriber_id", job.SubscriberID,
		)
		// Transient store error; put the job back rather than lose it.
		d.requeue(ctx, job, 5*time.Second)
		return
	}
	if dj == nil || dj.Status != domain.DeliveryStatusPending {
		return
	}

	if d.breaker != nil && !d.breaker.Allow(ctx, job.SubscriberID) {
		// No HTTP attempt happened, so the attempt budget is untouched.
		d.requeue(ctx, job, 5*time.Second)
		return
	}

	attempt := dj.Attempt + 1
	start := time.Now()
	statusCode, errMsg := d.post(ctx, dj, attempt)
	elapsed := time.Since(start).Milliseconds()

	if errMsg == "" {
		if err := d.store.MarkDelivered(ctx, job.EventID, job.SubscriberID, attempt, *statusCode); err != nil {
			d.logger.Error("failed to mark delivered", "error", err, "event_id", job.EventID)
			d.requeue(ctx, job, 5*time.Second)
			return
		}
		if d.breaker != nil {
			d.breaker.RecordSuccess(ctx, job.SubscriberID)
		}
		d.logger.Info("delivery successful",
			"event_id", job.EventID,
			"subscriber_id", job.SubscriberID,
			"attempt", attempt,
			"status_code", *statusCode,
			"response_time_ms", elapsed,
		)
		d.broadcast("delivery_delivered", dj, attempt, statusCode, "")
		d.releaseNextForKey(ctx, dj)
		return
	}

	if d.breaker != nil {
		d.breaker.RecordFailure(ctx, job.SubscriberID)
	}
	d.logger.Warn("delivery failed",
		"event_id", job.EventID,
		"subscriber_id", job.SubscriberID,
		"attempt", attempt,
		"error", errMsg,
		"status_code", statusCode,
		"response_time_ms", elapsed,
	)

	if d.policy.Exhausted(attempt) {
		if err := d.store.MarkDeadLettered(ctx, job.EventID, job.SubscriberID, attempt, errMsg, statusCode); err != nil {
			d.logger.Error("failed to dead-letter delivery", "error", err, "event_id", job.EventID)
			d.requeue(ctx, job, 5*time.Second)
			return
		}
		d.logger.Warn("delivery dead-lettered",
			"event_id", job.EventID,
			"subscriber_id", job.SubscriberID,
			"total_attempts", attempt,
		)
		d.broadcast("delivery_dead_lettered", dj, attempt, statusCode, errMsg)
		d.releaseNextForKey(ctx, dj)
		return
	}

	delay := d.policy.Delay(attempt)
	nextRetryAt := time.Now().Add(delay)
	if err := d.store.ScheduleRetry(ctx, job.EventID, job.SubscriberID, attempt, nextRetryAt, errMsg, statusCode); err != nil {
		d.logger.Error("failed to schedule retry", "error", err, "event_id", job.EventID)
	}
	d.requeue(ctx, job, delay)
	d.broadcast("delivery_retrying", dj, attempt, statusCode, errMsg)
}

// post executes the HTTP attempt. Returns the response status (nil when the
// request never completed) and an error message for failures. Only a 2xx
// response counts as success.
func (d *Deliverer) post(ctx context.Context, dj *store.DeliveryJob, attempt int) (*int, string) {
	body, err := json.Marshal(webhookPayload{
		EventID:     dj.Event.EventID,
		Bucket:      dj.Event.Bucket,
		Key:         dj.Event.Key,
		EventType:   dj.Event.EventType,
		ContentHash: dj.Event.ContentHash,
		Timestamp:   dj.Event.CreatedAt,
	})
	if err != nil {
		return nil, fmt.Sprintf("failed to marshal payload: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, dj.EndpointURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Sprintf("failed to create request: %v", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Signature", signPayload(body, dj.SecretKey))
	req.Header.Set("X-Event-ID", fmt.Sprintf("%d", dj.Event.EventID))
	req.Header.Set("X-Event-Type", dj.Event.EventType)
	req.Header.Set("X-Event-Attempt", fmt.Sprintf("%d", attempt))

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Sprintf("request failed: %v", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	code := resp.StatusCode
	if code < 200 || code >= 300 {
		return &code, fmt.Sprintf("endpoint returned %d", code)
	}
	return &code, ""
}

// releaseNextForKey enqueues the oldest still-pending event for the same key
// once this one is terminal, preserving per-key delivery order.
func (d *Deliverer) releaseNextForKey(ctx context.Context, dj *store.DeliveryJob) {
	next, ok, err := d.store.NextPendingForKey(ctx, dj.SubscriberID, dj.Event.Bucket, dj.Event.Key)
	if err != nil {
		d.logger.Error("failed to look up next pending delivery", "error", err, "key", dj.Event.Key)
		return
	}
	if !ok {
		return
	}
	if err := d.queue.EnqueueIfAbsent(ctx, Job{EventID: next, SubscriberID: dj.SubscriberID}, time.Now()); err != nil {
		d.logger.Error("failed to release next delivery", "error", err, "event_id", next)
	}
}

func (d *Deliverer) requeue(ctx context.Context, job Job, delay time.Duration) {
	if err := d.queue.Enqueue(ctx, job, time.Now().Add(delay)); err != nil {
		d.logger.Error("failed to requeue job", "error", err, "event_id", job.EventID)
	}
}

func (d *Deliverer) broadcast(kind string, dj *store.DeliveryJob, attempt int, statusCode *int, errMsg string) {
	if d.hub == nil {
		return
	}
	d.hub.Broadcast(DeliveryUpdate{
		Type:         kind,
		EventID:      dj.Event.EventID,
		SubscriberID: dj.SubscriberID,
		Bucket:       dj.Event.Bucket,
		Key:          dj.Event.Key,
		Attempt:      attempt,
		StatusCode:   statusCode,
		Error:        errMsg,
		Timestamp:    time.Now(),
	})
}

// signPayload generates the HMAC-SHA256 signature subscribers use to verify
// delivery authenticity.
func signPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
