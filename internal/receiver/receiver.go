// Package receiver is the inbound webhook endpoint. It validates dispatched
// events, filters duplicates through a TTL'd Redis dedup cache, and hands
// each event to the processor exactly once per event id while the cache
// entry lives.
package receiver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Priya8975/object-sync-pipeline/internal/domain"
	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// Processor consumes accepted events. *processor.Processor implements it.
type Processor interface {
	Process(ctx context.Context, ev domain.ChangeEvent) error
}

type Receiver struct {
	redis     *redis.Client
	processor Processor
	retention time.Duration
	timeout   time.Duration
	locks     keyLocks
	logger    *slog.Logger
}

func New(client *redis.Client, proc Processor, retention time.Duration, logger *slog.Logger) *Receiver {
	return &Receiver{
		redis:     client,
		processor: proc,
		retention: retention,
		timeout:   30 * time.Second,
		logger:    logger,
	}
}

// inboundEvent mirrors the dispatcher's wire payload.
type inboundEvent struct {
	EventID     int64     `json:"eventId"`
	Bucket      string    `json:"bucket"`
	Key         string    `json:"key"`
	EventType   string    `json:"eventType"`
	ContentHash string    `json:"contentHash"`
	Timestamp   time.Time `json:"timestamp"`
}

func (ev *inboundEvent) validate() error {
	switch {
	case ev.EventID <= 0:
		return fmt.Errorf("eventId must be a positive integer")
	case ev.Bucket == "":
		return fmt.Errorf("bucket is required")
	case ev.Key == "":
		return fmt.Errorf("key is required")
	case ev.EventType != domain.EventTypeCreated && ev.EventType != domain.EventTypeUpdated:
		return fmt.Errorf("eventType must be created or updated")
	case ev.ContentHash == "":
		return fmt.Errorf("contentHash is required")
	}
	return nil
}

// HandleEvent accepts one dispatched event. Malformed payloads get a 400 and
// are never retried by this side; processing failures get a 500 so the
// dispatcher's retry path re-delivers.
func (rc *Receiver) HandleEvent(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), rc.timeout)
	defer cancel()

	var ev inboundEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		respondError(w, http.StatusBadRequest, "malformed event payload")
		return
	}
	if err := ev.validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	dedupKey := fmt.Sprintf("dedup:event:%d", ev.EventID)

	// Serialize concurrent deliveries of the same event id, so both cannot
	// miss the cache and double-invoke the processor.
	mu := rc.locks.lockFor(dedupKey)
	mu.Lock()
	defer mu.Unlock()

	firstSeen, err := rc.redis.SetNX(ctx, dedupKey, "accepted", rc.retention).Result()
	if err != nil {
		rc.logger.Error("dedup cache unavailable", "error", err, "event_id", ev.EventID)
		respondError(w, http.StatusInternalServerError, "dedup cache unavailable")
		return
	}
	if !firstSeen {
		rc.logger.Info("duplicate event ignored", "event_id", ev.EventID, "key", ev.Key)
		respondJSON(w, http.StatusOK, map[string]string{"status": "duplicate"})
		return
	}

	err = rc.processor.Process(ctx, domain.ChangeEvent{
		EventID:     ev.EventID,
		Bucket:      ev.Bucket,
		Key:         ev.Key,
		EventType:   ev.EventType,
		ContentHash: ev.ContentHash,
		CreatedAt:   ev.Timestamp,
	})
	if err != nil {
		// Release the dedup slot so the dispatcher's re-delivery is not
		// swallowed as a duplicate. The request context may already be dead
		// (timeout mid-process, or the dispatcher hung up), so the release
		// runs on a detached context.
		relCtx, relCancel := context.WithTimeout(context.WithoutCancel(r.Context()), 5*time.Second)
		defer relCancel()
		if delErr := rc.redis.Del(relCtx, dedupKey).Err(); delErr != nil {
			rc.logger.Error("failed to release dedup key, re-deliveries will be dropped until retention expires",
				"error", delErr, "event_id", ev.EventID)
		}
		rc.logger.Error("processing failed", "error", err, "event_id", ev.EventID, "key", ev.Key)
		respondError(w, http.StatusInternalServerError, "processing failed")
		return
	}

	rc.logger.Info("event accepted", "event_id", ev.EventID, "key", ev.Key, "event_type", ev.EventType)
	respondJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
