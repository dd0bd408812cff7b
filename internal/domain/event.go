package domain

import "time"

// Event types emitted by the object store change feed.
const (
	EventTypeCreated = "created"
	EventTypeUpdated = "updated"
)

// ChangeEvent is one entry in the object store's change feed. Event IDs come
// from a store-scoped monotonic sequence, so the feed has a total order and
// per-key order matches write order.
type ChangeEvent struct {
	EventID     int64     `json:"event_id"`
	Bucket      string    `json:"bucket"`
	Key         string    `json:"key"`
	EventType   string    `json:"event_type"`
	ContentHash string    `json:"content_hash"`
	Version     int       `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
}
