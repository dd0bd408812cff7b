package domain

import "time"

// Delivery record states. Transitions are pending -> delivered or
// pending -> dead_lettered and never reverse.
const (
	DeliveryStatusPending      = "pending"
	DeliveryStatusDelivered    = "delivered"
	DeliveryStatusDeadLettered = "dead_lettered"
)

// DeliveryRecord tracks delivery progress of one change event to one
// subscriber, independent of the event itself.
type DeliveryRecord struct {
	EventID        int64      `json:"event_id"`
	SubscriberID   string     `json:"subscriber_id"`
	Bucket         string     `json:"bucket"`
	Key            string     `json:"key"`
	Status         string     `json:"status"`
	AttemptCount   int        `json:"attempt_count"`
	LastAttemptAt  *time.Time `json:"last_attempt_at,omitempty"`
	NextRetryAt    *time.Time `json:"next_retry_at,omitempty"`
	LastError      *string    `json:"last_error,omitempty"`
	LastHTTPStatus *int       `json:"last_http_status,omitempty"`
}

// DeadLetter is the operator-visible record of a delivery that exhausted its
// retry budget.
type DeadLetter struct {
	ID             int64      `json:"id"`
	EventID        int64      `json:"event_id"`
	SubscriberID   string     `json:"subscriber_id"`
	TotalAttempts  int        `json:"total_attempts"`
	LastError      *string    `json:"last_error,omitempty"`
	LastHTTPStatus *int       `json:"last_http_status,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy     *string    `json:"resolved_by,omitempty"`
}
