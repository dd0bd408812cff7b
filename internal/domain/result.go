package domain

import "time"

// Processing outcome states.
const (
	ResultStatusSucceeded = "succeeded"
	ResultStatusFailed    = "failed"
)

// ProcessingResult records the outcome of processing one change event. It is
// keyed by event id; a succeeded result is written at most once.
type ProcessingResult struct {
	EventID     int64     `json:"event_id"`
	Status      string    `json:"status"`
	OutputKey   *string   `json:"output_key,omitempty"`
	Error       *string   `json:"error,omitempty"`
	ProcessedAt time.Time `json:"processed_at"`
}
