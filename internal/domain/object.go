package domain

import "time"

// StoredObject describes one immutable version of an object. Versions for a
// key form an append-only sequence starting at 1.
type StoredObject struct {
	Bucket      string    `json:"bucket"`
	Key         string    `json:"key"`
	Version     int       `json:"version"`
	ContentHash string    `json:"content_hash"`
	SizeBytes   int64     `json:"size_bytes"`
	CreatedAt   time.Time `json:"created_at"`
}
