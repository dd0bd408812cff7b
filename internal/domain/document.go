package domain

import "time"

// SourceDocument is a single payload fetched from the external source,
// immutable once fetched. ExternalID is the source's name for the document
// (a file name or dataset id), not a store key.
type SourceDocument struct {
	ExternalID  string
	FetchedAt   time.Time
	ContentHash string
	Payload     []byte
}
