package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/Priya8975/object-sync-pipeline/internal/domain"
	"github.com/jackc/pgx/v5"
)

// Fingerprint returns the content fingerprint used for write deduplication.
func Fingerprint(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// PutObject writes a new version of bucket/key unless the payload fingerprint
// matches the current version, in which case it is a no-op returning the
// existing version and changed=false. A new version and its change event are
// committed in one transaction, so exactly one event exists per version.
func (s *PostgresStore) PutObject(ctx context.Context, bucket, key string, payload []byte) (*domain.StoredObject, bool, error) {
	hash := Fingerprint(payload)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("beginning put transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// FOR UPDATE cannot lock a row that does not exist yet, so concurrent
	// first writes of the same key serialize on an advisory lock instead.
	// Held until commit or rollback.
	_, err = tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1 || '/' || $2, 0))`, bucket, key)
	if err != nil {
		return nil, false, fmt.Errorf("acquiring key lock: %w", err)
	}

	var current domain.StoredObject
	err = tx.QueryRow(ctx, `
		SELECT bucket, key, version, content_hash, size_bytes, created_at
		FROM objects
		WHERE bucket = $1 AND key = $2
		ORDER BY version DESC
		LIMIT 1
		FOR UPDATE
	`, bucket, key).Scan(
		&current.Bucket, &current.Key, &current.Version,
		&current.ContentHash, &current.SizeBytes, &current.CreatedAt,
	)

	version := 1
	eventType := domain.EventTypeCreated
	switch {
	case err == nil:
		if current.ContentHash == hash {
			return &current, false, nil
		}
		version = current.Version + 1
		eventType = domain.EventTypeUpdated
	case errors.Is(err, pgx.ErrNoRows):
		// first version for this key
	default:
		return nil, false, fmt.Errorf("querying current version: %w", err)
	}

	var obj domain.StoredObject
	err = tx.QueryRow(ctx, `
		INSERT INTO objects (bucket, key, version, content_hash, size_bytes, payload)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING bucket, key, version, content_hash, size_bytes, created_at
	`, bucket, key, version, hash, len(payload), payload).Scan(
		&obj.Bucket, &obj.Key, &obj.Version,
		&obj.ContentHash, &obj.SizeBytes, &obj.CreatedAt,
	)
	if err != nil {
		return nil, false, fmt.Errorf("inserting object version: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO change_events (bucket, key, event_type, content_hash, version)
		VALUES ($1, $2, $3, $4, $5)
	`, bucket, key, eventType, hash, version)
	if err != nil {
		return nil, false, fmt.Errorf("appending change event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("committing put: %w", err)
	}

	return &obj, true, nil
}

// GetObject returns the payload and metadata for a version of bucket/key.
// Version 0 means the latest version. A missing object returns nil, nil, nil.
func (s *PostgresStore) GetObject(ctx context.Context, bucket, key string, version int) ([]byte, *domain.StoredObject, error) {
	query := `
		SELECT payload, bucket, key, version, content_hash, size_bytes, created_at
		FROM objects
		WHERE bucket = $1 AND key = $2
	`
	args := []any{bucket, key}
	if version > 0 {
		query += " AND version = $3"
		args = append(args, version)
	} else {
		query += " ORDER BY version DESC LIMIT 1"
	}

	var payload []byte
	var obj domain.StoredObject
	err := s.pool.QueryRow(ctx, query, args...).Scan(
		&payload, &obj.Bucket, &obj.Key, &obj.Version,
		&obj.ContentHash, &obj.SizeBytes, &obj.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("querying object: %w", err)
	}
	return payload, &obj, nil
}

// ReadFeed returns up to limit change events for a bucket with event id
// greater than after, in feed order. This is the resumable change feed.
func (s *PostgresStore) ReadFeed(ctx context.Context, bucket string, after int64, limit int) ([]domain.ChangeEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT event_id, bucket, key, event_type, content_hash, version, created_at
		FROM change_events
		WHERE bucket = $1 AND event_id > $2
		ORDER BY event_id
		LIMIT $3
	`, bucket, after, limit)
	if err != nil {
		return nil, fmt.Errorf("reading change feed: %w", err)
	}
	defer rows.Close()

	return scanChangeEvents(rows)
}

// ListChangeEvents returns the most recent events, newest first, for the
// operator API.
func (s *PostgresStore) ListChangeEvents(ctx context.Context, bucket string, limit int) ([]domain.ChangeEvent, error) {
	query := `
		SELECT event_id, bucket, key, event_type, content_hash, version, created_at
		FROM change_events
	`
	args := []any{}
	if bucket != "" {
		query += " WHERE bucket = $1"
		args = append(args, bucket)
	}
	query += fmt.Sprintf(" ORDER BY event_id DESC LIMIT $%d", len(args)+1)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing change events: %w", err)
	}
	defer rows.Close()

	return scanChangeEvents(rows)
}

// GetChangeEvent returns a single event, or nil when it does not exist.
func (s *PostgresStore) GetChangeEvent(ctx context.Context, eventID int64) (*domain.ChangeEvent, error) {
	var ev domain.ChangeEvent
	err := s.pool.QueryRow(ctx, `
		SELECT event_id, bucket, key, event_type, content_hash, version, created_at
		FROM change_events WHERE event_id = $1
	`, eventID).Scan(
		&ev.EventID, &ev.Bucket, &ev.Key, &ev.EventType,
		&ev.ContentHash, &ev.Version, &ev.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying change event: %w", err)
	}
	return &ev, nil
}

func scanChangeEvents(rows pgx.Rows) ([]domain.ChangeEvent, error) {
	events := []domain.ChangeEvent{}
	for rows.Next() {
		var ev domain.ChangeEvent
		err := rows.Scan(
			&ev.EventID, &ev.Bucket, &ev.Key, &ev.EventType,
			&ev.ContentHash, &ev.Version, &ev.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning change event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
