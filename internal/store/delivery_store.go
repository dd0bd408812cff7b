package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Priya8975/object-sync-pipeline/internal/domain"
	"github.com/jackc/pgx/v5"
)

// DeliveryJob is everything the deliverer needs to attempt one delivery:
// the event, the record's progress, and the subscriber's endpoint.
type DeliveryJob struct {
	Event        domain.ChangeEvent
	SubscriberID string
	EndpointURL  string
	SecretKey    string
	Status       string
	Attempt      int
}

// CreateDeliveryRecord inserts a pending record for (event, subscriber).
// Returns false when the record already exists.
func (s *PostgresStore) CreateDeliveryRecord(ctx context.Context, ev domain.ChangeEvent, subscriberID string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO delivery_records (event_id, subscriber_id, bucket, key)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (event_id, subscriber_id) DO NOTHING
	`, ev.EventID, subscriberID, ev.Bucket, ev.Key)
	if err != nil {
		return false, fmt.Errorf("inserting delivery record: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// HasEarlierPending reports whether an older event for the same key is still
// pending for this subscriber. Used as the per-key ordering gate.
func (s *PostgresStore) HasEarlierPending(ctx context.Context, subscriberID, bucket, key string, beforeEventID int64) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM delivery_records
			WHERE subscriber_id = $1 AND bucket = $2 AND key = $3
			  AND status = 'pending' AND event_id < $4
		)
	`, subscriberID, bucket, key, beforeEventID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking earlier pending deliveries: %w", err)
	}
	return exists, nil
}

// NextPendingForKey returns the oldest pending event id for (subscriber,
// bucket, key), if any.
func (s *PostgresStore) NextPendingForKey(ctx context.Context, subscriberID, bucket, key string) (int64, bool, error) {
	var eventID *int64
	err := s.pool.QueryRow(ctx, `
		SELECT MIN(event_id) FROM delivery_records
		WHERE subscriber_id = $1 AND bucket = $2 AND key = $3 AND status = 'pending'
	`, subscriberID, bucket, key).Scan(&eventID)
	if err != nil {
		return 0, false, fmt.Errorf("querying next pending delivery: %w", err)
	}
	if eventID == nil {
		return 0, false, nil
	}
	return *eventID, true, nil
}

// LoadDeliveryJob assembles the delivery job for (event, subscriber), or nil
// when no record exists.
func (s *PostgresStore) LoadDeliveryJob(ctx context.Context, eventID int64, subscriberID string) (*DeliveryJob, error) {
	var job DeliveryJob
	err := s.pool.QueryRow(ctx, `
		SELECT e.event_id, e.bucket, e.key, e.event_type, e.content_hash, e.version, e.created_at,
		       r.subscriber_id, r.status, r.attempt_count,
		       sub.endpoint_url, sub.secret_key
		FROM delivery_records r
		JOIN change_events e ON e.event_id = r.event_id
		JOIN subscribers sub ON sub.id = r.subscriber_id
		WHERE r.event_id = $1 AND r.subscriber_id = $2
	`, eventID, subscriberID).Scan(
		&job.Event.EventID, &job.Event.Bucket, &job.Event.Key, &job.Event.EventType,
		&job.Event.ContentHash, &job.Event.Version, &job.Event.CreatedAt,
		&job.SubscriberID, &job.Status, &job.Attempt,
		&job.EndpointURL, &job.SecretKey,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("loading delivery job: %w", err)
	}
	return &job, nil
}

// MarkDelivered moves a pending record to delivered.
func (s *PostgresStore) MarkDelivered(ctx context.Context, eventID int64, subscriberID string, attempt int, httpStatus int) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE delivery_records
		SET status = 'delivered', attempt_count = $3, last_attempt_at = NOW(),
		    next_retry_at = NULL, last_error = NULL, last_http_status = $4
		WHERE event_id = $1 AND subscriber_id = $2 AND status = 'pending'
	`, eventID, subscriberID, attempt, httpStatus)
	if err != nil {
		return fmt.Errorf("marking delivery delivered: %w", err)
	}
	return nil
}

// ScheduleRetry records a failed attempt and the next retry time.
func (s *PostgresStore) ScheduleRetry(ctx context.Context, eventID int64, subscriberID string, attempt int, nextRetryAt time.Time, lastErr string, httpStatus *int) error {
	var errMsg *string
	if lastErr != "" {
		errMsg = &lastErr
	}

	_, err := s.pool.Exec(ctx, `
		UPDATE delivery_records
		SET attempt_count = $3, last_attempt_at = NOW(), next_retry_at = $4,
		    last_error = $5, last_http_status = $6
		WHERE event_id = $1 AND subscriber_id = $2 AND status = 'pending'
	`, eventID, subscriberID, attempt, nextRetryAt, errMsg, httpStatus)
	if err != nil {
		return fmt.Errorf("scheduling delivery retry: %w", err)
	}
	return nil
}

// MarkDeadLettered moves a pending record to dead_lettered and files the
// dead letter row in the same transaction.
func (s *PostgresStore) MarkDeadLettered(ctx context.Context, eventID int64, subscriberID string, totalAttempts int, lastErr string, httpStatus *int) error {
	var errMsg *string
	if lastErr != "" {
		errMsg = &lastErr
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning dead-letter transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		UPDATE delivery_records
		SET status = 'dead_lettered', attempt_count = $3, last_attempt_at = NOW(),
		    next_retry_at = NULL, last_error = $4, last_http_status = $5
		WHERE event_id = $1 AND subscriber_id = $2 AND status = 'pending'
	`, eventID, subscriberID, totalAttempts, errMsg, httpStatus)
	if err != nil {
		return fmt.Errorf("marking delivery dead-lettered: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO dead_letters (event_id, subscriber_id, total_attempts, last_error, last_http_status)
		VALUES ($1, $2, $3, $4, $5)
	`, eventID, subscriberID, totalAttempts, errMsg, httpStatus)
	if err != nil {
		return fmt.Errorf("inserting dead letter: %w", err)
	}

	return tx.Commit(ctx)
}

// Cursor returns the durable feed offset for (subscriber, bucket); zero when
// the subscriber has never advanced.
func (s *PostgresStore) Cursor(ctx context.Context, subscriberID, bucket string) (int64, error) {
	var after int64
	err := s.pool.QueryRow(ctx, `
		SELECT next_after FROM feed_cursors
		WHERE subscriber_id = $1 AND bucket = $2
	`, subscriberID, bucket).Scan(&after)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("querying feed cursor: %w", err)
	}
	return after, nil
}

// AdvanceCursor moves the durable cursor up to the highest contiguous event
// id whose delivery records are all terminal, bounded by upTo. The cursor
// never moves backwards.
func (s *PostgresStore) AdvanceCursor(ctx context.Context, subscriberID, bucket string, upTo int64) (int64, error) {
	var boundary int64
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(MIN(event_id) - 1, $3)
		FROM delivery_records
		WHERE subscriber_id = $1 AND bucket = $2 AND status = 'pending'
	`, subscriberID, bucket, upTo).Scan(&boundary)
	if err != nil {
		return 0, fmt.Errorf("computing cursor boundary: %w", err)
	}
	if boundary > upTo {
		boundary = upTo
	}

	var cursor int64
	err = s.pool.QueryRow(ctx, `
		INSERT INTO feed_cursors (subscriber_id, bucket, next_after)
		VALUES ($1, $2, $3)
		ON CONFLICT (subscriber_id, bucket) DO UPDATE
		SET next_after = GREATEST(feed_cursors.next_after, EXCLUDED.next_after),
		    updated_at = NOW()
		RETURNING next_after
	`, subscriberID, bucket, boundary).Scan(&cursor)
	if err != nil {
		return 0, fmt.Errorf("advancing feed cursor: %w", err)
	}
	return cursor, nil
}

// ListDeliveryRecords returns delivery records with optional filtering, most
// recent events first.
func (s *PostgresStore) ListDeliveryRecords(ctx context.Context, subscriberID, status string, limit int) ([]domain.DeliveryRecord, error) {
	query := `
		SELECT event_id, subscriber_id, bucket, key, status, attempt_count,
		       last_attempt_at, next_retry_at, last_error, last_http_status
		FROM delivery_records
	`
	args := []any{}
	conditions := []string{}

	if subscriberID != "" {
		args = append(args, subscriberID)
		conditions = append(conditions, fmt.Sprintf("subscriber_id = $%d", len(args)))
	}
	if status != "" {
		args = append(args, status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if len(conditions) > 0 {
		query += " WHERE " + conditions[0]
		for _, c := range conditions[1:] {
			query += " AND " + c
		}
	}

	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY event_id DESC LIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing delivery records: %w", err)
	}
	defer rows.Close()

	records := []domain.DeliveryRecord{}
	for rows.Next() {
		var rec domain.DeliveryRecord
		err := rows.Scan(
			&rec.EventID, &rec.SubscriberID, &rec.Bucket, &rec.Key,
			&rec.Status, &rec.AttemptCount, &rec.LastAttemptAt,
			&rec.NextRetryAt, &rec.LastError, &rec.LastHTTPStatus,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning delivery record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ListDeadLetters returns dead letters, optionally filtered by subscriber
// and resolution state.
func (s *PostgresStore) ListDeadLetters(ctx context.Context, subscriberID string, resolved bool, limit int) ([]domain.DeadLetter, error) {
	query := `
		SELECT id, event_id, subscriber_id, total_attempts, last_error,
		       last_http_status, created_at, resolved_at, resolved_by
		FROM dead_letters
	`
	args := []any{}

	if resolved {
		query += " WHERE resolved_at IS NOT NULL"
	} else {
		query += " WHERE resolved_at IS NULL"
	}
	if subscriberID != "" {
		args = append(args, subscriberID)
		query += fmt.Sprintf(" AND subscriber_id = $%d", len(args))
	}

	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing dead letters: %w", err)
	}
	defer rows.Close()

	letters := []domain.DeadLetter{}
	for rows.Next() {
		var dl domain.DeadLetter
		err := rows.Scan(
			&dl.ID, &dl.EventID, &dl.SubscriberID, &dl.TotalAttempts,
			&dl.LastError, &dl.LastHTTPStatus, &dl.CreatedAt,
			&dl.ResolvedAt, &dl.ResolvedBy,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning dead letter: %w", err)
		}
		letters = append(letters, dl)
	}
	return letters, rows.Err()
}

// GetDeadLetter returns a single dead letter by id, or nil.
func (s *PostgresStore) GetDeadLetter(ctx context.Context, id int64) (*domain.DeadLetter, error) {
	var dl domain.DeadLetter
	err := s.pool.QueryRow(ctx, `
		SELECT id, event_id, subscriber_id, total_attempts, last_error,
		       last_http_status, created_at, resolved_at, resolved_by
		FROM dead_letters WHERE id = $1
	`, id).Scan(
		&dl.ID, &dl.EventID, &dl.SubscriberID, &dl.TotalAttempts,
		&dl.LastError, &dl.LastHTTPStatus, &dl.CreatedAt,
		&dl.ResolvedAt, &dl.ResolvedBy,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying dead letter: %w", err)
	}
	return &dl, nil
}

// ResolveDeadLetter marks a dead letter resolved.
func (s *PostgresStore) ResolveDeadLetter(ctx context.Context, id int64, resolvedBy string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE dead_letters SET resolved_at = NOW(), resolved_by = $2
		WHERE id = $1 AND resolved_at IS NULL
	`, id, resolvedBy)
	if err != nil {
		return fmt.Errorf("resolving dead letter: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("dead letter not found or already resolved")
	}
	return nil
}
