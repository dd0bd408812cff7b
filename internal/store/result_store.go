package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/Priya8975/object-sync-pipeline/internal/domain"
	"github.com/jackc/pgx/v5"
)

// GetProcessingResult returns the recorded outcome for an event, or nil when
// the event has never been processed.
func (s *PostgresStore) GetProcessingResult(ctx context.Context, eventID int64) (*domain.ProcessingResult, error) {
	var res domain.ProcessingResult
	err := s.pool.QueryRow(ctx, `
		SELECT event_id, status, output_key, error, processed_at
		FROM processing_results WHERE event_id = $1
	`, eventID).Scan(&res.EventID, &res.Status, &res.OutputKey, &res.Error, &res.ProcessedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying processing result: %w", err)
	}
	return &res, nil
}

// RecordProcessingResult writes the outcome for an event. A succeeded result
// is final; only a previously failed result may be overwritten, so a
// concurrent duplicate can never produce a second success. Returns false
// when the write was suppressed by an existing succeeded result.
func (s *PostgresStore) RecordProcessingResult(ctx context.Context, res domain.ProcessingResult) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO processing_results (event_id, status, output_key, error)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (event_id) DO UPDATE
		SET status = EXCLUDED.status, output_key = EXCLUDED.output_key,
		    error = EXCLUDED.error, processed_at = NOW()
		WHERE processing_results.status = 'failed'
	`, res.EventID, res.Status, res.OutputKey, res.Error)
	if err != nil {
		return false, fmt.Errorf("recording processing result: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
