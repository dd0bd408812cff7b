package store

import (
	"context"
	"fmt"
)

// PipelineMetrics holds aggregated pipeline statistics for the operator API.
type PipelineMetrics struct {
	TotalEvents       int `json:"total_events"`
	TotalObjects      int `json:"total_objects"`
	PendingCount      int `json:"pending_count"`
	DeliveredCount    int `json:"delivered_count"`
	DeadLetteredCount int `json:"dead_lettered_count"`
	UnresolvedLetters int `json:"unresolved_dead_letters"`
	ProcessedCount    int `json:"processed_count"`
	ActiveSubscribers int `json:"active_subscribers"`
}

// GetPipelineMetrics aggregates counts across the pipeline tables.
func (s *PostgresStore) GetPipelineMetrics(ctx context.Context) (*PipelineMetrics, error) {
	var m PipelineMetrics

	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'delivered'),
			COUNT(*) FILTER (WHERE status = 'dead_lettered')
		FROM delivery_records
	`).Scan(&m.PendingCount, &m.DeliveredCount, &m.DeadLetteredCount)
	if err != nil {
		return nil, fmt.Errorf("querying delivery counts: %w", err)
	}

	err = s.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM change_events),
			(SELECT COUNT(*) FROM objects),
			(SELECT COUNT(*) FROM dead_letters WHERE resolved_at IS NULL),
			(SELECT COUNT(*) FROM processing_results WHERE status = 'succeeded'),
			(SELECT COUNT(*) FROM subscribers WHERE is_active = TRUE)
	`).Scan(
		&m.TotalEvents, &m.TotalObjects, &m.UnresolvedLetters,
		&m.ProcessedCount, &m.ActiveSubscribers,
	)
	if err != nil {
		return nil, fmt.Errorf("querying pipeline counts: %w", err)
	}

	return &m, nil
}
