package store

import (
	"context"
	"fmt"

	"github.com/Priya8975/object-sync-pipeline/internal/domain"
	"github.com/google/uuid"
)

// EnsureSubscriber registers a subscriber endpoint, reactivating and
// refreshing it when the endpoint is already known. Used to seed the
// config-declared subscriber list at startup.
func (s *PostgresStore) EnsureSubscriber(ctx context.Context, name, endpointURL, secretKey string) (*domain.Subscriber, error) {
	var sub domain.Subscriber
	err := s.pool.QueryRow(ctx, `
		INSERT INTO subscribers (id, name, endpoint_url, secret_key)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (endpoint_url) DO UPDATE
		SET name = EXCLUDED.name, secret_key = EXCLUDED.secret_key, is_active = TRUE
		RETURNING id, name, endpoint_url, secret_key, is_active, created_at
	`, uuid.NewString(), name, endpointURL, secretKey).Scan(
		&sub.ID, &sub.Name, &sub.EndpointURL, &sub.SecretKey,
		&sub.IsActive, &sub.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("ensuring subscriber: %w", err)
	}
	return &sub, nil
}

// ListSubscribers returns all registered subscribers.
func (s *PostgresStore) ListSubscribers(ctx context.Context) ([]domain.Subscriber, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, endpoint_url, secret_key, is_active, created_at
		FROM subscribers ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("listing subscribers: %w", err)
	}
	defer rows.Close()

	subs := []domain.Subscriber{}
	for rows.Next() {
		var sub domain.Subscriber
		err := rows.Scan(
			&sub.ID, &sub.Name, &sub.EndpointURL, &sub.SecretKey,
			&sub.IsActive, &sub.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning subscriber: %w", err)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}
