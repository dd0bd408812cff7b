// Package processor derives per-series reports from accepted change events
// and writes them back to the object store under a separate results bucket.
package processor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Priya8975/object-sync-pipeline/internal/domain"
)

// ObjectStore is the slice of the store the processor reads and writes.
// *store.PostgresStore implements it.
type ObjectStore interface {
	GetObject(ctx context.Context, bucket, key string, version int) ([]byte, *domain.StoredObject, error)
	PutObject(ctx context.Context, bucket, key string, payload []byte) (*domain.StoredObject, bool, error)
}

// ResultStore persists per-event processing outcomes. *store.PostgresStore
// implements it.
type ResultStore interface {
	GetProcessingResult(ctx context.Context, eventID int64) (*domain.ProcessingResult, error)
	RecordProcessingResult(ctx context.Context, res domain.ProcessingResult) (bool, error)
}

type Processor struct {
	objects ObjectStore
	results ResultStore
	bucket  string // results bucket, distinct from the data bucket
	logger  *slog.Logger
}

func New(objects ObjectStore, results ResultStore, resultsBucket string, logger *slog.Logger) *Processor {
	return &Processor{
		objects: objects,
		results: results,
		bucket:  resultsBucket,
		logger:  logger,
	}
}

// Process derives a report for the event's object and stores it. A previously
// succeeded event is a no-op; a previously failed one is reworked. Results go
// to the results bucket, which has no subscribers, so processing never feeds
// back into the dispatch pipeline.
func (p *Processor) Process(ctx context.Context, ev domain.ChangeEvent) error {
	prior, err := p.results.GetProcessingResult(ctx, ev.EventID)
	if err != nil {
		return fmt.Errorf("loading prior result for event %d: %w", ev.EventID, err)
	}
	if prior != nil && prior.Status == domain.ResultStatusSucceeded {
		p.logger.Info("event already processed", "event_id", ev.EventID, "key", ev.Key)
		return nil
	}

	outputKey, err := p.derive(ctx, ev)
	if err != nil {
		p.recordFailure(ctx, ev, err)
		return err
	}

	res := domain.ProcessingResult{
		EventID:     ev.EventID,
		Status:      domain.ResultStatusSucceeded,
		OutputKey:   &outputKey,
		ProcessedAt: time.Now().UTC(),
	}
	if _, err := p.results.RecordProcessingResult(ctx, res); err != nil {
		return fmt.Errorf("recording result for event %d: %w", ev.EventID, err)
	}

	p.logger.Info("event processed", "event_id", ev.EventID, "key", ev.Key, "output_key", outputKey)
	return nil
}

func (p *Processor) derive(ctx context.Context, ev domain.ChangeEvent) (string, error) {
	payload, obj, err := p.objects.GetObject(ctx, ev.Bucket, ev.Key, 0)
	if err != nil {
		return "", fmt.Errorf("loading object %s/%s: %w", ev.Bucket, ev.Key, err)
	}
	if obj == nil {
		return "", fmt.Errorf("object %s/%s not found", ev.Bucket, ev.Key)
	}

	report := BuildReport(ev.Key, obj.Version, payload)
	encoded, err := report.Encode()
	if err != nil {
		return "", fmt.Errorf("encoding report for %s: %w", ev.Key, err)
	}

	outputKey := "reports/" + ev.Key + ".json"
	if _, _, err := p.objects.PutObject(ctx, p.bucket, outputKey, encoded); err != nil {
		return "", fmt.Errorf("storing report %s: %w", outputKey, err)
	}
	return outputKey, nil
}

func (p *Processor) recordFailure(ctx context.Context, ev domain.ChangeEvent, cause error) {
	msg := cause.Error()
	res := domain.ProcessingResult{
		EventID:     ev.EventID,
		Status:      domain.ResultStatusFailed,
		Error:       &msg,
		ProcessedAt: time.Now().UTC(),
	}
	if _, err := p.results.RecordProcessingResult(ctx, res); err != nil {
		p.logger.Error("failed to record processing failure", "error", err, "event_id", ev.EventID)
	}
}
