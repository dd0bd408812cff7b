// Package fetcher syncs the external data source into the object store on a
// fixed schedule. It downloads the source's directory listing, fingerprints
// each file, and writes it to the store, which deduplicates unchanged
// content. Failures wait for the next tick; there are no intra-tick retries
// against the source.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"sync/atomic"
	"time"

	"github.com/Priya8975/object-sync-pipeline/internal/domain"
	"github.com/Priya8975/object-sync-pipeline/internal/store"
	"github.com/sourcegraph/conc/pool"
	"golang.org/x/time/rate"
)

// ErrSourceUnavailable marks fetch failures caused by the external source.
var ErrSourceUnavailable = errors.New("source unavailable")

// ObjectWriter persists fetched documents. Both *store.PostgresStore and
// *store.HTTPObjectClient implement it.
type ObjectWriter interface {
	PutObject(ctx context.Context, bucket, key string, payload []byte) (*domain.StoredObject, bool, error)
}

// Config controls one fetcher instance.
type Config struct {
	SourceEndpoint string // directory-listing source; empty disables
	APIEndpoint    string // JSON dataset source; empty disables
	APIObjectKey   string // store key for the dataset payload
	Bucket         string
	Prefix         string // key prefix for listed files
	Interval       time.Duration
	RatePerSecond  float64 // request budget against the source; <= 0 is unlimited
	Concurrency    int     // parallel downloads per sync
}

type Fetcher struct {
	client  *http.Client
	writer  ObjectWriter
	cfg     Config
	limiter *rate.Limiter
	logger  *slog.Logger
	syncing atomic.Bool

	// lastListed is the file set from the previous sync. Only one sync runs
	// at a time, so no lock is needed.
	lastListed map[string]bool
}

func New(writer ObjectWriter, cfg Config, logger *slog.Logger) *Fetcher {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}

	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}

	return &Fetcher{
		client:  &http.Client{Timeout: 60 * time.Second},
		writer:  writer,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
	}
}

// Run syncs immediately, then on every tick until the context is cancelled.
// A tick that fires while a sync is still running is skipped.
func (f *Fetcher) Run(ctx context.Context) {
	f.logger.Info("fetcher started", "interval", f.cfg.Interval)

	if err := f.SyncOnce(ctx); err != nil && ctx.Err() == nil {
		f.logger.Error("initial sync failed", "error", err)
	}

	ticker := time.NewTicker(f.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			f.logger.Info("fetcher stopping")
			return
		case <-ticker.C:
			if !f.syncing.CompareAndSwap(false, true) {
				f.logger.Warn("previous sync still running, skipping tick")
				continue
			}
			go func() {
				defer f.syncing.Store(false)
				if err := f.SyncOnce(ctx); err != nil && ctx.Err() == nil {
					f.logger.Error("sync failed, will retry next tick", "error", err)
				}
			}()
		}
	}
}

// SyncOnce runs one full sync pass: the JSON dataset pull and the directory
// listing sync. Partial failure still syncs what it can.
func (f *Fetcher) SyncOnce(ctx context.Context) error {
	var errs []error

	if f.cfg.APIEndpoint != "" {
		if err := f.pullDataset(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if f.cfg.SourceEndpoint != "" {
		if err := f.syncListing(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// pullDataset fetches the JSON API endpoint and stores it under a fixed key.
func (f *Fetcher) pullDataset(ctx context.Context) error {
	doc, err := f.fetch(ctx, f.cfg.APIEndpoint)
	if err != nil {
		return fmt.Errorf("pulling dataset: %w", err)
	}

	_, changed, err := f.writer.PutObject(ctx, f.cfg.Bucket, f.cfg.APIObjectKey, doc.Payload)
	if err != nil {
		return fmt.Errorf("storing dataset %s: %w", f.cfg.APIObjectKey, err)
	}
	if changed {
		f.logger.Info("dataset updated", "key", f.cfg.APIObjectKey, "content_hash", doc.ContentHash)
	}
	return nil
}

// syncListing scrapes the directory index and stores every listed file,
// downloading in parallel under the rate limit. The store's fingerprint
// check makes re-uploads of unchanged files a no-op.
func (f *Fetcher) syncListing(ctx context.Context) error {
	files, err := f.listSource(ctx)
	if err != nil {
		return err
	}

	// Stored versions are immutable, so files that vanish from the source
	// are only noted, never deleted.
	listed := make(map[string]bool, len(files))
	for _, file := range files {
		listed[file.Name] = true
	}
	for name := range f.lastListed {
		if !listed[name] {
			f.logger.Warn("file disappeared from source", "name", name)
		}
	}
	f.lastListed = listed

	var stored, changed atomic.Int64

	p := pool.New().WithErrors().WithMaxGoroutines(f.cfg.Concurrency)
	for _, file := range files {
		p.Go(func() error {
			doc, err := f.fetch(ctx, file.URL)
			if err != nil {
				return fmt.Errorf("fetching %s: %w", file.Name, err)
			}

			key := f.cfg.Prefix + file.Name
			_, isNew, err := f.writer.PutObject(ctx, f.cfg.Bucket, key, doc.Payload)
			if err != nil {
				return fmt.Errorf("storing %s: %w", key, err)
			}
			stored.Add(1)
			if isNew {
				changed.Add(1)
				f.logger.Info("object updated", "key", key, "content_hash", doc.ContentHash)
			}
			return nil
		})
	}
	err = p.Wait()

	f.logger.Info("source sync complete",
		"listed", len(files),
		"stored", stored.Load(),
		"changed", changed.Load(),
	)
	return err
}

// listSource downloads and parses the source's directory index.
func (f *Fetcher) listSource(ctx context.Context) ([]sourceFile, error) {
	base, err := url.Parse(f.cfg.SourceEndpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid source endpoint: %w", err)
	}

	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.cfg.SourceEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building listing request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: listing %s: %v", ErrSourceUnavailable, f.cfg.SourceEndpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: listing returned %s", ErrSourceUnavailable, resp.Status)
	}

	return parseListing(base, resp.Body)
}

// fetch downloads one URL into an immutable SourceDocument.
func (f *Fetcher) fetch(ctx context.Context, rawURL string) (*domain.SourceDocument, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: %s returned %s", ErrSourceUnavailable, rawURL, resp.Status)
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", ErrSourceUnavailable, err)
	}

	u, _ := url.Parse(rawURL)
	externalID := rawURL
	if u != nil {
		externalID = path.Base(u.Path)
	}

	return &domain.SourceDocument{
		ExternalID:  externalID,
		FetchedAt:   time.Now().UTC(),
		ContentHash: store.Fingerprint(payload),
		Payload:     payload,
	}, nil
}
