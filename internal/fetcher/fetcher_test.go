package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"

	"github.com/Priya8975/object-sync-pipeline/internal/domain"
	"github.com/Priya8975/object-sync-pipeline/internal/store"
)

// memWriter fingerprints like the real store: same payload, no change.
type memWriter struct {
	mu      sync.Mutex
	objects map[string]string // bucket/key -> content hash
	changed int
}

func (m *memWriter) PutObject(_ context.Context, bucket, key string, payload []byte) (*domain.StoredObject, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.objects == nil {
		m.objects = map[string]string{}
	}

	hash := store.Fingerprint(payload)
	full := bucket + "/" + key
	if m.objects[full] == hash {
		return &domain.StoredObject{Bucket: bucket, Key: key, ContentHash: hash}, false, nil
	}
	m.objects[full] = hash
	m.changed++
	return &domain.StoredObject{Bucket: bucket, Key: key, ContentHash: hash}, true, nil
}

func newTestFetcher(writer ObjectWriter, cfg Config) *Fetcher {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	return New(writer, cfg, logger)
}

func newListingServer(t *testing.T, files map[string]string) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/pub/time.series/pr/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html><body><pre>\n")
		fmt.Fprint(w, `<a href="../">../</a>`+"\n")
		for name := range files {
			fmt.Fprintf(w, `<a href="%s">%s</a>`+"\n", name, name)
		}
		fmt.Fprint(w, "</pre></body></html>")
	})
	for name, content := range files {
		mux.HandleFunc("/pub/time.series/pr/"+name, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, content)
		})
	}

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestSyncOnceStoresListedFiles(t *testing.T) {
	srv := newListingServer(t, map[string]string{
		"pr.class.txt":      "class data",
		"pr.data.0.Current": "S1\t2021\tQ01\t1.0\n",
	})

	writer := &memWriter{}
	f := newTestFetcher(writer, Config{
		SourceEndpoint: srv.URL + "/pub/time.series/pr/",
		Bucket:         "data",
		Prefix:         "pub/time.series/pr/",
	})

	if err := f.SyncOnce(context.Background()); err != nil {
		t.Fatalf("SyncOnce: %v", err)
	}

	if len(writer.objects) != 2 {
		t.Fatalf("stored %d objects, want 2: %v", len(writer.objects), writer.objects)
	}
	if _, ok := writer.objects["data/pub/time.series/pr/pr.class.txt"]; !ok {
		t.Errorf("missing prefixed key, got %v", writer.objects)
	}
}

func TestSyncOnceUnchangedContentIsNoOp(t *testing.T) {
	srv := newListingServer(t, map[string]string{
		"pr.class.txt": "class data",
	})

	writer := &memWriter{}
	f := newTestFetcher(writer, Config{
		SourceEndpoint: srv.URL + "/pub/time.series/pr/",
		Bucket:         "data",
		Prefix:         "pub/time.series/pr/",
	})

	for i := 0; i < 2; i++ {
		if err := f.SyncOnce(context.Background()); err != nil {
			t.Fatalf("sync %d: %v", i+1, err)
		}
	}

	if writer.changed != 1 {
		t.Errorf("changed %d times across two identical syncs, want 1", writer.changed)
	}
}

func TestSyncOncePullsDataset(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/population", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[]}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	writer := &memWriter{}
	f := newTestFetcher(writer, Config{
		APIEndpoint:  srv.URL + "/api/population",
		APIObjectKey: "datasets/population.json",
		Bucket:       "data",
	})

	if err := f.SyncOnce(context.Background()); err != nil {
		t.Fatalf("SyncOnce: %v", err)
	}
	if _, ok := writer.objects["data/datasets/population.json"]; !ok {
		t.Errorf("dataset not stored: %v", writer.objects)
	}
}

func TestSyncOnceSourceDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	writer := &memWriter{}
	f := newTestFetcher(writer, Config{
		SourceEndpoint: srv.URL + "/pub/time.series/pr/",
		Bucket:         "data",
	})

	err := f.SyncOnce(context.Background())
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("err = %v, want ErrSourceUnavailable", err)
	}
	if len(writer.objects) != 0 {
		t.Errorf("objects stored despite source failure: %v", writer.objects)
	}
}

func TestSyncOncePartialFailure(t *testing.T) {
	// Dataset endpoint down, listing up: the listing must still sync.
	srv := newListingServer(t, map[string]string{"pr.class.txt": "class data"})

	writer := &memWriter{}
	f := newTestFetcher(writer, Config{
		SourceEndpoint: srv.URL + "/pub/time.series/pr/",
		APIEndpoint:    srv.URL + "/api/population", // 404s
		APIObjectKey:   "datasets/population.json",
		Bucket:         "data",
		Prefix:         "pub/time.series/pr/",
	})

	err := f.SyncOnce(context.Background())
	if err == nil {
		t.Fatal("expected an error for the failed dataset pull")
	}
	if len(writer.objects) != 1 {
		t.Errorf("listing files not synced despite partial failure: %v", writer.objects)
	}
}
