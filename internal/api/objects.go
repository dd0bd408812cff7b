package api

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/Priya8975/object-sync-pipeline/internal/domain"
	"github.com/Priya8975/object-sync-pipeline/internal/store"
	"github.com/go-chi/chi/v5"
)

// maxObjectBytes bounds uploaded payloads. The source files this pipeline
// syncs are at most a few hundred megabytes.
const maxObjectBytes = 512 << 20

type ObjectHandler struct {
	store *store.PostgresStore
}

func NewObjectHandler(s *store.PostgresStore) *ObjectHandler {
	return &ObjectHandler{store: s}
}

type putObjectResponse struct {
	domain.StoredObject
	Changed bool `json:"changed"`
}

// Put stores a new version of an object. An upload whose content matches the
// latest stored version changes nothing and reports changed=false.
func (h *ObjectHandler) Put(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")
	key := chi.URLParam(r, "*")
	if bucket == "" || key == "" {
		respondError(w, http.StatusBadRequest, "bucket and key are required")
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxObjectBytes+1))
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read payload")
		return
	}
	if len(payload) > maxObjectBytes {
		respondError(w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}

	obj, changed, err := h.store.PutObject(r.Context(), bucket, key, payload)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to store object")
		return
	}

	status := http.StatusOK
	if changed {
		status = http.StatusCreated
	}
	respondJSON(w, status, putObjectResponse{StoredObject: *obj, Changed: changed})
}

// Get returns an object's payload. ?version=N selects a specific version;
// the default is the latest.
func (h *ObjectHandler) Get(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")
	key := chi.URLParam(r, "*")

	version := 0
	if vs := r.URL.Query().Get("version"); vs != "" {
		n, err := strconv.Atoi(vs)
		if err != nil || n < 1 {
			respondError(w, http.StatusBadRequest, "version must be a positive integer")
			return
		}
		version = n
	}

	payload, obj, err := h.store.GetObject(r.Context(), bucket, key, version)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load object")
		return
	}
	if obj == nil {
		respondError(w, http.StatusNotFound, "object not found")
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("ETag", fmt.Sprintf("%q", obj.ContentHash))
	w.Header().Set("X-Object-Version", strconv.Itoa(obj.Version))
	w.WriteHeader(http.StatusOK)
	w.Write(payload)
}

// Feed exposes the resumable change feed for a bucket.
func (h *ObjectHandler) Feed(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")

	var after int64
	if as := r.URL.Query().Get("after"); as != "" {
		n, err := strconv.ParseInt(as, 10, 64)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "after must be a non-negative integer")
			return
		}
		after = n
	}

	limit := 100
	if ls := r.URL.Query().Get("limit"); ls != "" {
		if n, err := strconv.Atoi(ls); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}

	events, err := h.store.ReadFeed(r.Context(), bucket, after, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to read feed")
		return
	}
	if events == nil {
		events = []domain.ChangeEvent{}
	}
	respondJSON(w, http.StatusOK, events)
}
