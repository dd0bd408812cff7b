package api

import (
	"net/http"
	"strconv"

	"github.com/Priya8975/object-sync-pipeline/internal/domain"
	"github.com/Priya8975/object-sync-pipeline/internal/store"
	"github.com/go-chi/chi/v5"
)

type EventHandler struct {
	store *store.PostgresStore
}

func NewEventHandler(s *store.PostgresStore) *EventHandler {
	return &EventHandler{store: s}
}

func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	bucket := r.URL.Query().Get("bucket")

	limit := 50
	if ls := r.URL.Query().Get("limit"); ls != "" {
		if n, err := strconv.Atoi(ls); err == nil && n > 0 {
			limit = n
		}
	}

	events, err := h.store.ListChangeEvents(r.Context(), bucket, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	if events == nil {
		events = []domain.ChangeEvent{}
	}
	respondJSON(w, http.StatusOK, events)
}

func (h *EventHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		respondError(w, http.StatusBadRequest, "invalid event id")
		return
	}

	event, err := h.store.GetChangeEvent(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load event")
		return
	}
	if event == nil {
		respondError(w, http.StatusNotFound, "event not found")
		return
	}
	respondJSON(w, http.StatusOK, event)
}
