package api

import (
	"net/http"
	"strconv"

	"github.com/Priya8975/object-sync-pipeline/internal/domain"
	"github.com/Priya8975/object-sync-pipeline/internal/store"
)

type DeliveryHandler struct {
	store *store.PostgresStore
}

func NewDeliveryHandler(s *store.PostgresStore) *DeliveryHandler {
	return &DeliveryHandler{store: s}
}

func (h *DeliveryHandler) List(w http.ResponseWriter, r *http.Request) {
	subscriberID := r.URL.Query().Get("subscriber_id")
	status := r.URL.Query().Get("status")

	switch status {
	case "", domain.DeliveryStatusPending, domain.DeliveryStatusDelivered, domain.DeliveryStatusDeadLettered:
	default:
		respondError(w, http.StatusBadRequest, "invalid status filter")
		return
	}

	limit := 50
	if ls := r.URL.Query().Get("limit"); ls != "" {
		if n, err := strconv.Atoi(ls); err == nil && n > 0 {
			limit = n
		}
	}

	records, err := h.store.ListDeliveryRecords(r.Context(), subscriberID, status, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list deliveries")
		return
	}
	if records == nil {
		records = []domain.DeliveryRecord{}
	}
	respondJSON(w, http.StatusOK, records)
}
