package api

import (
	"net/http"
	"strconv"

	"github.com/Priya8975/object-sync-pipeline/internal/domain"
	"github.com/Priya8975/object-sync-pipeline/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
)

type DeadLetterHandler struct {
	store *store.PostgresStore
}

func NewDeadLetterHandler(s *store.PostgresStore) *DeadLetterHandler {
	return &DeadLetterHandler{store: s}
}

func (h *DeadLetterHandler) List(w http.ResponseWriter, r *http.Request) {
	subscriberID := r.URL.Query().Get("subscriber_id")
	resolved := r.URL.Query().Get("resolved") == "true"

	limit := 50
	if ls := r.URL.Query().Get("limit"); ls != "" {
		if n, err := strconv.Atoi(ls); err == nil && n > 0 {
			limit = n
		}
	}

	letters, err := h.store.ListDeadLetters(r.Context(), subscriberID, resolved, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list dead letters")
		return
	}
	if letters == nil {
		letters = []domain.DeadLetter{}
	}
	respondJSON(w, http.StatusOK, letters)
}

func (h *DeadLetterHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		respondError(w, http.StatusBadRequest, "invalid dead letter id")
		return
	}

	letter, err := h.store.GetDeadLetter(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load dead letter")
		return
	}
	if letter == nil {
		respondError(w, http.StatusNotFound, "dead letter not found")
		return
	}
	respondJSON(w, http.StatusOK, letter)
}

type resolveRequest struct {
	ResolvedBy string `json:"resolved_by"`
}

func (h *DeadLetterHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		respondError(w, http.StatusBadRequest, "invalid dead letter id")
		return
	}

	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ResolvedBy == "" {
		respondError(w, http.StatusBadRequest, "resolved_by is required")
		return
	}

	if err := h.store.ResolveDeadLetter(r.Context(), id, req.ResolvedBy); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to resolve dead letter")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "resolved"})
}
