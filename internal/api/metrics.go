package api

import (
	"net/http"

	"github.com/Priya8975/object-sync-pipeline/internal/dispatcher"
	"github.com/Priya8975/object-sync-pipeline/internal/store"
	ws "github.com/Priya8975/object-sync-pipeline/internal/websocket"
)

type MetricsHandler struct {
	store   *store.PostgresStore
	queue   *dispatcher.Queue
	breaker *dispatcher.Breaker
	hub     *ws.Hub
}

func NewMetricsHandler(s *store.PostgresStore, q *dispatcher.Queue, b *dispatcher.Breaker, hub *ws.Hub) *MetricsHandler {
	return &MetricsHandler{store: s, queue: q, breaker: b, hub: hub}
}

type metricsResponse struct {
	store.PipelineMetrics
	QueueDepth       int64 `json:"queue_depth"`
	ConnectedClients int   `json:"connected_clients"`
}

func (h *MetricsHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	m, err := h.store.GetPipelineMetrics(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load metrics")
		return
	}

	depth, err := h.queue.Depth(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to read queue depth")
		return
	}

	respondJSON(w, http.StatusOK, metricsResponse{
		PipelineMetrics:  *m,
		QueueDepth:       depth,
		ConnectedClients: h.hub.ClientCount(),
	})
}

type subscriberHealth struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	EndpointURL  string `json:"endpoint_url"`
	IsActive     bool   `json:"is_active"`
	BreakerState string `json:"breaker_state"`
	Failures     int    `json:"failures"`
}

// SubscriberHealth reports every subscriber with its circuit breaker state.
func (h *MetricsHandler) SubscriberHealth(w http.ResponseWriter, r *http.Request) {
	subs, err := h.store.ListSubscribers(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list subscribers")
		return
	}

	out := make([]subscriberHealth, 0, len(subs))
	for _, sub := range subs {
		state := h.breaker.State(r.Context(), sub.ID)
		out = append(out, subscriberHealth{
			ID:           sub.ID,
			Name:         sub.Name,
			EndpointURL:  sub.EndpointURL,
			IsActive:     sub.IsActive,
			BreakerState: state.State,
			Failures:     state.Failures,
		})
	}
	respondJSON(w, http.StatusOK, out)
}
