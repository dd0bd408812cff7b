package api

import (
	"net/http"

	"github.com/Priya8975/object-sync-pipeline/internal/dispatcher"
	"github.com/Priya8975/object-sync-pipeline/internal/receiver"
	"github.com/Priya8975/object-sync-pipeline/internal/store"
	ws "github.com/Priya8975/object-sync-pipeline/internal/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter wires up the HTTP surface: the object store API, the operator
// API, the inbound event hook, and the status WebSocket.
func NewRouter(pgStore *store.PostgresStore, queue *dispatcher.Queue, breaker *dispatcher.Breaker, rc *receiver.Receiver, hub *ws.Hub) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))
	r.Use(corsMiddleware)

	objectHandler := NewObjectHandler(pgStore)
	eventHandler := NewEventHandler(pgStore)
	deliveryHandler := NewDeliveryHandler(pgStore)
	dlHandler := NewDeadLetterHandler(pgStore)
	metricsHandler := NewMetricsHandler(pgStore, queue, breaker, hub)

	// Object store API. The wildcard keeps slashes inside object keys.
	r.Route("/objects/{bucket}", func(r chi.Router) {
		r.Put("/*", objectHandler.Put)
		r.Get("/*", objectHandler.Get)
	})
	r.Get("/feed/{bucket}", objectHandler.Feed)

	// Inbound webhook consumed by the pipeline's own receiver.
	r.Post("/hooks/object-created", rc.HandleEvent)

	// Live status stream.
	r.Get("/ws", hub.HandleWebSocket)

	// Operator API.
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", HealthHandler())

		r.Route("/events", func(r chi.Router) {
			r.Get("/", eventHandler.List)
			r.Get("/{id}", eventHandler.Get)
		})

		r.Get("/deliveries", deliveryHandler.List)

		r.Route("/dead-letters", func(r chi.Router) {
			r.Get("/", dlHandler.List)
			r.Get("/{id}", dlHandler.Get)
			r.Post("/{id}/resolve", dlHandler.Resolve)
		})

		r.Get("/metrics", metricsHandler.Metrics)
		r.Get("/subscribers-health", metricsHandler.SubscriberHealth)
	})

	return r
}

// corsMiddleware allows browser-based monitoring tools to call the operator
// API directly.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
