package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/zapflow/dispatch/internal/queue"
)

// NewRouter creates a chi.Mux with the ops endpoints: health, Prometheus
// metrics, queue introspection, error replay, and campaign enqueue.
func NewRouter(sq *queue.SecureQueue, store queue.Store, log zerolog.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(LoggingMiddleware(log))
	r.Use(RecoverMiddleware(log))

	r.Get("/healthz", HealthzHandler())
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/queue/status", QueueStatusHandler(sq.Processor()))
		r.Get("/queue/errors", QueueErrorsHandler(store))
		r.Post("/queue/errors/replay", ReplayErrorsHandler(sq.Processor()))
		r.Post("/campaigns/{id}/enqueue", EnqueueCampaignHandler(sq))
	})

	return r
}
