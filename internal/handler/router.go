// Package handler exposes the account service over HTTP.
package handler

import (
	"net/http"

	"github.com/boddenberg/account-actor-go/internal/infra/observability"
	"github.com/boddenberg/account-actor-go/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// ReadinessCheck reports whether the event store can serve requests.
type ReadinessCheck func(r *http.Request) error

// NewRouter creates the HTTP router with all routes and middleware.
// Command endpoints answer 202 because actors never reply.
func NewRouter(svc *service.AccountService, ready ReadinessCheck, metrics *observability.Metrics, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler())
	r.Get("/readyz", readyzHandler(ready, logger))
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {
		r.Route("/accounts", func(r chi.Router) {
			r.Post("/", createAccountHandler(svc, logger))
			r.Get("/{accountId}", getAccountHandler(svc, logger))
			r.Get("/{accountId}/events", accountEventsHandler(svc, logger))
			r.Post("/{accountId}/deposits", depositHandler(svc, logger))
			r.Post("/{accountId}/withdrawals", withdrawHandler(svc, logger))
			r.Post("/{accountId}/flush", flushAccountHandler(svc, logger))
		})

		r.Get("/metrics/actors", actorMetricsHandler(metrics))
	})

	return r
}

func healthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	}
}

func readyzHandler(ready ReadinessCheck, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ready != nil {
			if err := ready(r); err != nil {
				logger.Warn("readiness check failed", zap.Error(err))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}
