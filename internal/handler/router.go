package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/boddenberg/monosync/internal/infra/observability"
	"github.com/boddenberg/monosync/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// ReadyFunc reports whether the backing store is usable.
type ReadyFunc func(ctx context.Context) error

// NewRouter creates the local dashboard bridge with all routes and
// middleware.
func NewRouter(syncSvc *service.SyncService, datasetSvc *service.DatasetService, ready ReadyFunc, metrics *observability.Metrics, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(syncSvc))
	r.Get("/readyz", readyzHandler(ready, logger))
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {
		r.Route("/sync", func(r chi.Router) {
			r.Get("/state", syncStateHandler(syncSvc, logger))
			r.Post("/", triggerSyncHandler(syncSvc, logger))
			r.Get("/events", syncEventsHandler(syncSvc, logger))
			r.Get("/metrics", syncMetricsHandler(syncSvc))
		})

		r.Post("/token", connectTokenHandler(syncSvc, logger))

		r.Get("/transactions", listTransactionsHandler(syncSvc, datasetSvc, logger))
		r.Post("/transactions/category", assignCategoryHandler(datasetSvc, logger))
		r.Get("/accounts", listAccountsHandler(datasetSvc, logger))

		r.Route("/dataset", func(r chi.Router) {
			r.Post("/demo", loadDemoHandler(datasetSvc, logger))
			r.Post("/import", importHandler(datasetSvc, logger))
			r.Get("/export", exportHandler(datasetSvc, logger))
		})
	})

	return r
}

func healthzHandler(syncSvc *service.SyncService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":  "healthy",
			"syncing": syncSvc != nil && syncSvc.Running(),
			"time":    time.Now().UTC().Format(time.RFC3339),
		})
	}
}

func readyzHandler(ready ReadyFunc, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ready != nil {
			if err := ready(r.Context()); err != nil {
				logger.Warn("store not ready", zap.Error(err))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}
