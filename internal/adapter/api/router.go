package api

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/V4T54L/weblog-etl/internal/adapter/api/handler"
	"github.com/V4T54L/weblog-etl/internal/adapter/api/middleware"
)

// NewRouter creates the HTTP router of the observability server.
func NewRouter(gatherer prometheus.Gatherer, status *handler.StatusHandler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /health", status.HealthCheck)
	mux.HandleFunc("GET /runs/last", status.LastRun)

	return middleware.Logging(logger)(mux)
}
