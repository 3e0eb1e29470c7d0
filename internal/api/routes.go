// Package api wires the HTTP surface onto the Broker and the live
// stream hub: positions CRUD and close, stats, events, CSV export, the
// settings endpoints, the SSE stream, and health/metrics, behind a
// Recovery, Logging, CORS middleware chain.
package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"papertrader/internal/api/handlers"
	"papertrader/internal/api/middleware"
	"papertrader/internal/broker"
	"papertrader/internal/stream"
)

// Dependencies holds everything the HTTP layer needs injected.
type Dependencies struct {
	Broker         *broker.Broker
	Stream         *stream.Hub
	MetricsEnabled bool
}

// SetupRoutes builds the router for the HTTP API surface: /positions,
// /stats, /events, /stream, /export, /settings, plus the ambient /health
// and /metrics endpoints.
func SetupRoutes(deps *Dependencies) *mux.Router {
	router := mux.NewRouter()

	router.Use(middleware.Recovery)
	router.Use(middleware.Logging)
	router.Use(middleware.CORS)

	if deps != nil && deps.Broker != nil {
		positions := handlers.NewPositionHandler(deps.Broker)
		stats := handlers.NewStatsHandler(deps.Broker)
		events := handlers.NewEventHandler(deps.Broker)
		export := handlers.NewExportHandler(deps.Broker)
		settings := handlers.NewSettingsHandler(deps.Broker)

		router.HandleFunc("/positions", positions.CreatePosition).Methods(http.MethodPost)
		router.HandleFunc("/positions", positions.ListPositions).Methods(http.MethodGet)
		router.HandleFunc("/positions/{id}", positions.GetPosition).Methods(http.MethodGet)
		router.HandleFunc("/positions/{id}", positions.UpdatePosition).Methods(http.MethodPatch)
		router.HandleFunc("/positions/{id}/close", positions.ClosePosition).Methods(http.MethodPost)
		router.HandleFunc("/positions/{id}", positions.DeletePosition).Methods(http.MethodDelete)

		router.HandleFunc("/stats", stats.GetStats).Methods(http.MethodGet)
		router.HandleFunc("/events", events.GetEvents).Methods(http.MethodGet)
		router.HandleFunc("/export", export.ExportCsv).Methods(http.MethodGet)

		router.HandleFunc("/settings", settings.GetSettings).Methods(http.MethodGet)
		router.HandleFunc("/settings", settings.UpdateSettings).Methods(http.MethodPost)
	}

	if deps != nil && deps.Stream != nil {
		router.HandleFunc("/stream", deps.Stream.ServeHTTP).Methods(http.MethodGet)
	}

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods(http.MethodGet)

	if deps != nil && deps.MetricsEnabled {
		router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	}

	return router
}
