package httpapi

import (
	"net/http"

	"github.com/buffquant/simrun/internal/config"
)

// Router builds the full HTTP surface of spec.md §6, served identically
// under the legacy "/api" prefix and the current "/api/v1" prefix, wrapped
// with the concurrency limiter and CORS middleware.
func Router(cfg config.Config) http.Handler {
	h := NewHandlers(cfg)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /ready", h.Ready)

	for _, prefix := range []string{"/api", "/api/v1"} {
		registerRunRoutes(mux, prefix, h)
		registerExperimentRoutes(mux, prefix, h)
		registerObservabilityRoutes(mux, prefix, h)
		mux.HandleFunc("POST "+prefix+"/admin/migrate", h.AdminMigrate)
	}

	wrapped := withCORS(cfg.DevUIPort, mux)
	return concurrencyLimiter(cfg.HTTPMaxInFlight, wrapped)
}

func registerRunRoutes(mux *http.ServeMux, prefix string, h *Handlers) {
	mux.HandleFunc("GET "+prefix+"/runs", h.ListRuns)
	mux.HandleFunc("POST "+prefix+"/runs", h.CreateRun)
	mux.HandleFunc("GET "+prefix+"/runs/{run_id}/manifest", h.Manifest)
	mux.HandleFunc("GET "+prefix+"/runs/{run_id}/artifacts/{name}", h.Artifact)
	mux.HandleFunc("GET "+prefix+"/runs/{run_id}/summary", h.Summary)
	mux.HandleFunc("GET "+prefix+"/runs/{run_id}/decisions", h.Decisions)
	mux.HandleFunc("GET "+prefix+"/runs/{run_id}/decisions/export", h.DecisionsExport)
	mux.HandleFunc("GET "+prefix+"/runs/{run_id}/trades", h.Trades)
	mux.HandleFunc("GET "+prefix+"/runs/{run_id}/trades/markers", h.TradeMarkers)
	mux.HandleFunc("GET "+prefix+"/runs/{run_id}/trades/export", h.TradesExport)
	mux.HandleFunc("GET "+prefix+"/runs/{run_id}/ohlcv", h.OHLCV)
	mux.HandleFunc("GET "+prefix+"/runs/{run_id}/metrics", h.Metrics)
	mux.HandleFunc("GET "+prefix+"/runs/{run_id}/timeline", h.Timeline)
	mux.HandleFunc("GET "+prefix+"/runs/{run_id}/errors", h.Errors)
	mux.HandleFunc("GET "+prefix+"/runs/{run_id}/errors/export", h.ErrorsExport)
}

func registerExperimentRoutes(mux *http.ServeMux, prefix string, h *Handlers) {
	mux.HandleFunc("POST "+prefix+"/experiments", h.CreateExperiment)
	mux.HandleFunc("GET "+prefix+"/experiments", h.ListExperiments)
	mux.HandleFunc("GET "+prefix+"/experiments/{experiment_id}/manifest", h.ExperimentManifest)
	mux.HandleFunc("GET "+prefix+"/experiments/{experiment_id}/comparison", h.ExperimentComparison)
}

func registerObservabilityRoutes(mux *http.ServeMux, prefix string, h *Handlers) {
	mux.HandleFunc("GET "+prefix+"/observability/runs", h.ObservabilityRuns)
	mux.HandleFunc("GET "+prefix+"/observability/runs/{run_id}/integrity", h.ObservabilityIntegrity)
}
