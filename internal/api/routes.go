package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/stacklok/toolhive-entrypoint/internal/orchestrator"
	"github.com/stacklok/toolhive-entrypoint/internal/versions"
)

// healthHandler reports that the entrypoint process is alive
func healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSONResponse(w, HealthResponse{Status: "healthy"}, http.StatusOK)
}

// readinessHandler succeeds only once the service is being supervised
func readinessHandler(provider StatusProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		phase := provider.Snapshot().Phase
		if phase != orchestrator.PhaseSupervising {
			writeJSONResponse(w, ErrorResponse{
				Error: "entrypoint not ready",
				Phase: phase,
			}, http.StatusServiceUnavailable)
			return
		}
		writeJSONResponse(w, ReadinessResponse{Status: "ready", Phase: phase}, http.StatusOK)
	}
}

// statusHandler returns the full orchestration snapshot
func statusHandler(provider StatusProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSONResponse(w, provider.Snapshot(), http.StatusOK)
	}
}

// versionHandler handles version information requests
func versionHandler(w http.ResponseWriter, _ *http.Request) {
	info := versions.GetVersionInfo()
	writeJSONResponse(w, VersionResponse{
		Version:   info.Version,
		Commit:    info.Commit,
		BuildDate: info.BuildDate,
		GoVersion: info.GoVersion,
		Platform:  info.Platform,
	}, http.StatusOK)
}

// writeJSONResponse writes a JSON response with the given data
func writeJSONResponse(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}
