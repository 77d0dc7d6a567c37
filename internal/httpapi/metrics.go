package httpapi

import (
	"net/http"

	"goa.design/agentgateway/internal/metrics"
)

// handleGetMetrics serves GET /api/metrics.
func handleGetMetrics(collector *metrics.Collector) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, collector.Snapshot())
	}
}

// handleResetMetrics serves POST /api/metrics/reset.
func handleResetMetrics(collector *metrics.Collector) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		collector.Reset()
		writeJSON(w, http.StatusOK, collector.Snapshot())
	}
}
