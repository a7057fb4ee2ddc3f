package api

import (
	"net/http"
)

// StatsProvider reports runtime counters. The "started" key is false once
// the service has stopped.
type StatsProvider interface {
	GetStats() map[string]interface{}
}

// StatsHandler serves service statistics.
type StatsHandler struct {
	provider StatsProvider
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(provider StatsProvider) *StatsHandler {
	return &StatsHandler{provider: provider}
}

// HandleStats handles GET /stats requests. A stopped service still reports
// its configuration, with status 503.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, _ *http.Request) {
	stats := h.provider.GetStats()
	status := http.StatusOK
	if started, _ := stats["started"].(bool); !started {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, stats)
}
