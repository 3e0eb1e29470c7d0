package handlers

import (
	"net/http"

	"papertrader/internal/broker"
)

// StatsHandler serves GET /stats.
type StatsHandler struct {
	broker *broker.Broker
}

// NewStatsHandler builds a StatsHandler around broker.
func NewStatsHandler(b *broker.Broker) *StatsHandler {
	return &StatsHandler{broker: b}
}

// GetStats handles GET /stats.
func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.broker.GetStats()
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, stats)
}
