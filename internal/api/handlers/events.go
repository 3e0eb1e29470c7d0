package handlers

import (
	"net/http"
	"strconv"

	"papertrader/internal/apperr"
	"papertrader/internal/broker"
)

// EventHandler serves GET /events.
type EventHandler struct {
	broker *broker.Broker
}

// NewEventHandler builds an EventHandler around broker.
func NewEventHandler(b *broker.Broker) *EventHandler {
	return &EventHandler{broker: b}
}

// GetEvents handles GET /events?positionId=&limit=.
func (h *EventHandler) GetEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var positionID *int64
	if raw := q.Get("positionId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			WriteError(w, apperr.Validationf("invalid positionId %q", raw))
			return
		}
		positionID = &id
	}

	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			WriteError(w, apperr.Validationf("invalid limit %q", raw))
			return
		}
		limit = n
	}

	events, err := h.broker.GetEvents(positionID, limit)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, events)
}
