package handlers

import (
	"encoding/json"
	"net/http"

	"papertrader/internal/apperr"
	"papertrader/internal/broker"
	"papertrader/internal/models"
)

// SettingsHandler serves GET/POST /settings.
type SettingsHandler struct {
	broker *broker.Broker
}

// NewSettingsHandler builds a SettingsHandler around broker.
func NewSettingsHandler(b *broker.Broker) *SettingsHandler {
	return &SettingsHandler{broker: b}
}

// GetSettings handles GET /settings.
func (h *SettingsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.broker.GetSettings()
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, settings)
}

// UpdateSettings handles POST /settings with a partial body; fields
// absent from the JSON payload are left unchanged (the same
// pointer-optional pattern internal/models.UpdateSettingsRequest uses
// everywhere else in the Broker).
func (h *SettingsHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, apperr.Validationf("invalid request body: %v", err))
		return
	}

	settings, err := h.broker.UpdateSettings(req)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, settings)
}
