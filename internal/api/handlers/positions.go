// Package handlers holds the HTTP handlers behind the /positions, /stats,
// /events, /export and /settings endpoints. Each is a thin adapter from
// an *http.Request onto a Broker call: JSON decode into a request
// struct, mux.Vars for path ids, a shared error-response helper.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"papertrader/internal/apperr"
	"papertrader/internal/broker"
	"papertrader/internal/models"
)

// PositionHandler serves /positions and its sub-resources.
type PositionHandler struct {
	broker *broker.Broker
}

// NewPositionHandler builds a PositionHandler around broker.
func NewPositionHandler(b *broker.Broker) *PositionHandler {
	return &PositionHandler{broker: b}
}

// CreatePosition handles POST /positions.
func (h *PositionHandler) CreatePosition(w http.ResponseWriter, r *http.Request) {
	var req models.CreatePositionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, apperr.Validationf("invalid request body: %v", err))
		return
	}

	pos, err := h.broker.CreatePosition(r.Context(), req)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, pos)
}

// ListPositions handles GET /positions?status=OPEN|CLOSED.
func (h *PositionHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	var status *models.Status
	if raw := r.URL.Query().Get("status"); raw != "" {
		s := models.Status(raw)
		status = &s
	}

	positions, err := h.broker.ListPositions(status)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, positions)
}

// GetPosition handles GET /positions/{id}.
func (h *PositionHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	id, err := positionID(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	pos, err := h.broker.GetPosition(id)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, pos)
}

// updateSLTPRequest is the PATCH /positions/{id} body: nullable fields
// left absent from the JSON body are left untouched.
type updateSLTPRequest struct {
	SL *float64 `json:"sl"`
	TP *float64 `json:"tp"`
}

// UpdatePosition handles PATCH /positions/{id}.
func (h *PositionHandler) UpdatePosition(w http.ResponseWriter, r *http.Request) {
	id, err := positionID(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	var req updateSLTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, apperr.Validationf("invalid request body: %v", err))
		return
	}

	pos, err := h.broker.UpdateSLTP(id, models.UpdateSLTPRequest{SL: req.SL, TP: req.TP})
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, pos)
}

// ClosePosition handles POST /positions/{id}/close.
func (h *PositionHandler) ClosePosition(w http.ResponseWriter, r *http.Request) {
	id, err := positionID(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	pos, err := h.broker.ClosePositionManual(r.Context(), id)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, pos)
}

// DeletePosition handles DELETE /positions/{id}.
func (h *PositionHandler) DeletePosition(w http.ResponseWriter, r *http.Request) {
	id, err := positionID(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	deleted, err := h.broker.DeletePosition(id)
	if err != nil {
		WriteError(w, err)
		return
	}
	if !deleted {
		WriteError(w, apperr.ErrPositionNotFound)
		return
	}
	WriteJSON(w, http.StatusOK, SuccessResponse{Message: "position deleted"})
}

func positionID(r *http.Request) (int64, error) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, apperr.Validationf("invalid position id %q", raw)
	}
	return id, nil
}
