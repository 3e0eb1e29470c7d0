package handlers

import (
	"encoding/json"
	"net/http"

	"papertrader/internal/apperr"
	"papertrader/pkg/utils"
)

// WriteError maps an apperr.Kind to an HTTP status and writes a JSON
// ErrorResponse body. Unrecognized errors are treated as Internal so no
// raw error ever reaches the client.
func WriteError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	msg := err.Error()
	switch {
	case apperr.Is(err, apperr.KindValidation):
		status = http.StatusBadRequest
	case apperr.Is(err, apperr.KindNotFound):
		status = http.StatusNotFound
	case apperr.Is(err, apperr.KindConflict):
		status = http.StatusBadRequest
	case apperr.Is(err, apperr.KindUpstream):
		status = http.StatusBadGateway
	case apperr.Is(err, apperr.KindStorage):
		status = http.StatusInternalServerError
	case apperr.Is(err, apperr.KindInternal):
		status = http.StatusInternalServerError
		msg = "internal server error"
	default:
		msg = "internal server error"
	}

	if status == http.StatusInternalServerError {
		utils.L().Error("handler error", utils.Err(err))
	}

	WriteJSON(w, status, ErrorResponse{Error: msg})
}

// WriteJSON writes v as a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		utils.L().Error("write json response failed", utils.Err(err))
	}
}
