package handlers

import (
	"net/http"

	"papertrader/internal/apperr"
	"papertrader/internal/broker"
	"papertrader/pkg/csvutil"
	"papertrader/pkg/utils"
)

// ExportHandler serves GET /export.
type ExportHandler struct {
	broker *broker.Broker
}

// NewExportHandler builds an ExportHandler around broker.
func NewExportHandler(b *broker.Broker) *ExportHandler {
	return &ExportHandler{broker: b}
}

// ExportCsv handles GET /export?startDate=&endDate=&symbol=, streaming
// the fixed CSV column set for every CLOSED position in range.
func (h *ExportHandler) ExportCsv(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	start, err := parseDateBound(q.Get("startDate"))
	if err != nil {
		WriteError(w, err)
		return
	}
	end, err := parseDateBound(q.Get("endDate"))
	if err != nil {
		WriteError(w, err)
		return
	}
	symbol := q.Get("symbol")

	positions, err := h.broker.ExportCsvRange(start, end, symbol)
	if err != nil {
		WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="positions.csv"`)
	w.WriteHeader(http.StatusOK)

	if err := csvutil.WritePositions(w, positions); err != nil {
		utils.L().Error("csv export write failed", utils.Err(err))
	}
}

func parseDateBound(raw string) (*int64, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := utils.ParseISO8601(raw)
	if err != nil {
		return nil, apperr.Validationf("invalid date %q: %v", raw, err)
	}
	ms := t.UnixMilli()
	return &ms, nil
}
