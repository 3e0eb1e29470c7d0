// Package csvutil writes the position-export CSV. It is a thin wrapper
// over encoding/csv, which already implements RFC 4180 quoting (comma
// and quote cells double-quote-wrapped, embedded quotes doubled); this
// package only pins the exact column order and header text so the
// export handler has one place to change if that contract ever moves.
package csvutil

import (
	"encoding/csv"
	"io"
	"strconv"

	"papertrader/internal/models"
	"papertrader/pkg/utils"
)

// Header is the exact column order of the position export.
var Header = []string{
	"ID", "Symbol", "Side", "Quantity", "Entry Price", "Close Price",
	"Entry Time", "Close Time", "Realized PnL", "Fees Open", "Fees Close",
	"Funding PnL", "Leverage", "Notes",
}

// WritePositions writes Header followed by one row per position, in the
// order given, to w. Positions are expected to already be CLOSED (the
// Close* fields are rendered empty otherwise).
func WritePositions(w io.Writer, positions []*models.Position) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(Header); err != nil {
		return err
	}

	for _, p := range positions {
		if err := cw.Write(row(p)); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func row(p *models.Position) []string {
	return []string{
		strconv.FormatInt(p.ID, 10),
		p.Symbol,
		string(p.Side),
		strconv.FormatFloat(p.Qty, 'f', -1, 64),
		strconv.FormatFloat(p.EntryPrice, 'f', -1, 64),
		floatOrEmpty(p.ClosePrice),
		utils.FormatISO8601Millis(p.EntryTime),
		timeOrEmpty(p.CloseTime),
		floatOrEmpty(p.RealizedPnl),
		strconv.FormatFloat(p.FeesOpen, 'f', -1, 64),
		floatOrEmpty(p.FeesClose),
		floatOrEmpty(p.FundingPnl),
		strconv.Itoa(p.Leverage),
		p.Notes,
	}
}

func floatOrEmpty(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func timeOrEmpty(ms *int64) string {
	if ms == nil {
		return ""
	}
	return utils.FormatISO8601Millis(*ms)
}
