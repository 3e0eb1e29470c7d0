// Package validate checks the shape of inbound broker requests: symbol
// format, side, leverage range, size. Each check returns an apperr
// validation error verbatim to the caller.
package validate

import (
	"regexp"

	"papertrader/internal/apperr"
	"papertrader/internal/models"
)

// symbolPattern matches an uppercase, 5-20 alphanumeric exchange symbol.
var symbolPattern = regexp.MustCompile(`^[A-Z0-9]{5,20}$`)

// Symbol checks the exchange symbol format and that it ends in quote.
func Symbol(symbol, quote string) error {
	if !symbolPattern.MatchString(symbol) {
		return apperr.Validationf("symbol %q must be 5-20 uppercase alphanumeric characters", symbol)
	}
	if quote != "" && len(symbol) > len(quote) {
		if symbol[len(symbol)-len(quote):] != quote {
			return apperr.Validationf("symbol %q must end in quote asset %q", symbol, quote)
		}
	}
	return nil
}

// Side checks side is LONG or SHORT.
func Side(side models.Side) error {
	if side != models.SideLong && side != models.SideShort {
		return apperr.Validationf("side must be LONG or SHORT, got %q", side)
	}
	return nil
}

// Leverage checks leverage is in [1, 125].
func Leverage(leverage int) error {
	if leverage < 1 || leverage > 125 {
		return apperr.Validationf("leverage must be between 1 and 125, got %d", leverage)
	}
	return nil
}

// PositiveSize checks sizeValue > 0.
func PositiveSize(sizeValue float64) error {
	if sizeValue <= 0 {
		return apperr.Validationf("sizeValue must be > 0, got %v", sizeValue)
	}
	return nil
}

// PositivePrice checks a price is > 0. Used for limitPrice on LIMIT entries.
func PositivePrice(label string, price float64) error {
	if price <= 0 {
		return apperr.Validationf("%s must be > 0, got %v", label, price)
	}
	return nil
}

// CreatePositionRequest runs every check Broker.CreatePosition requires
// before touching the store.
func CreatePositionRequest(req models.CreatePositionRequest, defaultQuote string) error {
	if err := Symbol(req.Symbol, defaultQuote); err != nil {
		return err
	}
	if err := Side(req.Side); err != nil {
		return err
	}
	if err := Leverage(req.Leverage); err != nil {
		return err
	}
	if err := PositiveSize(req.SizeValue); err != nil {
		return err
	}
	if req.EntryType == models.EntryTypeLimit {
		if req.LimitPrice == nil {
			return apperr.Validation("limitPrice is required for LIMIT entries")
		}
		if err := PositivePrice("limitPrice", *req.LimitPrice); err != nil {
			return err
		}
	}
	return nil
}
