// Package broker implements the public operations the HTTP layer calls
// on behalf of the UI. It owns the interaction between Store, Calc,
// PriceFeed and the trigger engine's in-memory index, and runs
// validation (pkg/validate) and fee/price computation (internal/calc)
// before each of its Store writes.
package broker

import (
	"context"
	"strings"

	"papertrader/internal/apperr"
	"papertrader/internal/calc"
	"papertrader/internal/models"
	"papertrader/pkg/utils"
	"papertrader/pkg/validate"
)

// Store is the subset of internal/store.Store the Broker needs.
type Store interface {
	CreatePosition(req models.CreatePositionRequest, entryPrice, openFee float64, ts int64, eventPayload string) (*models.Position, error)
	GetPosition(id int64) (*models.Position, error)
	ListPositions(status *models.Status) ([]*models.Position, error)
	UpdateSLTP(id int64, req models.UpdateSLTPRequest, ts int64) (*models.Position, error)
	ClosePosition(id int64, closePrice, closeFee float64, event models.EventType, ts int64) (*models.Position, error)
	DeletePosition(id int64) (bool, error)
	ListEvents(positionID *int64, limit int) ([]*models.Event, error)
	ListPositionsInRange(start, end *int64, symbol string) ([]*models.Position, error)
	GetSettings() (*models.Settings, error)
	UpdateSettings(req models.UpdateSettingsRequest) (*models.Settings, error)
}

// PriceFeed is the subset of internal/feed.Feed the Broker needs.
type PriceFeed interface {
	Subscribe(symbol string)
	LastPrice(symbol string) (float64, bool)
}

// RESTFallback fetches the current mark price when PriceFeed has no
// cached tick yet (a fresh symbol, or a feed that just reconnected).
type RESTFallback interface {
	TickerPrice(ctx context.Context, symbol string) (float64, error)
}

// Index is the subset of internal/engine.Index the Broker maintains so a
// create/close/delete is reflected in the trigger engine's next tick.
type Index interface {
	Add(symbol string, id int64, side models.Side, sl, tp *float64, qty float64)
	Remove(symbol string, id int64) (symbolEmpty bool)
}

// Broker wires Store, PriceFeed, the REST fallback and the engine Index
// together behind the position lifecycle operations: create, close,
// adjust SL/TP, delete, and the read-side stats and listing calls.
type Broker struct {
	store        Store
	feed         PriceFeed
	rest         RESTFallback
	index        Index
	defaultQuote string
}

// New builds a Broker. defaultQuote is the symbol suffix validate.Symbol
// checks against, typically "USDT".
func New(store Store, feed PriceFeed, rest RESTFallback, index Index, defaultQuote string) *Broker {
	return &Broker{store: store, feed: feed, rest: rest, index: index, defaultQuote: defaultQuote}
}

// CreatePosition validates the request, resolves the entry price (LIMIT
// uses the given price; MARKET reads the feed cache or falls back to
// REST), converts percent SL/TP to absolute prices, charges the opening
// taker fee, persists the position and subscribes PriceFeed to its symbol.
func (b *Broker) CreatePosition(ctx context.Context, req models.CreatePositionRequest) (*models.Position, error) {
	req.Symbol = upper(req.Symbol)
	if err := validate.CreatePositionRequest(req, b.defaultQuote); err != nil {
		return nil, err
	}

	entryPrice, err := b.resolveEntryPrice(ctx, req)
	if err != nil {
		return nil, err
	}

	settings, err := b.store.GetSettings()
	if err != nil {
		return nil, err
	}

	sl, tp := resolveSLTP(req, entryPrice)

	sizeValue := req.SizeValue
	qty := sizeValue
	if req.SizeMode == models.SizeModeUSDT {
		qty = sizeValue / entryPrice
	}
	openFee := calc.Fee(calc.Notional(qty, entryPrice), settings.TakerFee)

	req.SL, req.TP = sl, tp

	ts := utils.UnixMillis()
	pos, err := b.store.CreatePosition(req, entryPrice, openFee, ts, "{}")
	if err != nil {
		return nil, err
	}

	b.index.Add(pos.Symbol, pos.ID, pos.Side, pos.SL, pos.TP, pos.Qty)
	b.feed.Subscribe(pos.Symbol)

	return pos, nil
}

// resolveEntryPrice picks the entry price for a new position: LIMIT
// uses the caller-supplied limitPrice; MARKET reads the feed's cache
// first and only pays the REST round trip on a miss.
func (b *Broker) resolveEntryPrice(ctx context.Context, req models.CreatePositionRequest) (float64, error) {
	if req.EntryType == models.EntryTypeLimit {
		return *req.LimitPrice, nil
	}
	return b.currentPrice(ctx, upper(req.Symbol))
}

func (b *Broker) currentPrice(ctx context.Context, symbol string) (float64, error) {
	if price, ok := b.feed.LastPrice(symbol); ok {
		return price, nil
	}
	price, err := b.rest.TickerPrice(ctx, symbol)
	if err != nil {
		return 0, apperr.Upstream("fetch current price", err)
	}
	return price, nil
}

// resolveSLTP converts PERCENT-mode SL/TP into absolute prices off
// entryPrice; PRICE-mode values pass through unchanged.
func resolveSLTP(req models.CreatePositionRequest, entryPrice float64) (sl, tp *float64) {
	sl, tp = req.SL, req.TP

	if req.SLMode == models.SLTPModePercent && req.SL != nil {
		v := calc.SLPriceFromPercent(req.Side, entryPrice, *req.SL)
		sl = &v
	}
	if req.TPMode == models.SLTPModePercent && req.TP != nil {
		v := calc.TPPriceFromPercent(req.Side, entryPrice, *req.TP)
		tp = &v
	}
	return sl, tp
}

// ClosePositionManual closes id at the current price (feed cache, else
// REST), charging the taker close fee. Idempotent: closing an
// already-CLOSED position surfaces apperr.ErrAlreadyClosed.
func (b *Broker) ClosePositionManual(ctx context.Context, id int64) (*models.Position, error) {
	existing, err := b.store.GetPosition(id)
	if err != nil {
		return nil, err
	}
	if !existing.IsOpen() {
		return nil, apperr.ErrAlreadyClosed
	}

	closePrice, err := b.currentPrice(ctx, existing.Symbol)
	if err != nil {
		return nil, err
	}

	settings, err := b.store.GetSettings()
	if err != nil {
		return nil, err
	}
	closeFee := calc.Fee(calc.Notional(existing.Qty, closePrice), settings.TakerFee)

	closed, err := b.store.ClosePosition(id, closePrice, closeFee, models.EventManualClose, utils.UnixMillis())
	if err != nil {
		return nil, err
	}
	if closed == nil {
		return nil, apperr.ErrAlreadyClosed
	}

	b.index.Remove(closed.Symbol, closed.ID)
	return closed, nil
}

// UpdateSLTP adjusts SL/TP on an OPEN position and keeps the engine's
// in-memory index in sync so the very next tick sees the new levels.
func (b *Broker) UpdateSLTP(id int64, req models.UpdateSLTPRequest) (*models.Position, error) {
	pos, err := b.store.UpdateSLTP(id, req, utils.UnixMillis())
	if err != nil {
		return nil, err
	}
	b.index.Add(pos.Symbol, pos.ID, pos.Side, pos.SL, pos.TP, pos.Qty)
	return pos, nil
}

// DeletePosition hard-deletes a position (cascading to its fills/events)
// and, if it was still OPEN, drops it from the engine's index too.
func (b *Broker) DeletePosition(id int64) (bool, error) {
	pos, err := b.store.GetPosition(id)
	if err != nil {
		return false, err
	}
	if pos.IsOpen() {
		b.index.Remove(pos.Symbol, pos.ID)
	}
	return b.store.DeletePosition(id)
}

// GetPosition reads a single position.
func (b *Broker) GetPosition(id int64) (*models.Position, error) {
	return b.store.GetPosition(id)
}

// ListPositions lists positions, optionally filtered by status.
func (b *Broker) ListPositions(status *models.Status) ([]*models.Position, error) {
	return b.store.ListPositions(status)
}

// GetEvents returns the audit log, optionally scoped to one position.
func (b *Broker) GetEvents(positionID *int64, limit int) ([]*models.Event, error) {
	return b.store.ListEvents(positionID, limit)
}

// ExportCsvRange returns CLOSED positions in [start, end] for symbol
// (either bound/symbol optional), ready to be rendered by pkg/csvutil.
func (b *Broker) ExportCsvRange(start, end *int64, symbol string) ([]*models.Position, error) {
	return b.store.ListPositionsInRange(start, end, symbol)
}

// GetSettings returns the single settings row.
func (b *Broker) GetSettings() (*models.Settings, error) {
	return b.store.GetSettings()
}

// UpdateSettings applies a partial settings update.
func (b *Broker) UpdateSettings(req models.UpdateSettingsRequest) (*models.Settings, error) {
	return b.store.UpdateSettings(req)
}

// GetStats computes the aggregate portfolio view: counts, total realized
// PnL, win rate, average R-multiple (over closed positions with a
// non-null SL and non-zero risk), best/worst symbol by summed realized
// PnL, and current balance.
func (b *Broker) GetStats() (*models.Stats, error) {
	all, err := b.store.ListPositions(nil)
	if err != nil {
		return nil, err
	}
	settings, err := b.store.GetSettings()
	if err != nil {
		return nil, err
	}

	stats := &models.Stats{}
	var wins int
	var rSum float64
	var rCount int
	symbolOrder := []string{}
	symbolPnl := map[string]float64{}

	for _, p := range all {
		stats.TotalPositions++
		if p.IsOpen() {
			stats.OpenPositions++
			continue
		}
		stats.ClosedPositions++

		realized := 0.0
		if p.RealizedPnl != nil {
			realized = *p.RealizedPnl
		}
		stats.TotalRealizedPnl += realized
		if realized > 0 {
			wins++
		}

		if p.SL != nil {
			if r, ok := calc.RMultiple(realized, p.Qty, p.EntryPrice, *p.SL); ok {
				rSum += r
				rCount++
			}
		}

		if _, seen := symbolPnl[p.Symbol]; !seen {
			symbolOrder = append(symbolOrder, p.Symbol)
		}
		symbolPnl[p.Symbol] += realized
	}

	if stats.ClosedPositions > 0 {
		stats.WinRate = (float64(wins) / float64(stats.ClosedPositions)) * 100
	}
	if rCount > 0 {
		stats.AvgRMultiple = rSum / float64(rCount)
	}

	best, worst := bestWorstSymbol(symbolOrder, symbolPnl)
	if best != "" {
		stats.BestSymbol, stats.BestSymbolPnl = best, symbolPnl[best]
	}
	if worst != "" {
		stats.WorstSymbol, stats.WorstSymbolPnl = worst, symbolPnl[worst]
	}

	stats.CurrentBalance = settings.BaseBalance + stats.TotalRealizedPnl
	return stats, nil
}

// bestWorstSymbol picks the highest/lowest summed-PnL symbol, breaking
// ties by insertion order: the first symbol encountered wins a tie.
func bestWorstSymbol(order []string, pnl map[string]float64) (best, worst string) {
	for _, sym := range order {
		if best == "" || pnl[sym] > pnl[best] {
			best = sym
		}
		if worst == "" || pnl[sym] < pnl[worst] {
			worst = sym
		}
	}
	return best, worst
}

func upper(s string) string {
	return strings.ToUpper(s)
}
