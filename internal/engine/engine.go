// Package engine evaluates incoming mark-price ticks against every open
// position indexed under that symbol, closing positions whose stop-loss
// or take-profit level has been crossed and unsubscribing a symbol once
// its last open position closes.
package engine

import (
	"sync"

	"papertrader/internal/apperr"
	"papertrader/internal/calc"
	"papertrader/internal/models"
	"papertrader/pkg/utils"

	"go.uber.org/zap"
)

// Closer is the subset of Store the engine needs to apply a trigger.
type Closer interface {
	ClosePosition(id int64, closePrice, closeFee float64, event models.EventType, ts int64) (*models.Position, error)
}

// Unsubscriber is the subset of PriceFeed the engine needs once a symbol
// has no OPEN positions left.
type Unsubscriber interface {
	Unsubscribe(symbol string)
}

// FeeRate returns the current taker fee rate, read fresh on every close
// so a Settings update takes effect on the very next trigger.
type FeeRate func() float64

// PriceUpdateListener receives every accepted tick.
type PriceUpdateListener func(models.PriceUpdate)

// TriggerListener receives every successful closure.
type TriggerListener func(models.TriggerExecuted)

// Engine evaluates incoming ticks against the Index and closes positions
// that cross their stop-loss or take-profit.
type Engine struct {
	index   *Index
	store   Closer
	feed    Unsubscriber
	takerFee FeeRate
	log     *zap.Logger

	puMu        sync.RWMutex
	puListeners []PriceUpdateListener

	trMu        sync.RWMutex
	trListeners []TriggerListener
}

// New builds an Engine around store (applies closures) and feed
// (unsubscribes symbols with no remaining OPEN position). takerFee is
// read fresh on every close so a Settings update applies immediately.
func New(store Closer, feed Unsubscriber, takerFee FeeRate) *Engine {
	return &Engine{
		index:    NewIndex(),
		store:    store,
		feed:     feed,
		takerFee: takerFee,
		log:      utils.L().Named("engine"),
	}
}

// Index exposes the engine's symbol index so the Broker/Supervisor can
// populate and maintain it as positions are created, closed or deleted.
func (e *Engine) Index() *Index { return e.index }

// OnPriceUpdate registers a listener invoked synchronously for every
// accepted tick. Listeners must not block.
func (e *Engine) OnPriceUpdate(l PriceUpdateListener) {
	e.puMu.Lock()
	defer e.puMu.Unlock()
	e.puListeners = append(e.puListeners, l)
}

// OnTriggerExecuted registers a listener invoked synchronously for every
// successful closure. Listeners must not block.
func (e *Engine) OnTriggerExecuted(l TriggerListener) {
	e.trMu.Lock()
	defer e.trMu.Unlock()
	e.trListeners = append(e.trListeners, l)
}

// OnTick evaluates one (symbol, markPrice) tick against every tracked OPEN
// position for that symbol, in ascending id order, and closes any whose
// stop-loss or take-profit is crossed. Per-position failures are logged
// and do not stop evaluation of the remaining positions.
func (e *Engine) OnTick(symbol string, markPrice float64, ts int64) {
	positions := e.index.Positions(symbol)
	e.broadcastPriceUpdate(models.PriceUpdate{Symbol: symbol, MarkPrice: markPrice, Ts: utils.FromUnixMillis(ts)})

	for _, p := range positions {
		if calc.ShouldTriggerSL(p.side, markPrice, p.sl) {
			e.closeAndEmit(symbol, p, markPrice, ts, models.EventSLTriggered)
			continue
		}
		if calc.ShouldTriggerTP(p.side, markPrice, p.tp) {
			e.closeAndEmit(symbol, p, markPrice, ts, models.EventTPTriggered)
		}
	}

	if e.index.Positions(symbol) == nil {
		e.feed.Unsubscribe(symbol)
	}
}

// closeAndEmit applies a single trigger closure. It returns true when the
// position was actually closed by this call (as opposed to a no-op race
// loss), matching the "closePosition -> null is already handled" rule.
func (e *Engine) closeAndEmit(symbol string, p *trackedPosition, markPrice float64, ts int64, event models.EventType) bool {
	notional := calc.Notional(p.qty, markPrice)
	fee := calc.Fee(notional, e.takerFee())

	closed, err := e.store.ClosePosition(p.id, markPrice, fee, event, ts)
	if err != nil {
		if !apperr.Is(err, apperr.KindConflict) {
			e.log.Error("close position failed", zap.Int64("positionId", p.id), zap.Error(err))
		}
		return false
	}
	if closed == nil {
		// Already handled by a concurrent tick; this one is a no-op.
		return false
	}

	e.index.Remove(symbol, p.id)

	realized := 0.0
	if closed.RealizedPnl != nil {
		realized = *closed.RealizedPnl
	}
	e.broadcastTrigger(models.TriggerExecuted{
		PositionID:  p.id,
		Event:       event,
		ClosePrice:  markPrice,
		RealizedPnl: realized,
		Ts:          utils.FromUnixMillis(ts),
	})
	return true
}

func (e *Engine) broadcastPriceUpdate(pu models.PriceUpdate) {
	e.puMu.RLock()
	defer e.puMu.RUnlock()
	for _, l := range e.puListeners {
		l(pu)
	}
}

func (e *Engine) broadcastTrigger(tr models.TriggerExecuted) {
	e.trMu.RLock()
	defer e.trMu.RUnlock()
	for _, l := range e.trListeners {
		l(tr)
	}
}
