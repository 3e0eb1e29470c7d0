package engine

import (
	"sort"
	"sync"

	"papertrader/internal/models"
)

// trackedPosition is the slice of a Position the engine needs to evaluate
// a tick without round-tripping to the Store.
type trackedPosition struct {
	id     int64
	side   models.Side
	sl     *float64
	tp     *float64
	qty    float64
}

// Index is the engine's in-memory symbol -> open-position view. It exists
// so a tick never has to hit the Store just to discover which positions
// care about it; the Store remains the source of truth and every closure
// still goes through its guarded UPDATE.
type Index struct {
	mu   sync.RWMutex
	byID map[string]map[int64]*trackedPosition
}

// NewIndex returns an empty Index.
func NewIndex() *Index {
	return &Index{byID: make(map[string]map[int64]*trackedPosition)}
}

// Add registers or replaces an OPEN position's tracked fields.
func (idx *Index) Add(symbol string, id int64, side models.Side, sl, tp *float64, qty float64) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	m, ok := idx.byID[symbol]
	if !ok {
		m = make(map[int64]*trackedPosition)
		idx.byID[symbol] = m
	}
	m[id] = &trackedPosition{id: id, side: side, sl: sl, tp: tp, qty: qty}
}

// Remove drops a position from the index, e.g. once it closes or is
// deleted. Returns true if the symbol now has no tracked positions left.
func (idx *Index) Remove(symbol string, id int64) (symbolEmpty bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	m, ok := idx.byID[symbol]
	if !ok {
		return true
	}
	delete(m, id)
	if len(m) == 0 {
		delete(idx.byID, symbol)
		return true
	}
	return false
}

// Positions returns a snapshot of the tracked positions for symbol, sorted
// by id ascending, per the engine's evaluation order contract.
func (idx *Index) Positions(symbol string) []*trackedPosition {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	m := idx.byID[symbol]
	if len(m) == 0 {
		return nil
	}
	out := make([]*trackedPosition, 0, len(m))
	for _, tp := range m {
		out = append(out, tp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}
