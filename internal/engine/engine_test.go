package engine

import (
	"sync"
	"testing"

	"papertrader/internal/models"
)

type fakeCloser struct {
	mu    sync.Mutex
	calls int
	// closeFn lets a test control what ClosePosition returns for a given id.
	closeFn func(id int64, closePrice, closeFee float64, event models.EventType, ts int64) (*models.Position, error)
}

func (f *fakeCloser) ClosePosition(id int64, closePrice, closeFee float64, event models.EventType, ts int64) (*models.Position, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.closeFn(id, closePrice, closeFee, event, ts)
}

type fakeUnsubscriber struct {
	mu           sync.Mutex
	unsubscribed []string
}

func (f *fakeUnsubscriber) Unsubscribe(symbol string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubscribed = append(f.unsubscribed, symbol)
}

func ptr(v float64) *float64 { return &v }

func TestOnTickTPFires(t *testing.T) {
	closer := &fakeCloser{closeFn: func(id int64, closePrice, closeFee float64, event models.EventType, ts int64) (*models.Position, error) {
		pnl := 99.16
		return &models.Position{ID: id, RealizedPnl: &pnl}, nil
	}}
	unsub := &fakeUnsubscriber{}
	e := New(closer, unsub, func() float64 { return 0.0004 })
	e.Index().Add("BTCUSDT", 1, models.SideLong, ptr(95.0), ptr(110.0), 10.0)

	var gotTrigger models.TriggerExecuted
	triggered := false
	e.OnTriggerExecuted(func(tr models.TriggerExecuted) {
		triggered = true
		gotTrigger = tr
	})

	e.OnTick("BTCUSDT", 110.0, 2000)

	if !triggered {
		t.Fatal("expected triggerExecuted to fire")
	}
	if gotTrigger.Event != models.EventTPTriggered {
		t.Errorf("expected TP_TRIGGERED, got %s", gotTrigger.Event)
	}
	if closer.calls != 1 {
		t.Errorf("expected exactly one close call, got %d", closer.calls)
	}
	if len(unsub.unsubscribed) != 1 || unsub.unsubscribed[0] != "BTCUSDT" {
		t.Errorf("expected unsubscribe from BTCUSDT once symbol empties, got %v", unsub.unsubscribed)
	}
}

func TestOnTickSLTakesPriorityOverTP(t *testing.T) {
	closer := &fakeCloser{closeFn: func(id int64, closePrice, closeFee float64, event models.EventType, ts int64) (*models.Position, error) {
		pnl := -4.0816
		return &models.Position{ID: id, RealizedPnl: &pnl}, nil
	}}
	unsub := &fakeUnsubscriber{}
	e := New(closer, unsub, func() float64 { return 0.0004 })
	// Misconfigured: sl=95, tp=94, both predicates hold at mark=94.
	e.Index().Add("BTCUSDT", 1, models.SideLong, ptr(95.0), ptr(94.0), 1.0)

	var events []models.EventType
	e.OnTriggerExecuted(func(tr models.TriggerExecuted) { events = append(events, tr.Event) })

	e.OnTick("BTCUSDT", 94.0, 1000)

	if len(events) != 1 || events[0] != models.EventSLTriggered {
		t.Errorf("expected exactly one SL_TRIGGERED, got %v", events)
	}
	if closer.calls != 1 {
		t.Errorf("expected exactly one close call (SL only, TP skipped), got %d", closer.calls)
	}
}

func TestOnTickNoOpCloseIsNotDoubleEmitted(t *testing.T) {
	closer := &fakeCloser{closeFn: func(id int64, closePrice, closeFee float64, event models.EventType, ts int64) (*models.Position, error) {
		return nil, nil // already closed by a concurrent tick
	}}
	unsub := &fakeUnsubscriber{}
	e := New(closer, unsub, func() float64 { return 0.0004 })
	e.Index().Add("ETHUSDT", 7, models.SideShort, ptr(52.0), ptr(45.0), 2.0)

	emitted := 0
	e.OnTriggerExecuted(func(models.TriggerExecuted) { emitted++ })

	e.OnTick("ETHUSDT", 52.0, 1500)

	if emitted != 0 {
		t.Errorf("expected no triggerExecuted for a no-op close, got %d", emitted)
	}
	// The position stays indexed since the engine never learned it closed
	// from this call; a later close (or a delete) removes it from elsewhere.
	if got := e.Index().Positions("ETHUSDT"); len(got) != 1 {
		t.Errorf("expected position to remain indexed after a no-op close, got %d", len(got))
	}
}

func TestOnTickIgnoresPositionsOnOtherSymbols(t *testing.T) {
	closer := &fakeCloser{closeFn: func(id int64, closePrice, closeFee float64, event models.EventType, ts int64) (*models.Position, error) {
		t.Fatalf("ClosePosition should not be called for an unrelated symbol")
		return nil, nil
	}}
	unsub := &fakeUnsubscriber{}
	e := New(closer, unsub, func() float64 { return 0.0004 })
	e.Index().Add("BTCUSDT", 1, models.SideLong, ptr(95.0), ptr(110.0), 10.0)

	e.OnTick("ETHUSDT", 3000.0, 1000)

	if closer.calls != 0 {
		t.Errorf("expected zero close calls, got %d", closer.calls)
	}
}

func TestIndexPositionsSortedByID(t *testing.T) {
	idx := NewIndex()
	idx.Add("BTCUSDT", 3, models.SideLong, nil, nil, 1)
	idx.Add("BTCUSDT", 1, models.SideLong, nil, nil, 1)
	idx.Add("BTCUSDT", 2, models.SideLong, nil, nil, 1)

	got := idx.Positions("BTCUSDT")
	if len(got) != 3 || got[0].id != 1 || got[1].id != 2 || got[2].id != 3 {
		t.Errorf("expected ascending id order, got %+v", got)
	}
}

func TestIndexRemoveReportsSymbolEmpty(t *testing.T) {
	idx := NewIndex()
	idx.Add("BTCUSDT", 1, models.SideLong, nil, nil, 1)

	if empty := idx.Remove("BTCUSDT", 1); !empty {
		t.Error("expected symbol to be empty after removing its last position")
	}
	if got := idx.Positions("BTCUSDT"); got != nil {
		t.Errorf("expected no positions left, got %v", got)
	}
}
