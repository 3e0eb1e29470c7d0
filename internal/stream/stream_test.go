package stream

import (
	"context"
	stdjson "encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"papertrader/internal/models"
)

type fakePositionLister struct {
	positions []*models.Position
}

func (f *fakePositionLister) ListPositions(status *models.Status) ([]*models.Position, error) {
	return f.positions, nil
}

type fakePriceFeed struct {
	prices map[string]float64
}

func (f *fakePriceFeed) LastPrice(symbol string) (float64, bool) {
	p, ok := f.prices[symbol]
	return p, ok
}

type fakeEventSource struct {
	puListeners []func(models.PriceUpdate)
	trListeners []func(models.TriggerExecuted)
}

func (f *fakeEventSource) OnPriceUpdate(l func(models.PriceUpdate)) {
	f.puListeners = append(f.puListeners, l)
}
func (f *fakeEventSource) OnTriggerExecuted(l func(models.TriggerExecuted)) {
	f.trListeners = append(f.trListeners, l)
}

func TestHubBroadcastDropsOldestOnFullQueue(t *testing.T) {
	h := New(&fakePositionLister{}, &fakePriceFeed{}, &fakeEventSource{})

	c := &client{send: make(chan []byte, 2)}
	h.register(c)

	h.broadcast(frame{Type: "a"})
	h.broadcast(frame{Type: "b"})
	h.broadcast(frame{Type: "c"}) // queue was full at "a","b"; "a" should be dropped

	var got []string
	for i := 0; i < 2; i++ {
		select {
		case data := <-c.send:
			var f frame
			if err := stdjson.Unmarshal(data, &f); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			got = append(got, f.Type)
		default:
			t.Fatal("expected two queued frames")
		}
	}
	if len(got) != 2 || got[0] != "b" || got[1] != "c" {
		t.Errorf("expected oldest frame dropped, got %v", got)
	}
}

func TestHubUnregisterClosesSendChannel(t *testing.T) {
	h := New(&fakePositionLister{}, &fakePriceFeed{}, &fakeEventSource{})
	c := &client{send: make(chan []byte, 1)}
	h.register(c)
	if h.ClientCount() != 1 {
		t.Fatalf("expected 1 registered client, got %d", h.ClientCount())
	}

	h.unregister(c)
	if h.ClientCount() != 0 {
		t.Errorf("expected 0 clients after unregister, got %d", h.ClientCount())
	}
	if _, ok := <-c.send; ok {
		t.Error("expected send channel to be closed")
	}
}

func TestHubHandlePriceUpdateBroadcastsOnlyMatchingSymbol(t *testing.T) {
	positions := &fakePositionLister{positions: []*models.Position{
		{ID: 1, Symbol: "BTCUSDT", Side: models.SideLong, EntryPrice: 100, Qty: 1, Status: models.StatusOpen},
		{ID: 2, Symbol: "ETHUSDT", Side: models.SideLong, EntryPrice: 50, Qty: 1, Status: models.StatusOpen},
	}}
	h := New(positions, &fakePriceFeed{}, &fakeEventSource{})
	c := &client{send: make(chan []byte, 4)}
	h.register(c)

	h.handlePriceUpdate(models.PriceUpdate{Symbol: "BTCUSDT", MarkPrice: 110, Ts: time.Now()})

	select {
	case data := <-c.send:
		var f frame
		if err := stdjson.Unmarshal(data, &f); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if f.Type != "position-update" {
			t.Errorf("expected position-update frame, got %s", f.Type)
		}
	default:
		t.Fatal("expected one queued frame for the matching symbol")
	}

	select {
	case <-c.send:
		t.Fatal("expected no second frame for the non-matching symbol")
	default:
	}
}

func TestServeHTTPWritesConnectedThenInitialFrames(t *testing.T) {
	positions := &fakePositionLister{positions: []*models.Position{
		{ID: 1, Symbol: "BTCUSDT", Side: models.SideLong, EntryPrice: 100, Qty: 1, Status: models.StatusOpen},
	}}
	feed := &fakePriceFeed{prices: map[string]float64{"BTCUSDT": 105}}
	h := New(positions, feed, &fakeEventSource{})

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/stream", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		h.ServeHTTP(rec, req)
		close(done)
	}()

	// Give ServeHTTP a moment to write the connected and initial frames,
	// then cancel the request context so the handler returns.
	time.Sleep(20 * time.Millisecond)
	cancel()
	<-done

	body := rec.Body.String()
	if !strings.Contains(body, `"type":"connected"`) {
		t.Errorf("expected a connected frame, body: %s", body)
	}
	if !strings.Contains(body, `"type":"initial"`) {
		t.Errorf("expected an initial frame, body: %s", body)
	}
}
