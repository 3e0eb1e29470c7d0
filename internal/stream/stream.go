// Package stream implements fan-out delivery of engine events to
// connected UI clients over Server-Sent Events. A Hub tracks registered
// clients behind a bounded per-client outbound channel, so a slow
// client drops its oldest queued frame instead of blocking the
// broadcaster, and serves each connection as a `data: <json>\n\n` frame
// stream using an http.Flusher.
package stream

import (
	"bytes"
	"fmt"
	"net/http"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"

	"papertrader/internal/calc"
	"papertrader/internal/models"
	"papertrader/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// clientSendBufferSize is the bounded per-client outbound queue depth.
// When it fills, the oldest queued frame is dropped so one slow client
// can never stall delivery to the others.
const clientSendBufferSize = 64

const heartbeatInterval = 30 * time.Second

// frame is the envelope every SSE message carries; Type selects how the
// UI interprets Payload.
type frame struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

var bufferPool = sync.Pool{
	New: func() interface{} { return bytes.NewBuffer(make([]byte, 0, 512)) },
}

// PositionLister is the subset of internal/broker.Broker (or
// internal/store.Store) LiveStream needs to build the initial snapshot.
type PositionLister interface {
	ListPositions(status *models.Status) ([]*models.Position, error)
}

// PriceFeed is the subset of internal/feed.Feed LiveStream needs to
// derive markPrice/unrealizedPnl/pnlPercent for the initial snapshot.
type PriceFeed interface {
	LastPrice(symbol string) (float64, bool)
}

// EventSource is the subset of internal/engine.Engine LiveStream
// subscribes to.
type EventSource interface {
	OnPriceUpdate(func(models.PriceUpdate))
	OnTriggerExecuted(func(models.TriggerExecuted))
}

// client is one connected SSE session's outbound queue.
type client struct {
	send chan []byte
}

// Hub is the fan-out point: a mutex-guarded client set whose broadcast
// feeds N bounded per-client queues.
type Hub struct {
	positions PositionLister
	feed      PriceFeed

	mu      sync.RWMutex
	clients map[*client]struct{}
}

// New builds a Hub and subscribes it to engine's two broadcast channels.
// Call Run in its own goroutine before serving any /stream request.
func New(positions PositionLister, feed PriceFeed, engine EventSource) *Hub {
	h := &Hub{
		positions: positions,
		feed:      feed,
		clients:   make(map[*client]struct{}),
	}
	engine.OnPriceUpdate(h.handlePriceUpdate)
	engine.OnTriggerExecuted(h.handleTriggerExecuted)
	return h
}

// Run drives the 30s heartbeat. It blocks until stop is closed.
func (h *Hub) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			h.broadcast(frame{Type: "heartbeat"})
		}
	}
}

// ClientCount reports the number of currently connected sessions.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// broadcast encodes msg once (via the pooled buffer) and pushes the
// resulting bytes to every connected client, dropping the oldest queued
// frame for any client whose queue is already full rather than blocking
// or disconnecting it.
func (h *Hub) broadcast(msg frame) {
	data, err := encode(msg)
	if err != nil {
		utils.L().Warn("stream encode failed", utils.Err(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		h.enqueue(c, data)
	}
}

func (h *Hub) enqueue(c *client, data []byte) {
	select {
	case c.send <- data:
		return
	default:
	}
	// Queue full: drop the oldest frame and push the new one.
	select {
	case <-c.send:
	default:
	}
	select {
	case c.send <- data:
	default:
	}
}

func encode(msg frame) ([]byte, error) {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer bufferPool.Put(buf)

	if err := json.NewEncoder(buf).Encode(msg); err != nil {
		return nil, err
	}
	// Encode appends a newline; drop it so each frame ends in exactly "\n\n".
	encoded := bytes.TrimSuffix(buf.Bytes(), []byte("\n"))
	out := make([]byte, len(encoded))
	copy(out, encoded)
	return out, nil
}

func (h *Hub) handlePriceUpdate(pu models.PriceUpdate) {
	positions, err := h.positions.ListPositions(statusPtr(models.StatusOpen))
	if err != nil {
		utils.L().Warn("stream: list open positions for price update failed", utils.Err(err))
		return
	}
	for _, p := range positions {
		if p.Symbol != pu.Symbol {
			continue
		}
		h.broadcast(frame{Type: "position-update", Payload: positionUpdatePayloadOf(p, pu.MarkPrice)})
	}
}

func (h *Hub) handleTriggerExecuted(tr models.TriggerExecuted) {
	h.broadcast(frame{Type: "trigger-executed", Payload: tr})
}

// positionUpdatePayload is the per-position push frame sent whenever a
// tick moves an open position's mark price.
type positionUpdatePayload struct {
	ID            int64   `json:"id"`
	Symbol        string  `json:"symbol"`
	Side          string  `json:"side"`
	MarkPrice     float64 `json:"markPrice"`
	UnrealizedPnl float64 `json:"unrealizedPnl"`
	PnlPercent    float64 `json:"pnlPercent"`
}

func positionUpdatePayloadOf(p *models.Position, mark float64) positionUpdatePayload {
	unrealized := calc.UnrealizedPnL(p.Side, p.EntryPrice, mark, p.Qty)
	return positionUpdatePayload{
		ID:            p.ID,
		Symbol:        p.Symbol,
		Side:          string(p.Side),
		MarkPrice:     mark,
		UnrealizedPnl: unrealized,
		PnlPercent:    calc.PnLPercent(unrealized, p.Qty, p.EntryPrice),
	}
}

func statusPtr(s models.Status) *models.Status { return &s }

// ServeHTTP implements the /stream endpoint: connected frame, initial
// snapshot, then a live feed of position-update/trigger-executed frames
// until the client disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	c := &client{send: make(chan []byte, clientSendBufferSize)}
	h.register(c)
	defer h.unregister(c)

	if err := h.writeFrame(w, frame{Type: "connected"}); err != nil {
		return
	}
	flusher.Flush()

	if err := h.writeInitialSnapshot(w); err != nil {
		return
	}
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (h *Hub) writeFrame(w http.ResponseWriter, f frame) error {
	data, err := encode(f)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}

// initialPositionPayload is the shape for each OPEN position in the
// initial snapshot: markPrice/unrealizedPnl/pnlPercent are present only
// when the price feed has a cached tick for that symbol.
type initialPositionPayload struct {
	ID            int64    `json:"id"`
	Symbol        string   `json:"symbol"`
	Side          string   `json:"side"`
	Qty           float64  `json:"qty"`
	EntryPrice    float64  `json:"entryPrice"`
	Leverage      int      `json:"leverage"`
	EntryTime     int64    `json:"entryTime"`
	SL            *float64 `json:"sl,omitempty"`
	TP            *float64 `json:"tp,omitempty"`
	MarkPrice     *float64 `json:"markPrice,omitempty"`
	UnrealizedPnl *float64 `json:"unrealizedPnl,omitempty"`
	PnlPercent    *float64 `json:"pnlPercent,omitempty"`
}

func (h *Hub) writeInitialSnapshot(w http.ResponseWriter) error {
	open := models.StatusOpen
	positions, err := h.positions.ListPositions(&open)
	if err != nil {
		utils.L().Warn("stream: list open positions for initial snapshot failed", utils.Err(err))
		positions = nil
	}

	payloads := make([]initialPositionPayload, 0, len(positions))
	for _, p := range positions {
		ip := initialPositionPayload{
			ID: p.ID, Symbol: p.Symbol, Side: string(p.Side), Qty: p.Qty,
			EntryPrice: p.EntryPrice, Leverage: p.Leverage, EntryTime: p.EntryTime,
			SL: p.SL, TP: p.TP,
		}
		if mark, ok := h.feed.LastPrice(p.Symbol); ok {
			unrealized := calc.UnrealizedPnL(p.Side, p.EntryPrice, mark, p.Qty)
			pct := calc.PnLPercent(unrealized, p.Qty, p.EntryPrice)
			ip.MarkPrice, ip.UnrealizedPnl, ip.PnlPercent = &mark, &unrealized, &pct
		}
		payloads = append(payloads, ip)
	}

	return h.writeFrame(w, frame{Type: "initial", Payload: payloads})
}
