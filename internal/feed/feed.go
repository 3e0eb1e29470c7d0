// Package feed maintains the single long-lived WebSocket session to
// Binance's mark-price stream, normalizes ticks, and exposes a last-price
// cache (read by the broker) plus a broadcast to registered listeners
// (the trigger engine). A small state machine tracks connection health and drives
// reconnection with exponential backoff when the socket drops.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"papertrader/pkg/utils"
)

// Config controls reconnect timing and the upstream WebSocket URL.
type Config struct {
	WSURL          string
	ConnectTimeout time.Duration
	PingInterval   time.Duration
	MaxRetries     int
}

// DefaultConfig: 30s ping, 10 reconnect attempts, backoff capped at 30s
// starting from 1s.
func DefaultConfig() Config {
	return Config{
		WSURL:          "wss://fstream.binance.com/ws",
		ConnectTimeout: 10 * time.Second,
		PingInterval:   30 * time.Second,
		MaxRetries:     10,
	}
}

// State is the PriceFeed session's connection state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
	StateReconnecting
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateReconnecting:
		return "reconnecting"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Tick is a normalized mark-price update, symbol always uppercase.
type Tick struct {
	Symbol string
	Price  float64
	Ts     int64
}

// Listener receives every accepted tick. Implementations must not block.
type Listener func(Tick)

type subscribeFrame struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int64    `json:"id"`
}

// pingFrame is the application-level keepalive sent every PingInterval.
// It rides the same JSON connection as subscribe/unsubscribe frames
// instead of a WebSocket control-frame ping, so liveness only depends on
// the write succeeding, not on a control-frame pong handler.
type pingFrame struct {
	Method string `json:"method"`
	ID     int64  `json:"id"`
}

type wireMessage struct {
	Symbol string `json:"s"`
	Price  string `json:"p"`
	EventT int64  `json:"E"`
	Result interface{} `json:"result"`
	ID     interface{} `json:"id"`
}

// Feed is the PriceFeed (C2) implementation.
type Feed struct {
	cfg Config

	conn   *websocket.Conn
	connMu sync.RWMutex

	state      int32 // atomic State
	retryCount int32 // atomic
	connGen    int32 // atomic, bumped on every successful dial

	closeChan chan struct{}
	closeOnce sync.Once

	symbols   map[string]struct{}
	symbolsMu sync.RWMutex

	lastPrice   map[string]float64
	lastPriceMu sync.RWMutex

	listenersMu sync.RWMutex
	listeners   []Listener

	maxReached func()
	frameID    int64
}

// New creates a PriceFeed bound to cfg but does not connect yet; call
// Connect to start the session.
func New(cfg Config) *Feed {
	return &Feed{
		cfg:       cfg,
		closeChan: make(chan struct{}),
		symbols:   make(map[string]struct{}),
		lastPrice: make(map[string]float64),
	}
}

// OnMaxReconnectAttemptsReached registers the terminal-abandon callback.
func (f *Feed) OnMaxReconnectAttemptsReached(fn func()) {
	f.maxReached = fn
}

// AddListener registers a tick broadcast target.
func (f *Feed) AddListener(l Listener) {
	f.listenersMu.Lock()
	f.listeners = append(f.listeners, l)
	f.listenersMu.Unlock()
}

func (f *Feed) GetState() State {
	return State(atomic.LoadInt32(&f.state))
}

func (f *Feed) IsConnected() bool {
	return f.GetState() == StateOpen
}

// Connect dials the upstream session and starts the read/ping pumps.
func (f *Feed) Connect() error {
	select {
	case <-f.closeChan:
		return fmt.Errorf("feed is closed")
	default:
	}

	atomic.StoreInt32(&f.state, int32(StateConnecting))

	if err := f.dial(); err != nil {
		atomic.StoreInt32(&f.state, int32(StateDisconnected))
		go f.reconnectLoop()
		return err
	}

	atomic.StoreInt32(&f.state, int32(StateOpen))
	atomic.StoreInt32(&f.retryCount, 0)

	gen := atomic.AddInt32(&f.connGen, 1)
	go f.readPump(gen)
	go f.pingPump(gen)

	utils.L().Info("price feed connected", utils.String("url", f.cfg.WSURL))

	return nil
}

func (f *Feed) dial() error {
	ctx, cancel := context.WithTimeout(context.Background(), f.cfg.ConnectTimeout)
	defer cancel()

	dialer := websocket.Dialer{HandshakeTimeout: f.cfg.ConnectTimeout}

	conn, _, err := dialer.DialContext(ctx, f.cfg.WSURL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	f.connMu.Lock()
	f.conn = conn
	f.connMu.Unlock()

	if err := f.resubscribeAll(); err != nil {
		utils.L().Warn("resubscribe after connect failed", utils.Err(err))
	}

	return nil
}

// Subscribe adds symbol to the remembered set. If the session is open the
// subscribe frame is sent immediately; otherwise it is queued for the next
// successful connect.
func (f *Feed) Subscribe(symbol string) {
	symbol = strings.ToUpper(symbol)

	f.symbolsMu.Lock()
	_, already := f.symbols[symbol]
	f.symbols[symbol] = struct{}{}
	f.symbolsMu.Unlock()

	if already {
		return
	}

	if f.IsConnected() {
		if err := f.sendSubscribe([]string{symbol}, "SUBSCRIBE"); err != nil {
			utils.L().Warn("subscribe send failed", utils.Symbol(symbol), utils.Err(err))
		}
	}
}

// Unsubscribe removes symbol from the remembered set and, if connected,
// sends an immediate unsubscribe frame.
func (f *Feed) Unsubscribe(symbol string) {
	symbol = strings.ToUpper(symbol)

	f.symbolsMu.Lock()
	_, existed := f.symbols[symbol]
	delete(f.symbols, symbol)
	f.symbolsMu.Unlock()

	if !existed {
		return
	}

	f.lastPriceMu.Lock()
	delete(f.lastPrice, symbol)
	f.lastPriceMu.Unlock()

	if f.IsConnected() {
		if err := f.sendSubscribe([]string{symbol}, "UNSUBSCRIBE"); err != nil {
			utils.L().Warn("unsubscribe send failed", utils.Symbol(symbol), utils.Err(err))
		}
	}
}

func (f *Feed) sendSubscribe(symbols []string, method string) error {
	params := make([]string, len(symbols))
	for i, s := range symbols {
		params[i] = strings.ToLower(s) + "@markPrice"
	}

	id := atomic.AddInt64(&f.frameID, 1)
	frame := subscribeFrame{Method: method, Params: params, ID: id}

	f.connMu.RLock()
	conn := f.conn
	f.connMu.RUnlock()

	if conn == nil {
		return fmt.Errorf("no connection")
	}
	return conn.WriteJSON(frame)
}

func (f *Feed) resubscribeAll() error {
	f.symbolsMu.RLock()
	symbols := make([]string, 0, len(f.symbols))
	for s := range f.symbols {
		symbols = append(symbols, s)
	}
	f.symbolsMu.RUnlock()

	if len(symbols) == 0 {
		return nil
	}
	return f.sendSubscribe(symbols, "SUBSCRIBE")
}

// LastPrice returns the most recently observed mark price for symbol.
func (f *Feed) LastPrice(symbol string) (float64, bool) {
	f.lastPriceMu.RLock()
	defer f.lastPriceMu.RUnlock()
	p, ok := f.lastPrice[strings.ToUpper(symbol)]
	return p, ok
}

// readPump owns one connection generation's read loop. gen is the value
// returned by the dial that started this pump; handleDisconnect ignores
// calls whose gen no longer matches the live connection, so a stale pump
// unwinding after a newer one has already taken over cannot tear down
// the replacement connection.
func (f *Feed) readPump(gen int32) {
	defer f.handleDisconnect(gen, nil)

	for {
		select {
		case <-f.closeChan:
			return
		default:
		}

		f.connMu.RLock()
		conn := f.conn
		f.connMu.RUnlock()

		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			f.handleDisconnect(gen, err)
			return
		}

		f.handleMessage(message)
	}
}

func (f *Feed) handleMessage(raw []byte) {
	var msg wireMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		utils.L().Warn("price feed message parse failed", utils.Err(err))
		return
	}

	if msg.Symbol == "" || msg.Price == "" {
		// Subscription ack or other control message; nothing to do.
		return
	}

	price, err := strconv.ParseFloat(msg.Price, 64)
	if err != nil {
		utils.L().Warn("price feed price parse failed", utils.String("raw", msg.Price), utils.Err(err))
		return
	}

	symbol := strings.ToUpper(msg.Symbol)
	tick := Tick{Symbol: symbol, Price: price, Ts: msg.EventT}

	f.lastPriceMu.Lock()
	f.lastPrice[symbol] = price
	f.lastPriceMu.Unlock()

	f.listenersMu.RLock()
	listeners := make([]Listener, len(f.listeners))
	copy(listeners, f.listeners)
	f.listenersMu.RUnlock()

	for _, l := range listeners {
		l(tick)
	}
}

func (f *Feed) pingPump(gen int32) {
	ticker := time.NewTicker(f.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-f.closeChan:
			return
		case <-ticker.C:
			if f.GetState() != StateOpen {
				return
			}

			f.connMu.RLock()
			conn := f.conn
			f.connMu.RUnlock()

			if conn == nil {
				return
			}

			conn.SetWriteDeadline(time.Now().Add(f.cfg.ConnectTimeout))
			id := atomic.AddInt64(&f.frameID, 1)
			if err := conn.WriteJSON(pingFrame{Method: "PING", ID: id}); err != nil {
				f.handleDisconnect(gen, err)
				return
			}
		}
	}
}

func (f *Feed) handleDisconnect(gen int32, err error) {
	select {
	case <-f.closeChan:
		return
	default:
	}

	if atomic.LoadInt32(&f.connGen) != gen {
		// A newer connection has already replaced the one this pump was
		// reading; nothing to tear down.
		return
	}

	state := f.GetState()
	if state == StateReconnecting || state == StateTerminated {
		return
	}

	atomic.StoreInt32(&f.state, int32(StateReconnecting))

	f.connMu.Lock()
	if f.conn != nil {
		f.conn.Close()
		f.conn = nil
	}
	f.connMu.Unlock()

	if err != nil {
		utils.L().Warn("price feed disconnected", utils.Err(err))
	}

	go f.reconnectLoop()
}

// reconnectLoop retries the dial with backoff delay = min(30s, 2^(n-1)*1s)
// for attempt n starting at 1, abandoning after MaxRetries consecutive
// failures.
func (f *Feed) reconnectLoop() {
	for {
		select {
		case <-f.closeChan:
			return
		default:
		}

		attempt := atomic.AddInt32(&f.retryCount, 1)

		if f.cfg.MaxRetries > 0 && int(attempt) > f.cfg.MaxRetries {
			utils.L().Error("price feed max reconnect attempts reached",
				utils.Int("attempts", f.cfg.MaxRetries))
			atomic.StoreInt32(&f.state, int32(StateDisconnected))
			if f.maxReached != nil {
				f.maxReached()
			}
			return
		}

		delay := backoffDelay(int(attempt))

		select {
		case <-f.closeChan:
			return
		case <-time.After(delay):
		}

		if err := f.dial(); err != nil {
			utils.L().Warn("price feed reconnect failed",
				utils.Int("attempt", int(attempt)), utils.Err(err))
			continue
		}

		atomic.StoreInt32(&f.state, int32(StateOpen))
		atomic.StoreInt32(&f.retryCount, 0)

		gen := atomic.AddInt32(&f.connGen, 1)
		go f.readPump(gen)
		go f.pingPump(gen)

		utils.L().Info("price feed reconnected", utils.Int("attempt", int(attempt)))
		return
	}
}

func backoffDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := time.Duration(1<<uint(attempt-1)) * time.Second
	if d > 30*time.Second {
		return 30 * time.Second
	}
	return d
}

// Close permanently shuts down the session and suppresses reconnect.
func (f *Feed) Close() error {
	f.closeOnce.Do(func() {
		close(f.closeChan)
	})

	atomic.StoreInt32(&f.state, int32(StateTerminated))

	f.connMu.Lock()
	defer f.connMu.Unlock()

	if f.conn != nil {
		err := f.conn.Close()
		f.conn = nil
		return err
	}
	return nil
}

// RetryCount returns the current consecutive-failure count.
func (f *Feed) RetryCount() int {
	return int(atomic.LoadInt32(&f.retryCount))
}
