// Package supervisor is the sole initializer of every other component:
// it opens the store, builds the price feed, wires the trigger engine
// and broker, starts the live stream hub and the HTTP server, and owns
// an ordered, context-bounded shutdown of all of them. Nothing else in
// this module calls store.Open, feed.New or engine.New.
package supervisor

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"papertrader/internal/api"
	"papertrader/internal/broker"
	"papertrader/internal/config"
	"papertrader/internal/engine"
	"papertrader/internal/feed"
	"papertrader/internal/models"
	"papertrader/internal/store"
	"papertrader/internal/stream"
	"papertrader/pkg/utils"
)

// Supervisor owns the process lifecycle: boot order, HTTP serving, and
// graceful shutdown order.
type Supervisor struct {
	cfg *config.Config

	store *store.Store
	feed  *feed.Feed
	rest  *feed.RESTClient
	eng   *engine.Engine
	brk   *broker.Broker
	hub   *stream.Hub

	server *http.Server

	streamStop chan struct{}
}

// New builds a Supervisor from cfg without starting anything yet.
func New(cfg *config.Config) *Supervisor {
	return &Supervisor{cfg: cfg, streamStop: make(chan struct{})}
}

// Boot runs the startup sequence: open the store, run migrations (inside
// store.Open), load/seed settings, rebuild the trigger engine's
// in-memory index and price feed subscriptions from every OPEN
// position, then start serving HTTP.
func (s *Supervisor) Boot(ctx context.Context) error {
	st, err := store.Open(s.cfg.Store.DatabasePath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	s.store = st

	if _, err := s.store.GetSettings(); err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	s.rest = feed.NewRESTClient(feed.RESTConfig{
		BaseURL:        "https://fapi.binance.com",
		ConnectTimeout: 5 * time.Second,
		TotalTimeout:   10 * time.Second,
		MaxRetries:     s.cfg.REST.MaxRetries,
		RetryBackoff:   s.cfg.REST.RetryBackoff,
		RateLimit:      10,
		RateBurst:      20,
	})

	s.feed = feed.New(feed.Config{
		WSURL:          s.cfg.Feed.WSURL,
		ConnectTimeout: 10 * time.Second,
		PingInterval:   s.cfg.Feed.PingInterval,
		MaxRetries:     s.cfg.Feed.ReconnectMaxRetries,
	})

	s.eng = engine.New(s.store, s.feed, s.takerFeeRate)
	s.feed.AddListener(func(t feed.Tick) { s.eng.OnTick(t.Symbol, t.Price, t.Ts) })

	s.brk = broker.New(s.store, s.feed, s.rest, s.eng.Index(), "USDT")
	s.hub = stream.New(s.store, s.feed, s.eng)

	if err := s.restoreOpenPositions(); err != nil {
		return fmt.Errorf("restore open positions: %w", err)
	}

	if err := s.feed.Connect(); err != nil {
		utils.L().Warn("initial price feed connect failed, reconnect loop engaged", utils.Err(err))
	}

	go s.hub.Run(s.streamStop)

	deps := &api.Dependencies{Broker: s.brk, Stream: s.hub, MetricsEnabled: s.cfg.Metrics.Enabled}
	router := api.SetupRoutes(deps)

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // /stream holds connections open indefinitely
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		utils.L().Info("server listening", utils.String("addr", s.server.Addr))
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			utils.L().Error("server failed", utils.Err(err))
		}
	}()

	return nil
}

// takerFeeRate is read fresh by the TriggerEngine on every close.
func (s *Supervisor) takerFeeRate() float64 {
	settings, err := s.store.GetSettings()
	if err != nil {
		utils.L().Warn("read settings for taker fee failed, using last-known default", utils.Err(err))
		return models.DefaultSettings().TakerFee
	}
	return settings.TakerFee
}

// restoreOpenPositions reloads every OPEN position into the engine's
// index and resubscribes its symbol, before the server accepts traffic,
// so a restart never drops a live position.
func (s *Supervisor) restoreOpenPositions() error {
	open := models.StatusOpen
	positions, err := s.store.ListPositions(&open)
	if err != nil {
		return err
	}

	symbols := make(map[string]struct{})
	for _, p := range positions {
		s.eng.Index().Add(p.Symbol, p.ID, p.Side, p.SL, p.TP, p.Qty)
		symbols[p.Symbol] = struct{}{}
	}
	for symbol := range symbols {
		s.feed.Subscribe(symbol)
	}

	utils.L().Info("restored open positions",
		utils.Int("positions", len(positions)), utils.Int("symbols", len(symbols)))
	return nil
}

// Shutdown runs the teardown order: stop accepting new sessions, close
// the price feed, let in-flight store writes finish (the store's own
// single-writer discipline makes this immediate), close the store.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	close(s.streamStop)

	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			utils.L().Error("http server shutdown error", utils.Err(err))
		}
	}

	if s.feed != nil {
		if err := s.feed.Close(); err != nil {
			utils.L().Error("price feed close error", utils.Err(err))
		}
	}

	if s.rest != nil {
		s.rest.Close()
	}

	if s.store != nil {
		if err := s.store.Close(); err != nil {
			return fmt.Errorf("close store: %w", err)
		}
	}

	return nil
}
