package feed

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"papertrader/pkg/ratelimit"
	"papertrader/pkg/retry"
)

// RESTConfig controls the Binance ticker-price fallback client used when
// PriceFeed has no cached tick for a symbol (MARKET entries, manual close).
type RESTConfig struct {
	BaseURL        string
	ConnectTimeout time.Duration
	TotalTimeout   time.Duration
	MaxRetries     int
	RetryBackoff   time.Duration
	RateLimit      float64
	RateBurst      float64
}

// DefaultRESTConfig matches Binance's public futures ticker endpoint and a
// conservative request budget.
func DefaultRESTConfig() RESTConfig {
	return RESTConfig{
		BaseURL:        "https://fapi.binance.com",
		ConnectTimeout: 5 * time.Second,
		TotalTimeout:   10 * time.Second,
		MaxRetries:     3,
		RateLimit:      10,
		RateBurst:      20,
	}
}

// RESTClient is the pooled HTTP client backing the REST fallback, wired
// to a single fixed Binance base URL and wrapped with the shared retry
// and rate-limit packages instead of bespoke timeout plumbing.
type RESTClient struct {
	client  *http.Client
	cfg     RESTConfig
	limiter *ratelimit.RateLimiter
}

// NewRESTClient builds a client with connection pooling tuned for
// low-latency trading calls.
func NewRESTClient(cfg RESTConfig) *RESTClient {
	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout, KeepAlive: 30 * time.Second}

	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialer.DialContext(ctx, network, addr)
		},
		MaxIdleConns:        50,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
		TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
	}

	return &RESTClient{
		client:  &http.Client{Transport: transport, Timeout: cfg.TotalTimeout},
		cfg:     cfg,
		limiter: ratelimit.NewRateLimiter(cfg.RateLimit, cfg.RateBurst),
	}
}

type tickerResponse struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
	Time   int64  `json:"time"`
}

// TickerPrice fetches the current price for symbol, retrying transient
// failures with backoff and respecting the configured request rate.
func (c *RESTClient) TickerPrice(ctx context.Context, symbol string) (float64, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("rate limit wait: %w", err)
	}

	url := fmt.Sprintf("%s/fapi/v1/ticker/price?symbol=%s", c.cfg.BaseURL, symbol)

	retryCfg := retry.DefaultConfig()
	retryCfg.MaxRetries = c.cfg.MaxRetries
	retryCfg.RetryIf = retry.IsRetryable
	if c.cfg.RetryBackoff > 0 {
		retryCfg.InitialDelay = c.cfg.RetryBackoff
	}

	return retry.DoWithResult(ctx, func() (float64, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return 0, retry.Permanent(err)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return 0, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return 0, err
		}

		if resp.StatusCode != http.StatusOK {
			return 0, fmt.Errorf("ticker price: status %d: %s", resp.StatusCode, string(body))
		}

		var parsed tickerResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return 0, retry.Permanent(fmt.Errorf("decode ticker response: %w", err))
		}

		price, err := strconv.ParseFloat(parsed.Price, 64)
		if err != nil {
			return 0, retry.Permanent(fmt.Errorf("parse ticker price %q: %w", parsed.Price, err))
		}

		return price, nil
	}, retryCfg)
}

// Close releases pooled idle connections.
func (c *RESTClient) Close() {
	if transport, ok := c.client.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
}
