package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds every tunable the server reads at startup.
type Config struct {
	Server  ServerConfig
	Store   StoreConfig
	Feed    FeedConfig
	REST    RESTConfig
	Logging LoggingConfig
	Metrics MetricsConfig
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host string
	Port int
}

// StoreConfig points at the embedded database file.
type StoreConfig struct {
	DatabasePath string
}

// FeedConfig tunes the PriceFeed WebSocket session.
type FeedConfig struct {
	WSURL              string
	PingInterval       time.Duration
	ReconnectMaxRetries int
}

// RESTConfig tunes the Binance REST fallback client's retry behavior.
type RESTConfig struct {
	MaxRetries   int
	RetryBackoff time.Duration
}

// LoggingConfig controls the zap-backed logger.
type LoggingConfig struct {
	Level  string
	Format string
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool
}

// Load reads configuration from the environment, falling back to spec
// defaults for anything unset.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnvAsInt("SERVER_PORT", 8080),
		},
		Store: StoreConfig{
			DatabasePath: getEnv("DATABASE_PATH", "./papertrader.db"),
		},
		Feed: FeedConfig{
			WSURL:               getEnv("BINANCE_WS_URL", "wss://fstream.binance.com/ws"),
			PingInterval:        getEnvAsDuration("WS_PING_INTERVAL", 30*time.Second),
			ReconnectMaxRetries: getEnvAsInt("WS_RECONNECT_MAX_ATTEMPTS", 10),
		},
		REST: RESTConfig{
			MaxRetries:   getEnvAsInt("REST_MAX_RETRIES", 3),
			RetryBackoff: getEnvAsDuration("REST_RETRY_BACKOFF", 500*time.Millisecond),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvAsBool("METRICS_ENABLED", true),
		},
	}

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return nil, fmt.Errorf("SERVER_PORT must be a valid port, got %d", cfg.Server.Port)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
