package utils

// Structured logging on top of zap. Wraps *zap.Logger with domain field
// helpers (symbol, exchange, pair id, ...) and a process-wide logger for
// call sites that don't carry a *Logger through their signature.

import (
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogConfig controls level, encoding and output of a Logger.
type LogConfig struct {
	Level       string // debug, info, warn, error, fatal (default info)
	Format      string // json (default) or text
	Development bool   // human-friendly stacktraces, caller paths
	Output      string // file path; empty means stderr
}

// Logger wraps zap.Logger and keeps a sugared view for printf-style calls.
type Logger struct {
	*zap.Logger
	sugar *zap.SugaredLogger
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug", "DEBUG":
		return zapcore.DebugLevel
	case "info", "INFO":
		return zapcore.InfoLevel
	case "warn", "WARN", "warning", "WARNING":
		return zapcore.WarnLevel
	case "error", "ERROR":
		return zapcore.ErrorLevel
	case "fatal", "FATAL":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

func openSink(path string) zapcore.WriteSyncer {
	if path == "" {
		return zapcore.AddSync(os.Stderr)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: falling back to stderr, cannot open %q: %v\n", path, err)
		return zapcore.AddSync(os.Stderr)
	}
	return zapcore.AddSync(f)
}

// InitLogger builds a Logger from cfg. It never returns nil and never
// panics on a bad Output path; it falls back to stderr instead.
func InitLogger(cfg LogConfig) *Logger {
	level := parseLevel(cfg.Level)

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	if cfg.Development {
		encCfg = zap.NewDevelopmentEncoderConfig()
	}

	var encoder zapcore.Encoder
	if cfg.Format == "text" {
		encoder = zapcore.NewConsoleEncoder(encCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encCfg)
	}

	core := zapcore.NewCore(encoder, openSink(cfg.Output), level)

	var opts []zap.Option
	if cfg.Development {
		opts = append(opts, zap.Development(), zap.AddCaller())
	}

	zl := zap.New(core, opts...)
	return &Logger{Logger: zl, sugar: zl.Sugar()}
}

// With returns a new Logger carrying fields in addition to any the
// receiver already carries.
func (l *Logger) With(fields ...zap.Field) *Logger {
	zl := l.Logger.With(fields...)
	return &Logger{Logger: zl, sugar: zl.Sugar()}
}

func (l *Logger) WithComponent(name string) *Logger { return l.With(Component(name)) }
func (l *Logger) WithExchange(name string) *Logger  { return l.With(Exchange(name)) }
func (l *Logger) WithSymbol(symbol string) *Logger  { return l.With(Symbol(symbol)) }
func (l *Logger) WithPairID(id int) *Logger         { return l.With(PairID(id)) }

// Sugar returns the SugaredLogger view for printf-style calls.
func (l *Logger) Sugar() *zap.SugaredLogger {
	return l.sugar
}

// ============================================================
// Global logger
// ============================================================

var (
	globalMu     sync.Mutex
	globalLogger *Logger
)

// GetGlobalLogger returns the process-wide logger, lazily initializing it
// with defaults on first use.
func GetGlobalLogger() *Logger {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		zl := zap.New(zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
			zapcore.AddSync(os.Stderr),
			zapcore.InfoLevel,
		))
		globalLogger = &Logger{Logger: zl, sugar: zl.Sugar()}
	}
	return globalLogger
}

// InitGlobalLogger initializes and installs the process-wide logger.
func InitGlobalLogger(cfg LogConfig) *Logger {
	l := InitLogger(cfg)
	SetGlobalLogger(l)
	return l
}

// SetGlobalLogger installs l as the process-wide logger.
func SetGlobalLogger(l *Logger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = l
}

// L is shorthand for GetGlobalLogger.
func L() *Logger {
	return GetGlobalLogger()
}

func Debug(msg string, fields ...zap.Field) { GetGlobalLogger().Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { GetGlobalLogger().Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { GetGlobalLogger().Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { GetGlobalLogger().Error(msg, fields...) }

func Debugf(format string, args ...interface{}) { GetGlobalLogger().sugar.Debugf(format, args...) }
func Infof(format string, args ...interface{})  { GetGlobalLogger().sugar.Infof(format, args...) }
func Warnf(format string, args ...interface{})  { GetGlobalLogger().sugar.Warnf(format, args...) }
func Errorf(format string, args ...interface{}) { GetGlobalLogger().sugar.Errorf(format, args...) }

// ============================================================
// Field constructors
// ============================================================

func Exchange(name string) zap.Field  { return zap.String("exchange", name) }
func Symbol(symbol string) zap.Field  { return zap.String("symbol", symbol) }
func PairID(id int) zap.Field         { return zap.Int("pair_id", id) }
func OrderID(id string) zap.Field     { return zap.String("order_id", id) }
func Price(v float64) zap.Field       { return zap.Float64("price", v) }
func Volume(v float64) zap.Field      { return zap.Float64("volume", v) }
func Spread(v float64) zap.Field      { return zap.Float64("spread", v) }
func PNL(v float64) zap.Field         { return zap.Float64("pnl", v) }
func Side(side string) zap.Field      { return zap.String("side", side) }
func State(state string) zap.Field    { return zap.String("state", state) }
func Latency(ms float64) zap.Field    { return zap.Float64("latency_ms", ms) }
func RequestID(id string) zap.Field   { return zap.String("request_id", id) }
func UserID(id int) zap.Field         { return zap.Int("user_id", id) }
func Component(name string) zap.Field { return zap.String("component", name) }

// Re-exported thin wrappers so call sites only need this package.
func String(key, value string) zap.Field         { return zap.String(key, value) }
func Int(key string, value int) zap.Field         { return zap.Int(key, value) }
func Int64(key string, value int64) zap.Field     { return zap.Int64(key, value) }
func Float64(key string, value float64) zap.Field { return zap.Float64(key, value) }
func Bool(key string, value bool) zap.Field       { return zap.Bool(key, value) }
func Err(err error) zap.Field                     { return zap.Error(err) }
func Any(key string, value interface{}) zap.Field { return zap.Any(key, value) }

// fieldsToInterface flattens zap fields into alternating key/value pairs
// for the sugared-logger API, preserving field order.
func fieldsToInterface(fields []zap.Field) []interface{} {
	out := make([]interface{}, 0, len(fields)*2)
	for _, f := range fields {
		enc := zapcore.NewMapObjectEncoder()
		f.AddTo(enc)
		out = append(out, f.Key, enc.Fields[f.Key])
	}
	return out
}
