// Package logging provides structured logging for the backtest engine:
// a console+rotated-file zerolog logger, and a set of backtest-specific
// structured log helpers (signals, fills, exits, rejections, run
// completion).
package logging

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string
	Console    bool
	File       bool
	FilePath   string
	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days
}

// DefaultLogConfig returns the default logging configuration.
func DefaultLogConfig() LogConfig {
	home, _ := os.UserHomeDir()
	return LogConfig{
		Level:      "info",
		Console:    true,
		File:       true,
		FilePath:   filepath.Join(home, ".config", "hkbacktest", "logs", "hkbacktest.log"),
		MaxSize:    100,
		MaxBackups: 7,
		MaxAge:     30,
	}
}

// NewLogger creates a new logger with default configuration.
func NewLogger() zerolog.Logger {
	return NewLoggerWithConfig(DefaultLogConfig())
}

// NewLoggerWithConfig creates a new logger with the specified configuration.
func NewLoggerWithConfig(cfg LogConfig) zerolog.Logger {
	var writers []io.Writer

	if cfg.Console {
		consoleWriter := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
			FormatLevel: func(i interface{}) string {
				if ll, ok := i.(string); ok {
					switch ll {
					case "debug":
						return "\033[36mDBG\033[0m"
					case "info":
						return "\033[32mINF\033[0m"
					case "warn":
						return "\033[33mWRN\033[0m"
					case "error":
						return "\033[31mERR\033[0m"
					default:
						return ll
					}
				}
				return "???"
			},
		}
		writers = append(writers, consoleWriter)
	}

	if cfg.File {
		logDir := filepath.Dir(cfg.FilePath)
		if err := os.MkdirAll(logDir, 0755); err == nil {
			fileWriter := &lumberjack.Logger{
				Filename:   cfg.FilePath,
				MaxSize:    cfg.MaxSize,
				MaxBackups: cfg.MaxBackups,
				MaxAge:     cfg.MaxAge,
				Compress:   true,
			}
			writers = append(writers, fileWriter)
		}
	}

	var writer io.Writer
	switch len(writers) {
	case 0:
		writer = os.Stdout
	case 1:
		writer = writers[0]
	default:
		writer = zerolog.MultiLevelWriter(writers...)
	}

	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

	return zerolog.New(writer).With().Timestamp().Caller().Logger()
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// SetDebugLevel sets the global log level to debug.
func SetDebugLevel() { zerolog.SetGlobalLevel(zerolog.DebugLevel) }

// SetInfoLevel sets the global log level to info.
func SetInfoLevel() { zerolog.SetGlobalLevel(zerolog.InfoLevel) }

// ContextKey is the type for context keys.
type ContextKey string

const (
	LoggerKey    ContextKey = "logger"
	RequestIDKey ContextKey = "request_id"
	SymbolKey    ContextKey = "symbol"
)

// WithLogger adds a logger to the context.
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// FromContext retrieves the logger from context.
func FromContext(ctx context.Context) zerolog.Logger {
	if logger, ok := ctx.Value(LoggerKey).(zerolog.Logger); ok {
		return logger
	}
	return zerolog.Nop()
}

// WithSymbol adds a symbol field to the logger.
func WithSymbol(logger zerolog.Logger, symbol string) zerolog.Logger {
	return logger.With().Str("symbol", symbol).Logger()
}

// WithStrategy adds a strategy tag field to the logger.
func WithStrategy(logger zerolog.Logger, strategy string) zerolog.Logger {
	return logger.With().Str("strategy", strategy).Logger()
}

// WithRequestID adds a backtest request id field to the logger.
func WithRequestID(logger zerolog.Logger, requestID string) zerolog.Logger {
	return logger.With().Str("request_id", requestID).Logger()
}

// LogSignal logs a signal emitted by the signal engine for a given bar.
func LogSignal(logger zerolog.Logger, symbol, strategy, side string, strength float64, ts time.Time) {
	logger.Info().
		Str("event", "signal").
		Str("symbol", symbol).
		Str("strategy", strategy).
		Str("side", side).
		Float64("strength", strength).
		Time("bar_time", ts).
		Msg("signal generated")
}

// LogFill logs an order fill (entry or exit) in the simulator.
func LogFill(logger zerolog.Logger, symbol, side string, qty int, price, commission float64, ts time.Time) {
	logger.Info().
		Str("event", "fill").
		Str("symbol", symbol).
		Str("side", side).
		Int("quantity", qty).
		Float64("price", price).
		Float64("commission", commission).
		Time("fill_time", ts).
		Msg("order filled")
}

// LogExit logs a position exit, naming which precedence rule fired.
func LogExit(logger zerolog.Logger, symbol, reason string, pnl float64, ts time.Time) {
	logger.Info().
		Str("event", "exit").
		Str("symbol", symbol).
		Str("reason", reason).
		Float64("pnl", pnl).
		Time("exit_time", ts).
		Msg("position closed")
}

// LogRejectedSignal logs a signal absorbed by the risk validator chain
// (spec 7: RISK_REJECTED is not fatal, just counted).
func LogRejectedSignal(logger zerolog.Logger, symbol, rule string, current, limit float64, ts time.Time) {
	logger.Warn().
		Str("event", "risk_rejected").
		Str("symbol", symbol).
		Str("rule", rule).
		Float64("current", current).
		Float64("limit", limit).
		Time("bar_time", ts).
		Msg("signal rejected by risk validator")
}

// LogRunComplete logs the summary of a finished backtest run.
func LogRunComplete(logger zerolog.Logger, symbol string, success bool, trades int, finalEquity float64, elapsed time.Duration) {
	event := logger.Info()
	if !success {
		event = logger.Warn()
	}
	event.
		Str("event", "run_complete").
		Str("symbol", symbol).
		Bool("success", success).
		Int("trades", trades).
		Float64("final_equity", finalEquity).
		Dur("elapsed", elapsed).
		Msg("backtest run complete")
}

// LogDataQuality logs the data pipeline's quality-gate outcome for a run.
func LogDataQuality(logger zerolog.Logger, symbol string, score float64, grade string, usable bool) {
	event := logger.Info()
	if !usable {
		event = logger.Warn()
	}
	event.
		Str("event", "data_quality").
		Str("symbol", symbol).
		Float64("score", score).
		Str("grade", grade).
		Bool("usable", usable).
		Msg("data quality report")
}
