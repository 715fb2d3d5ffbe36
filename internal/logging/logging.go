// Package logging provides structured logging functionality.
package logging

import (
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
		FilePath:   filepath.Join(home, ".config", "swing-trader", "logs", "trader.log"),
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
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	}

	if cfg.File {
		logDir := filepath.Dir(cfg.FilePath)
		if err := os.MkdirAll(logDir, 0755); err == nil {
			writers = append(writers, &lumberjack.Logger{
				Filename:   cfg.FilePath,
				MaxSize:    cfg.MaxSize,
				MaxBackups: cfg.MaxBackups,
				MaxAge:     cfg.MaxAge,
				Compress:   true,
			})
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

	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	return zerolog.New(writer).With().Timestamp().Logger()
}

// SetDebugLevel raises the global log level to debug.
func SetDebugLevel() {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
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

// LogEntry logs an admitted entry.
func LogEntry(logger zerolog.Logger, strategy, symbol string, direction string, qty int, price float64) {
	logger.Info().
		Str("event", "entry").
		Str("strategy", strategy).
		Str("symbol", symbol).
		Str("direction", direction).
		Int("quantity", qty).
		Float64("price", price).
		Msg("Position opened")
}

// LogExit logs a position close.
func LogExit(logger zerolog.Logger, strategy, symbol, reason string, qty int, price, pnl float64) {
	logger.Info().
		Str("event", "exit").
		Str("strategy", strategy).
		Str("symbol", symbol).
		Str("reason", reason).
		Int("quantity", qty).
		Float64("price", price).
		Float64("pnl", pnl).
		Msg("Position closed")
}

// LogReject logs a terminal admission rejection.
func LogReject(logger zerolog.Logger, strategy, symbol, reason string) {
	logger.Debug().
		Str("event", "reject").
		Str("strategy", strategy).
		Str("symbol", symbol).
		Str("reason", reason).
		Msg("Signal rejected")
}

// LogTierChange logs a drawdown tier transition.
func LogTierChange(logger zerolog.Logger, scope string, from, to int, drawdown float64) {
	logger.Warn().
		Str("event", "tier_change").
		Str("scope", scope).
		Int("from", from).
		Int("to", to).
		Float64("drawdown", drawdown).
		Msg("Risk tier changed")
}
