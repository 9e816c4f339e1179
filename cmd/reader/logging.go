package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/use-agent/reader/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

// initLogger configures slog based on the LogConfig. Logs go to stderr so
// scrape output on stdout stays clean.
func initLogger(cfg config.LogConfig) {
	slog.SetDefault(slog.New(newLogHandler(cfg)))
}

func newLogHandler(cfg config.LogConfig) slog.Handler {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var out io.Writer = os.Stderr
	if cfg.File != "" {
		out = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			Compress:   true,
		}
	}

	if cfg.Format == "json" {
		return slog.NewJSONHandler(out, opts)
	}
	return slog.NewTextHandler(out, opts)
}
