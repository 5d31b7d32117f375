// Package logging configures structured logging via log/slog.
//
// Pipeline stages log through loggers carrying the supplier id and stage so
// that one supplier's run can be traced end to end.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Setup installs the default slog logger.
//
// Level values: "debug", "info", "warn", "error" (default: "info")
// Format values: "text", "json" (default: "text")
func Setup(level, format string) {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ForSupplier returns a logger bound to one supplier's run.
func ForSupplier(id int64, name string) *slog.Logger {
	return slog.Default().With("supplier_id", id, "supplier", name)
}

// Stage narrows a supplier logger to one pipeline stage.
func Stage(logger *slog.Logger, stage string) *slog.Logger {
	return logger.With("stage", stage)
}
