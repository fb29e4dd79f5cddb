// Package observability wires structured logging and Prometheus metrics.
package observability

import (
	"log/slog"
	"os"
)

// InitLogger sets the process-wide default logger: JSON in production,
// text otherwise.
func InitLogger(production bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}

	var handler slog.Handler
	if production {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
