// Package fwlog provides the structured logger shared by the exchange
// core and the bridge daemon, backed by a swappable atomic-global
// *slog.Logger.
package fwlog

import (
	"io"
	"log/slog"
	"os"
	"sync/atomic"
)

// component tags every log line this package produces, so a fakewire
// bridge's output is distinguishable in a combined log stream from
// whatever else is sharing its process or host.
const component = "fakewire"

var logger atomic.Pointer[slog.Logger]

func init() {
	l := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})).With("component", component)
	logger.Store(l)
}

// L returns the current global logger.
func L() *slog.Logger { return logger.Load() }

// Set replaces the global logger.
func Set(l *slog.Logger) {
	if l != nil {
		logger.Store(l)
	}
}

// New creates a logger with the given level, format ("text" or "json"),
// and optional writer (defaults to stderr).
func New(format string, level slog.Leveler, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	var h slog.Handler
	switch format {
	case "json":
		h = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	default:
		h = slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	}
	return slog.New(h).With("component", component)
}
