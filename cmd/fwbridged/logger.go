package main

import (
	"log/slog"
	"os"

	"github.com/celskeggs/theseus-scratch/internal/fwlog"
)

func setupLogger(format, level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	l := fwlog.New(format, lvl, os.Stderr).With("app", "fwbridged")
	fwlog.Set(l)
	return l
}
