package main

import (
	"fmt"
	"log/slog"

	"github.com/celskeggs/theseus-scratch/internal/fwexchange"
	"github.com/celskeggs/theseus-scratch/internal/fwtransport"
)

// initExchange constructs the exchange and attaches it to the configured
// link. It returns an error instead of exiting the process so the caller can
// decide how to report it.
func initExchange(cfg *appConfig, l *slog.Logger) (*fwexchange.Exchange, error) {
	mode, err := cfg.linkModeValue()
	if err != nil {
		return nil, err
	}
	ex := fwexchange.New(fwexchange.WithLogger(l))
	opts := fwtransport.Options{Baud: cfg.baud, ReadTimeout: cfg.linkReadTO}
	if err := ex.Attach(cfg.linkPath, mode, opts); err != nil {
		return nil, fmt.Errorf("attach link %s (%s): %w", cfg.linkPath, mode, err)
	}
	l.Info("link_attach", "path", cfg.linkPath, "mode", mode.String(), "baud", cfg.baud)
	return ex, nil
}
