package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/celskeggs/theseus-scratch/internal/fwmetrics"
)

func startMetricsLogger(ctx context.Context, interval time.Duration, l *slog.Logger, wg *sync.WaitGroup) {
	if interval <= 0 {
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				snap := fwmetrics.Snap()
				l.Info("link_health_snapshot",
					"bytes_rx", snap.BytesRx,
					"bytes_tx", snap.BytesTx,
					"packets_rx", snap.PacketsRx,
					"packets_tx", snap.PacketsTx,
					"truncated", snap.Truncated,
					"codec_errors", snap.CodecErrors,
					"resets", snap.Resets,
					"handshakes_ok", snap.HandshakesOK,
					"errors", snap.Errors,
				)
			case <-ctx.Done():
				return
			}
		}
	}()
}
