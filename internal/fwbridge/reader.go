package fwbridge

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/celskeggs/theseus-scratch/internal/fwmetrics"
)

// startReader launches the goroutine that decodes length-prefixed packets
// from one client connection and injects them into the exchange.
func (s *Server) startReader(ctxDone <-chan struct{}, conn net.Conn, cl *Client, logger *slog.Logger) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() { _ = conn.Close() }()
		for {
			_ = conn.SetReadDeadline(time.Now().Add(s.readDeadline))
			packet, err := readFrame(conn)
			if err != nil {
				if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
					return
				}
				if ne, ok := err.(net.Error); ok && ne.Timeout() {
					continue
				}
				wrap := fmt.Errorf("%w: %v", ErrConnRead, err)
				fwmetrics.IncError(mapErrToMetric(wrap))
				s.setError(wrap)
				logger.Warn("fwbridge_client_read_error", "error", wrap)
				return
			}
			if err := s.Exchange.WritePacket(packet); err != nil {
				logger.Warn("fwbridge_inject_failed", "error", err)
			}
			select {
			case <-ctxDone:
				return
			default:
			}
		}
	}()
}
