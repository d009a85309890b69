package fwbridge

import (
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/celskeggs/theseus-scratch/internal/fwmetrics"
)

// startWriter launches the goroutine pushing hub-broadcast packets out to a
// single client connection.
func (s *Server) startWriter(ctxDone <-chan struct{}, conn net.Conn, cl *Client, logger *slog.Logger) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			_ = conn.Close()
			s.Hub.Remove(cl)
			s.totalDisconnected.Add(1)
			logger.Info("fwbridge_client_disconnected")
		}()
		for {
			select {
			case packet := <-cl.Out:
				_ = conn.SetWriteDeadline(time.Now().Add(s.flushInterval + s.readDeadline))
				if err := writeFrame(conn, packet); err != nil {
					wrap := fmt.Errorf("%w: %v", ErrConnWrite, err)
					fwmetrics.IncError(mapErrToMetric(wrap))
					s.setError(wrap)
					return
				}
			case <-cl.Closed:
				return
			case <-ctxDone:
				return
			}
		}
	}()
}
