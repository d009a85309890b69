package fwtransport

import (
	"fmt"
	"sync/atomic"

	"github.com/tarm/serial"
)

// serialTransport adapts github.com/tarm/serial to Transport. Shutdown is
// cooperative: it relies on the configured read timeout to notice the
// closed flag within one poll interval.
type serialTransport struct {
	port   *serial.Port
	closed atomic.Bool
}

func openSerial(name string, mode Mode, opts Options) (Transport, error) {
	baud := opts.Baud
	if mode == ModeVirtio {
		// Paravirtual console devices have no line rate; tarm/serial
		// still wants a plausible value for its termios setup.
		baud = 115200
	}
	cfg := &serial.Config{Name: name, Baud: baud, ReadTimeout: opts.ReadTimeout}
	p, err := serial.OpenPort(cfg)
	if err != nil {
		return nil, fmt.Errorf("fwtransport: open %s %s: %w", mode, name, err)
	}
	return &serialTransport{port: p}, nil
}

func (s *serialTransport) Read(p []byte) (int, error) {
	for {
		n, err := s.port.Read(p)
		if n > 0 {
			return n, nil
		}
		if err != nil {
			return 0, err
		}
		if s.closed.Load() {
			return 0, ErrShutdown
		}
		// ReadTimeout elapsed with no data; poll again.
	}
}

func (s *serialTransport) Write(p []byte) error {
	for len(p) > 0 {
		n, err := s.port.Write(p)
		if err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}

func (s *serialTransport) Shutdown() { s.closed.Store(true) }

func (s *serialTransport) Close() error { return s.port.Close() }
