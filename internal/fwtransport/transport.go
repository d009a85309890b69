// Package fwtransport provides the byte transport adapter the fakewire
// exchange runs over: blocking read/write of raw byte buffers plus a
// shutdown signal that unblocks a pending read with end-of-stream.
package fwtransport

import (
	"fmt"
	"time"
)

// Mode selects which concrete adapter Open constructs.
type Mode int

const (
	// ModeSerial opens a physical or emulated UART device.
	ModeSerial Mode = iota
	// ModeVirtio opens a paravirtual console device; it behaves like a
	// raw character device with no baud rate to configure.
	ModeVirtio
	// ModeFIFOConsumer opens the "console" side of a host-test pipe
	// pair: it reads {path}-p2c.pipe and writes {path}-c2p.pipe.
	ModeFIFOConsumer
	// ModeFIFOProducer opens the "producer" side of a host-test pipe
	// pair: it reads {path}-c2p.pipe and writes {path}-p2c.pipe.
	ModeFIFOProducer
)

func (m Mode) String() string {
	switch m {
	case ModeSerial:
		return "serial"
	case ModeVirtio:
		return "virtio"
	case ModeFIFOConsumer:
		return "fifo-cons"
	case ModeFIFOProducer:
		return "fifo-prod"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Transport is the external collaborator the exchange's reader-decoder and
// writer tasks use to move bytes. All methods may be called from separate
// goroutines, but Read is called from exactly one goroutine at a time, as
// is Write (per the exchange's tx_busy discipline).
type Transport interface {
	// Read blocks until at least one byte is available, the transport is
	// shut down, or a fatal transport error occurs. A zero n with a nil
	// error never happens; n>0 always accompanies a nil error.
	Read(p []byte) (n int, err error)
	// Write blocks until all of p has been written, or returns a fatal
	// error. A short write without an error never happens.
	Write(p []byte) error
	// Shutdown causes a pending or future Read to return promptly with a
	// non-nil error. It does not release OS resources; Close does that.
	Shutdown()
	// Close releases OS resources. Idempotent.
	Close() error
}

// Options configures the concrete adapter Open constructs. Fields that
// don't apply to the selected Mode are ignored.
type Options struct {
	// Baud is the serial line rate; ignored for virtio and FIFO modes.
	// Defaults to 115200 if zero.
	Baud int
	// ReadTimeout bounds each underlying poll of the device so Shutdown
	// is noticed promptly; it is not exposed to callers as a read
	// deadline. Defaults to 50ms if zero.
	ReadTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.Baud <= 0 {
		o.Baud = 115200
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = 50 * time.Millisecond
	}
	return o
}

// Open constructs the Transport named by mode. path is a device path for
// ModeSerial/ModeVirtio, or the shared base path for the two FIFO modes.
func Open(path string, mode Mode, opts Options) (Transport, error) {
	opts = opts.withDefaults()
	switch mode {
	case ModeSerial, ModeVirtio:
		return openSerial(path, mode, opts)
	case ModeFIFOConsumer:
		return openFIFO(path, true)
	case ModeFIFOProducer:
		return openFIFO(path, false)
	default:
		return nil, fmt.Errorf("fwtransport: unknown mode %v", mode)
	}
}
