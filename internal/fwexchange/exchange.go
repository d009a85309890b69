package fwexchange

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/celskeggs/theseus-scratch/internal/fwlog"
	"github.com/celskeggs/theseus-scratch/internal/fwmetrics"
	"github.com/celskeggs/theseus-scratch/internal/fwproto"
	"github.com/celskeggs/theseus-scratch/internal/fwtransport"
)

const readBufSize = 4096

// Exchange is one side of a fakewire link. The zero value is not usable;
// construct with New.
type Exchange struct {
	mu   sync.Mutex
	wake chan struct{} // closed and replaced under mu to broadcast to all waiters

	logger *slog.Logger

	transport fwtransport.Transport
	enc       fwproto.Encoder // only touched while txBusy is held
	dec       fwproto.Decoder // only touched by the reader goroutine

	wg       sync.WaitGroup
	detached bool

	state State

	sendHandshakeID uint32
	recvHandshakeID uint32
	sendSecondary   bool
	nextHandshake   time.Time

	txBusy bool

	inboundBuf        []byte
	inboundOff        int
	inboundMax        int
	inboundDone       bool
	inboundRegistered bool
	readInFlight      bool

	hasSentFCT     bool
	remoteSentFCT  bool
	recvInProgress bool
}

// Option configures an Exchange at construction time.
type Option func(*Exchange)

// WithLogger overrides the default package logger (fwlog.L()).
func WithLogger(l *slog.Logger) Option {
	return func(e *Exchange) {
		if l != nil {
			e.logger = l
		}
	}
}

// New constructs an unattached Exchange in StateDisconnected.
func New(opts ...Option) *Exchange {
	e := &Exchange{
		wake:   make(chan struct{}),
		logger: fwlog.L(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

var _ fwproto.Receiver = (*Exchange)(nil)

// State returns the exchange's current state.
func (e *Exchange) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Attach opens the given transport and starts the handshake. It fails if
// the exchange is already attached.
func (e *Exchange) Attach(path string, mode fwtransport.Mode, opts fwtransport.Options) error {
	t, err := fwtransport.Open(path, mode, opts)
	if err != nil {
		return fmt.Errorf("fwexchange: attach %s: %w", path, err)
	}
	if err := e.AttachTransport(t); err != nil {
		_ = t.Close()
		return err
	}
	e.logger.Info("fwexchange_attach", "path", path, "mode", mode.String())
	return nil
}

// AttachTransport starts the handshake over an already-constructed
// Transport. It's the primitive Attach builds on, and is also useful
// directly for tests and other callers that already have a Transport in
// hand. It fails with ErrAlreadyAttached if the exchange is already
// attached.
func (e *Exchange) AttachTransport(t fwtransport.Transport) error {
	e.mu.Lock()
	if e.state != StateDisconnected || e.transport != nil {
		e.mu.Unlock()
		return ErrAlreadyAttached
	}
	e.transport = t
	e.state = StateConnecting
	e.detached = false
	e.nextHandshake = time.Now()
	e.mu.Unlock()

	e.wg.Add(2)
	go e.readerLoop()
	go e.flowTXLoop()

	fwmetrics.SetLinkUp(false)
	return nil
}

// Detach shuts down the transport and waits for both background goroutines
// to exit, and for any in-flight WritePacket call to release the wire,
// before closing it. It is idempotent: calling it on an unattached or
// already detached exchange is a harmless no-op.
func (e *Exchange) Detach() error {
	e.mu.Lock()
	if e.detached || e.transport == nil {
		e.mu.Unlock()
		return nil
	}
	e.detached = true
	e.disconnectLocked()
	t := e.transport
	e.mu.Unlock()

	t.Shutdown()
	e.wg.Wait()

	// WritePacket isn't tracked by wg: a caller can have already claimed
	// txBusy and released the lock before disconnectLocked ran. Wait for
	// it to finish with the wire before touching e.transport, since
	// writeWire reads that field without holding mu.
	e.mu.Lock()
	for e.txBusy {
		ch := e.wake
		e.mu.Unlock()
		<-ch
		e.mu.Lock()
	}
	e.transport = nil
	e.mu.Unlock()

	e.logger.Info("fwexchange_detach")
	return t.Close()
}

// broadcastLocked wakes every goroutine blocked on the wake channel. Must be
// called with mu held, and must be called by every mutation that could
// change the outcome of a waiter's condition check.
func (e *Exchange) broadcastLocked() {
	close(e.wake)
	e.wake = make(chan struct{})
}

// resetLocked returns the exchange to StateConnecting after a protocol
// violation or handshake collision, discarding all in-progress session
// state. It is a no-op if already disconnected.
func (e *Exchange) resetLocked(reason string) {
	if e.state == StateDisconnected {
		return
	}
	e.logger.Debug("fwexchange_reset", "reason", reason, "from_state", e.state.String())
	e.state = StateConnecting
	e.sendSecondary = false
	e.clearSessionLocked()
	fwmetrics.IncReset()
	fwmetrics.SetLinkUp(false)
	e.broadcastLocked()
}

// disconnectLocked moves the exchange to StateDisconnected, used for Detach
// and for fatal transport failures.
func (e *Exchange) disconnectLocked() {
	e.state = StateDisconnected
	e.sendSecondary = false
	e.clearSessionLocked()
	fwmetrics.SetLinkUp(false)
	e.broadcastLocked()
}

// clearSessionLocked clears every field whose invariant is tied to being in
// StateOperating (or mid-handshake), shared by resetLocked and
// disconnectLocked.
func (e *Exchange) clearSessionLocked() {
	e.inboundBuf = nil
	e.inboundOff = 0
	e.inboundMax = 0
	e.inboundDone = false
	e.inboundRegistered = false
	e.hasSentFCT = false
	e.remoteSentFCT = false
	e.recvInProgress = false
}

// fail moves the exchange to StateDisconnected in response to a fatal
// transport error. Safe to call from any goroutine; idempotent.
func (e *Exchange) fail(err error) {
	e.mu.Lock()
	if e.state != StateDisconnected {
		e.logger.Warn("fwexchange_transport_failed", "error", err)
		e.disconnectLocked()
	}
	e.mu.Unlock()
}

// emitCtrl encodes and flushes a single control symbol to the wire. Callers
// must hold txBusy (not mu) while calling this.
func (e *Exchange) emitCtrl(sym fwproto.Symbol, param uint32) error {
	if err := e.enc.EncodeCtrl(sym, param); err != nil {
		return err
	}
	return e.enc.Flush(e.writeWire)
}

// transmitPacket encodes a full START_PACKET/data/END_PACKET sequence.
// Callers must hold txBusy (not mu) while calling this.
func (e *Exchange) transmitPacket(data []byte) error {
	if err := e.enc.EncodeCtrl(fwproto.SymStartPacket, 0); err != nil {
		return err
	}
	e.enc.EncodeData(data)
	if err := e.enc.EncodeCtrl(fwproto.SymEndPacket, 0); err != nil {
		return err
	}
	return e.enc.Flush(e.writeWire)
}

func (e *Exchange) writeWire(b []byte) error {
	if err := e.transport.Write(b); err != nil {
		return err
	}
	fwmetrics.AddBytesTx(len(b))
	return nil
}
