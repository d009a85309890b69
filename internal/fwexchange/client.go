package fwexchange

import "github.com/celskeggs/theseus-scratch/internal/fwmetrics"

// WritePacket blocks until a credit is available and the wire is free,
// writes one packet, and returns. It fails only if the exchange
// disconnects before a credit becomes available, or if the transport write
// itself fails (in which case the exchange also disconnects).
func (e *Exchange) WritePacket(data []byte) error {
	for {
		e.mu.Lock()
		if e.state == StateDisconnected {
			e.mu.Unlock()
			return ErrDisconnected
		}
		if e.state == StateOperating && e.remoteSentFCT && !e.txBusy {
			e.remoteSentFCT = false
			e.txBusy = true
			e.mu.Unlock()
			break
		}
		ch := e.wake
		e.mu.Unlock()
		<-ch
	}

	err := e.transmitPacket(data)

	e.mu.Lock()
	e.txBusy = false
	e.broadcastLocked()
	e.mu.Unlock()

	if err != nil {
		e.fail(err)
		return ErrDisconnected
	}
	fwmetrics.IncPacketsTx()
	return nil
}

// ReadPacket blocks until a full packet (or a truncated remainder past
// len(buf)) has been received into buf, then returns its length. If the
// received packet was longer than buf, the returned length exceeds len(buf)
// and only the first len(buf) bytes were actually written. Only one
// ReadPacket call may be outstanding at a time.
func (e *Exchange) ReadPacket(buf []byte) (int, error) {
	e.mu.Lock()
	if e.readInFlight {
		e.mu.Unlock()
		return 0, ErrReadInProgress
	}
	e.readInFlight = true
	defer func() {
		e.mu.Lock()
		e.readInFlight = false
		e.mu.Unlock()
	}()

	for {
		if e.inboundDone {
			break
		}
		if e.state == StateDisconnected {
			e.forgetInboundLocked()
			e.mu.Unlock()
			return 0, ErrDisconnected
		}
		if !e.inboundRegistered {
			e.registerInboundLocked(buf)
		}
		ch := e.wake
		e.mu.Unlock()
		<-ch
		e.mu.Lock()
	}

	length := e.inboundOff
	e.forgetInboundLocked()
	e.mu.Unlock()

	if length > len(buf) {
		fwmetrics.IncTruncated()
	}
	fwmetrics.IncPacketsRx()
	return length, nil
}

// registerInboundLocked makes buf the exchange's one-slot receive buffer
// and wakes the flow-TX loop so it can consider issuing a credit for it.
func (e *Exchange) registerInboundLocked(buf []byte) {
	e.inboundBuf = buf
	e.inboundMax = len(buf)
	e.inboundOff = 0
	e.inboundDone = false
	e.inboundRegistered = true
	e.broadcastLocked()
}

func (e *Exchange) forgetInboundLocked() {
	e.inboundBuf = nil
	e.inboundMax = 0
	e.inboundOff = 0
	e.inboundDone = false
	e.inboundRegistered = false
}
