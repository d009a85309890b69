package fwexchange

import (
	"time"

	"github.com/celskeggs/theseus-scratch/internal/fwmetrics"
	"github.com/celskeggs/theseus-scratch/internal/fwproto"
)

// readerLoop owns the decoder and the transport's read side. It is the only
// goroutine that calls Decode, so the decoder's own internal state (escape
// flag, pending parameter bytes) needs no locking; only the fields the
// OnData/OnCtrl callbacks touch on the Exchange itself do.
func (e *Exchange) readerLoop() {
	defer e.wg.Done()
	buf := make([]byte, readBufSize)
	for {
		n, err := e.transport.Read(buf)
		if n > 0 {
			fwmetrics.AddBytesRx(n)
			e.dec.Decode(buf[:n], time.Now(), e)
		}
		if err != nil {
			e.fail(err)
			return
		}
	}
}

// OnData implements fwproto.Receiver.
func (e *Exchange) OnData(data []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == StateDisconnected {
		return
	}
	if e.state != StateOperating || !e.recvInProgress {
		e.resetLocked("data received outside an in-progress packet")
		return
	}

	k := len(data)
	if e.inboundRegistered && e.inboundOff < e.inboundMax {
		room := e.inboundMax - e.inboundOff
		n := k
		if n > room {
			n = room
		}
		copy(e.inboundBuf[e.inboundOff:e.inboundOff+n], data[:n])
	}
	e.inboundOff += k
}

// OnCtrl implements fwproto.Receiver.
func (e *Exchange) OnCtrl(sym fwproto.Symbol, param uint32, _ time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == StateDisconnected {
		return
	}

	switch sym {
	case fwproto.SymCodecError:
		fwmetrics.IncCodecError()
		e.resetLocked("codec error")
	case fwproto.SymHandshake1:
		e.onHandshake1Locked(param)
	case fwproto.SymHandshake2:
		e.onHandshake2Locked(param)
	case fwproto.SymStartPacket:
		e.onStartPacketLocked()
	case fwproto.SymEndPacket:
		e.onEndPacketLocked()
	case fwproto.SymErrorPacket:
		e.onErrorPacketLocked()
	case fwproto.SymFlowControl:
		e.onFlowControlLocked()
	default:
		e.resetLocked("unrecognized control symbol")
	}
}

func (e *Exchange) onHandshake1Locked(id uint32) {
	switch e.state {
	case StateConnecting:
		e.recvHandshakeID = id
		e.sendSecondary = true
		e.broadcastLocked()
	case StateHandshaking:
		// A primary crossing our own in-flight primary is a collision:
		// both sides reset and retry on their own staggered timers.
		e.resetLocked("handshake collision")
	case StateOperating:
		// The peer restarted its session; adopt its new primary
		// immediately rather than waiting for a retransmission.
		e.resetLocked("primary handshake received while operating")
		e.recvHandshakeID = id
		e.sendSecondary = true
		e.broadcastLocked()
	}
}

func (e *Exchange) onHandshake2Locked(id uint32) {
	if e.state != StateHandshaking {
		e.resetLocked("unexpected HANDSHAKE_2")
		return
	}
	if id != e.sendHandshakeID {
		e.resetLocked("handshake id mismatch")
		return
	}
	e.state = StateOperating
	fwmetrics.IncHandshakeMatched()
	fwmetrics.SetLinkUp(true)
	e.logger.Info("fwexchange_operating", "role", "initiator")
	e.broadcastLocked()
}

func (e *Exchange) onStartPacketLocked() {
	if e.state != StateOperating || !e.hasSentFCT || e.recvInProgress {
		e.resetLocked("unexpected START_PACKET")
		return
	}
	e.hasSentFCT = false
	e.recvInProgress = true
}

func (e *Exchange) onEndPacketLocked() {
	if e.state != StateOperating || !e.recvInProgress {
		e.resetLocked("unexpected END_PACKET")
		return
	}
	e.inboundDone = true
	e.recvInProgress = false
	e.broadcastLocked()
}

func (e *Exchange) onErrorPacketLocked() {
	if e.state != StateOperating || !e.recvInProgress {
		e.resetLocked("unexpected ERROR_PACKET")
		return
	}
	e.inboundOff = 0
}

func (e *Exchange) onFlowControlLocked() {
	if e.state != StateOperating {
		e.resetLocked("unexpected FLOW_CONTROL")
		return
	}
	if e.remoteSentFCT {
		e.resetLocked("duplicate credit")
		return
	}
	e.remoteSentFCT = true
	fwmetrics.IncCreditConsumed()
	e.broadcastLocked()
}
