package fwexchange

import (
	"time"

	"github.com/celskeggs/theseus-scratch/internal/fwmetrics"
	"github.com/celskeggs/theseus-scratch/internal/fwproto"
)

// flowTXLoop is the single writer of handshake and flow-control symbols. It
// never sends packet data directly; that's WritePacket's job, serialized
// against this loop by the shared txBusy flag.
func (e *Exchange) flowTXLoop() {
	defer e.wg.Done()
	for {
		if e.isDisconnected() {
			return
		}
		if e.tryHandshakeStep() {
			continue
		}
		if e.tryFCTStep() {
			continue
		}
		e.flowTXSleep()
	}
}

func (e *Exchange) isDisconnected() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state == StateDisconnected
}

// tryHandshakeStep sends a pending secondary, or a fresh primary once the
// retry timer elapses. It reports whether it did anything, so the caller
// can re-evaluate from scratch instead of sleeping.
func (e *Exchange) tryHandshakeStep() bool {
	e.mu.Lock()
	if (e.state != StateConnecting && e.state != StateHandshaking) || e.txBusy {
		e.mu.Unlock()
		return false
	}

	if e.sendSecondary {
		id := e.recvHandshakeID
		e.txBusy = true
		e.mu.Unlock()

		err := e.emitCtrl(fwproto.SymHandshake2, id)

		e.mu.Lock()
		e.txBusy = false
		if err != nil {
			e.broadcastLocked()
			e.mu.Unlock()
			e.fail(err)
			return true
		}
		fwmetrics.IncHandshakeSent()
		e.nextHandshake = time.Now().Add(handshakePeriod())
		// Re-check: nothing may have invalidated this secondary while
		// the lock was released (a reset, or a newer primary).
		if e.state == StateConnecting && e.sendSecondary && e.recvHandshakeID == id {
			e.sendSecondary = false
			e.state = StateOperating
			fwmetrics.IncHandshakeMatched()
			fwmetrics.SetLinkUp(true)
			e.logger.Info("fwexchange_operating", "role", "responder")
		}
		e.broadcastLocked()
		e.mu.Unlock()
		return true
	}

	if time.Now().Before(e.nextHandshake) {
		e.mu.Unlock()
		return false
	}

	id := newHandshakeID()
	e.sendHandshakeID = id
	e.state = StateHandshaking
	e.nextHandshake = time.Now().Add(handshakePeriod())
	e.txBusy = true
	e.mu.Unlock()

	err := e.emitCtrl(fwproto.SymHandshake1, id)

	e.mu.Lock()
	e.txBusy = false
	if err != nil {
		e.broadcastLocked()
		e.mu.Unlock()
		e.fail(err)
		return true
	}
	fwmetrics.IncHandshakeSent()
	e.broadcastLocked()
	e.mu.Unlock()
	return true
}

// tryFCTStep issues a flow-control credit once a client buffer is
// registered and ready to receive a packet.
func (e *Exchange) tryFCTStep() bool {
	e.mu.Lock()
	if e.state != StateOperating || e.txBusy || e.hasSentFCT ||
		e.recvInProgress || e.inboundDone || !e.inboundRegistered {
		e.mu.Unlock()
		return false
	}
	e.hasSentFCT = true
	e.txBusy = true
	e.mu.Unlock()

	err := e.emitCtrl(fwproto.SymFlowControl, 0)

	e.mu.Lock()
	e.txBusy = false
	if err != nil {
		e.broadcastLocked()
		e.mu.Unlock()
		e.fail(err)
		return true
	}
	fwmetrics.IncCreditIssued()
	e.broadcastLocked()
	e.mu.Unlock()
	return true
}

// flowTXSleep waits until either something broadcasts (a state change that
// might let tryHandshakeStep/tryFCTStep make progress) or the next
// handshake retry falls due, whichever comes first.
func (e *Exchange) flowTXSleep() {
	e.mu.Lock()
	if e.state == StateDisconnected {
		e.mu.Unlock()
		return
	}
	ch := e.wake
	bounded := (e.state == StateConnecting || e.state == StateHandshaking) && !e.sendSecondary
	deadline := e.nextHandshake
	e.mu.Unlock()

	if !bounded {
		<-ch
		return
	}
	wait := time.Until(deadline)
	if wait <= 0 {
		// Already due, but tryHandshakeStep declined to act (most
		// likely txBusy); wait for the broadcast that clears it
		// rather than spinning.
		<-ch
		return
	}
	select {
	case <-ch:
	case <-time.After(wait):
	}
}
