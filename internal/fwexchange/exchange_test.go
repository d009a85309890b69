package fwexchange

import (
	"bytes"
	"testing"
	"time"

	"github.com/celskeggs/theseus-scratch/internal/fwtransport"
)

func newLinkedPair(t *testing.T) (a, b *Exchange) {
	t.Helper()
	ta, tb := fwtransport.NewLoopbackPair()
	a, b = New(), New()
	if err := a.AttachTransport(ta); err != nil {
		t.Fatalf("attach a: %v", err)
	}
	if err := b.AttachTransport(tb); err != nil {
		t.Fatalf("attach b: %v", err)
	}
	t.Cleanup(func() {
		a.Detach()
		b.Detach()
	})
	return a, b
}

func waitForState(t *testing.T, e *Exchange, want State, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if e.State() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("exchange never reached %v, stuck at %v", want, e.State())
}

// TestHandshakeSuccess covers S1: one side's primary lands while the other
// is still in CONNECTING, and both sides converge on OPERATING.
func TestHandshakeSuccess(t *testing.T) {
	a, b := newLinkedPair(t)
	waitForState(t, a, StateOperating, 2*time.Second)
	waitForState(t, b, StateOperating, 2*time.Second)
}

// TestOnePacketExchange covers S3: one packet sent end to end with correct
// flow control bookkeeping.
func TestOnePacketExchange(t *testing.T) {
	a, b := newLinkedPair(t)
	waitForState(t, a, StateOperating, 2*time.Second)
	waitForState(t, b, StateOperating, 2*time.Second)

	payload := []byte("hello, fakewire")
	readBuf := make([]byte, 64)

	readErr := make(chan error, 1)
	readLen := make(chan int, 1)
	go func() {
		n, err := b.ReadPacket(readBuf)
		readLen <- n
		readErr <- err
	}()

	if err := a.WritePacket(payload); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case err := <-readErr:
		if err != nil {
			t.Fatalf("read: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("read did not complete")
	}
	n := <-readLen
	if !bytes.Equal(readBuf[:n], payload) {
		t.Fatalf("got %q, want %q", readBuf[:n], payload)
	}
}

// TestEscapeInPayload covers S4: payload bytes that collide with the
// control-symbol range round-trip correctly through escaping.
func TestEscapeInPayload(t *testing.T) {
	a, b := newLinkedPair(t)
	waitForState(t, a, StateOperating, 2*time.Second)
	waitForState(t, b, StateOperating, 2*time.Second)

	payload := []byte{0x80, 0x86, 0x00, 0x7f, 0x85, 0x81}
	readBuf := make([]byte, 64)

	done := make(chan struct{})
	var n int
	var rerr error
	go func() {
		n, rerr = b.ReadPacket(readBuf)
		close(done)
	}()

	if err := a.WritePacket(payload); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("read did not complete")
	}
	if rerr != nil {
		t.Fatalf("read: %v", rerr)
	}
	if !bytes.Equal(readBuf[:n], payload) {
		t.Fatalf("got %x, want %x", readBuf[:n], payload)
	}
}

// TestTruncation covers S5: a packet larger than the registered buffer is
// delivered truncated, and the reported length exceeds the buffer size.
func TestTruncation(t *testing.T) {
	a, b := newLinkedPair(t)
	waitForState(t, a, StateOperating, 2*time.Second)
	waitForState(t, b, StateOperating, 2*time.Second)

	payload := bytes.Repeat([]byte{0x42}, 32)
	small := make([]byte, 8)

	done := make(chan struct{})
	var n int
	var rerr error
	go func() {
		n, rerr = b.ReadPacket(small)
		close(done)
	}()

	if err := a.WritePacket(payload); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("read did not complete")
	}
	if rerr != nil {
		t.Fatalf("read: %v", rerr)
	}
	if n != len(payload) {
		t.Fatalf("reported length %d, want %d", n, len(payload))
	}
	if !bytes.Equal(small, payload[:len(small)]) {
		t.Fatalf("truncated prefix mismatch: got %x", small)
	}
}

// TestDetachUnblocksClients ensures a pending ReadPacket returns
// ErrDisconnected once Detach runs, rather than blocking forever, and that
// a WritePacket issued after Detach returns ErrDisconnected too.
func TestDetachUnblocksClients(t *testing.T) {
	// Both sides are attached (not just a) so that a's background
	// goroutines always have a live peer draining their writes; an
	// unattended loopback half would block a pending write forever,
	// which no amount of Shutdown on a's own transport can fix.
	a, _ := newLinkedPair(t)

	readErr := make(chan error, 1)
	go func() {
		_, err := a.ReadPacket(make([]byte, 16))
		readErr <- err
	}()

	time.Sleep(20 * time.Millisecond)
	if err := a.Detach(); err != nil {
		t.Fatalf("detach: %v", err)
	}

	select {
	case err := <-readErr:
		if err != ErrDisconnected {
			t.Fatalf("got %v, want ErrDisconnected", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("read did not unblock after detach")
	}

	if err := a.WritePacket([]byte("x")); err != ErrDisconnected {
		t.Fatalf("write after detach: got %v, want ErrDisconnected", err)
	}
}

// TestReadInProgressRejectsConcurrentCallers exercises the single-slot
// receive buffer guard.
func TestReadInProgressRejectsConcurrentCallers(t *testing.T) {
	a, _ := newLinkedPair(t)
	waitForState(t, a, StateOperating, 2*time.Second)

	go a.ReadPacket(make([]byte, 16))
	time.Sleep(10 * time.Millisecond)

	_, err := a.ReadPacket(make([]byte, 16))
	if err != ErrReadInProgress {
		t.Fatalf("got %v, want ErrReadInProgress", err)
	}
}

// TestMultiplePacketsInOrder checks several packets across the same link
// arrive in order with independent credit cycles.
func TestMultiplePacketsInOrder(t *testing.T) {
	a, b := newLinkedPair(t)
	waitForState(t, a, StateOperating, 2*time.Second)
	waitForState(t, b, StateOperating, 2*time.Second)

	const count = 5
	for i := 0; i < count; i++ {
		payload := bytes.Repeat([]byte{byte(i)}, 4)
		buf := make([]byte, 16)
		done := make(chan struct{})
		var n int
		var rerr error
		go func() {
			n, rerr = b.ReadPacket(buf)
			close(done)
		}()
		if err := a.WritePacket(payload); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatalf("packet %d did not arrive", i)
		}
		if rerr != nil {
			t.Fatalf("read %d: %v", i, rerr)
		}
		if !bytes.Equal(buf[:n], payload) {
			t.Fatalf("packet %d: got %x, want %x", i, buf[:n], payload)
		}
	}
}
