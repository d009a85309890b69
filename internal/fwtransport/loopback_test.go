package fwtransport

import (
	"testing"
	"time"
)

func TestLoopbackRoundTrip(t *testing.T) {
	a, b := NewLoopbackPair()
	defer a.Close()
	defer b.Close()

	done := make(chan error, 1)
	go func() { done <- a.Write([]byte("hello")) }()

	buf := make([]byte, 5)
	n, err := b.Read(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if n != 5 || string(buf[:n]) != "hello" {
		t.Fatalf("got %q", buf[:n])
	}
	if err := <-done; err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestLoopbackShutdownUnblocksRead(t *testing.T) {
	a, b := NewLoopbackPair()
	defer a.Close()
	defer b.Close()

	errCh := make(chan error, 1)
	go func() {
		_, err := b.Read(make([]byte, 16))
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond) // let the read block
	b.Shutdown()

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatalf("expected an error after shutdown")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("shutdown did not unblock pending read")
	}
}
