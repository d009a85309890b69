//go:build !linux

package fwtransport

import "errors"

// FIFO host-test mode relies on golang.org/x/sys/unix.Mkfifo and is only
// wired up for linux; other platforms should use loopback transports in
// tests instead.
func openFIFO(base string, consumer bool) (Transport, error) {
	return nil, errors.New("fwtransport: fifo mode unsupported on this platform")
}
