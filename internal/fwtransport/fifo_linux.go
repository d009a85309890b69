//go:build linux

package fwtransport

import (
	"errors"
	"fmt"
	"os"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// fifoTransport connects to the two named pipes of a host-test link. One
// process opens ModeFIFOConsumer, the other ModeFIFOProducer, against the
// same base path; together their read/write sides cross-connect into a
// full-duplex byte stream.
type fifoTransport struct {
	readFile  *os.File
	writeFile *os.File
	closed    atomic.Bool
}

func openFIFO(base string, consumer bool) (Transport, error) {
	c2p := base + "-c2p.pipe"
	p2c := base + "-p2c.pipe"
	for _, p := range []string{c2p, p2c} {
		if err := unix.Mkfifo(p, 0o600); err != nil && !errors.Is(err, unix.EEXIST) {
			return nil, fmt.Errorf("fwtransport: mkfifo %s: %w", p, err)
		}
	}

	readPath, writePath := c2p, p2c
	if consumer {
		readPath, writePath = p2c, c2p
	}

	// Opening a FIFO for read blocks until a writer opens its end (and
	// vice versa), so the two opens must race concurrently: opening
	// them in sequence from both processes can deadlock if both start
	// with the same end.
	type opened struct {
		f   *os.File
		err error
	}
	rCh := make(chan opened, 1)
	wCh := make(chan opened, 1)
	go func() {
		f, err := os.OpenFile(readPath, os.O_RDONLY, 0)
		rCh <- opened{f, err}
	}()
	go func() {
		f, err := os.OpenFile(writePath, os.O_WRONLY, 0)
		wCh <- opened{f, err}
	}()
	r, w := <-rCh, <-wCh
	if r.err != nil {
		if w.f != nil {
			_ = w.f.Close()
		}
		return nil, fmt.Errorf("fwtransport: open %s: %w", readPath, r.err)
	}
	if w.err != nil {
		_ = r.f.Close()
		return nil, fmt.Errorf("fwtransport: open %s: %w", writePath, w.err)
	}
	return &fifoTransport{readFile: r.f, writeFile: w.f}, nil
}

func (f *fifoTransport) Read(p []byte) (int, error) {
	n, err := f.readFile.Read(p)
	if err != nil && f.closed.Load() {
		return n, ErrShutdown
	}
	return n, err
}

func (f *fifoTransport) Write(p []byte) error {
	for len(p) > 0 {
		n, err := f.writeFile.Write(p)
		if err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}

func (f *fifoTransport) Shutdown() {
	f.closed.Store(true)
	_ = f.readFile.Close()
}

func (f *fifoTransport) Close() error {
	_ = f.readFile.Close()
	return f.writeFile.Close()
}
