package fwtransport

import "io"

// loopbackTransport is an in-memory Transport backed by an io.Pipe. It is
// used by tests, where a real serial or FIFO device isn't available.
type loopbackTransport struct {
	r *io.PipeReader
	w *io.PipeWriter
}

// NewLoopbackPair returns two Transports wired crosswise: bytes written to
// one are read from the other. Both block like real serial/FIFO links
// rather than buffering, which is what makes this useful for exercising
// the exchange's flow-control discipline in tests.
func NewLoopbackPair() (a, b Transport) {
	ar, aw := io.Pipe()
	br, bw := io.Pipe()
	return &loopbackTransport{r: ar, w: bw}, &loopbackTransport{r: br, w: aw}
}

func (t *loopbackTransport) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err == io.ErrClosedPipe {
		err = ErrShutdown
	}
	return n, err
}

func (t *loopbackTransport) Write(p []byte) error {
	_, err := t.w.Write(p)
	return err
}

func (t *loopbackTransport) Shutdown() {
	_ = t.r.CloseWithError(ErrShutdown)
}

func (t *loopbackTransport) Close() error {
	_ = t.r.Close()
	return t.w.Close()
}
