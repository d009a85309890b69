package fwtransport

import "errors"

// ErrShutdown is returned by Read once Shutdown has been called and no
// further data will arrive. Callers should treat it exactly like io.EOF.
var ErrShutdown = errors.New("fwtransport: shutdown")
