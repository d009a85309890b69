package fwbridge

import (
	"errors"

	"github.com/celskeggs/theseus-scratch/internal/fwmetrics"
)

// Sentinel errors used for wrapping so callers can classify via errors.Is.
var (
	ErrListen      = errors.New("fwbridge: listen")
	ErrAccept      = errors.New("fwbridge: accept")
	ErrHandshake   = errors.New("fwbridge: handshake")
	ErrConnRead    = errors.New("fwbridge: conn_read")
	ErrConnWrite   = errors.New("fwbridge: conn_write")
	ErrOversized   = errors.New("fwbridge: packet too large")
	ErrBadHello    = errors.New("fwbridge: bad hello")
	ErrContextDone = errors.New("fwbridge: context cancelled")
)

// mapErrToMetric maps a wrapped sentinel error to a stable fwmetrics label.
func mapErrToMetric(err error) string {
	switch {
	case errors.Is(err, ErrConnRead):
		return fwmetrics.ErrBridgeIO
	case errors.Is(err, ErrConnWrite):
		return fwmetrics.ErrBridgeIO
	case errors.Is(err, ErrHandshake), errors.Is(err, ErrBadHello):
		return fwmetrics.ErrBridgeHandshake
	case errors.Is(err, ErrAccept), errors.Is(err, ErrListen):
		return fwmetrics.ErrBridgeAccept
	default:
		return fwmetrics.ErrBridgeIO
	}
}
