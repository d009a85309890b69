package fwexchange

import "errors"

var (
	// ErrDisconnected is returned by ReadPacket/WritePacket once the
	// exchange has reached StateDisconnected.
	ErrDisconnected = errors.New("fwexchange: disconnected")
	// ErrAlreadyAttached is returned by Attach when the exchange is not
	// currently in StateDisconnected.
	ErrAlreadyAttached = errors.New("fwexchange: already attached")
	// ErrReadInProgress is returned by ReadPacket when another call to
	// ReadPacket is already pending; only one client reader is supported
	// at a time, matching the single-slot receive buffer.
	ErrReadInProgress = errors.New("fwexchange: read already in progress")
)
