package fwexchange

import (
	"math/rand/v2"
	"time"
)

// processStart anchors a monotonic clock reading for newHandshakeID: two
// time.Time values both derived from time.Now() retain Go's monotonic
// reading internally, so time.Since(processStart) advances independent of
// any wall-clock step.
var processStart = time.Now()

// newHandshakeID picks a fresh primary handshake ID: the high bit is set to
// keep our IDs in a disjoint half-space from a peer that picks its IDs with
// the high bit clear, and the low 31 bits come from a monotonic clock
// reading at the time of transmission so that successive attempts from the
// same process don't collide with each other either.
func newHandshakeID() uint32 {
	low31 := uint32(time.Since(processStart).Nanoseconds()) & 0x7fffffff
	return low31 | 0x80000000
}

const (
	minHandshakePeriod = 3 * time.Millisecond
	maxHandshakePeriod = 10 * time.Millisecond
)

// handshakePeriod returns a uniformly random duration in
// [minHandshakePeriod, maxHandshakePeriod) used to stagger primary
// handshake retries and avoid lockstep collisions between two peers that
// both attached at the same moment.
func handshakePeriod() time.Duration {
	span := int64(maxHandshakePeriod - minHandshakePeriod)
	return minHandshakePeriod + time.Duration(rand.Int64N(span))
}
