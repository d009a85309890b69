// Package fwexchange implements the point-to-point fakewire exchange: the
// handshake and credit-based flow-control state machine that sits on top of
// the wire codec in internal/fwproto and a byte transport from
// internal/fwtransport.
//
// An Exchange is attached to exactly one Transport at a time. Once attached
// it runs two background goroutines (a reader that decodes incoming bytes
// and a flow-TX loop that sends handshakes and flow-control credits) and
// exposes a blocking ReadPacket/WritePacket client API. All shared state is
// guarded by a single mutex; state changes that could unblock a waiter close
// and replace a "wake" channel, which every blocked goroutine selects on.
// This gives every waiter a true broadcast wakeup without the sync.Cond
// restriction against bounded waits, which the flow-TX loop needs for its
// handshake retry timer.
package fwexchange
