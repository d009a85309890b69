package fwproto

import (
	"encoding/binary"
	"time"
)

// Receiver consumes decoded events in wire order.
type Receiver interface {
	// OnData delivers a run of decoded data bytes. Runs never contain
	// escape or control symbols; a logical run may be split across
	// multiple calls, including across separate Decode invocations.
	OnData(data []byte)
	// OnCtrl delivers one control symbol. param is 0 for symbols that
	// don't carry one. recvTS is the timestamp latched when the symbol
	// (or, for a parametrized symbol, its leading byte) was seen.
	OnCtrl(sym Symbol, param uint32, recvTS time.Time)
}

// Decoder turns a byte stream into data runs and control symbols. It holds
// state across calls (escape flag, a pending parametrized symbol and its
// partially-filled parameter) so a caller may feed it arbitrarily chunked
// input. A Decoder is not safe for concurrent use.
type Decoder struct {
	inEscape bool

	hasPending bool
	pendingSym Symbol
	pendingTS  time.Time
	paramBuf   [4]byte
	paramCount int

	scratch []byte
}

// Decode pushes one contiguous chunk of wire bytes through the decoder.
// recvTS is the reception timestamp associated with the whole chunk; it is
// also what gets latched as the timestamp of any control symbol whose
// parameter isn't fully decoded until a later call.
func (d *Decoder) Decode(data []byte, recvTS time.Time, recv Receiver) {
	run := d.scratch[:0]

	flushRun := func() {
		if len(run) > 0 {
			recv.OnData(run)
			run = run[:0]
		}
	}
	consumeDataByte := func(b byte) {
		if d.hasPending {
			d.paramBuf[d.paramCount] = b
			d.paramCount++
			if d.paramCount == 4 {
				param := binary.BigEndian.Uint32(d.paramBuf[:])
				sym, ts := d.pendingSym, d.pendingTS
				d.hasPending = false
				recv.OnCtrl(sym, param, ts)
			}
			return
		}
		run = append(run, b)
	}
	codecError := func() {
		flushRun()
		recv.OnCtrl(SymCodecError, 0, recvTS)
	}

	for _, b := range data {
		if d.inEscape {
			d.inEscape = false
			decoded := b ^ 0x10
			if !isSpecial(decoded) {
				codecError()
				continue
			}
			consumeDataByte(decoded)
			continue
		}
		if isSpecial(b) {
			if Symbol(b) == symEscape {
				d.inEscape = true
				continue
			}
			sym := Symbol(b)
			if d.hasPending {
				// A new control symbol interrupted a pending parameter.
				codecError()
				d.hasPending = false
			}
			flushRun()
			if isParametrized(sym) {
				d.hasPending = true
				d.pendingSym = sym
				d.pendingTS = recvTS
				d.paramCount = 0
			} else {
				recv.OnCtrl(sym, 0, recvTS)
			}
			continue
		}
		consumeDataByte(b)
	}
	flushRun()
	d.scratch = run
}
