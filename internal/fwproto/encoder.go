package fwproto

import (
	"encoding/binary"
	"errors"
)

// ErrEscapeForbidden is returned by EncodeCtrl for the escape symbol, which
// is a wire-level implementation detail and never a control symbol a caller
// may emit.
var ErrEscapeForbidden = errors.New("fwproto: cannot encode escape as a control symbol")

// Encoder accumulates wire bytes for data and control symbols and hands
// them to a sink on Flush. It buffers internally; callers that need bytes
// to have actually reached the wire (handshake and flow-control emission)
// must Flush before relying on that. Not safe for concurrent use.
type Encoder struct {
	buf []byte
}

// EncodeData appends data bytes, escaping any byte that collides with the
// control-symbol range as ESCAPE_SYM followed by the byte XORed with 0x10.
func (e *Encoder) EncodeData(data []byte) {
	for _, b := range data {
		if isSpecial(b) {
			e.buf = append(e.buf, byte(symEscape), b^0x10)
			continue
		}
		e.buf = append(e.buf, b)
	}
}

// EncodeCtrl appends one control symbol. Parametrized symbols are followed
// by their 32-bit parameter in big-endian order, itself subject to data
// escaping.
func (e *Encoder) EncodeCtrl(sym Symbol, param uint32) error {
	if sym == symEscape {
		return ErrEscapeForbidden
	}
	e.buf = append(e.buf, byte(sym))
	if isParametrized(sym) {
		var p [4]byte
		binary.BigEndian.PutUint32(p[:], param)
		e.EncodeData(p[:])
	}
	return nil
}

// Flush hands the accumulated bytes to sink and clears the buffer, even if
// sink returns an error.
func (e *Encoder) Flush(sink func([]byte) error) error {
	if len(e.buf) == 0 {
		return nil
	}
	b := e.buf
	e.buf = nil
	return sink(b)
}
