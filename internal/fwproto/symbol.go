// Package fwproto implements the fakewire wire codec: the escape-based
// framing that turns a raw byte stream into a sequence of data runs and
// control symbols, and back.
package fwproto

// Symbol identifies a fakewire control symbol as it appears on the wire.
type Symbol byte

// Control symbol values. These occupy 0x80-0x86; any data byte that
// collides with one of them must be escaped (see EncodeData).
const (
	SymHandshake1  Symbol = 0x80
	SymHandshake2  Symbol = 0x81
	SymStartPacket Symbol = 0x82
	SymEndPacket   Symbol = 0x83
	SymErrorPacket Symbol = 0x84
	SymFlowControl Symbol = 0x85
	symEscape      Symbol = 0x86

	// SymCodecError is never seen on the wire. It aliases the escape
	// symbol's value because the decoder never raises symEscape to a
	// Receiver; whenever it would, it raises SymCodecError instead.
	SymCodecError Symbol = symEscape
)

func (s Symbol) String() string {
	switch s {
	case SymHandshake1:
		return "HANDSHAKE_1"
	case SymHandshake2:
		return "HANDSHAKE_2"
	case SymStartPacket:
		return "START_PACKET"
	case SymEndPacket:
		return "END_PACKET"
	case SymErrorPacket:
		return "ERROR_PACKET"
	case SymFlowControl:
		return "FLOW_CONTROL"
	case SymCodecError: // == symEscape
		return "CODEC_ERROR"
	default:
		return "UNKNOWN_SYMBOL"
	}
}

// isSpecial reports whether b collides with the control-symbol range and
// must be escaped to appear as a data byte.
func isSpecial(b byte) bool {
	return b >= byte(SymHandshake1) && b <= byte(symEscape)
}

// isParametrized reports whether sym carries a trailing 32-bit parameter.
func isParametrized(sym Symbol) bool {
	return sym == SymHandshake1 || sym == SymHandshake2
}
