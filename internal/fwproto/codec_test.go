package fwproto

import (
	"bytes"
	"crypto/rand"
	"testing"
	"time"
)

type recorder struct {
	data [][]byte
	ctrl []ctrlEvent
}

type ctrlEvent struct {
	sym   Symbol
	param uint32
}

func (r *recorder) OnData(data []byte) {
	cp := make([]byte, len(data))
	copy(cp, data)
	r.data = append(r.data, cp)
}

func (r *recorder) OnCtrl(sym Symbol, param uint32, _ time.Time) {
	r.ctrl = append(r.ctrl, ctrlEvent{sym, param})
}

func (r *recorder) flatData() []byte {
	var out []byte
	for _, d := range r.data {
		out = append(out, d...)
	}
	return out
}

func TestFramingRoundTrip(t *testing.T) {
	buf := make([]byte, 4096)
	if _, err := rand.Read(buf); err != nil {
		t.Fatalf("rand: %v", err)
	}
	var enc Encoder
	enc.EncodeData(buf)
	var wire []byte
	if err := enc.Flush(func(b []byte) error { wire = append(wire, b...); return nil }); err != nil {
		t.Fatalf("flush: %v", err)
	}

	var dec Decoder
	var rec recorder
	dec.Decode(wire, time.Now(), &rec)
	if !bytes.Equal(rec.flatData(), buf) {
		t.Fatalf("round trip mismatch")
	}
	if len(rec.ctrl) != 0 {
		t.Fatalf("expected no control events, got %d", len(rec.ctrl))
	}
}

func TestEscapeBoundary(t *testing.T) {
	for b := 0x80; b <= 0x86; b++ {
		var enc Encoder
		enc.EncodeData([]byte{byte(b)})
		var wire []byte
		if err := enc.Flush(func(p []byte) error { wire = append(wire, p...); return nil }); err != nil {
			t.Fatalf("flush: %v", err)
		}
		want := []byte{0x86, byte(b) ^ 0x10}
		if !bytes.Equal(wire, want) {
			t.Fatalf("byte 0x%02X: wire = % X, want % X", b, wire, want)
		}

		var dec Decoder
		var rec recorder
		dec.Decode(wire, time.Now(), &rec)
		got := rec.flatData()
		if len(got) != 1 || got[0] != byte(b) {
			t.Fatalf("byte 0x%02X: decoded %v, want [%d]", b, got, b)
		}
	}
}

func TestParametrizedSymbol(t *testing.T) {
	var enc Encoder
	if err := enc.EncodeCtrl(SymHandshake1, 0x12345678); err != nil {
		t.Fatalf("encode ctrl: %v", err)
	}
	var wire []byte
	if err := enc.Flush(func(p []byte) error { wire = append(wire, p...); return nil }); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if wire[0] != byte(SymHandshake1) {
		t.Fatalf("leading byte = 0x%02X, want 0x%02X", wire[0], SymHandshake1)
	}

	var dec Decoder
	var rec recorder
	dec.Decode(wire, time.Now(), &rec)
	if len(rec.ctrl) != 1 {
		t.Fatalf("expected exactly one ctrl event, got %d", len(rec.ctrl))
	}
	if rec.ctrl[0].sym != SymHandshake1 || rec.ctrl[0].param != 0x12345678 {
		t.Fatalf("got %+v", rec.ctrl[0])
	}
}

func TestParametrizedSymbolWithEscapedParamByte(t *testing.T) {
	// Parameter 0x80000001 has an escaped leading byte.
	var enc Encoder
	if err := enc.EncodeCtrl(SymHandshake1, 0x80000001); err != nil {
		t.Fatalf("encode ctrl: %v", err)
	}
	var wire []byte
	if err := enc.Flush(func(p []byte) error { wire = append(wire, p...); return nil }); err != nil {
		t.Fatalf("flush: %v", err)
	}
	want := []byte{0x80, 0x86, 0x90, 0x00, 0x00, 0x01}
	if !bytes.Equal(wire, want) {
		t.Fatalf("wire = % X, want % X", wire, want)
	}
	var dec Decoder
	var rec recorder
	dec.Decode(wire, time.Now(), &rec)
	if len(rec.ctrl) != 1 || rec.ctrl[0].param != 0x80000001 {
		t.Fatalf("got %+v", rec.ctrl)
	}
}

func TestDecodeChunked(t *testing.T) {
	var enc Encoder
	enc.EncodeData([]byte("hello"))
	_ = enc.EncodeCtrl(SymFlowControl, 0)
	enc.EncodeData([]byte("world"))
	var wire []byte
	if err := enc.Flush(func(p []byte) error { wire = append(wire, p...); return nil }); err != nil {
		t.Fatalf("flush: %v", err)
	}

	var dec Decoder
	var rec recorder
	for _, chunkLen := range []int{1, 1, 1, 2, 3, 1, 1, 1, 5} {
		if chunkLen > len(wire) {
			chunkLen = len(wire)
		}
		dec.Decode(wire[:chunkLen], time.Now(), &rec)
		wire = wire[chunkLen:]
	}
	if len(wire) > 0 {
		dec.Decode(wire, time.Now(), &rec)
	}
	if got := string(rec.flatData()); got != "helloworld" {
		t.Fatalf("got %q", got)
	}
	if len(rec.ctrl) != 1 || rec.ctrl[0].sym != SymFlowControl {
		t.Fatalf("got %+v", rec.ctrl)
	}
}

func TestIllegalEscape(t *testing.T) {
	var dec Decoder
	var rec recorder
	dec.Decode([]byte{0x86, 0x00}, time.Now(), &rec) // 0x00 XOR 0x10 = 0x10, not special
	if len(rec.ctrl) != 1 || rec.ctrl[0].sym != SymCodecError {
		t.Fatalf("expected CODEC_ERROR, got %+v", rec.ctrl)
	}
	if len(rec.data) != 0 {
		t.Fatalf("expected no data bytes, got %v", rec.data)
	}
}

func TestInterruptedParameter(t *testing.T) {
	var dec Decoder
	var rec recorder
	// HANDSHAKE_1, two param bytes, then an unrelated control symbol.
	dec.Decode([]byte{byte(SymHandshake1), 0x00, 0x01, byte(SymFlowControl)}, time.Now(), &rec)
	if len(rec.ctrl) != 2 {
		t.Fatalf("expected CODEC_ERROR + FLOW_CONTROL, got %+v", rec.ctrl)
	}
	if rec.ctrl[0].sym != SymCodecError {
		t.Fatalf("first event = %+v, want CODEC_ERROR", rec.ctrl[0])
	}
	if rec.ctrl[1].sym != SymFlowControl {
		t.Fatalf("second event = %+v, want FLOW_CONTROL", rec.ctrl[1])
	}
}

func TestEncodeCtrlRejectsEscape(t *testing.T) {
	var enc Encoder
	if err := enc.EncodeCtrl(symEscape, 0); err == nil {
		t.Fatalf("expected error encoding escape symbol as control")
	}
}

func TestDataThenControlOrdering(t *testing.T) {
	var enc Encoder
	enc.EncodeData([]byte{1, 2, 3})
	_ = enc.EncodeCtrl(SymStartPacket, 0)
	var wire []byte
	if err := enc.Flush(func(p []byte) error { wire = append(wire, p...); return nil }); err != nil {
		t.Fatalf("flush: %v", err)
	}

	var order []string
	dec := &Decoder{}
	rec := &trackingReceiver{
		onData: func(d []byte) { order = append(order, "data") },
		onCtrl: func(s Symbol, p uint32, ts time.Time) { order = append(order, "ctrl") },
	}
	dec.Decode(wire, time.Now(), rec)
	if len(order) != 2 || order[0] != "data" || order[1] != "ctrl" {
		t.Fatalf("got order %v, want [data ctrl]", order)
	}
}

type trackingReceiver struct {
	onData func([]byte)
	onCtrl func(Symbol, uint32, time.Time)
}

func (t *trackingReceiver) OnData(d []byte)                         { t.onData(d) }
func (t *trackingReceiver) OnCtrl(s Symbol, p uint32, ts time.Time) { t.onCtrl(s, p, ts) }

func FuzzDecoder(f *testing.F) {
	f.Add([]byte{0x86, 0x00})
	f.Add([]byte{byte(SymHandshake1), 0, 0, 0, 1})
	f.Add([]byte("hello world"))
	f.Fuzz(func(t *testing.T, data []byte) {
		var dec Decoder
		var rec recorder
		// Must never panic regardless of input.
		dec.Decode(data, time.Now(), &rec)
	})
}
