package frame

import (
	"bytes"
	"encoding/binary"
	"errors"
	"reflect"
	"testing"

	"github.com/danmuck/amulectl/internal/protocol/tlv"
)

func samplePacket() Packet {
	return Packet{
		Flags:  FlagBlank,
		Opcode: 0x1F,
		Tags: []tlv.Tag{
			tlv.New(0x0300, tlv.TypeHash16, tlv.Hash16{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16},
				tlv.New(0x0301, tlv.TypeString, "ubuntu.iso"),
				tlv.New(0x0303, tlv.TypeUint64, uint64(4_000_000_000)),
			),
			tlv.New(0x0708, tlv.TypeUint16, uint16(100)),
		},
	}
}

func TestBuildHeaderAndPayloadLength(t *testing.T) {
	in := samplePacket()
	b, err := Build(in.Opcode, in.Tags)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if flags := binary.BigEndian.Uint32(b[0:4]); flags != 0x20 {
		t.Fatalf("flags=0x%x", flags)
	}
	if n := binary.BigEndian.Uint32(b[4:8]); int(n) != len(b)-HeaderLen {
		t.Fatalf("length=%d payload=%d", n, len(b)-HeaderLen)
	}
	if b[8] != in.Opcode {
		t.Fatalf("opcode=0x%x", b[8])
	}
	if count := binary.BigEndian.Uint16(b[9:11]); count != 2 {
		t.Fatalf("tag count=%d", count)
	}
}

func TestBuildEmptyPacket(t *testing.T) {
	b, err := Build(0x0A, nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	want := []byte{0, 0, 0, 0x20, 0, 0, 0, 3, 0x0A, 0, 0}
	if !bytes.Equal(b, want) {
		t.Fatalf("got=%x want=%x", b, want)
	}
}

func TestBuildRawMatchesBuild(t *testing.T) {
	in := samplePacket()
	raw := make([][]byte, 0, len(in.Tags))
	for _, tag := range in.Tags {
		enc, err := tlv.Encode(tag)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		raw = append(raw, enc)
	}
	a, _ := Build(in.Opcode, in.Tags)
	b, err := BuildRaw(in.Opcode, raw)
	if err != nil {
		t.Fatalf("build raw: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Fatalf("build mismatch")
	}
}

func TestParseRoundTrip(t *testing.T) {
	in := samplePacket()
	b, _ := Build(in.Opcode, in.Tags)
	out, err := Parse(b)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Fatalf("packet mismatch: in=%+v out=%+v", in, out)
	}
}

func TestFramerOneByteChunks(t *testing.T) {
	in := samplePacket()
	b, _ := Build(in.Opcode, in.Tags)

	whole := NewFramer(DefaultLimits())
	whole.Feed(b)
	want, ok, err := whole.Next()
	if err != nil || !ok {
		t.Fatalf("whole: ok=%v err=%v", ok, err)
	}

	f := NewFramer(DefaultLimits())
	for i := 0; i < len(b); i++ {
		if _, ok, err := f.Next(); ok || err != nil {
			t.Fatalf("byte %d: premature packet ok=%v err=%v", i, ok, err)
		}
		f.Feed(b[i : i+1])
	}
	got, ok, err := f.Next()
	if err != nil || !ok {
		t.Fatalf("chunked: ok=%v err=%v", ok, err)
	}
	if !reflect.DeepEqual(want, got) {
		t.Fatalf("chunked mismatch: want=%+v got=%+v", want, got)
	}
	if f.Buffered() != 0 {
		t.Fatalf("buffered=%d", f.Buffered())
	}
}

func TestFramerKeepsTrailingBytes(t *testing.T) {
	first, _ := Build(0x04, nil)
	second, _ := Build(0x0C, []tlv.Tag{tlv.New(0x0200, tlv.TypeUint32, uint32(7))})
	stream := append(append([]byte{}, first...), second[:5]...)

	f := NewFramer(DefaultLimits())
	f.Feed(stream)
	pkt, ok, err := f.Next()
	if err != nil || !ok || pkt.Opcode != 0x04 {
		t.Fatalf("first: pkt=%+v ok=%v err=%v", pkt, ok, err)
	}
	if _, ok, _ := f.Next(); ok {
		t.Fatalf("second packet is incomplete")
	}
	f.Feed(second[5:])
	pkt, ok, err = f.Next()
	if err != nil || !ok || pkt.Opcode != 0x0C || len(pkt.Tags) != 1 {
		t.Fatalf("second: pkt=%+v ok=%v err=%v", pkt, ok, err)
	}
}

func TestFramerMalformedPayloadStaysInSync(t *testing.T) {
	bad := []byte{0, 0, 0, 0x20, 0, 0, 0, 4, 0x05, 0, 1, 0xFF}
	good, _ := Build(0x04, nil)

	f := NewFramer(DefaultLimits())
	f.Feed(append(append([]byte{}, bad...), good...))
	_, ok, err := f.Next()
	if !ok || !errors.Is(err, ErrMalformedPayload) {
		t.Fatalf("expected consumed malformed payload, ok=%v err=%v", ok, err)
	}
	pkt, ok, err := f.Next()
	if err != nil || !ok || pkt.Opcode != 0x04 {
		t.Fatalf("resync failed: pkt=%+v ok=%v err=%v", pkt, ok, err)
	}
}

func TestFramerPayloadTooLarge(t *testing.T) {
	f := NewFramer(Limits{MaxPayloadBytes: 16})
	f.Feed(EncodeHeader(Header{Flags: FlagBlank, PayloadLen: 17}))
	if _, _, err := f.Next(); !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
}

func TestParseRejectsCompressedFlag(t *testing.T) {
	b, _ := Build(0x04, nil)
	binary.BigEndian.PutUint32(b[0:4], FlagBlank|FlagZlib)
	if _, err := Parse(b); !errors.Is(err, ErrUnsupportedFlags) {
		t.Fatalf("expected ErrUnsupportedFlags, got %v", err)
	}
}

func TestReadWritePacketRoundTrip(t *testing.T) {
	in := samplePacket()
	var buf bytes.Buffer
	if err := WritePacket(&buf, in, DefaultLimits()); err != nil {
		t.Fatalf("write packet: %v", err)
	}
	out, err := ReadPacket(&buf, DefaultLimits())
	if err != nil {
		t.Fatalf("read packet: %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Fatalf("packet mismatch: in=%+v out=%+v", in, out)
	}
}

func TestReadPacketMalformedHeaderIsDeterministic(t *testing.T) {
	_, err := ReadPacket(bytes.NewReader([]byte{1, 2, 3}), DefaultLimits())
	if !errors.Is(err, ErrShortHeader) {
		t.Fatalf("expected ErrShortHeader, got %v", err)
	}
}
