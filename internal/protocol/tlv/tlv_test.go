package tlv

import (
	"bytes"
	"encoding/binary"
	"errors"
	"net/netip"
	"reflect"
	"runtime"
	"testing"

	"github.com/holiman/uint256"
)

func mustHash(t *testing.T, s string) Hash16 {
	t.Helper()
	h, err := ParseHash16(s)
	if err != nil {
		t.Fatalf("parse hash: %v", err)
	}
	return h
}

func roundTrip(t *testing.T, in Tag) Tag {
	t.Helper()
	b, err := Encode(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, next, err := Decode(b, 0)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if next != len(b) {
		t.Fatalf("decode consumed %d of %d bytes", next, len(b))
	}
	return out
}

func TestRoundTripEveryType(t *testing.T) {
	big := new(uint256.Int).Lsh(uint256.NewInt(5), 64)
	big.Add(big, uint256.NewInt(3))
	cases := []Tag{
		New(0x0001, TypeUint8, uint8(0xFE)),
		New(0x0002, TypeUint16, uint16(0x0204)),
		New(0x0003, TypeUint32, uint32(0xDEADBEEF)),
		New(0x0004, TypeUint64, uint64(1<<63+12345)),
		New(0x0005, TypeUint128, big),
		New(0x0006, TypeString, "amule-đ-test"),
		New(0x0007, TypeString, ""),
		New(0x0008, TypeDouble, 3.25),
		New(0x0009, TypeDouble, 0.1),
		New(0x000A, TypeIPv4, netip.MustParseAddrPort("192.168.1.10:4662")),
		New(0x000B, TypeHash16, mustHash(t, "00112233445566778899aabbccddeeff")),
		New(0x000C, TypeCustom, nil),
		New(0x000D, TypeCustom, []byte{0xAA, 0xBB, 0x00}),
		New(MaxID, TypeUint8, uint8(1)),
	}
	for _, in := range cases {
		out := roundTrip(t, in)
		if !reflect.DeepEqual(in, out) {
			t.Fatalf("round trip mismatch type=%s: in=%+v out=%+v", in.Type, in, out)
		}
	}
}

func nested(depth int, withValue bool) Tag {
	leaf := New(0x0100, TypeString, "leaf")
	if depth == 0 {
		return leaf
	}
	if withValue {
		return New(uint16(0x0200+depth), TypeUint16, uint16(depth), nested(depth-1, withValue), leaf)
	}
	return Container(uint16(0x0200+depth), nested(depth-1, withValue), leaf)
}

func TestRoundTripNestingDepths(t *testing.T) {
	for depth := 0; depth <= 5; depth++ {
		for _, withValue := range []bool{false, true} {
			in := nested(depth, withValue)
			out := roundTrip(t, in)
			if !reflect.DeepEqual(in, out) {
				t.Fatalf("depth=%d withValue=%v mismatch:\nin=%+v\nout=%+v", depth, withValue, in, out)
			}
		}
	}
}

func TestRoundTripManyChildrenKeepsOrder(t *testing.T) {
	children := make([]Tag, 0, 300)
	for i := 0; i < 300; i++ {
		children = append(children, New(uint16(i), TypeUint32, uint32(i*7)))
	}
	in := New(0x0700, TypeUint8, uint8(2), children...)
	out := roundTrip(t, in)
	if !reflect.DeepEqual(in, out) {
		t.Fatalf("many children mismatch")
	}
	for i, c := range out.Children {
		if c.ID != uint16(i) {
			t.Fatalf("child %d has id %d", i, c.ID)
		}
	}
}

func TestEncodeStringTagBytes(t *testing.T) {
	got, err := MakeTag(0x0100, TypeString, "ab")
	if err != nil {
		t.Fatalf("make tag: %v", err)
	}
	want := []byte{0x02, 0x00, byte(TypeString), 0, 0, 0, 3, 'a', 'b', 0}
	if !bytes.Equal(got, want) {
		t.Fatalf("got=%x want=%x", got, want)
	}
}

func TestEncodeIPv4LiteralOrderAndPort(t *testing.T) {
	got, err := MakeTag(0x0500, TypeIPv4, "10.1.2.3:4661")
	if err != nil {
		t.Fatalf("make tag: %v", err)
	}
	value := got[HeaderLen:]
	want := []byte{10, 1, 2, 3, 0x12, 0x35}
	if !bytes.Equal(value, want) {
		t.Fatalf("got=%x want=%x", value, want)
	}
}

func TestDeclaredLengthExcludesChildCount(t *testing.T) {
	a := New(0x0010, TypeUint32, uint32(1))
	b := New(0x0011, TypeString, "xyz")
	sa, _ := Encode(a)
	sb, _ := Encode(b)
	parent := New(0x0012, TypeUint16, uint16(9), a, b)
	enc, err := Encode(parent)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	declared := binary.BigEndian.Uint32(enc[3:HeaderLen])
	want := uint32(len(sa) + len(sb) + 2)
	if declared != want {
		t.Fatalf("declared=%d want=%d", declared, want)
	}
	if binary.BigEndian.Uint16(enc[0:2]) != 0x0012<<1|1 {
		t.Fatalf("children flag missing: %x", enc[0:2])
	}
	if count := binary.BigEndian.Uint16(enc[HeaderLen : HeaderLen+2]); count != 2 {
		t.Fatalf("child count=%d", count)
	}
	if len(enc) != HeaderLen+2+int(declared) {
		t.Fatalf("total=%d declared=%d", len(enc), declared)
	}

	empty := Container(0x0013, a)
	enc, _ = Encode(empty)
	if declared := binary.BigEndian.Uint32(enc[3:HeaderLen]); declared != uint32(len(sa)) {
		t.Fatalf("valueless container declared=%d want=%d", declared, len(sa))
	}
}

func TestDecodeTruncatedAtEveryOffset(t *testing.T) {
	in := New(0x0300, TypeHash16, mustHash(t, "ffeeddccbbaa99887766554433221100"),
		New(0x0301, TypeString, "name.iso"),
		Container(0x0302, New(0x0303, TypeUint64, uint64(42))),
		New(0x0304, TypeIPv4, netip.MustParseAddrPort("1.2.3.4:5")),
	)
	enc, err := Encode(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	for cut := 0; cut < len(enc); cut++ {
		_, _, err := Decode(enc[:cut], 0)
		if err == nil {
			t.Fatalf("cut=%d: expected error", cut)
		}
		if !errors.Is(err, ErrTruncated) {
			t.Fatalf("cut=%d: expected ErrTruncated, got %v", cut, err)
		}
	}
}

func TestDecodeUnknownType(t *testing.T) {
	buf := []byte{0x00, 0x02, 0x3F, 0, 0, 0, 1, 0x01}
	_, _, err := Decode(buf, 0)
	if !errors.Is(err, ErrUnknownType) {
		t.Fatalf("expected ErrUnknownType, got %v", err)
	}
}

func TestDecodeFixedWidthMismatch(t *testing.T) {
	buf := []byte{0x00, 0x02, byte(TypeUint32), 0, 0, 0, 2, 0x01, 0x02}
	_, _, err := Decode(buf, 0)
	if !errors.Is(err, ErrValueLength) {
		t.Fatalf("expected ErrValueLength, got %v", err)
	}
}

func TestDecodeChildOverrunsParent(t *testing.T) {
	child, _ := MakeTag(0x0001, TypeUint8, uint8(1))
	buf := []byte{0x00, 0x05, byte(TypeCustom), 0, 0, 0, byte(len(child) - 1), 0, 1}
	buf = append(buf, child...)
	_, _, err := Decode(buf, 0)
	if !errors.Is(err, ErrTruncated) {
		t.Fatalf("expected ErrTruncated, got %v", err)
	}
}

func TestUint128IsOneMagnitude(t *testing.T) {
	value := make([]byte, 16)
	binary.BigEndian.PutUint64(value[0:8], 5)
	binary.BigEndian.PutUint64(value[8:16], 3)
	buf := append([]byte{0x00, 0x02, byte(TypeUint128), 0, 0, 0, 16}, value...)
	tag, _, err := Decode(buf, 0)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := tag.Text(); got != "92233720368547758083" {
		t.Fatalf("uint128 text=%s", got)
	}
	if _, ok := tag.Uint(); ok {
		t.Fatalf("uint128 above 64 bits must not narrow")
	}
}

func TestEncodeRejectsBadInput(t *testing.T) {
	cases := []struct {
		name string
		tag  Tag
		want error
	}{
		{"id", New(MaxID+1, TypeUint8, uint8(1)), ErrIDOutOfRange},
		{"missing", New(1, TypeString, nil), ErrMissingValue},
		{"range", New(1, TypeUint8, 256), ErrValueRange},
		{"negative", New(1, TypeUint16, -1), ErrValueRange},
		{"type", New(1, TypeString, 12), ErrValueType},
		{"unknown", New(1, Type(0x7F), uint8(1)), ErrUnknownType},
		{"uint128", New(1, TypeUint128, "340282366920938463463374607431768211456"), ErrValueRange},
		{"hash", New(1, TypeHash16, "abcd"), ErrValueLength},
	}
	for _, tc := range cases {
		if _, err := Encode(tc.tag); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
}

func TestDecodeTagsSequence(t *testing.T) {
	var buf []byte
	var err error
	in := []Tag{New(1, TypeUint8, uint8(1)), New(2, TypeString, "two"), Container(3, New(4, TypeUint16, uint16(4)))}
	for _, tag := range in {
		if buf, err = AppendTag(buf, tag); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	out, next, err := DecodeTags(buf, 0, len(in))
	if err != nil {
		t.Fatalf("decode tags: %v", err)
	}
	if next != len(buf) || !reflect.DeepEqual(in, out) {
		t.Fatalf("sequence mismatch next=%d in=%+v out=%+v", next, in, out)
	}
	if got, ok := Find(out, 2); !ok || got.Text() != "two" {
		t.Fatalf("find: %+v %v", got, ok)
	}
}

func TestStringKeepsEmbeddedTrailingNUL(t *testing.T) {
	in := New(0x0100, TypeString, "ab\x00")
	raw, err := Encode(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, _, err := Decode(raw, 0)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got, _ := out.Str(); got != "ab\x00" {
		t.Fatalf("string=%q want %q", got, "ab\x00")
	}

	// A value without its terminator decodes as-is.
	bare := []byte{0x02, 0x00, byte(TypeString), 0, 0, 0, 2, 'a', 'b'}
	out, _, err = Decode(bare, 0)
	if err != nil {
		t.Fatalf("decode bare: %v", err)
	}
	if got, _ := out.Str(); got != "ab" {
		t.Fatalf("bare string=%q", got)
	}
}

func TestDecodeBoundsChildPreallocation(t *testing.T) {
	const levels = 30
	const frame = HeaderLen + 2
	var buf []byte
	for i := 0; i < levels; i++ {
		declared := uint32((levels - 1 - i) * frame)
		hdr := make([]byte, frame)
		binary.BigEndian.PutUint16(hdr[0:2], uint16(i+1)<<1|1)
		hdr[2] = byte(TypeCustom)
		binary.BigEndian.PutUint32(hdr[3:7], declared)
		binary.BigEndian.PutUint16(hdr[7:9], 0xFFFF)
		buf = append(buf, hdr...)
	}

	var before, after runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&before)
	_, _, err := Decode(buf, 0)
	runtime.ReadMemStats(&after)

	if !errors.Is(err, ErrTruncated) {
		t.Fatalf("expected ErrTruncated, got %v", err)
	}
	if grew := after.TotalAlloc - before.TotalAlloc; grew > 1<<20 {
		t.Fatalf("decode of %d bytes allocated %d bytes", len(buf), grew)
	}

	if _, _, err := DecodeTags(buf[:HeaderLen], 0, 0xFFFF); !errors.Is(err, ErrTruncated) {
		t.Fatalf("expected ErrTruncated from DecodeTags, got %v", err)
	}
}
