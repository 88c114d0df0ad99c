package tlv

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"net/netip"
	"strconv"
	"strings"

	"github.com/holiman/uint256"
)

// Hash16 is the 16-byte opaque hash value (MD4 file hashes, password digests).
type Hash16 [16]byte

// ParseHash16 parses a 32-digit hex string.
func ParseHash16(s string) (Hash16, error) {
	var h Hash16
	raw, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return h, fmt.Errorf("%w: hash16: %v", ErrValueType, err)
	}
	if len(raw) != len(h) {
		return h, fmt.Errorf("%w: hash16 has %d bytes", ErrValueLength, len(raw))
	}
	copy(h[:], raw)
	return h, nil
}

func (h Hash16) String() string {
	return hex.EncodeToString(h[:])
}

// maxUint128 is 2^128-1.
var maxUint128 = new(uint256.Int).Rsh(new(uint256.Int).SetAllOne(), 128)

func encodeValue(typ Type, v any) ([]byte, error) {
	switch typ {
	case TypeUint8, TypeUint16, TypeUint32, TypeUint64:
		n, err := toUint64(v)
		if err != nil {
			return nil, err
		}
		width := typ.fixedWidth()
		if width < 8 && n >= 1<<(8*width) {
			return nil, fmt.Errorf("%w: %d does not fit %s", ErrValueRange, n, typ)
		}
		out := make([]byte, 8)
		binary.BigEndian.PutUint64(out, n)
		return out[8-width:], nil
	case TypeUint128:
		z, err := toUint128(v)
		if err != nil {
			return nil, err
		}
		b32 := z.Bytes32()
		return append([]byte(nil), b32[16:]...), nil
	case TypeString:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s wants string, got %T", ErrValueType, typ, v)
		}
		out := make([]byte, 0, len(s)+1)
		out = append(out, s...)
		return append(out, 0), nil
	case TypeDouble:
		f, err := toFloat64(v)
		if err != nil {
			return nil, err
		}
		out := strconv.AppendFloat(nil, f, 'g', -1, 64)
		return append(out, 0), nil
	case TypeIPv4:
		ap, err := toAddrPort(v)
		if err != nil {
			return nil, err
		}
		ip := ap.Addr().As4()
		out := make([]byte, 6)
		copy(out, ip[:])
		binary.BigEndian.PutUint16(out[4:], ap.Port())
		return out, nil
	case TypeHash16:
		h, err := toHash16(v)
		if err != nil {
			return nil, err
		}
		return append([]byte(nil), h[:]...), nil
	case TypeCustom:
		switch raw := v.(type) {
		case nil:
			return nil, nil
		case []byte:
			return append([]byte(nil), raw...), nil
		default:
			return nil, fmt.Errorf("%w: custom tag carries %T", ErrValueType, v)
		}
	default:
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnknownType, uint8(typ))
	}
}

func decodeValue(typ Type, raw []byte) (any, error) {
	if w := typ.fixedWidth(); w >= 0 && len(raw) != w {
		return nil, fmt.Errorf("%w: %s wants %d bytes, got %d", ErrValueLength, typ, w, len(raw))
	}
	switch typ {
	case TypeCustom:
		if len(raw) == 0 {
			return nil, nil
		}
		return append([]byte(nil), raw...), nil
	case TypeUint8:
		return raw[0], nil
	case TypeUint16:
		return binary.BigEndian.Uint16(raw), nil
	case TypeUint32:
		return binary.BigEndian.Uint32(raw), nil
	case TypeUint64:
		return binary.BigEndian.Uint64(raw), nil
	case TypeUint128:
		return new(uint256.Int).SetBytes(raw), nil
	case TypeString:
		return string(bytes.TrimSuffix(raw, []byte{0})), nil
	case TypeDouble:
		text := strings.TrimSpace(string(bytes.TrimRight(raw, "\x00")))
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: double %q", ErrValueType, text)
		}
		return f, nil
	case TypeIPv4:
		addr := netip.AddrFrom4([4]byte{raw[0], raw[1], raw[2], raw[3]})
		return netip.AddrPortFrom(addr, binary.BigEndian.Uint16(raw[4:6])), nil
	case TypeHash16:
		var h Hash16
		copy(h[:], raw)
		return h, nil
	default:
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnknownType, uint8(typ))
	}
}

func toUint64(v any) (uint64, error) {
	switch n := v.(type) {
	case uint8:
		return uint64(n), nil
	case uint16:
		return uint64(n), nil
	case uint32:
		return uint64(n), nil
	case uint64:
		return n, nil
	case uint:
		return uint64(n), nil
	case int, int8, int16, int32, int64:
		i := toInt64(n)
		if i < 0 {
			return 0, fmt.Errorf("%w: negative integer %d", ErrValueRange, i)
		}
		return uint64(i), nil
	case string:
		u, err := strconv.ParseUint(strings.TrimSpace(n), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrValueType, n)
		}
		return u, nil
	default:
		return 0, fmt.Errorf("%w: want unsigned integer, got %T", ErrValueType, v)
	}
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int8:
		return int64(n)
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	}
	return 0
}

func toUint128(v any) (*uint256.Int, error) {
	var z *uint256.Int
	switch n := v.(type) {
	case *uint256.Int:
		if n == nil {
			return nil, fmt.Errorf("%w: nil uint128", ErrMissingValue)
		}
		z = n
	case uint256.Int:
		z = &n
	case string:
		parsed, err := uint256.FromDecimal(strings.TrimSpace(n))
		if err != nil {
			return nil, fmt.Errorf("%w: uint128 %q: %v", ErrValueType, n, err)
		}
		z = parsed
	default:
		u, err := toUint64(v)
		if err != nil {
			return nil, err
		}
		z = uint256.NewInt(u)
	}
	if z.Gt(maxUint128) {
		return nil, fmt.Errorf("%w: %s does not fit uint128", ErrValueRange, z.Dec())
	}
	return z, nil
}

func toFloat64(v any) (float64, error) {
	switch f := v.(type) {
	case float64:
		return f, nil
	case float32:
		return float64(f), nil
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: double %q", ErrValueType, f)
		}
		return parsed, nil
	default:
		n, err := toUint64(v)
		if err != nil {
			return 0, err
		}
		return float64(n), nil
	}
}

func toAddrPort(v any) (netip.AddrPort, error) {
	var ap netip.AddrPort
	switch a := v.(type) {
	case netip.AddrPort:
		ap = a
	case string:
		parsed, err := netip.ParseAddrPort(strings.TrimSpace(a))
		if err != nil {
			return ap, fmt.Errorf("%w: ipv4 %q: %v", ErrValueType, a, err)
		}
		ap = parsed
	default:
		return ap, fmt.Errorf("%w: ipv4 wants netip.AddrPort, got %T", ErrValueType, v)
	}
	if !ap.Addr().Is4() {
		return ap, fmt.Errorf("%w: %s is not ipv4", ErrValueType, ap.Addr())
	}
	return ap, nil
}

func toHash16(v any) (Hash16, error) {
	switch h := v.(type) {
	case Hash16:
		return h, nil
	case [16]byte:
		return Hash16(h), nil
	case []byte:
		if len(h) != 16 {
			return Hash16{}, fmt.Errorf("%w: hash16 has %d bytes", ErrValueLength, len(h))
		}
		var out Hash16
		copy(out[:], h)
		return out, nil
	case string:
		return ParseHash16(h)
	default:
		return Hash16{}, fmt.Errorf("%w: hash16 wants Hash16, got %T", ErrValueType, v)
	}
}

// Uint returns an unsigned integer value of up to 64 bits.
func (t Tag) Uint() (uint64, bool) {
	switch v := t.Value.(type) {
	case uint8, uint16, uint32, uint64:
		n, err := toUint64(v)
		return n, err == nil
	case *uint256.Int:
		if !v.IsUint64() {
			return 0, false
		}
		return v.Uint64(), true
	}
	return 0, false
}

// Str returns a string value.
func (t Tag) Str() (string, bool) {
	s, ok := t.Value.(string)
	return s, ok
}

// Float returns a double value.
func (t Tag) Float() (float64, bool) {
	f, ok := t.Value.(float64)
	return f, ok
}

// Hash returns a hash16 value.
func (t Tag) Hash() (Hash16, bool) {
	h, ok := t.Value.(Hash16)
	return h, ok
}

// Text renders the value for humans and logs. Wide integers render as decimal.
func (t Tag) Text() string {
	switch v := t.Value.(type) {
	case nil:
		return ""
	case *uint256.Int:
		return v.Dec()
	case netip.AddrPort:
		return v.String()
	case Hash16:
		return v.String()
	case []byte:
		return hex.EncodeToString(v)
	case float64:
		if math.IsInf(v, 0) || math.IsNaN(v) {
			return strconv.FormatFloat(v, 'g', -1, 64)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}
