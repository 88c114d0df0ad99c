package tlv

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Encode returns the wire encoding of one tag tree.
func Encode(t Tag) ([]byte, error) {
	return AppendTag(nil, t)
}

// AppendTag appends the wire encoding of t to dst.
func AppendTag(dst []byte, t Tag) ([]byte, error) {
	return appendTag(dst, t, 0)
}

// EncodeTags concatenates the encodings of tags in order.
func EncodeTags(tags []Tag) ([]byte, error) {
	var out []byte
	for _, t := range tags {
		var err error
		if out, err = appendTag(out, t, 0); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func appendTag(dst []byte, t Tag, depth int) ([]byte, error) {
	if depth > MaxDepth {
		return nil, ErrTooDeep
	}
	if t.ID > MaxID {
		return nil, fmt.Errorf("%w: 0x%04x", ErrIDOutOfRange, t.ID)
	}
	if !t.Type.Valid() {
		return nil, fmt.Errorf("%w: tag 0x%04x type 0x%02x", ErrUnknownType, t.ID, uint8(t.Type))
	}
	if len(t.Children) > math.MaxUint16 {
		return nil, fmt.Errorf("%w: tag 0x%04x has %d", ErrTooManyChildren, t.ID, len(t.Children))
	}

	hasChildren := len(t.Children) > 0
	var value []byte
	if !hasChildren || t.Value != nil {
		if t.Value == nil && t.Type != TypeCustom {
			return nil, fmt.Errorf("%w: tag 0x%04x type %s", ErrMissingValue, t.ID, t.Type)
		}
		var err error
		if value, err = encodeValue(t.Type, t.Value); err != nil {
			return nil, fmt.Errorf("tag 0x%04x: %w", t.ID, err)
		}
	}

	start := len(dst)
	encodedID := t.ID << 1
	if hasChildren {
		encodedID |= 1
	}
	dst = binary.BigEndian.AppendUint16(dst, encodedID)
	dst = append(dst, byte(t.Type))
	dst = binary.BigEndian.AppendUint32(dst, 0)

	if hasChildren {
		dst = binary.BigEndian.AppendUint16(dst, uint16(len(t.Children)))
		for _, child := range t.Children {
			var err error
			if dst, err = appendTag(dst, child, depth+1); err != nil {
				return nil, err
			}
		}
	}
	dst = append(dst, value...)

	// The declared length covers children and value but never the child count.
	payloadLen := len(dst) - start - HeaderLen
	if hasChildren {
		payloadLen -= 2
	}
	if uint64(payloadLen) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: tag 0x%04x payload %d bytes", ErrValueRange, t.ID, payloadLen)
	}
	binary.BigEndian.PutUint32(dst[start+3:start+HeaderLen], uint32(payloadLen))
	return dst, nil
}
