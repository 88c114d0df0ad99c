package tlv

import (
	"encoding/binary"
	"fmt"
)

// Decode reads one tag tree starting at offset and returns the offset just past it.
// It never reads outside buf; short input yields ErrTruncated.
func Decode(buf []byte, offset int) (Tag, int, error) {
	return decode(buf, offset, 0)
}

// DecodeTags reads count consecutive tags starting at offset.
func DecodeTags(buf []byte, offset int, count int) ([]Tag, int, error) {
	tags := make([]Tag, 0, capacityFor(count, len(buf)-offset))
	for i := 0; i < count; i++ {
		tag, next, err := decode(buf, offset, 0)
		if err != nil {
			return nil, offset, fmt.Errorf("tag[%d]: %w", i, err)
		}
		tags = append(tags, tag)
		offset = next
	}
	return tags, offset, nil
}

func decode(buf []byte, offset int, depth int) (Tag, int, error) {
	if depth > MaxDepth {
		return Tag{}, offset, ErrTooDeep
	}
	if offset < 0 || len(buf)-offset < HeaderLen {
		return Tag{}, offset, fmt.Errorf("%w: tag header at offset %d", ErrTruncated, offset)
	}
	rawID := binary.BigEndian.Uint16(buf[offset : offset+2])
	typ := Type(buf[offset+2])
	declared := uint64(binary.BigEndian.Uint32(buf[offset+3 : offset+HeaderLen]))
	tag := Tag{ID: rawID >> 1, Type: typ}
	if !typ.Valid() {
		return Tag{}, offset, fmt.Errorf("%w: tag 0x%04x type 0x%02x", ErrUnknownType, tag.ID, uint8(typ))
	}
	pos := offset + HeaderLen

	if rawID&1 == 0 {
		if uint64(len(buf)-pos) < declared {
			return Tag{}, offset, fmt.Errorf("%w: tag 0x%04x value wants %d bytes", ErrTruncated, tag.ID, declared)
		}
		end := pos + int(declared)
		value, err := decodeValue(typ, buf[pos:end])
		if err != nil {
			return Tag{}, offset, fmt.Errorf("tag 0x%04x: %w", tag.ID, err)
		}
		tag.Value = value
		return tag, end, nil
	}

	if len(buf)-pos < 2 {
		return Tag{}, offset, fmt.Errorf("%w: tag 0x%04x child count", ErrTruncated, tag.ID)
	}
	count := int(binary.BigEndian.Uint16(buf[pos : pos+2]))
	pos += 2
	if uint64(len(buf)-pos) < declared {
		return Tag{}, offset, fmt.Errorf("%w: tag 0x%04x payload wants %d bytes", ErrTruncated, tag.ID, declared)
	}
	end := pos + int(declared)

	// Children are confined to this tag's declared payload.
	bounded := buf[:end]
	childStart := pos
	tag.Children = make([]Tag, 0, capacityFor(count, end-pos))
	for i := 0; i < count; i++ {
		child, next, err := decode(bounded, pos, depth+1)
		if err != nil {
			return Tag{}, offset, err
		}
		tag.Children = append(tag.Children, child)
		pos = next
	}

	valueLen := int64(declared) - int64(pos-childStart)
	if valueLen < 0 {
		return Tag{}, offset, fmt.Errorf("%w: tag 0x%04x", ErrNegativeValueLength, tag.ID)
	}
	if valueLen > 0 {
		value, err := decodeValue(typ, buf[pos:end])
		if err != nil {
			return Tag{}, offset, fmt.Errorf("tag 0x%04x: %w", tag.ID, err)
		}
		tag.Value = value
	}
	return tag, end, nil
}

// capacityFor bounds a declared element count by how many tag headers fit in
// the remaining bytes.
func capacityFor(count, remaining int) int {
	if remaining < 0 {
		return 0
	}
	return min(count, remaining/HeaderLen)
}
