package frame

import (
	"encoding/binary"
)

// Framer reassembles packets from an arbitrarily chunked byte stream.
// Bytes past a complete packet stay buffered as the start of the next one.
type Framer struct {
	buf    []byte
	limits Limits
}

func NewFramer(limits Limits) *Framer {
	return &Framer{limits: limits}
}

// Feed appends one received chunk.
func (f *Framer) Feed(chunk []byte) {
	f.buf = append(f.buf, chunk...)
}

// Buffered reports how many bytes are waiting.
func (f *Framer) Buffered() int {
	return len(f.buf)
}

// Next returns the next complete packet, or ok=false when more data is needed.
//
// ErrPayloadTooLarge leaves the stream unusable. Any other error consumed the
// offending packet and framing is still in sync.
func (f *Framer) Next() (pkt Packet, ok bool, err error) {
	if len(f.buf) < HeaderLen {
		return Packet{}, false, nil
	}
	payloadLen := binary.BigEndian.Uint32(f.buf[4:8])
	if err := f.limits.check(uint64(payloadLen)); err != nil {
		return Packet{}, false, err
	}
	total := HeaderLen + int(payloadLen)
	if len(f.buf) < total {
		return Packet{}, false, nil
	}

	raw := f.buf[:total]
	h, _ := DecodeHeader(raw)
	pkt, err = parsePayload(h, raw[HeaderLen:])

	rest := len(f.buf) - total
	copy(f.buf, f.buf[total:])
	f.buf = f.buf[:rest]
	if err != nil {
		return Packet{}, true, err
	}
	return pkt, true, nil
}
