package frame

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/danmuck/amulectl/internal/protocol/tlv"
)

const (
	// HeaderLen is the transmission header: flags then payload length.
	HeaderLen = 8
	// AppHeaderLen is the opcode plus the top-level tag count.
	AppHeaderLen = 3

	FlagZlib        uint32 = 0x01
	FlagUTF8Numbers uint32 = 0x02
	FlagBlank       uint32 = 0x20
)

var (
	ErrShortHeader      = errors.New("frame: short transmission header")
	ErrPayloadTooLarge  = errors.New("frame: payload too large")
	ErrMalformedPayload = errors.New("frame: malformed payload")
	ErrUnsupportedFlags = errors.New("frame: unsupported flags")
	ErrTooManyTags      = errors.New("frame: too many top-level tags")
	ErrIncompletePacket = errors.New("frame: incomplete packet")
	ErrTrailingBytes    = errors.New("frame: trailing bytes after packet")
)

// Header is the transmission-layer header.
type Header struct {
	Flags      uint32
	PayloadLen uint32
}

// Packet is one application-layer message.
type Packet struct {
	Flags  uint32
	Opcode uint8
	Tags   []tlv.Tag
}

// Limits constrains frame decode/encode memory use.
type Limits struct {
	MaxPayloadBytes uint32
}

func DefaultLimits() Limits {
	return Limits{
		MaxPayloadBytes: 16 * 1024 * 1024,
	}
}

func (l Limits) check(n uint64) error {
	if l.MaxPayloadBytes > 0 && n > uint64(l.MaxPayloadBytes) {
		return fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, n)
	}
	return nil
}

// Build serializes opcode and tags into a complete framed packet.
func Build(opcode uint8, tags []tlv.Tag) ([]byte, error) {
	if len(tags) > math.MaxUint16 {
		return nil, fmt.Errorf("%w: %d", ErrTooManyTags, len(tags))
	}
	buf := make([]byte, HeaderLen, 64)
	buf = append(buf, opcode)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(tags)))
	for _, tag := range tags {
		var err error
		if buf, err = tlv.AppendTag(buf, tag); err != nil {
			return nil, err
		}
	}
	payloadLen := len(buf) - HeaderLen
	if uint64(payloadLen) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, payloadLen)
	}
	copy(buf[:HeaderLen], EncodeHeader(Header{Flags: FlagBlank, PayloadLen: uint32(payloadLen)}))
	return buf, nil
}

// BuildRaw frames opcode plus already-encoded tags, as produced by tlv.MakeTag.
func BuildRaw(opcode uint8, encodedTags [][]byte) ([]byte, error) {
	if len(encodedTags) > math.MaxUint16 {
		return nil, fmt.Errorf("%w: %d", ErrTooManyTags, len(encodedTags))
	}
	app := []byte{opcode, 0, 0}
	binary.BigEndian.PutUint16(app[1:], uint16(len(encodedTags)))
	app = append(app, bytes.Join(encodedTags, nil)...)
	if uint64(len(app)) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(app))
	}
	out := EncodeHeader(Header{Flags: FlagBlank, PayloadLen: uint32(len(app))})
	return append(out, app...), nil
}

func EncodeHeader(h Header) []byte {
	buf := make([]byte, HeaderLen)
	binary.BigEndian.PutUint32(buf[0:4], h.Flags)
	binary.BigEndian.PutUint32(buf[4:8], h.PayloadLen)
	return buf
}

func DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderLen {
		return Header{}, ErrShortHeader
	}
	return Header{
		Flags:      binary.BigEndian.Uint32(b[0:4]),
		PayloadLen: binary.BigEndian.Uint32(b[4:8]),
	}, nil
}

// Parse decodes exactly one complete packet.
func Parse(b []byte) (Packet, error) {
	h, err := DecodeHeader(b)
	if err != nil {
		return Packet{}, err
	}
	total := uint64(HeaderLen) + uint64(h.PayloadLen)
	if uint64(len(b)) < total {
		return Packet{}, fmt.Errorf("%w: have %d of %d bytes", ErrIncompletePacket, len(b), total)
	}
	if uint64(len(b)) > total {
		return Packet{}, fmt.Errorf("%w: %d", ErrTrailingBytes, uint64(len(b))-total)
	}
	return parsePayload(h, b[HeaderLen:])
}

func parsePayload(h Header, payload []byte) (Packet, error) {
	if h.Flags&(FlagZlib|FlagUTF8Numbers) != 0 {
		return Packet{}, fmt.Errorf("%w: 0x%08x", ErrUnsupportedFlags, h.Flags)
	}
	if len(payload) < AppHeaderLen {
		return Packet{}, fmt.Errorf("%w: %v", ErrMalformedPayload, tlv.ErrTruncated)
	}
	pkt := Packet{Flags: h.Flags, Opcode: payload[0]}
	count := int(binary.BigEndian.Uint16(payload[1:3]))
	tags, next, err := tlv.DecodeTags(payload, AppHeaderLen, count)
	if err != nil {
		return Packet{}, fmt.Errorf("%w: opcode=0x%02x: %w", ErrMalformedPayload, pkt.Opcode, err)
	}
	if next != len(payload) {
		return Packet{}, fmt.Errorf("%w: opcode=0x%02x: %d unread bytes", ErrMalformedPayload, pkt.Opcode, len(payload)-next)
	}
	pkt.Tags = tags
	return pkt, nil
}

// ReadPacket blocks until one full packet has been read from r.
func ReadPacket(r io.Reader, limits Limits) (Packet, error) {
	var fixed [HeaderLen]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Packet{}, ErrShortHeader
		}
		return Packet{}, err
	}
	h, err := DecodeHeader(fixed[:])
	if err != nil {
		return Packet{}, err
	}
	if err := limits.check(uint64(h.PayloadLen)); err != nil {
		return Packet{}, err
	}
	payload := make([]byte, h.PayloadLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Packet{}, err
	}
	return parsePayload(h, payload)
}

// WritePacket frames and writes one packet to w.
func WritePacket(w io.Writer, p Packet, limits Limits) error {
	buf, err := Build(p.Opcode, p.Tags)
	if err != nil {
		return err
	}
	if p.Flags != 0 {
		binary.BigEndian.PutUint32(buf[0:4], p.Flags)
	}
	if err := limits.check(uint64(len(buf) - HeaderLen)); err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}
