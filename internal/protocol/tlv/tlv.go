package tlv

import (
	"errors"
	"fmt"
)

// HeaderLen is the fixed size of a tag header: encoded id, type, payload length.
const HeaderLen = 7

// MaxID is the largest tag id that fits the 15 bits left after the children flag.
const MaxID = 0x7FFF

// MaxDepth bounds decode recursion on untrusted input.
const MaxDepth = 32

var (
	ErrTruncated           = errors.New("tlv: truncated data")
	ErrNegativeValueLength = errors.New("tlv: negative value length")
	ErrUnknownType         = errors.New("tlv: unknown tag type")
	ErrValueLength         = errors.New("tlv: invalid value length")
	ErrValueType           = errors.New("tlv: value does not match tag type")
	ErrValueRange          = errors.New("tlv: value out of range")
	ErrMissingValue        = errors.New("tlv: missing value")
	ErrIDOutOfRange        = errors.New("tlv: tag id out of range")
	ErrTooManyChildren     = errors.New("tlv: too many children")
	ErrTooDeep             = errors.New("tlv: nesting too deep")
)

// Type is the primitive value type carried in a tag header.
type Type uint8

// Type codes from the EC tag contract.
const (
	TypeCustom  Type = 0x01
	TypeUint8   Type = 0x02
	TypeUint16  Type = 0x03
	TypeUint32  Type = 0x04
	TypeUint64  Type = 0x05
	TypeString  Type = 0x06
	TypeDouble  Type = 0x07
	TypeIPv4    Type = 0x08
	TypeHash16  Type = 0x09
	TypeUint128 Type = 0x0A
)

func (t Type) Valid() bool {
	return t >= TypeCustom && t <= TypeUint128
}

func (t Type) String() string {
	switch t {
	case TypeCustom:
		return "custom"
	case TypeUint8:
		return "uint8"
	case TypeUint16:
		return "uint16"
	case TypeUint32:
		return "uint32"
	case TypeUint64:
		return "uint64"
	case TypeString:
		return "string"
	case TypeDouble:
		return "double"
	case TypeIPv4:
		return "ipv4"
	case TypeHash16:
		return "hash16"
	case TypeUint128:
		return "uint128"
	default:
		return fmt.Sprintf("unknown(0x%02x)", uint8(t))
	}
}

// fixedWidth returns the exact value size for fixed-width types, or -1.
func (t Type) fixedWidth() int {
	switch t {
	case TypeUint8:
		return 1
	case TypeUint16:
		return 2
	case TypeUint32:
		return 4
	case TypeUint64:
		return 8
	case TypeIPv4:
		return 6
	case TypeHash16, TypeUint128:
		return 16
	default:
		return -1
	}
}

// Tag is one node of a tag tree. Value is nil for a pure container.
// Children order is preserved on the wire.
type Tag struct {
	ID       uint16
	Type     Type
	Value    any
	Children []Tag
}

// New builds a tag tree node.
func New(id uint16, typ Type, value any, children ...Tag) Tag {
	return Tag{ID: id, Type: typ, Value: value, Children: children}
}

// Container builds a valueless custom tag grouping children.
func Container(id uint16, children ...Tag) Tag {
	return Tag{ID: id, Type: TypeCustom, Children: children}
}

// MakeTag builds a tag and returns its wire encoding.
func MakeTag(id uint16, typ Type, value any, children ...Tag) ([]byte, error) {
	return Encode(New(id, typ, value, children...))
}

func (t Tag) HasChildren() bool {
	return len(t.Children) > 0
}

// Child returns the first direct child with the given id.
func (t Tag) Child(id uint16) (Tag, bool) {
	return Find(t.Children, id)
}

// Find returns the first tag in tags with the given id.
func Find(tags []Tag, id uint16) (Tag, bool) {
	for _, tag := range tags {
		if tag.ID == id {
			return tag, true
		}
	}
	return Tag{}, false
}

// FindAll returns every tag in tags with the given id, in order.
func FindAll(tags []Tag, id uint16) []Tag {
	out := make([]Tag, 0)
	for _, tag := range tags {
		if tag.ID == id {
			out = append(out, tag)
		}
	}
	return out
}
