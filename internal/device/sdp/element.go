// Package sdp implements the subset of the Bluetooth Service Discovery
// Protocol needed to enumerate the service records of a remote device:
// the data element codec, the ServiceSearchAttribute transaction with
// continuation handling, and conversion of records into device.Service.
package sdp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/srg/sppcheck/internal/device"
)

// ElementType is the 5-bit type descriptor of a data element.
type ElementType uint8

const (
	TypeNil         ElementType = 0
	TypeUint        ElementType = 1
	TypeInt         ElementType = 2
	TypeUUID        ElementType = 3
	TypeText        ElementType = 4
	TypeBool        ElementType = 5
	TypeSequence    ElementType = 6
	TypeAlternative ElementType = 7
	TypeURL         ElementType = 8
)

func (t ElementType) String() string {
	switch t {
	case TypeNil:
		return "nil"
	case TypeUint:
		return "uint"
	case TypeInt:
		return "int"
	case TypeUUID:
		return "uuid"
	case TypeText:
		return "text"
	case TypeBool:
		return "bool"
	case TypeSequence:
		return "sequence"
	case TypeAlternative:
		return "alternative"
	case TypeURL:
		return "url"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

// ErrMalformed reports a data element that cannot be decoded.
var ErrMalformed = errors.New("malformed data element")

// Element is a decoded SDP data element.
//
// Only the fields matching Type are meaningful. Size is the value width in
// bytes for integer and UUID elements.
type Element struct {
	Type  ElementType
	Size  int
	Uint  uint64
	Int   int64
	UUID  []byte
	Text  string
	Bool  bool
	Items []Element
}

// Uint8 builds an unsigned 8-bit element.
func Uint8(v uint8) Element { return Element{Type: TypeUint, Size: 1, Uint: uint64(v)} }

// Uint16 builds an unsigned 16-bit element.
func Uint16(v uint16) Element { return Element{Type: TypeUint, Size: 2, Uint: uint64(v)} }

// Uint32 builds an unsigned 32-bit element.
func Uint32(v uint32) Element { return Element{Type: TypeUint, Size: 4, Uint: uint64(v)} }

// UUID16 builds a 16-bit UUID element.
func UUID16(v uint16) Element {
	return Element{Type: TypeUUID, Size: 2, UUID: binary.BigEndian.AppendUint16(nil, v)}
}

// UUID128 builds a 128-bit UUID element.
func UUID128(u uuid.UUID) Element {
	return Element{Type: TypeUUID, Size: 16, UUID: append([]byte(nil), u[:]...)}
}

// Text builds a text string element.
func Text(s string) Element { return Element{Type: TypeText, Text: s} }

// Sequence builds a data element sequence.
func Sequence(items ...Element) Element { return Element{Type: TypeSequence, Items: items} }

// UUIDString returns the UUID in the normalized short form used by
// device.NormalizeUUID, or "" for non-UUID elements.
func (e Element) UUIDString() string {
	if e.Type != TypeUUID {
		return ""
	}
	switch len(e.UUID) {
	case 2, 4:
		return device.NormalizeUUID(fmt.Sprintf("%x", e.UUID))
	case 16:
		u, err := uuid.FromBytes(e.UUID)
		if err != nil {
			return ""
		}
		return device.NormalizeUUID(u.String())
	default:
		return ""
	}
}

// IsContainer reports whether the element is a sequence or alternative.
func (e Element) IsContainer() bool {
	return e.Type == TypeSequence || e.Type == TypeAlternative
}

// String renders the element for debug logging.
func (e Element) String() string {
	switch e.Type {
	case TypeNil:
		return "nil"
	case TypeUint:
		return fmt.Sprintf("0x%0*x", e.Size*2, e.Uint)
	case TypeInt:
		return fmt.Sprintf("%d", e.Int)
	case TypeUUID:
		return "uuid:" + e.UUIDString()
	case TypeText, TypeURL:
		return fmt.Sprintf("%q", e.Text)
	case TypeBool:
		return fmt.Sprintf("%t", e.Bool)
	case TypeSequence, TypeAlternative:
		parts := make([]string, len(e.Items))
		for i, item := range e.Items {
			parts[i] = item.String()
		}
		if e.Type == TypeAlternative {
			return "<" + strings.Join(parts, " | ") + ">"
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return e.Type.String()
	}
}

// fixedSizes maps size indexes 0..4 to value widths.
var fixedSizes = [...]int{1, 2, 4, 8, 16}

// Decode parses one data element from b and returns it together with the
// number of bytes consumed.
func Decode(b []byte) (Element, int, error) {
	if len(b) == 0 {
		return Element{}, 0, fmt.Errorf("%w: empty input", ErrMalformed)
	}

	typ := ElementType(b[0] >> 3)
	sizeIdx := b[0] & 0x07
	off := 1

	var n int
	switch {
	case typ == TypeNil:
		if sizeIdx != 0 {
			return Element{}, 0, fmt.Errorf("%w: nil with size index %d", ErrMalformed, sizeIdx)
		}
		return Element{Type: TypeNil}, 1, nil
	case sizeIdx <= 4:
		n = fixedSizes[sizeIdx]
	case sizeIdx == 5:
		if len(b) < off+1 {
			return Element{}, 0, fmt.Errorf("%w: truncated length", ErrMalformed)
		}
		n = int(b[off])
		off++
	case sizeIdx == 6:
		if len(b) < off+2 {
			return Element{}, 0, fmt.Errorf("%w: truncated length", ErrMalformed)
		}
		n = int(binary.BigEndian.Uint16(b[off:]))
		off += 2
	default:
		if len(b) < off+4 {
			return Element{}, 0, fmt.Errorf("%w: truncated length", ErrMalformed)
		}
		n = int(binary.BigEndian.Uint32(b[off:]))
		off += 4
	}

	if n < 0 || len(b)-off < n {
		return Element{}, 0, fmt.Errorf("%w: %s needs %d bytes, have %d", ErrMalformed, typ, n, len(b)-off)
	}
	data := b[off : off+n]
	total := off + n

	e := Element{Type: typ}
	switch typ {
	case TypeUint:
		if sizeIdx > 4 {
			return Element{}, 0, fmt.Errorf("%w: uint with variable size", ErrMalformed)
		}
		e.Size, e.Uint = n, readUint(data)
	case TypeInt:
		if sizeIdx > 4 {
			return Element{}, 0, fmt.Errorf("%w: int with variable size", ErrMalformed)
		}
		e.Size, e.Int = n, readInt(data)
	case TypeUUID:
		if n != 2 && n != 4 && n != 16 {
			return Element{}, 0, fmt.Errorf("%w: uuid of %d bytes", ErrMalformed, n)
		}
		e.Size, e.UUID = n, append([]byte(nil), data...)
	case TypeText, TypeURL:
		if sizeIdx < 5 {
			return Element{}, 0, fmt.Errorf("%w: %s with fixed size", ErrMalformed, typ)
		}
		e.Text = string(data)
	case TypeBool:
		if n != 1 {
			return Element{}, 0, fmt.Errorf("%w: bool of %d bytes", ErrMalformed, n)
		}
		e.Bool = data[0] != 0
	case TypeSequence, TypeAlternative:
		if sizeIdx < 5 {
			return Element{}, 0, fmt.Errorf("%w: %s with fixed size", ErrMalformed, typ)
		}
		items, err := decodeItems(data)
		if err != nil {
			return Element{}, 0, err
		}
		e.Items = items
	default:
		return Element{}, 0, fmt.Errorf("%w: unknown type %d", ErrMalformed, uint8(typ))
	}

	return e, total, nil
}

func decodeItems(data []byte) ([]Element, error) {
	var items []Element
	for len(data) > 0 {
		item, n, err := Decode(data)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
		data = data[n:]
	}
	return items, nil
}

// readUint reads a big-endian unsigned value; 128-bit values keep their low
// 64 bits.
func readUint(data []byte) uint64 {
	if len(data) > 8 {
		data = data[len(data)-8:]
	}
	var v uint64
	for _, c := range data {
		v = v<<8 | uint64(c)
	}
	return v
}

func readInt(data []byte) int64 {
	v := readUint(data)
	width := min(len(data), 8) * 8
	if width < 64 && v&(1<<(width-1)) != 0 {
		v |= ^uint64(0) << width
	}
	return int64(v)
}

// Encode serializes e.
func Encode(e Element) ([]byte, error) {
	return AppendElement(nil, e)
}

// AppendElement appends the encoding of e to dst.
func AppendElement(dst []byte, e Element) ([]byte, error) {
	switch e.Type {
	case TypeNil:
		return append(dst, 0x00), nil
	case TypeUint, TypeInt:
		idx, err := fixedIndex(e.Size)
		if err != nil {
			return nil, err
		}
		v := e.Uint
		if e.Type == TypeInt {
			v = uint64(e.Int)
		}
		dst = append(dst, byte(e.Type)<<3|idx)
		for i := e.Size - 1; i >= 0; i-- {
			if i >= 8 {
				dst = append(dst, 0)
				continue
			}
			dst = append(dst, byte(v>>(8*i)))
		}
		return dst, nil
	case TypeUUID:
		idx, err := fixedIndex(len(e.UUID))
		if err != nil || idx == 0 || idx == 3 {
			return nil, fmt.Errorf("%w: uuid of %d bytes", ErrMalformed, len(e.UUID))
		}
		dst = append(dst, byte(TypeUUID)<<3|idx)
		return append(dst, e.UUID...), nil
	case TypeBool:
		b := byte(0)
		if e.Bool {
			b = 1
		}
		return append(dst, byte(TypeBool)<<3, b), nil
	case TypeText, TypeURL:
		return appendVariable(dst, e.Type, []byte(e.Text)), nil
	case TypeSequence, TypeAlternative:
		var body []byte
		for _, item := range e.Items {
			var err error
			body, err = AppendElement(body, item)
			if err != nil {
				return nil, err
			}
		}
		return appendVariable(dst, e.Type, body), nil
	default:
		return nil, fmt.Errorf("%w: cannot encode %s", ErrMalformed, e.Type)
	}
}

func fixedIndex(size int) (byte, error) {
	for i, s := range fixedSizes {
		if s == size {
			return byte(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unsupported width %d", ErrMalformed, size)
}

func appendVariable(dst []byte, typ ElementType, body []byte) []byte {
	switch n := len(body); {
	case n <= 0xff:
		dst = append(dst, byte(typ)<<3|5, byte(n))
	case n <= 0xffff:
		dst = append(dst, byte(typ)<<3|6)
		dst = binary.BigEndian.AppendUint16(dst, uint16(n))
	default:
		dst = append(dst, byte(typ)<<3|7)
		dst = binary.BigEndian.AppendUint32(dst, uint32(n))
	}
	return append(dst, body...)
}
