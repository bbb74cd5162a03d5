package process

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// byteOrder is the target byte order. Funnelling every decode through this
// single value keeps a future big-endian target a one-line change.
var byteOrder binary.ByteOrder = binary.LittleEndian

// ValueType determines decode width and comparison semantics for a scanned
// value.
type ValueType int

const (
	Int8 ValueType = iota
	Int16
	Int32
	Int64
	Uint8
	Uint16
	Uint32
	Uint64
	Float32
	Float64
	// UTF8 matches the encoded bytes of a text literal.
	UTF8
	// Bytes matches a literal byte pattern with no decode.
	Bytes
)

var valueTypeNames = map[ValueType]string{
	Int8: "int8", Int16: "int16", Int32: "int32", Int64: "int64",
	Uint8: "uint8", Uint16: "uint16", Uint32: "uint32", Uint64: "uint64",
	Float32: "float32", Float64: "float64",
	UTF8: "utf8", Bytes: "bytes",
}

func (t ValueType) String() string {
	if n, ok := valueTypeNames[t]; ok {
		return n
	}
	return fmt.Sprintf("valuetype(%d)", int(t))
}

// ParseValueType resolves a type name as used by the CLI and config files.
func ParseValueType(name string) (ValueType, error) {
	for t, n := range valueTypeNames {
		if n == name {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown value type %q", name)
}

// Width returns the fixed byte width of the type, or 0 for the
// variable-width UTF8 and Bytes types.
func (t ValueType) Width() Size {
	switch t {
	case Int8, Uint8:
		return 1
	case Int16, Uint16:
		return 2
	case Int32, Uint32, Float32:
		return 4
	case Int64, Uint64, Float64:
		return 8
	default:
		return 0
	}
}

// Alignment returns the natural alignment used when a scan does not request
// unaligned stepping. Variable-width types step bytewise.
func (t ValueType) Alignment() Size {
	if w := t.Width(); w != 0 {
		return w
	}
	return 1
}

// Numeric reports whether the type decodes to a number (ordered comparators
// apply only to numeric types).
func (t ValueType) Numeric() bool {
	return t != UTF8 && t != Bytes
}

// Value is a typed raw byte buffer: the engine's boundary representation of
// anything read from or written to the target.
type Value struct {
	Type ValueType
	Raw  []byte
}

// NewValue wraps raw bytes already in target encoding.
func NewValue(t ValueType, raw []byte) Value {
	return Value{Type: t, Raw: raw}
}

// EncodeInt builds a Value from an integer literal at the type's width.
func EncodeInt(t ValueType, v int64) (Value, error) {
	w := t.Width()
	if w == 0 || !t.Numeric() {
		return Value{}, fmt.Errorf("cannot encode integer as %s", t)
	}
	raw := make([]byte, w)
	switch w {
	case 1:
		raw[0] = byte(v)
	case 2:
		byteOrder.PutUint16(raw, uint16(v))
	case 4:
		if t == Float32 {
			byteOrder.PutUint32(raw, math.Float32bits(float32(v)))
		} else {
			byteOrder.PutUint32(raw, uint32(v))
		}
	case 8:
		if t == Float64 {
			byteOrder.PutUint64(raw, math.Float64bits(float64(v)))
		} else {
			byteOrder.PutUint64(raw, uint64(v))
		}
	}
	return Value{Type: t, Raw: raw}, nil
}

// EncodeFloat builds a Value from a float literal.
func EncodeFloat(t ValueType, v float64) (Value, error) {
	switch t {
	case Float32:
		raw := make([]byte, 4)
		byteOrder.PutUint32(raw, math.Float32bits(float32(v)))
		return Value{Type: t, Raw: raw}, nil
	case Float64:
		raw := make([]byte, 8)
		byteOrder.PutUint64(raw, math.Float64bits(v))
		return Value{Type: t, Raw: raw}, nil
	default:
		return EncodeInt(t, int64(v))
	}
}

// EncodeText builds a UTF8 Value from a string literal.
func EncodeText(s string) Value {
	return Value{Type: UTF8, Raw: []byte(s)}
}

// Len returns the encoded byte length.
func (v Value) Len() Size {
	return Size(len(v.Raw))
}

// Int64 decodes the value as a signed integer at its native width.
func (v Value) Int64() int64 {
	switch v.Type {
	case Int8:
		return int64(int8(v.Raw[0]))
	case Int16:
		return int64(int16(byteOrder.Uint16(v.Raw)))
	case Int32:
		return int64(int32(byteOrder.Uint32(v.Raw)))
	case Int64:
		return int64(byteOrder.Uint64(v.Raw))
	default:
		return int64(v.Uint64())
	}
}

// Uint64 decodes the value as an unsigned integer at its native width.
func (v Value) Uint64() uint64 {
	switch len(v.Raw) {
	case 1:
		return uint64(v.Raw[0])
	case 2:
		return uint64(byteOrder.Uint16(v.Raw))
	case 4:
		return uint64(byteOrder.Uint32(v.Raw))
	case 8:
		return byteOrder.Uint64(v.Raw)
	default:
		return 0
	}
}

// Float64 decodes the value as a float at its native width.
func (v Value) Float64() float64 {
	switch v.Type {
	case Float32:
		return float64(math.Float32frombits(byteOrder.Uint32(v.Raw)))
	case Float64:
		return math.Float64frombits(byteOrder.Uint64(v.Raw))
	default:
		return float64(v.Int64())
	}
}

// EqualBytes reports byte-for-byte equality with raw target bytes.
func (v Value) EqualBytes(raw []byte) bool {
	return bytes.Equal(v.Raw, raw)
}

func (v Value) String() string {
	switch v.Type {
	case UTF8:
		return fmt.Sprintf("%q", string(v.Raw))
	case Bytes:
		return fmt.Sprintf("% X", v.Raw)
	case Float32, Float64:
		return fmt.Sprintf("%g", v.Float64())
	case Uint8, Uint16, Uint32, Uint64:
		return fmt.Sprintf("%d", v.Uint64())
	default:
		return fmt.Sprintf("%d", v.Int64())
	}
}

// DecodePointer reads a target word from raw bytes.
func DecodePointer(raw []byte) Address {
	if len(raw) < PointerSize {
		return 0
	}
	return Address(byteOrder.Uint64(raw))
}

// EncodePointer writes a target word.
func EncodePointer(addr Address) []byte {
	raw := make([]byte, PointerSize)
	byteOrder.PutUint64(raw, uint64(addr))
	return raw
}
