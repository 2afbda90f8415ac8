package dict

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// typeKind discriminates the closed set of primitive encodings. Every
// decode/encode dispatches on this single tag.
type typeKind int

const (
	kindUint typeKind = iota
	kindInt
	kindFloat
	kindString
	kindTime8  // 1 byte, 1/256 second units
	kindTime32 // 4 bytes, whole seconds
	kindTime40 // 4 bytes seconds + 1 byte 1/256 subseconds
	kindTime64 // 4 bytes seconds + 4 bytes nanoseconds
)

// Type is one primitive binary encoding from the dictionary type set:
// U8/I8, (MSB_|LSB_)U16/I16/U32/I32/U64/I64, (MSB_|LSB_)F32/F64, fixed
// ASCII strings S<n>, and the derived time types TIME8/32/40/64.
// Multi-byte types without an explicit order prefix are MSB.
type Type struct {
	Name  string
	Size  int // canonical width in bytes
	Bits  int // bit width for range checks; 0 for strings
	Order binary.ByteOrder
	kind  typeKind
}

// ParseType resolves a dictionary type name to its Type.
func ParseType(name string) (Type, error) {
	t := Type{Name: name, Order: binary.BigEndian}
	base := name
	switch {
	case strings.HasPrefix(name, "MSB_"):
		base = name[4:]
	case strings.HasPrefix(name, "LSB_"):
		t.Order = binary.LittleEndian
		base = name[4:]
	}

	switch base {
	case "TIME8":
		t.kind, t.Size, t.Bits = kindTime8, 1, 8
		return t, nil
	case "TIME32":
		t.kind, t.Size, t.Bits = kindTime32, 4, 32
		return t, nil
	case "TIME40":
		t.kind, t.Size, t.Bits = kindTime40, 5, 40
		return t, nil
	case "TIME64":
		t.kind, t.Size, t.Bits = kindTime64, 8, 64
		return t, nil
	}

	if len(base) >= 2 {
		width, err := strconv.Atoi(base[1:])
		if err == nil {
			switch base[0] {
			case 'U', 'I':
				switch width {
				case 8, 16, 32, 64:
					t.kind = kindUint
					if base[0] == 'I' {
						t.kind = kindInt
					}
					t.Size, t.Bits = width/8, width
					return t, nil
				}
			case 'F':
				if width == 32 || width == 64 {
					t.kind, t.Size, t.Bits = kindFloat, width/8, width
					return t, nil
				}
			case 'S':
				// Fixed-length ASCII string; width is the byte count.
				if base == name && width > 0 {
					t.kind, t.Size, t.Bits = kindString, width, 0
					return t, nil
				}
			}
		}
	}

	return Type{}, fmt.Errorf("unknown field type %q", name)
}

// IsIntegral reports whether the type can carry a bit mask.
func (t Type) IsIntegral() bool {
	return t.kind == kindUint || t.kind == kindInt
}

// IsString reports whether the type decodes to ASCII text.
func (t Type) IsString() bool { return t.kind == kindString }

// Signed reports whether integer values are two's-complement.
func (t Type) Signed() bool { return t.kind == kindInt }

// readUint interprets b (exactly t.Size bytes) as an unsigned integer in
// the type's byte order. Valid for every non-string kind of width <= 8.
func (t Type) readUint(b []byte) uint64 {
	switch t.Size {
	case 1:
		return uint64(b[0])
	case 2:
		return uint64(t.Order.Uint16(b))
	case 4:
		return uint64(t.Order.Uint32(b))
	case 8:
		return t.Order.Uint64(b)
	}
	// Odd widths (TIME40) are assembled by their kind-specific decode.
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

func (t Type) putUint(b []byte, v uint64) {
	switch t.Size {
	case 1:
		b[0] = byte(v)
	case 2:
		t.Order.PutUint16(b, uint16(v))
	case 4:
		t.Order.PutUint32(b, uint32(v))
	case 8:
		t.Order.PutUint64(b, v)
	default:
		for i := t.Size - 1; i >= 0; i-- {
			b[i] = byte(v)
			v >>= 8
		}
	}
}

// Uint reads the raw unsigned representation of an integral field, in the
// type's byte order, before any mask or sign interpretation.
func (t Type) Uint(b []byte) (uint64, bool) {
	if !t.IsIntegral() || len(b) != t.Size {
		return 0, false
	}
	return t.readUint(b), true
}

// PutUint writes the raw unsigned representation of an integral field, in
// the type's byte order. Used for masked read-modify-write encoding.
func (t Type) PutUint(b []byte, v uint64) bool {
	if !t.IsIntegral() || len(b) != t.Size {
		return false
	}
	t.putUint(b, v)
	return true
}

// Decode converts exactly t.Size raw bytes to a Go value: uint64 for U*,
// int64 for I*, float64 for F* and TIME*, string for S<n>.
func (t Type) Decode(b []byte) (any, error) {
	if len(b) != t.Size {
		return nil, fmt.Errorf("type %s wants %d bytes, got %d", t.Name, t.Size, len(b))
	}
	switch t.kind {
	case kindUint:
		return t.readUint(b), nil
	case kindInt:
		return signExtend(t.readUint(b), t.Bits), nil
	case kindFloat:
		if t.Size == 4 {
			return float64(math.Float32frombits(uint32(t.readUint(b)))), nil
		}
		return math.Float64frombits(t.readUint(b)), nil
	case kindString:
		return strings.TrimRight(string(b), "\x00"), nil
	case kindTime8:
		return float64(b[0]) / 256.0, nil
	case kindTime32:
		return float64(t.Order.Uint32(b)), nil
	case kindTime40:
		// Seconds in the first four bytes, 1/256 subseconds in the fifth.
		sec := binary.BigEndian.Uint32(b[:4])
		if t.Order == binary.LittleEndian {
			sec = binary.LittleEndian.Uint32(b[:4])
		}
		return float64(sec) + float64(b[4])/256.0, nil
	case kindTime64:
		sec := t.Order.Uint32(b[:4])
		ns := t.Order.Uint32(b[4:])
		return float64(sec) + float64(ns)/1e9, nil
	}
	return nil, fmt.Errorf("type %s has no decoder", t.Name)
}

// Encode converts a Go value to exactly t.Size bytes. Integer types accept
// any Go integer or a float64 with no fractional part; string types accept
// a string no longer than the field, zero-padded on the right.
func (t Type) Encode(v any) ([]byte, error) {
	b := make([]byte, t.Size)
	switch t.kind {
	case kindUint, kindInt:
		u, err := toRawUint(v, t)
		if err != nil {
			return nil, err
		}
		t.putUint(b, u)
		return b, nil
	case kindFloat:
		f, ok := toFloat(v)
		if !ok {
			return nil, fmt.Errorf("type %s wants a numeric value, got %T", t.Name, v)
		}
		if t.Size == 4 {
			t.putUint(b, uint64(math.Float32bits(float32(f))))
		} else {
			t.putUint(b, math.Float64bits(f))
		}
		return b, nil
	case kindString:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("type %s wants a string, got %T", t.Name, v)
		}
		if len(s) > t.Size {
			return nil, fmt.Errorf("string %q exceeds %s width %d", s, t.Name, t.Size)
		}
		copy(b, s)
		return b, nil
	case kindTime8:
		f, ok := toFloat(v)
		if !ok || f < 0 || f >= 1 {
			return nil, fmt.Errorf("type %s wants a subsecond value in [0, 1)", t.Name)
		}
		b[0] = byte(f * 256)
		return b, nil
	case kindTime32:
		f, ok := toFloat(v)
		if !ok || f < 0 || f > math.MaxUint32 {
			return nil, fmt.Errorf("type %s wants seconds in [0, 2^32)", t.Name)
		}
		t.putUint(b, uint64(f))
		return b, nil
	case kindTime40:
		f, ok := toFloat(v)
		if !ok || f < 0 || f > math.MaxUint32 {
			return nil, fmt.Errorf("type %s wants seconds in [0, 2^32)", t.Name)
		}
		sec := uint32(f)
		if t.Order == binary.LittleEndian {
			binary.LittleEndian.PutUint32(b[:4], sec)
		} else {
			binary.BigEndian.PutUint32(b[:4], sec)
		}
		b[4] = byte((f - float64(sec)) * 256)
		return b, nil
	case kindTime64:
		f, ok := toFloat(v)
		if !ok || f < 0 || f > math.MaxUint32 {
			return nil, fmt.Errorf("type %s wants seconds in [0, 2^32)", t.Name)
		}
		sec := uint32(f)
		ns := uint32(math.Round((f - float64(sec)) * 1e9))
		t.putUint(b[:4], uint64(sec))
		t.putUint(b[4:], uint64(ns))
		return b, nil
	}
	return nil, fmt.Errorf("type %s has no encoder", t.Name)
}

func signExtend(u uint64, bits int) int64 {
	shift := 64 - bits
	return int64(u<<shift) >> shift
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// toInt64 converts any Go integer (or integral float) to int64.
func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int64(n), true
	case float32:
		f := float64(n)
		if f != math.Trunc(f) {
			return 0, false
		}
		return int64(f), true
	}
	return 0, false
}

// toRawUint converts an integer value into the unsigned raw representation
// for an integral type, rejecting values outside the type's bit width.
func toRawUint(v any, t Type) (uint64, error) {
	if u, ok := v.(uint64); ok && !t.Signed() {
		if t.Bits < 64 && u >= 1<<uint(t.Bits) {
			return 0, fmt.Errorf("value %d out of range for %s", u, t.Name)
		}
		return u, nil
	}
	n, ok := toInt64(v)
	if !ok {
		return 0, fmt.Errorf("type %s wants an integer value, got %T", t.Name, v)
	}
	if err := checkRange(n, t.Bits, t.Signed()); err != nil {
		return 0, fmt.Errorf("%w for %s", err, t.Name)
	}
	if t.Bits == 64 {
		return uint64(n), nil
	}
	return uint64(n) & (1<<uint(t.Bits) - 1), nil
}

func checkRange(v int64, bits int, signed bool) error {
	if bits >= 64 {
		return nil
	}
	if signed {
		min := -(int64(1) << uint(bits-1))
		max := int64(1)<<uint(bits-1) - 1
		if v < min || v > max {
			return fmt.Errorf("value %d out of range [%d, %d]", v, min, max)
		}
		return nil
	}
	if v < 0 || v >= int64(1)<<uint(bits) {
		return fmt.Errorf("value %d out of range [0, %d]", v, int64(1)<<uint(bits)-1)
	}
	return nil
}
