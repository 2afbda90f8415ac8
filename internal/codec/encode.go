package codec

import (
	"encoding/binary"
	"fmt"
	"math/bits"

	"github.com/groundside/ctdict/internal/dict"
)

// OpcodePrefixSize is the fixed frame header carrying the command opcode,
// big-endian, ahead of the argument region.
const OpcodePrefixSize = 2

// Encoder encodes command argument values into packed frames. Safe for
// concurrent use; it only reads the dictionary.
type Encoder struct {
	dict *dict.Dictionary
}

// NewEncoder creates an encoder over a resolved dictionary.
func NewEncoder(d *dict.Dictionary) *Encoder {
	return &Encoder{dict: d}
}

// EncodeName encodes the named command.
func (e *Encoder) EncodeName(name string, args map[string]any) ([]byte, error) {
	cmd, ok := e.dict.CommandByName(name)
	if !ok {
		return nil, &UnknownCommandError{Name: name}
	}
	return e.Encode(cmd, args)
}

// Encode produces the command frame: a 2-byte big-endian opcode prefix
// followed by the argument region, gaps zero-filled. Encoding is
// all-or-nothing: any validation failure returns a nil frame.
func (e *Encoder) Encode(cmd *dict.CommandDef, args map[string]any) ([]byte, error) {
	// Canonicalize argument names (aliases resolve to the defining
	// argument) and reject names the command does not declare.
	supplied := make(map[string]any, len(args))
	for name, val := range args {
		f, ok := cmd.Argument(name)
		if !ok {
			return nil, fmt.Errorf("command %s: unknown argument %q", cmd.Name, name)
		}
		if _, dup := supplied[f.Name]; dup {
			return nil, fmt.Errorf("command %s: argument %q supplied twice", cmd.Name, f.Name)
		}
		supplied[f.Name] = val
	}

	frame := make([]byte, OpcodePrefixSize+cmd.Size)
	binary.BigEndian.PutUint16(frame, uint16(cmd.Opcode))
	payload := frame[OpcodePrefixSize:]

	for _, f := range cmd.Arguments {
		val, ok := supplied[f.Name]
		if !ok {
			// Fixed-value arguments encode themselves.
			if f.Value == nil {
				return nil, &MissingArgumentError{Command: cmd.Name, Argument: f.Name}
			}
			val = *f.Value
		} else if f.Value != nil {
			if n, ok := toFloat(val); !ok || n != *f.Value {
				return nil, &ValueOutOfRangeError{
					Command:  cmd.Name,
					Argument: f.Name,
					Err:      fmt.Errorf("argument is fixed to %v", *f.Value),
				}
			}
		}

		if f.Enum != nil {
			resolved, err := resolveEnumValue(cmd, f, val)
			if err != nil {
				return nil, err
			}
			val = resolved
		}

		if err := writeArgument(cmd, f, payload, val); err != nil {
			return nil, err
		}
	}
	return frame, nil
}

// resolveEnumValue maps a symbolic name to its raw value, or verifies a
// supplied raw value is a valid enumeration key.
func resolveEnumValue(cmd *dict.CommandDef, f *dict.Field, val any) (any, error) {
	if sym, ok := val.(string); ok {
		raw, ok := f.Enum.Value(sym)
		if !ok {
			return nil, &UnknownEnumValueError{Command: cmd.Name, Argument: f.Name, Symbol: sym}
		}
		return raw, nil
	}
	n, ok := toInt64Value(val)
	if !ok {
		return nil, &UnknownEnumValueError{
			Command: cmd.Name, Argument: f.Name, Symbol: fmt.Sprintf("%v", val),
		}
	}
	if _, ok := f.Enum.Symbol(n); !ok {
		return nil, &UnknownEnumValueError{
			Command: cmd.Name, Argument: f.Name, Symbol: fmt.Sprintf("%d", n),
		}
	}
	return n, nil
}

func writeArgument(cmd *dict.CommandDef, f *dict.Field, payload []byte, val any) error {
	window := payload[f.Span.Start : f.Span.End+1]

	if f.Span.Mask != 0 {
		n, ok := toInt64Value(val)
		if !ok || n < 0 {
			return &ValueOutOfRangeError{
				Command: cmd.Name, Argument: f.Name,
				Err: fmt.Errorf("masked argument wants a non-negative integer, got %v", val),
			}
		}
		width := bits.OnesCount64(f.Span.Mask)
		if width < 64 && uint64(n) >= 1<<uint(width) {
			return &ValueOutOfRangeError{
				Command: cmd.Name, Argument: f.Name,
				Err: fmt.Errorf("value %d does not fit %d mask bits", n, width),
			}
		}
		existing, _ := f.Type.Uint(window)
		merged := existing&^f.Span.Mask | uint64(n)<<f.Span.Shift&f.Span.Mask
		f.Type.PutUint(window, merged)
		return nil
	}

	b, err := f.Type.Encode(val)
	if err != nil {
		return &ValueOutOfRangeError{Command: cmd.Name, Argument: f.Name, Err: err}
	}
	copy(window, b)
	return nil
}

// DecodeCommand reads a frame produced by Encode: the opcode prefix
// selects the definition, then each argument decodes back to a value.
// Enumerated arguments come back as their symbol, integers as int64,
// floats as float64, strings as string.
func (e *Encoder) DecodeCommand(frame []byte) (*dict.CommandDef, map[string]any, error) {
	if len(frame) < OpcodePrefixSize {
		return nil, nil, &ShortBufferError{Packet: "command", Need: OpcodePrefixSize, Got: len(frame)}
	}
	opcode := int(binary.BigEndian.Uint16(frame))
	cmd, ok := e.dict.CommandByOpcode(opcode)
	if !ok {
		return nil, nil, &UnknownCommandError{Opcode: opcode}
	}
	payload := frame[OpcodePrefixSize:]
	if len(payload) < cmd.Size {
		return nil, nil, &ShortBufferError{Packet: cmd.Name, Need: cmd.Size, Got: len(payload)}
	}

	args := make(map[string]any, len(cmd.Arguments))
	for _, f := range cmd.Arguments {
		window := payload[f.Span.Start : f.Span.End+1]
		var raw any
		if f.Span.Mask != 0 {
			u, _ := f.Type.Uint(window)
			raw = int64((u & f.Span.Mask) >> f.Span.Shift)
		} else {
			decoded, err := f.Type.Decode(window)
			if err != nil {
				return nil, nil, &FieldDecodeError{Packet: cmd.Name, Field: f.Name, Err: err}
			}
			raw = decoded
		}
		if u, ok := raw.(uint64); ok {
			raw = int64(u)
		}
		if f.Enum != nil {
			if n, ok := toInt64Value(raw); ok {
				if sym, ok := f.Enum.Symbol(n); ok {
					raw = sym
				}
			}
		}
		args[f.Name] = raw
	}
	return cmd, args, nil
}
