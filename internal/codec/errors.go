package codec

import "fmt"

// ShortBufferError reports a telemetry frame shorter than the packet
// definition's layout requires.
type ShortBufferError struct {
	Packet string
	Need   int
	Got    int
}

func (e *ShortBufferError) Error() string {
	return fmt.Sprintf("packet %s: frame is %d bytes, layout needs %d", e.Packet, e.Got, e.Need)
}

// FieldDecodeError names the first field or derivation whose decode or
// evaluation failed. The evaluation cause is never swallowed.
type FieldDecodeError struct {
	Packet string
	Field  string
	Err    error
}

func (e *FieldDecodeError) Error() string {
	return fmt.Sprintf("packet %s: field %s: %v", e.Packet, e.Field, e.Err)
}

func (e *FieldDecodeError) Unwrap() error { return e.Err }

// UnknownPacketError reports a packet lookup that matched nothing.
type UnknownPacketError struct {
	APID int
	Name string
}

func (e *UnknownPacketError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("unknown packet %q", e.Name)
	}
	return fmt.Sprintf("no packet registered for APID %d", e.APID)
}

// UnknownCommandError reports a command lookup that matched nothing.
type UnknownCommandError struct {
	Opcode int
	Name   string
}

func (e *UnknownCommandError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("unknown command %q", e.Name)
	}
	return fmt.Sprintf("no command registered for opcode 0x%04X", e.Opcode)
}

// MissingArgumentError reports a required command argument the caller did
// not supply.
type MissingArgumentError struct {
	Command  string
	Argument string
}

func (e *MissingArgumentError) Error() string {
	return fmt.Sprintf("command %s: missing argument %q", e.Command, e.Argument)
}

// UnknownEnumValueError reports a symbolic argument value with no mapping
// in the argument's enumeration.
type UnknownEnumValueError struct {
	Command  string
	Argument string
	Symbol   string
}

func (e *UnknownEnumValueError) Error() string {
	return fmt.Sprintf("command %s: argument %q: unknown enum value %q", e.Command, e.Argument, e.Symbol)
}

// ValueOutOfRangeError reports an argument value that does not fit the
// field type's bit width (or its mask's width).
type ValueOutOfRangeError struct {
	Command  string
	Argument string
	Err      error
}

func (e *ValueOutOfRangeError) Error() string {
	return fmt.Sprintf("command %s: argument %q: %v", e.Command, e.Argument, e.Err)
}

func (e *ValueOutOfRangeError) Unwrap() error { return e.Err }
