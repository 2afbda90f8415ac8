package codec

import (
	"bytes"
	"errors"
	"testing"

	"github.com/groundside/ctdict/internal/dict"
)

func buildDict(t *testing.T, src string) *dict.Dictionary {
	t.Helper()
	entries, err := dict.Parse([]byte(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	d, err := dict.Resolve(entries)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	return d
}

const commandDict = `
- command:
    name: arm_relay
    opcode: 0x2002
    arguments:
      - name: sequence_id
        type: MSB_U16
        bytes: [0, 1]
      - name: enable
        type: U8
        bytes: 2
        enum:
          0: DISABLED
          1: ENABLED
- command:
    name: set_flags
    opcode: 0x0011
    arguments:
      - {name: lo, type: U8, bytes: 0, mask: 0x0F}
      - {name: hi, type: U8, bytes: 0, mask: 0xF0}
- command:
    name: ping
    opcode: 0x0001
    arguments:
      - name: magic
        type: U8
        bytes: 0
        value: 0x42
`

func TestEncodeCommand(t *testing.T) {
	d := buildDict(t, commandDict)
	enc := NewEncoder(d)

	frame, err := enc.EncodeName("arm_relay", map[string]any{
		"sequence_id": 7,
		"enable":      "ENABLED",
	})
	if err != nil {
		t.Fatalf("EncodeName: %v", err)
	}
	want := []byte{0x20, 0x02, 0x00, 0x07, 0x01}
	if !bytes.Equal(frame, want) {
		t.Errorf("frame = % X, want % X", frame, want)
	}

	// A raw value that exists in the enumeration is accepted too.
	frame, err = enc.EncodeName("arm_relay", map[string]any{
		"sequence_id": 7,
		"enable":      0,
	})
	if err != nil {
		t.Fatalf("EncodeName with raw enum value: %v", err)
	}
	if frame[4] != 0x00 {
		t.Errorf("enable byte = %#x, want 0", frame[4])
	}
}

func TestEncodeErrors(t *testing.T) {
	d := buildDict(t, commandDict)
	enc := NewEncoder(d)

	tests := []struct {
		name    string
		command string
		args    map[string]any
		want    any // error target for errors.As
	}{
		{
			name:    "unknown command",
			command: "no_such_command",
			args:    map[string]any{},
			want:    &UnknownCommandError{},
		},
		{
			name:    "missing argument",
			command: "arm_relay",
			args:    map[string]any{"sequence_id": 7},
			want:    &MissingArgumentError{},
		},
		{
			name:    "unknown enum symbol",
			command: "arm_relay",
			args:    map[string]any{"sequence_id": 7, "enable": "MAYBE"},
			want:    &UnknownEnumValueError{},
		},
		{
			name:    "raw value outside enumeration",
			command: "arm_relay",
			args:    map[string]any{"sequence_id": 7, "enable": 9},
			want:    &UnknownEnumValueError{},
		},
		{
			name:    "value exceeds type width",
			command: "arm_relay",
			args:    map[string]any{"sequence_id": 70000, "enable": "ENABLED"},
			want:    &ValueOutOfRangeError{},
		},
		{
			name:    "value exceeds mask width",
			command: "set_flags",
			args:    map[string]any{"lo": 16, "hi": 1},
			want:    &ValueOutOfRangeError{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := enc.EncodeName(tt.command, tt.args)
			if err == nil {
				t.Fatal("encode succeeded, want error")
			}
			if frame != nil {
				t.Error("failed encode returned a frame; encoding must be all-or-nothing")
			}
			matched := false
			switch tt.want.(type) {
			case *UnknownCommandError:
				var e *UnknownCommandError
				matched = errors.As(err, &e)
			case *MissingArgumentError:
				var e *MissingArgumentError
				matched = errors.As(err, &e)
			case *UnknownEnumValueError:
				var e *UnknownEnumValueError
				matched = errors.As(err, &e)
			case *ValueOutOfRangeError:
				var e *ValueOutOfRangeError
				matched = errors.As(err, &e)
			}
			if !matched {
				t.Errorf("err = %v (%T), want %T", err, err, tt.want)
			}
		})
	}

	if _, err := enc.EncodeName("arm_relay", map[string]any{
		"sequence_id": 7, "enable": "ENABLED", "bogus": 1,
	}); err == nil {
		t.Error("unknown argument name accepted")
	}
}

func TestEncodeMaskedCommutes(t *testing.T) {
	d := buildDict(t, commandDict)
	enc := NewEncoder(d)

	frame, err := enc.EncodeName("set_flags", map[string]any{"lo": 5, "hi": 10})
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{0x00, 0x11, 0xA5}
	if !bytes.Equal(frame, want) {
		t.Errorf("frame = % X, want % X", frame, want)
	}
}

func TestEncodeFixedValue(t *testing.T) {
	d := buildDict(t, commandDict)
	enc := NewEncoder(d)

	// Omitted fixed arguments encode themselves.
	frame, err := enc.EncodeName("ping", map[string]any{})
	if err != nil {
		t.Fatalf("EncodeName: %v", err)
	}
	if frame[2] != 0x42 {
		t.Errorf("magic byte = %#x, want 0x42", frame[2])
	}

	// A supplied value must agree with the fixed one.
	if _, err := enc.EncodeName("ping", map[string]any{"magic": 0x42}); err != nil {
		t.Errorf("matching fixed value rejected: %v", err)
	}
	if _, err := enc.EncodeName("ping", map[string]any{"magic": 1}); err == nil {
		t.Error("conflicting fixed value accepted")
	}
}

func TestDecodeCommandRoundTrip(t *testing.T) {
	d := buildDict(t, commandDict)
	enc := NewEncoder(d)

	frame, err := enc.EncodeName("arm_relay", map[string]any{
		"sequence_id": 7,
		"enable":      "ENABLED",
	})
	if err != nil {
		t.Fatal(err)
	}

	cmd, args, err := enc.DecodeCommand(frame)
	if err != nil {
		t.Fatalf("DecodeCommand: %v", err)
	}
	if cmd.Name != "arm_relay" {
		t.Errorf("command = %q, want arm_relay", cmd.Name)
	}
	if got := args["sequence_id"]; got != int64(7) {
		t.Errorf("sequence_id = %v (%T), want 7", got, got)
	}
	if got := args["enable"]; got != "ENABLED" {
		t.Errorf("enable = %v, want ENABLED", got)
	}

	var unknownCmd *UnknownCommandError
	if _, _, err := enc.DecodeCommand([]byte{0xFF, 0xFF, 0x00}); !errors.As(err, &unknownCmd) {
		t.Errorf("unregistered opcode err = %v, want UnknownCommandError", err)
	}
	var short *ShortBufferError
	if _, _, err := enc.DecodeCommand([]byte{0x20}); !errors.As(err, &short) {
		t.Errorf("truncated frame err = %v, want ShortBufferError", err)
	}
}

const telemetryDict = `
- packet:
    name: eps_status
    apid: 101
    fields:
      - name: sync
        type: U8
        bytes: 0
        value: 0xA5
      - name: mode
        type: U8
        bytes: 1
        mask: 0x0F
        enum:
          0: SAFE
          1: NOMINAL
      - name: heater_on
        type: U8
        bytes: 1
        mask: 0x80
      - name: temp
        type: U8
        bytes: 2
        dntoeu:
          equation: raw / 2 + 58
          units: degF
      - name: aux_current
        type: MSB_U16
        bytes: [3, 4]
        when: heater_on == 1
    derivations:
      - name: temp_eu
        equation: temp / 2 + 58
      - name: aux_doubled
        equation: aux_current * 2
        when: heater_on == 1
`

func TestDecodeTelemetry(t *testing.T) {
	d := buildDict(t, telemetryDict)
	dec := NewDecoder(d)
	s := NewSession()

	// sync=0xA5, mode=1 + heater bit, temp DN 20, aux 42.
	result, err := dec.DecodeAPID(101, []byte{0xA5, 0x81, 0x14, 0x00, 0x2A}, s)
	if err != nil {
		t.Fatalf("DecodeAPID: %v", err)
	}

	sync := result["sync"]
	if sync.Matched == nil || !*sync.Matched {
		t.Error("sync did not match its declared value")
	}
	mode := result["mode"]
	if mode.Raw != uint64(1) || mode.Symbol != "NOMINAL" {
		t.Errorf("mode = %v %q, want 1 NOMINAL", mode.Raw, mode.Symbol)
	}
	if heater := result["heater_on"]; heater.Raw != uint64(1) {
		t.Errorf("heater_on = %v, want 1", heater.Raw)
	}
	temp := result["temp"]
	if temp.Raw != uint64(20) {
		t.Errorf("temp DN = %v, want 20", temp.Raw)
	}
	if temp.EU == nil || *temp.EU != 68 {
		t.Errorf("temp EU = %v, want 68", temp.EU)
	}
	if aux := result["aux_current"]; !aux.Present || aux.Raw != uint64(42) {
		t.Errorf("aux_current = %+v, want present 42", aux)
	}
	if deriv := result["temp_eu"]; deriv.Raw != float64(68) {
		t.Errorf("temp_eu = %v, want 68 (derivations see the DN)", deriv.Raw)
	}
	if deriv := result["aux_doubled"]; deriv.Raw != float64(84) {
		t.Errorf("aux_doubled = %v, want 84", deriv.Raw)
	}
}

func TestDecodeWhenAbsent(t *testing.T) {
	d := buildDict(t, telemetryDict)
	dec := NewDecoder(d)
	s := NewSession()

	// Heater bit clear: aux_current and its gated derivation are absent.
	result, err := dec.DecodeAPID(101, []byte{0xA5, 0x01, 0x14, 0x00, 0x2A}, s)
	if err != nil {
		t.Fatalf("DecodeAPID: %v", err)
	}
	if aux := result["aux_current"]; aux.Present {
		t.Error("aux_current present despite false when")
	}
	if deriv := result["aux_doubled"]; deriv.Present {
		t.Error("aux_doubled present despite false when")
	}
	if _, ok := result["aux_current"]; !ok {
		t.Error("absent field missing from the result entirely")
	}
}

func TestDecodeValueMismatch(t *testing.T) {
	d := buildDict(t, telemetryDict)
	dec := NewDecoder(d)

	// A sync mismatch flags the value; it does not fail the decode.
	result, err := dec.DecodeAPID(101, []byte{0x00, 0x81, 0x14, 0x00, 0x2A}, NewSession())
	if err != nil {
		t.Fatalf("DecodeAPID: %v", err)
	}
	sync := result["sync"]
	if sync.Matched == nil || *sync.Matched {
		t.Error("sync mismatch not flagged")
	}
}

func TestDecodeShortBuffer(t *testing.T) {
	d := buildDict(t, telemetryDict)
	dec := NewDecoder(d)

	var short *ShortBufferError
	_, err := dec.DecodeAPID(101, []byte{0xA5, 0x81}, NewSession())
	if !errors.As(err, &short) {
		t.Fatalf("err = %v, want ShortBufferError", err)
	}
	if short.Need != 5 || short.Got != 2 {
		t.Errorf("need/got = %d/%d, want 5/2", short.Need, short.Got)
	}

	var unknown *UnknownPacketError
	if _, err := dec.DecodeAPID(999, []byte{0x00}, NewSession()); !errors.As(err, &unknown) {
		t.Errorf("unregistered APID err = %v, want UnknownPacketError", err)
	}
	if _, err := dec.DecodeName("ghost", []byte{0x00}, NewSession()); !errors.As(err, &unknown) {
		t.Errorf("unknown name err = %v, want UnknownPacketError", err)
	}
}

const historyDict = `
- packet:
    name: counter
    apid: 7
    history: [count]
    fields:
      - name: count
        type: U8
        bytes: 0
- packet:
    name: trending
    apid: 8
    history: [level]
    fields:
      - name: level
        type: U8
        bytes: 0
    derivations:
      - name: delta
        equation: level - level[-1]
`

func TestHistoryCommit(t *testing.T) {
	d := buildDict(t, historyDict)
	dec := NewDecoder(d)
	s := NewSession()

	for _, v := range []byte{5, 6, 7} {
		if _, err := dec.DecodeAPID(7, []byte{v}, s); err != nil {
			t.Fatalf("decode %d: %v", v, err)
		}
	}
	h := s.History("count")
	if h.Len() != 3 {
		t.Fatalf("history length = %d, want 3", h.Len())
	}
	if v, _ := h.At(-1); v != 7 {
		t.Errorf("most recent sample = %v, want 7", v)
	}
	if v, _ := h.At(-3); v != 5 {
		t.Errorf("oldest sample = %v, want 5", v)
	}
}

func TestHistoryNotMutatedOnFailure(t *testing.T) {
	d := buildDict(t, historyDict)
	dec := NewDecoder(d)
	s := NewSession()

	// The very first frame cannot satisfy level[-1]; the decode fails and
	// must leave history untouched.
	result, err := dec.DecodeAPID(8, []byte{10}, s)
	var fieldErr *FieldDecodeError
	if !errors.As(err, &fieldErr) {
		t.Fatalf("err = %v, want FieldDecodeError", err)
	}
	if fieldErr.Field != "delta" {
		t.Errorf("failing name = %q, want delta", fieldErr.Field)
	}
	if s.History("level").Len() != 0 {
		t.Error("failed decode committed history")
	}
	// The partial result still carries the decoded fields.
	if v, ok := result["level"]; !ok || v.Raw != uint64(10) {
		t.Errorf("partial result level = %+v, want 10", v)
	}

	// Seed one sample; the same frame now decodes and commits.
	s.History("level").Append(4)
	result, err = dec.DecodeAPID(8, []byte{10}, s)
	if err != nil {
		t.Fatalf("decode after seeding: %v", err)
	}
	if delta := result["delta"]; delta.Raw != float64(6) {
		t.Errorf("delta = %v, want 6", delta.Raw)
	}
	if s.History("level").Len() != 2 {
		t.Errorf("history length = %d, want 2", s.History("level").Len())
	}
}

func TestHistoryEviction(t *testing.T) {
	s := NewSessionDepth(3)
	h := s.History("x")
	for i := 1; i <= 5; i++ {
		h.Append(float64(i))
	}
	if h.Len() != 3 {
		t.Fatalf("length = %d, want 3", h.Len())
	}
	if v, _ := h.At(-1); v != 5 {
		t.Errorf("At(-1) = %v, want 5", v)
	}
	if v, _ := h.At(-3); v != 3 {
		t.Errorf("At(-3) = %v, want 3", v)
	}
	if _, ok := h.At(-4); ok {
		t.Error("At(-4) succeeded past the retention bound")
	}
	if _, ok := h.At(0); ok {
		t.Error("At(0) succeeded; offsets must be negative")
	}
}
