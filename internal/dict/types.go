// Package dict compiles raw command/telemetry dictionary definitions into
// a resolved, validated, immutable Dictionary that the codec layer encodes
// and decodes against.
package dict

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// PrevSentinel marks a byte range that starts immediately after the
// previous field.
const PrevSentinel = "@prev"

// ByteRange is a field's position in the frame: a single byte index, an
// inclusive [start, end] pair, or the @prev sentinel.
type ByteRange struct {
	Prev  bool
	Start int
	End   int
	set   bool
}

// IsZero reports whether the range was omitted from the definition.
func (r ByteRange) IsZero() bool { return !r.set }

func (r ByteRange) String() string {
	switch {
	case r.Prev:
		return PrevSentinel
	case r.Start == r.End:
		return fmt.Sprintf("%d", r.Start)
	default:
		return fmt.Sprintf("[%d, %d]", r.Start, r.End)
	}
}

// UnmarshalYAML accepts the three source forms: 3, [0, 1], and "@prev".
func (r *ByteRange) UnmarshalYAML(node *yaml.Node) error {
	r.set = true
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Tag == "!!str" {
			var s string
			if err := node.Decode(&s); err != nil {
				return err
			}
			if s != PrevSentinel {
				return fmt.Errorf("bytes: unknown sentinel %q (only %q is valid)", s, PrevSentinel)
			}
			r.Prev = true
			return nil
		}
		var n int
		if err := node.Decode(&n); err != nil {
			return fmt.Errorf("bytes: %w", err)
		}
		r.Start, r.End = n, n
		return nil
	case yaml.SequenceNode:
		var pair []int
		if err := node.Decode(&pair); err != nil {
			return fmt.Errorf("bytes: %w", err)
		}
		if len(pair) != 2 {
			return fmt.Errorf("bytes: want [start, end], got %d elements", len(pair))
		}
		r.Start, r.End = pair[0], pair[1]
		return nil
	}
	return fmt.Errorf("bytes: unsupported YAML node")
}

// RawDNToEU is the dntoeu attribute of a field definition.
type RawDNToEU struct {
	Equation string `yaml:"equation"`
	Units    string `yaml:"units,omitempty"`
	When     string `yaml:"when,omitempty"`
}

// RawField is one field (telemetry) or argument (command) entry as
// authored, before include expansion and resolution. An entry is either an
// include reference or a full definition.
type RawField struct {
	Include string           `yaml:"include,omitempty"`
	Name    string           `yaml:"name,omitempty"`
	Desc    string           `yaml:"desc,omitempty"`
	Type    string           `yaml:"type,omitempty"`
	Bytes   ByteRange        `yaml:"bytes,omitempty"`
	Units   string           `yaml:"units,omitempty"`
	Mask    uint64           `yaml:"mask,omitempty"`
	Enum    map[int64]string `yaml:"enum,omitempty"`
	Value   *float64         `yaml:"value,omitempty"`
	When    string           `yaml:"when,omitempty"`
	DNToEU  *RawDNToEU       `yaml:"dntoeu,omitempty"`
	Aliases []string         `yaml:"aliases,omitempty"`
}

// RawDerivation is a computed value produced after all raw fields of a
// packet decode.
type RawDerivation struct {
	Name     string `yaml:"name"`
	Desc     string `yaml:"desc,omitempty"`
	Units    string `yaml:"units,omitempty"`
	Equation string `yaml:"equation"`
	When     string `yaml:"when,omitempty"`
}

// RawCCSDS carries the CCSDS header attributes of a packet definition.
// Only the APID participates in packet selection.
type RawCCSDS struct {
	APID *int `yaml:"apid,omitempty"`
}

// RawPacket is a telemetry packet definition as authored.
type RawPacket struct {
	Name        string             `yaml:"name"`
	Desc        string             `yaml:"desc,omitempty"`
	APID        *int               `yaml:"apid,omitempty"`
	CCSDS       *RawCCSDS          `yaml:"ccsds,omitempty"`
	Constants   map[string]float64 `yaml:"constants,omitempty"`
	Functions   map[string]string  `yaml:"functions,omitempty"`
	History     []string           `yaml:"history,omitempty"`
	Fields      []RawField         `yaml:"fields"`
	Derivations []RawDerivation    `yaml:"derivations,omitempty"`
}

// RawCommand is a command definition as authored.
type RawCommand struct {
	Name      string             `yaml:"name"`
	Desc      string             `yaml:"desc,omitempty"`
	Opcode    *int               `yaml:"opcode,omitempty"`
	Constants map[string]float64 `yaml:"constants,omitempty"`
	Functions map[string]string  `yaml:"functions,omitempty"`
	Arguments []RawField         `yaml:"arguments"`
}

// RawFieldset is a named, reusable field list pulled in by include
// references. It never appears in the resolved dictionary on its own.
type RawFieldset struct {
	Name   string     `yaml:"name"`
	Desc   string     `yaml:"desc,omitempty"`
	Fields []RawField `yaml:"fields"`
}

// Entry is one element of a dictionary source document: a packet, a
// command, a fieldset, a global constants/functions block, or a top-level
// include reference to another named definition.
type Entry struct {
	Packet    *RawPacket         `yaml:"packet,omitempty"`
	Command   *RawCommand        `yaml:"command,omitempty"`
	Fieldset  *RawFieldset       `yaml:"fieldset,omitempty"`
	Constants map[string]float64 `yaml:"constants,omitempty"`
	Functions map[string]string  `yaml:"functions,omitempty"`
	Include   string             `yaml:"include,omitempty"`
}

func (e Entry) describe() string {
	switch {
	case e.Packet != nil:
		return fmt.Sprintf("packet %q", e.Packet.Name)
	case e.Command != nil:
		return fmt.Sprintf("command %q", e.Command.Name)
	case e.Fieldset != nil:
		return fmt.Sprintf("fieldset %q", e.Fieldset.Name)
	case e.Include != "":
		return fmt.Sprintf("include %q", e.Include)
	case e.Constants != nil || e.Functions != nil:
		return "globals"
	}
	return "empty entry"
}
