package dict

import (
	"github.com/groundside/ctdict/internal/eval"
)

// Enumeration maps raw values to symbolic names and back. Decode lookups
// fall back to the raw value when unmapped; encode lookups are strict.
type Enumeration struct {
	byValue map[int64]string
	byName  map[string]int64
}

func newEnumeration(m map[int64]string) *Enumeration {
	e := &Enumeration{
		byValue: make(map[int64]string, len(m)),
		byName:  make(map[string]int64, len(m)),
	}
	for v, sym := range m {
		e.byValue[v] = sym
		e.byName[sym] = v
	}
	return e
}

// Symbol returns the name for a raw value.
func (e *Enumeration) Symbol(v int64) (string, bool) {
	s, ok := e.byValue[v]
	return s, ok
}

// Value returns the raw value for a symbolic name.
func (e *Enumeration) Value(sym string) (int64, bool) {
	v, ok := e.byName[sym]
	return v, ok
}

// Symbols returns the value->name map for display.
func (e *Enumeration) Symbols() map[int64]string { return e.byValue }

// Span is a field's absolute position: byte range plus optional bit mask.
// Shift is derived from the mask's lowest set bit.
type Span struct {
	Start int
	End   int
	Mask  uint64
	Shift uint
}

// Width returns the span's byte count.
func (s Span) Width() int { return s.End - s.Start + 1 }

// Overlaps reports whether two spans share any byte.
func (s Span) Overlaps(o Span) bool {
	return s.Start <= o.End && o.Start <= s.End
}

// DNToEU is a resolved unit-conversion equation.
type DNToEU struct {
	Equation    eval.Expr
	EquationSrc string
	Units       string
	When        eval.Expr
	WhenSrc     string
}

// Field is a resolved telemetry field or command argument.
type Field struct {
	Name    string
	Desc    string
	Units   string
	Type    Type
	Span    Span
	Enum    *Enumeration
	Value   *float64 // expected/fixed value, checked on decode, auto-filled on encode
	When    eval.Expr
	WhenSrc string
	DNToEU  *DNToEU
	Aliases []string
}

// Derivation is a resolved computed value, produced after raw fields.
type Derivation struct {
	Name        string
	Desc        string
	Units       string
	Equation    eval.Expr
	EquationSrc string
	When        eval.Expr
	WhenSrc     string
}

// PacketDef is a resolved telemetry packet definition. Constants and
// functions already include the dictionary's globals (locals win).
type PacketDef struct {
	Name        string
	Desc        string
	APID        int
	Fields      []*Field
	Derivations []*Derivation
	History     []string
	Constants   map[string]float64
	Functions   map[string]*eval.Function
	Size        int // minimum frame length in bytes

	fieldsByName map[string]*Field
	historySet   map[string]bool
}

// Field looks up a field by name or alias.
func (p *PacketDef) Field(name string) (*Field, bool) {
	f, ok := p.fieldsByName[name]
	return f, ok
}

// HasHistory reports whether history is declared for a name.
func (p *PacketDef) HasHistory(name string) bool { return p.historySet[name] }

// CommandDef is a resolved command definition.
type CommandDef struct {
	Name      string
	Desc      string
	Opcode    int
	Arguments []*Field
	Constants map[string]float64
	Functions map[string]*eval.Function
	Size      int // argument region length in bytes, excluding the opcode prefix

	argsByName map[string]*Field
}

// Argument looks up an argument by name or alias.
func (c *CommandDef) Argument(name string) (*Field, bool) {
	f, ok := c.argsByName[name]
	return f, ok
}

// Dictionary is the resolved schema: every command and packet definition
// plus global constants and functions. Built once by Resolve, then
// immutable and safe for concurrent read-only use.
type Dictionary struct {
	Packets   []*PacketDef
	Commands  []*CommandDef
	Constants map[string]float64
	Functions map[string]*eval.Function

	packetsByName    map[string]*PacketDef
	packetsByAPID    map[int]*PacketDef
	commandsByName   map[string]*CommandDef
	commandsByOpcode map[int]*CommandDef
}

// PacketByName looks up a packet definition by name.
func (d *Dictionary) PacketByName(name string) (*PacketDef, bool) {
	p, ok := d.packetsByName[name]
	return p, ok
}

// PacketByAPID looks up a packet definition by its APID.
func (d *Dictionary) PacketByAPID(apid int) (*PacketDef, bool) {
	p, ok := d.packetsByAPID[apid]
	return p, ok
}

// CommandByName looks up a command definition by name.
func (d *Dictionary) CommandByName(name string) (*CommandDef, bool) {
	c, ok := d.commandsByName[name]
	return c, ok
}

// CommandByOpcode looks up a command definition by its opcode.
func (d *Dictionary) CommandByOpcode(opcode int) (*CommandDef, bool) {
	c, ok := d.commandsByOpcode[opcode]
	return c, ok
}
