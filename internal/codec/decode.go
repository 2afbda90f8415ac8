package codec

import (
	"github.com/groundside/ctdict/internal/dict"
	"github.com/groundside/ctdict/internal/eval"
)

// Value is one decoded field or derivation.
type Value struct {
	Name    string
	Raw     any      // DN: uint64/int64/float64/string per field type; float64 for derivations
	Symbol  string   // enumeration symbol, or "" when unmapped/no enum
	EU      *float64 // engineering-unit value when a dntoeu applied
	Present bool     // false when a when condition gated the field off
	Matched *bool    // against a declared fixed value; nil when none declared
}

// Numeric returns the value the expression language sees for this name:
// the DN for fields, the computed value for derivations. ok is false for
// absent values and ASCII string fields.
func (v *Value) Numeric() (float64, bool) {
	if v == nil || !v.Present {
		return 0, false
	}
	return toFloat(v.Raw)
}

// Result maps field and derivation names to their decoded values. Absent
// fields (when=false) are included with Present=false.
type Result map[string]*Value

// Decoder decodes telemetry frames against a resolved dictionary. Safe
// for concurrent use as long as each stream owns its own Session.
type Decoder struct {
	dict *dict.Dictionary
}

// NewDecoder creates a decoder over a resolved dictionary.
func NewDecoder(d *dict.Dictionary) *Decoder {
	return &Decoder{dict: d}
}

// DecodeAPID decodes a frame for the packet registered under apid.
func (d *Decoder) DecodeAPID(apid int, buf []byte, s *Session) (Result, error) {
	pkt, ok := d.dict.PacketByAPID(apid)
	if !ok {
		return nil, &UnknownPacketError{APID: apid}
	}
	return d.Decode(pkt, buf, s)
}

// DecodeName decodes a frame for the named packet.
func (d *Decoder) DecodeName(name string, buf []byte, s *Session) (Result, error) {
	pkt, ok := d.dict.PacketByName(name)
	if !ok {
		return nil, &UnknownPacketError{Name: name}
	}
	return d.Decode(pkt, buf, s)
}

// Decode decodes one complete frame. On error the returned Result holds
// the fields decoded before the failure for diagnostics, and the session's
// history is left untouched; history commits only after every field and
// derivation has been produced or explicitly marked absent.
func (d *Decoder) Decode(pkt *dict.PacketDef, buf []byte, s *Session) (Result, error) {
	if len(buf) < pkt.Size {
		return nil, &ShortBufferError{Packet: pkt.Name, Need: pkt.Size, Got: len(buf)}
	}

	result := make(Result, len(pkt.Fields)+len(pkt.Derivations))
	ctx := &packetContext{pkt: pkt, result: result, session: s}

	for _, f := range pkt.Fields {
		v, err := decodeField(pkt, f, buf, ctx)
		if err != nil {
			return result, &FieldDecodeError{Packet: pkt.Name, Field: f.Name, Err: err}
		}
		result[f.Name] = v
	}

	ctx.raw = nil
	for _, deriv := range pkt.Derivations {
		if deriv.When != nil {
			cond, err := deriv.When.Eval(ctx)
			if err != nil {
				return result, &FieldDecodeError{Packet: pkt.Name, Field: deriv.Name, Err: err}
			}
			if !eval.Truthy(cond) {
				result[deriv.Name] = &Value{Name: deriv.Name}
				continue
			}
		}
		out, err := deriv.Equation.Eval(ctx)
		if err != nil {
			return result, &FieldDecodeError{Packet: pkt.Name, Field: deriv.Name, Err: err}
		}
		result[deriv.Name] = &Value{Name: deriv.Name, Raw: out, Present: true}
	}

	// Everything succeeded; commit history for this decode.
	for _, name := range pkt.History {
		if v, ok := result[name].Numeric(); ok {
			s.History(name).Append(v)
		}
	}
	return result, nil
}

func decodeField(pkt *dict.PacketDef, f *dict.Field, buf []byte, ctx *packetContext) (*Value, error) {
	window := buf[f.Span.Start : f.Span.End+1]

	var raw any
	if f.Span.Mask != 0 {
		u, _ := f.Type.Uint(window)
		raw = (u & f.Span.Mask) >> f.Span.Shift
	} else {
		decoded, err := f.Type.Decode(window)
		if err != nil {
			return nil, err
		}
		raw = decoded
	}

	v := &Value{Name: f.Name, Raw: raw, Present: true}
	dn, numeric := toFloat(raw)
	if numeric {
		ctx.raw = &dn
	} else {
		ctx.raw = nil
	}

	// A false when marks the field absent, not failed; it contributes
	// nothing to derivations or history for this decode.
	if f.When != nil {
		cond, err := f.When.Eval(ctx)
		if err != nil {
			return nil, err
		}
		if !eval.Truthy(cond) {
			return &Value{Name: f.Name}, nil
		}
	}

	if f.Enum != nil {
		if n, ok := toInt64Value(raw); ok {
			// Unmapped values fall back to the raw DN, non-fatally.
			if sym, ok := f.Enum.Symbol(n); ok {
				v.Symbol = sym
			}
		}
	}

	if f.Value != nil && numeric {
		matched := dn == *f.Value
		v.Matched = &matched
	}

	if f.DNToEU != nil && f.DNToEU.Equation != nil {
		apply := true
		if f.DNToEU.When != nil {
			cond, err := f.DNToEU.When.Eval(ctx)
			if err != nil {
				return nil, err
			}
			apply = eval.Truthy(cond)
		}
		if apply {
			eu, err := f.DNToEU.Equation.Eval(ctx)
			if err != nil {
				return nil, err
			}
			v.EU = &eu
		}
	}
	return v, nil
}

// packetContext is the read-only evaluation context for one decode call.
type packetContext struct {
	pkt     *dict.PacketDef
	result  Result
	session *Session
	raw     *float64 // current field's DN; nil outside field scope
}

func (c *packetContext) Raw() (float64, bool) {
	if c.raw == nil {
		return 0, false
	}
	return *c.raw, true
}

func (c *packetContext) Resolve(name string) (float64, bool) {
	if v, ok := c.result[name]; ok {
		return v.Numeric()
	}
	// Alias lookups route through the defining field.
	if f, ok := c.pkt.Field(name); ok {
		if v, ok := c.result[f.Name]; ok {
			return v.Numeric()
		}
	}
	v, ok := c.pkt.Constants[name]
	return v, ok
}

func (c *packetContext) History(name string, offset int) (float64, bool) {
	if !c.pkt.HasHistory(name) || c.session == nil {
		return 0, false
	}
	return c.session.sample(name, offset)
}

func (c *packetContext) Function(name string) (*eval.Function, bool) {
	fn, ok := c.pkt.Functions[name]
	return fn, ok
}
