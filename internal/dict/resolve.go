package dict

import (
	"fmt"
	"sort"

	"github.com/groundside/ctdict/internal/eval"
)

// Resolve expands includes, computes layouts, and validates a raw entry
// forest into an immutable Dictionary. Validation is total: every error in
// the dictionary is collected and returned together as ValidationErrors.
func Resolve(entries []Entry) (*Dictionary, error) {
	r := &resolver{byName: make(map[string]Entry)}
	var errs ValidationErrors

	// Pass 1: index named entries and gather globals. Fieldsets, packets,
	// and commands share one namespace for include lookup.
	globalConstants := map[string]float64{}
	globalFunctions := map[string]string{}
	for _, e := range entries {
		name := entryName(e)
		if name != "" {
			if _, dup := r.byName[name]; dup {
				errs = append(errs, ValidationError{
					Message: fmt.Sprintf("duplicate definition name %q", name),
				})
				continue
			}
			r.byName[name] = e
		}
		for k, v := range e.Constants {
			if _, dup := globalConstants[k]; dup {
				errs = append(errs, ValidationError{Message: fmt.Sprintf("duplicate global constant %q", k)})
				continue
			}
			globalConstants[k] = v
		}
		for sig, body := range e.Functions {
			if _, dup := globalFunctions[sig]; dup {
				errs = append(errs, ValidationError{Message: fmt.Sprintf("duplicate global function %q", sig)})
				continue
			}
			globalFunctions[sig] = body
		}
	}

	r.globalConstants = globalConstants
	r.globalFunctions, errs = parseFunctions("", globalFunctions, errs)
	for _, name := range sortedFunctionNames(r.globalFunctions) {
		errs = validateFunction(errs, "", r.globalFunctions[name], globalConstants, r.globalFunctions)
	}

	// Top-level include references must name a known definition.
	for _, e := range entries {
		if e.Include != "" {
			if _, ok := r.byName[e.Include]; !ok {
				errs = append(errs, ValidationError{
					Message: (&UnknownReferenceError{Ref: e.Include, Def: "dictionary"}).Error(),
				})
			}
		}
	}

	// Pass 2: resolve packets and commands in declaration order.
	d := &Dictionary{
		Constants:        globalConstants,
		Functions:        r.globalFunctions,
		packetsByName:    make(map[string]*PacketDef),
		packetsByAPID:    make(map[int]*PacketDef),
		commandsByName:   make(map[string]*CommandDef),
		commandsByOpcode: make(map[int]*CommandDef),
	}
	for _, e := range entries {
		switch {
		case e.Packet != nil:
			pkt, perrs := r.resolvePacket(e.Packet)
			errs = append(errs, perrs...)
			if pkt == nil {
				continue
			}
			if _, dup := d.packetsByName[pkt.Name]; dup {
				errs = append(errs, ValidationError{Def: pkt.Name, Message: "duplicate packet name"})
				continue
			}
			if other, dup := d.packetsByAPID[pkt.APID]; dup {
				errs = append(errs, ValidationError{
					Def:     pkt.Name,
					Message: fmt.Sprintf("APID %d already used by packet %q", pkt.APID, other.Name),
				})
				continue
			}
			d.Packets = append(d.Packets, pkt)
			d.packetsByName[pkt.Name] = pkt
			d.packetsByAPID[pkt.APID] = pkt
		case e.Command != nil:
			cmd, cerrs := r.resolveCommand(e.Command)
			errs = append(errs, cerrs...)
			if cmd == nil {
				continue
			}
			if _, dup := d.commandsByName[cmd.Name]; dup {
				errs = append(errs, ValidationError{Def: cmd.Name, Message: "duplicate command name"})
				continue
			}
			if other, dup := d.commandsByOpcode[cmd.Opcode]; dup {
				errs = append(errs, ValidationError{
					Def:     cmd.Name,
					Message: fmt.Sprintf("opcode 0x%04X already used by command %q", cmd.Opcode, other.Name),
				})
				continue
			}
			d.Commands = append(d.Commands, cmd)
			d.commandsByName[cmd.Name] = cmd
			d.commandsByOpcode[cmd.Opcode] = cmd
		}
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return d, nil
}

type resolver struct {
	byName          map[string]Entry
	globalConstants map[string]float64
	globalFunctions map[string]*eval.Function
}

func entryName(e Entry) string {
	switch {
	case e.Packet != nil:
		return e.Packet.Name
	case e.Command != nil:
		return e.Command.Name
	case e.Fieldset != nil:
		return e.Fieldset.Name
	}
	return ""
}

// expandedField tracks whether a field arrived via an include, which
// decides whether a later explicit field may override it.
type expandedField struct {
	raw      RawField
	included bool
}

// expandFields resolves include references depth-first with cycle
// detection, flattening included field lists in declaration order.
func (r *resolver) expandFields(def string, list []RawField, visiting []string) ([]expandedField, ValidationErrors) {
	var out []expandedField
	var errs ValidationErrors
	for _, rf := range list {
		if rf.Include == "" {
			out = append(out, expandedField{raw: rf, included: len(visiting) > 1})
			continue
		}
		for _, seen := range visiting {
			if seen == rf.Include {
				errs = append(errs, ValidationError{
					Def:     def,
					Message: (&CycleError{Chain: append(append([]string{}, visiting...), rf.Include)}).Error(),
				})
				return out, errs
			}
		}
		target, ok := r.byName[rf.Include]
		if !ok {
			errs = append(errs, ValidationError{
				Def:     def,
				Message: (&UnknownReferenceError{Ref: rf.Include, Def: def}).Error(),
			})
			continue
		}
		var sub []RawField
		switch {
		case target.Fieldset != nil:
			sub = target.Fieldset.Fields
		case target.Packet != nil:
			sub = target.Packet.Fields
		case target.Command != nil:
			sub = target.Command.Arguments
		}
		nested, nerrs := r.expandFields(def, sub, append(visiting, rf.Include))
		errs = append(errs, nerrs...)
		for i := range nested {
			nested[i].included = true
		}
		out = append(out, nested...)
	}
	return out, errs
}

// mergeFields applies override semantics: a later explicit field replaces
// a same-named included field in place; any other duplicate is an error.
func mergeFields(def string, expanded []expandedField) ([]RawField, ValidationErrors) {
	var out []RawField
	var errs ValidationErrors
	index := map[string]int{}
	flags := map[string]bool{} // name -> earlier entry was included
	for _, ef := range expanded {
		name := ef.raw.Name
		if name == "" {
			errs = append(errs, ValidationError{Def: def, Message: "field entry has neither name nor include"})
			continue
		}
		if i, dup := index[name]; dup {
			if flags[name] && !ef.included {
				out[i] = ef.raw
				flags[name] = false
				continue
			}
			errs = append(errs, ValidationError{Def: def, Field: name, Message: "duplicate field name"})
			continue
		}
		index[name] = len(out)
		flags[name] = ef.included
		out = append(out, ef.raw)
	}
	return out, errs
}

// resolveFieldList parses types, enums, and expressions for a merged field
// list. Fields with unusable types are dropped (their errors recorded) so
// the rest of the definition can still be checked.
func resolveFieldList(def string, raws []RawField) ([]*Field, []ByteRange, []uint64, ValidationErrors) {
	var fields []*Field
	var ranges []ByteRange
	var masks []uint64
	var errs ValidationErrors
	for _, raw := range raws {
		if raw.Type == "" {
			errs = append(errs, ValidationError{Def: def, Field: raw.Name, Message: "missing type"})
			continue
		}
		typ, err := ParseType(raw.Type)
		if err != nil {
			errs = append(errs, ValidationError{Def: def, Field: raw.Name, Message: err.Error()})
			continue
		}
		f := &Field{
			Name:    raw.Name,
			Desc:    raw.Desc,
			Units:   raw.Units,
			Type:    typ,
			Value:   raw.Value,
			Aliases: raw.Aliases,
		}
		if len(raw.Enum) > 0 {
			f.Enum = newEnumeration(raw.Enum)
			if len(f.Enum.byName) < len(raw.Enum) {
				errs = append(errs, ValidationError{Def: def, Field: raw.Name, Message: "enumeration symbols are not distinct"})
			}
		}
		if raw.When != "" {
			f.WhenSrc = raw.When
			if f.When, err = eval.Parse(raw.When); err != nil {
				errs = append(errs, ValidationError{Def: def, Field: raw.Name, Message: fmt.Sprintf("when: %v", err)})
			}
		}
		if raw.DNToEU != nil {
			conv := &DNToEU{EquationSrc: raw.DNToEU.Equation, Units: raw.DNToEU.Units, WhenSrc: raw.DNToEU.When}
			if conv.Equation, err = eval.Parse(raw.DNToEU.Equation); err != nil {
				errs = append(errs, ValidationError{Def: def, Field: raw.Name, Message: fmt.Sprintf("dntoeu.equation: %v", err)})
			}
			if raw.DNToEU.When != "" {
				if conv.When, err = eval.Parse(raw.DNToEU.When); err != nil {
					errs = append(errs, ValidationError{Def: def, Field: raw.Name, Message: fmt.Sprintf("dntoeu.when: %v", err)})
				}
			}
			f.DNToEU = conv
		}
		fields = append(fields, f)
		ranges = append(ranges, raw.Bytes)
		masks = append(masks, raw.Mask)
	}
	return fields, ranges, masks, errs
}

func parseFunctions(def string, src map[string]string, errs ValidationErrors) (map[string]*eval.Function, ValidationErrors) {
	out := make(map[string]*eval.Function, len(src))
	sigs := make([]string, 0, len(src))
	for sig := range src {
		sigs = append(sigs, sig)
	}
	sort.Strings(sigs)
	for _, sig := range sigs {
		fn, err := eval.ParseFunction(sig, src[sig])
		if err != nil {
			errs = append(errs, ValidationError{Def: def, Message: err.Error()})
			continue
		}
		if _, dup := out[fn.Name]; dup {
			errs = append(errs, ValidationError{Def: def, Message: fmt.Sprintf("duplicate function %q", fn.Name)})
			continue
		}
		out[fn.Name] = fn
	}
	return out, errs
}

func sortedFunctionNames(fns map[string]*eval.Function) []string {
	names := make([]string, 0, len(fns))
	for name := range fns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// mergeScope layers local constants/functions over the globals; locals win.
func (r *resolver) mergeScope(def string, localConstants map[string]float64, localFunctions map[string]string, errs ValidationErrors) (map[string]float64, map[string]*eval.Function, ValidationErrors) {
	constants := make(map[string]float64, len(r.globalConstants)+len(localConstants))
	for k, v := range r.globalConstants {
		constants[k] = v
	}
	for k, v := range localConstants {
		constants[k] = v
	}
	locals, errs := parseFunctions(def, localFunctions, errs)
	functions := make(map[string]*eval.Function, len(r.globalFunctions)+len(locals))
	for k, v := range r.globalFunctions {
		functions[k] = v
	}
	for k, v := range locals {
		functions[k] = v
	}
	for _, name := range sortedFunctionNames(locals) {
		errs = validateFunction(errs, def, locals[name], constants, functions)
	}
	return constants, functions, errs
}

func (r *resolver) resolvePacket(raw *RawPacket) (*PacketDef, ValidationErrors) {
	var errs ValidationErrors
	def := raw.Name
	if def == "" {
		return nil, ValidationErrors{{Message: "packet without a name"}}
	}

	apid := -1
	switch {
	case raw.APID != nil:
		apid = *raw.APID
	case raw.CCSDS != nil && raw.CCSDS.APID != nil:
		apid = *raw.CCSDS.APID
	default:
		errs = append(errs, ValidationError{Def: def, Message: "missing apid"})
	}

	expanded, eerrs := r.expandFields(def, raw.Fields, []string{def})
	errs = append(errs, eerrs...)
	merged, merrs := mergeFields(def, expanded)
	errs = append(errs, merrs...)
	fields, ranges, masks, ferrs := resolveFieldList(def, merged)
	errs = append(errs, ferrs...)

	size, err := computeLayout(fields, ranges, masks)
	if err != nil {
		// Spans past the failing field are unset; overlap checking them
		// would only manufacture noise next to the real error.
		errs = append(errs, ValidationError{Def: def, Message: err.Error()})
	} else {
		errs = checkOverlaps(errs, def, fields)
	}

	constants, functions, errs := r.mergeScope(def, raw.Constants, raw.Functions, errs)

	pkt := &PacketDef{
		Name:         def,
		Desc:         raw.Desc,
		APID:         apid,
		Fields:       fields,
		History:      raw.History,
		Constants:    constants,
		Functions:    functions,
		Size:         size,
		fieldsByName: make(map[string]*Field, len(fields)),
		historySet:   make(map[string]bool, len(raw.History)),
	}
	for _, f := range fields {
		pkt.fieldsByName[f.Name] = f
		for _, alias := range f.Aliases {
			// Aliases are best-effort lookup names; first writer wins.
			if _, taken := pkt.fieldsByName[alias]; !taken {
				pkt.fieldsByName[alias] = f
			}
		}
	}

	// Derivations resolve after fields, in declaration order.
	derivNames := map[string]bool{}
	for _, rd := range raw.Derivations {
		if rd.Name == "" {
			errs = append(errs, ValidationError{Def: def, Message: "derivation without a name"})
			continue
		}
		if _, clash := pkt.fieldsByName[rd.Name]; clash || derivNames[rd.Name] {
			errs = append(errs, ValidationError{Def: def, Field: rd.Name, Message: "duplicate derivation name"})
			continue
		}
		derivNames[rd.Name] = true
		deriv := &Derivation{Name: rd.Name, Desc: rd.Desc, Units: rd.Units, EquationSrc: rd.Equation, WhenSrc: rd.When}
		var err error
		if deriv.Equation, err = eval.Parse(rd.Equation); err != nil {
			errs = append(errs, ValidationError{Def: def, Field: rd.Name, Message: fmt.Sprintf("equation: %v", err)})
		}
		if rd.When != "" {
			if deriv.When, err = eval.Parse(rd.When); err != nil {
				errs = append(errs, ValidationError{Def: def, Field: rd.Name, Message: fmt.Sprintf("when: %v", err)})
			}
		}
		pkt.Derivations = append(pkt.Derivations, deriv)
	}

	// Declared history must name a field or derivation of this packet.
	for _, name := range raw.History {
		if _, ok := pkt.fieldsByName[name]; !ok && !derivNames[name] {
			errs = append(errs, ValidationError{
				Def:     def,
				Message: fmt.Sprintf("history declares unknown name %q", name),
			})
			continue
		}
		pkt.historySet[name] = true
	}

	errs = append(errs, checkPacketExprs(pkt, constants)...)
	return pkt, errs
}

// checkPacketExprs verifies that every when/dntoeu/derivation expression
// references only names resolvable at its point of evaluation: constants,
// strictly prior fields, declared history, and functions. A field's own DN
// is reachable only through the raw token; the decoder stores a field's
// value after its expressions run, so a self-reference by name can never
// resolve and must fail here, not at decode time.
func checkPacketExprs(pkt *PacketDef, constants map[string]float64) ValidationErrors {
	var errs ValidationErrors
	names := make(map[string]bool, len(constants)+len(pkt.Fields))
	for c := range constants {
		names[c] = true
	}
	scope := exprScope{
		def:       pkt.Name,
		names:     names,
		history:   pkt.historySet,
		functions: pkt.Functions,
		allowRaw:  true,
	}

	for _, f := range pkt.Fields {
		if f.When != nil {
			errs = checkExpr(errs, scope, f.Name, "when", f.When)
		}
		if f.DNToEU != nil {
			if f.DNToEU.Equation != nil {
				errs = checkExpr(errs, scope, f.Name, "dntoeu.equation", f.DNToEU.Equation)
			}
			if f.DNToEU.When != nil {
				errs = checkExpr(errs, scope, f.Name, "dntoeu.when", f.DNToEU.When)
			}
		}
		names[f.Name] = true
		for _, alias := range f.Aliases {
			names[alias] = true
		}
	}

	scope.allowRaw = false
	for _, deriv := range pkt.Derivations {
		if deriv.Equation != nil {
			errs = checkExpr(errs, scope, deriv.Name, "equation", deriv.Equation)
		}
		if deriv.When != nil {
			errs = checkExpr(errs, scope, deriv.Name, "when", deriv.When)
		}
		names[deriv.Name] = true
	}
	return errs
}

func (r *resolver) resolveCommand(raw *RawCommand) (*CommandDef, ValidationErrors) {
	var errs ValidationErrors
	def := raw.Name
	if def == "" {
		return nil, ValidationErrors{{Message: "command without a name"}}
	}

	opcode := -1
	if raw.Opcode != nil {
		opcode = *raw.Opcode
	} else {
		errs = append(errs, ValidationError{Def: def, Message: "missing opcode"})
	}

	expanded, eerrs := r.expandFields(def, raw.Arguments, []string{def})
	errs = append(errs, eerrs...)
	merged, merrs := mergeFields(def, expanded)
	errs = append(errs, merrs...)
	args, ranges, masks, aerrs := resolveFieldList(def, merged)
	errs = append(errs, aerrs...)

	size, err := computeLayout(args, ranges, masks)
	if err != nil {
		errs = append(errs, ValidationError{Def: def, Message: err.Error()})
	} else {
		errs = checkOverlaps(errs, def, args)
	}

	constants, functions, errs := r.mergeScope(def, raw.Constants, raw.Functions, errs)

	cmd := &CommandDef{
		Name:       def,
		Desc:       raw.Desc,
		Opcode:     opcode,
		Arguments:  args,
		Constants:  constants,
		Functions:  functions,
		Size:       size,
		argsByName: make(map[string]*Field, len(args)),
	}
	for _, f := range args {
		cmd.argsByName[f.Name] = f
		for _, alias := range f.Aliases {
			if _, taken := cmd.argsByName[alias]; !taken {
				cmd.argsByName[alias] = f
			}
		}
	}

	names := make(map[string]bool, len(constants)+len(args))
	for c := range constants {
		names[c] = true
	}
	scope := exprScope{
		def:       def,
		names:     names,
		history:   map[string]bool{},
		functions: functions,
		allowRaw:  true,
	}
	for _, f := range args {
		if f.When != nil {
			errs = checkExpr(errs, scope, f.Name, "when", f.When)
		}
		if f.DNToEU != nil {
			if f.DNToEU.Equation != nil {
				errs = checkExpr(errs, scope, f.Name, "dntoeu.equation", f.DNToEU.Equation)
			}
			if f.DNToEU.When != nil {
				errs = checkExpr(errs, scope, f.Name, "dntoeu.when", f.DNToEU.When)
			}
		}
		names[f.Name] = true
		for _, alias := range f.Aliases {
			names[alias] = true
		}
	}
	return cmd, errs
}
