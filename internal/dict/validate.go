package dict

import (
	"fmt"
	"strings"

	"github.com/groundside/ctdict/internal/eval"
)

// ValidationError is one definition error found while resolving a
// dictionary. A broken dictionary must never be used, so these are always
// surfaced to the caller and never recovered automatically.
type ValidationError struct {
	Def     string // defining packet/command/fieldset; empty for dictionary-level errors
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	switch {
	case e.Def != "" && e.Field != "":
		return fmt.Sprintf("%s: %s: %s", e.Def, e.Field, e.Message)
	case e.Def != "":
		return fmt.Sprintf("%s: %s", e.Def, e.Message)
	}
	return e.Message
}

// ValidationErrors collects every definition error in a dictionary.
// Resolution is total: all errors are reported together, not fail-fast.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("dictionary validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}

// CycleError reports an include chain that reaches itself.
type CycleError struct {
	Chain []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cyclic include: %s", strings.Join(e.Chain, " -> "))
}

// UnknownReferenceError reports an identifier that no constant, field,
// history declaration, or function resolves.
type UnknownReferenceError struct {
	Ref string
	Def string
}

func (e *UnknownReferenceError) Error() string {
	return fmt.Sprintf("%s: unknown reference %q", e.Def, e.Ref)
}

// exprScope describes what an expression in a given position may reference.
type exprScope struct {
	def       string
	names     map[string]bool // fields, derivations, constants, aliases in scope
	history   map[string]bool
	functions map[string]*eval.Function
	allowRaw  bool
}

// checkExpr validates a parsed expression's references against the scope,
// appending one error per unresolved name.
func checkExpr(errs ValidationErrors, scope exprScope, field, what string, expr eval.Expr) ValidationErrors {
	refs := eval.References(expr)
	for _, name := range refs.Names {
		if !scope.names[name] {
			errs = append(errs, ValidationError{
				Def:     scope.def,
				Field:   field,
				Message: fmt.Sprintf("%s: %s", what, (&UnknownReferenceError{Ref: name, Def: scope.def}).Error()),
			})
		}
	}
	for _, name := range refs.History {
		if !scope.history[name] {
			errs = append(errs, ValidationError{
				Def:     scope.def,
				Field:   field,
				Message: fmt.Sprintf("%s: history reference %q is not declared", what, name),
			})
		}
	}
	for _, name := range refs.Functions {
		if _, ok := scope.functions[name]; !ok {
			errs = append(errs, ValidationError{
				Def:     scope.def,
				Field:   field,
				Message: fmt.Sprintf("%s: unknown function %q", what, name),
			})
		}
	}
	if refs.UsesRaw && !scope.allowRaw {
		errs = append(errs, ValidationError{
			Def:     scope.def,
			Field:   field,
			Message: fmt.Sprintf("%s: %q is only valid in field equations", what, eval.RawToken),
		})
	}
	return errs
}

// checkOverlaps rejects byte ranges that collide, except for intentional
// aliasing: identical spans whose masks cover disjoint bits.
func checkOverlaps(errs ValidationErrors, def string, fields []*Field) ValidationErrors {
	for i := 0; i < len(fields); i++ {
		for j := i + 1; j < len(fields); j++ {
			a, b := fields[i], fields[j]
			if !a.Span.Overlaps(b.Span) {
				continue
			}
			if a.Span.Start == b.Span.Start && a.Span.End == b.Span.End &&
				a.Span.Mask != 0 && b.Span.Mask != 0 && a.Span.Mask&b.Span.Mask == 0 {
				continue
			}
			errs = append(errs, ValidationError{
				Def:   def,
				Field: b.Name,
				Message: fmt.Sprintf("byte range %d..%d overlaps field %q (%d..%d) without disjoint masks",
					b.Span.Start, b.Span.End, a.Name, a.Span.Start, a.Span.End),
			})
		}
	}
	return errs
}

// validateFunction checks that a function body references only its own
// parameters, constants in scope, and other functions.
func validateFunction(errs ValidationErrors, def string, fn *eval.Function, constants map[string]float64, functions map[string]*eval.Function) ValidationErrors {
	names := make(map[string]bool, len(fn.Params)+len(constants))
	for _, p := range fn.Params {
		names[p] = true
	}
	for c := range constants {
		names[c] = true
	}
	scope := exprScope{
		def:       def,
		names:     names,
		history:   map[string]bool{},
		functions: functions,
	}
	return checkExpr(errs, scope, "", fmt.Sprintf("function %s", fn.Name), fn.Body)
}
