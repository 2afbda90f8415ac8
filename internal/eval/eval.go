package eval

import (
	"fmt"
	"math"
)

// Context supplies the values an expression may read. Implementations must
// be read-only; evaluation never writes through the context.
type Context interface {
	// Raw returns the current field's DN value when evaluating a dntoeu
	// equation or field-level when condition. ok is false outside that
	// scope (derivations have no self value).
	Raw() (value float64, ok bool)

	// Resolve returns the numeric value bound to a field, derivation, or
	// constant name. ok is false for unknown names and for values with no
	// numeric representation (e.g. ASCII string fields).
	Resolve(name string) (value float64, ok bool)

	// History returns the sample at the given negative offset for a name
	// with declared history; offset -1 is the most recent committed
	// sample. ok is false when the name has no declared history or fewer
	// samples exist than the offset requires.
	History(name string, offset int) (value float64, ok bool)

	// Function returns the named reusable equation fragment.
	Function(name string) (*Function, bool)
}

// Reason classifies an evaluation failure.
type Reason string

const (
	ReasonUnknownReference Reason = "unknown reference"
	ReasonHistoryDepth     Reason = "insufficient history"
	ReasonDivisionByZero   Reason = "division by zero"
	ReasonUnknownFunction  Reason = "unknown function"
	ReasonArityMismatch    Reason = "wrong argument count"
	ReasonNoRawValue       Reason = "no raw value in scope"
)

// Error is an evaluation failure. It always names the construct that
// failed; callers decide how to surface it against a specific field.
type Error struct {
	Reason Reason
	Ident  string
	Detail string
}

func (e *Error) Error() string {
	msg := string(e.Reason)
	if e.Ident != "" {
		msg += ": " + e.Ident
	}
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

func evalErr(reason Reason, ident, detail string) error {
	return &Error{Reason: reason, Ident: ident, Detail: detail}
}

// Function is a named, parameterized equation fragment declared in a
// dictionary's functions block, e.g. "f_to_c(f): (f - 32) * 5 / 9".
type Function struct {
	Name   string
	Params []string
	Body   Expr
}

// ParseFunction compiles a signature ("name(a, b)") and body expression.
func ParseFunction(signature, body string) (*Function, error) {
	tokens, err := lex(signature)
	if err != nil {
		return nil, fmt.Errorf("function signature %q: %w", signature, err)
	}
	p := &parser{tokens: tokens}
	name, err := p.expect(tokIdent, "function name")
	if err != nil {
		return nil, fmt.Errorf("function signature %q: %w", signature, err)
	}
	if _, err := p.expect(tokLParen, "("); err != nil {
		return nil, fmt.Errorf("function signature %q: %w", signature, err)
	}
	fn := &Function{Name: name.text}
	if p.peek().kind != tokRParen {
		for {
			param, err := p.expect(tokIdent, "parameter name")
			if err != nil {
				return nil, fmt.Errorf("function signature %q: %w", signature, err)
			}
			fn.Params = append(fn.Params, param.text)
			if p.peek().kind != tokComma {
				break
			}
			p.next()
		}
	}
	if _, err := p.expect(tokRParen, ")"); err != nil {
		return nil, fmt.Errorf("function signature %q: %w", signature, err)
	}
	if p.peek().kind != tokEOF {
		return nil, fmt.Errorf("function signature %q: trailing %q", signature, p.peek().text)
	}
	fn.Body, err = Parse(body)
	if err != nil {
		return nil, fmt.Errorf("function %s body: %w", fn.Name, err)
	}
	return fn, nil
}

// boundContext overlays function parameters on an outer context during a
// call. Parameters shadow outer names; everything else passes through.
type boundContext struct {
	outer  Context
	params map[string]float64
}

func (b *boundContext) Raw() (float64, bool) { return b.outer.Raw() }

func (b *boundContext) Resolve(name string) (float64, bool) {
	if v, ok := b.params[name]; ok {
		return v, true
	}
	return b.outer.Resolve(name)
}

func (b *boundContext) History(name string, offset int) (float64, bool) {
	return b.outer.History(name, offset)
}

func (b *boundContext) Function(name string) (*Function, bool) {
	return b.outer.Function(name)
}

// Truthy reports whether an evaluated result counts as true in a when
// condition.
func Truthy(v float64) bool { return v != 0 }

func boolVal(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func (e *numberLit) Eval(ctx Context) (float64, error) { return e.value, nil }

func (e *rawRef) Eval(ctx Context) (float64, error) {
	v, ok := ctx.Raw()
	if !ok {
		return 0, evalErr(ReasonNoRawValue, RawToken, "raw is only valid in field equations")
	}
	return v, nil
}

func (e *nameRef) Eval(ctx Context) (float64, error) {
	v, ok := ctx.Resolve(e.name)
	if !ok {
		return 0, evalErr(ReasonUnknownReference, e.name, "")
	}
	return v, nil
}

func (e *historyRef) Eval(ctx Context) (float64, error) {
	v, ok := ctx.History(e.name, e.offset)
	if !ok {
		return 0, evalErr(ReasonHistoryDepth, fmt.Sprintf("%s[%d]", e.name, e.offset), "")
	}
	return v, nil
}

func (e *callExpr) Eval(ctx Context) (float64, error) {
	fn, ok := ctx.Function(e.name)
	if !ok {
		return 0, evalErr(ReasonUnknownFunction, e.name, "")
	}
	if len(e.args) != len(fn.Params) {
		return 0, evalErr(ReasonArityMismatch, e.name,
			fmt.Sprintf("want %d args, got %d", len(fn.Params), len(e.args)))
	}
	params := make(map[string]float64, len(e.args))
	for i, arg := range e.args {
		v, err := arg.Eval(ctx)
		if err != nil {
			return 0, err
		}
		params[fn.Params[i]] = v
	}
	return fn.Body.Eval(&boundContext{outer: ctx, params: params})
}

func (e *unaryExpr) Eval(ctx Context) (float64, error) {
	v, err := e.x.Eval(ctx)
	if err != nil {
		return 0, err
	}
	switch e.op {
	case tokMinus:
		return -v, nil
	case tokNot:
		return boolVal(!Truthy(v)), nil
	}
	return 0, fmt.Errorf("bad unary operator")
}

func (e *binaryExpr) Eval(ctx Context) (float64, error) {
	x, err := e.x.Eval(ctx)
	if err != nil {
		return 0, err
	}

	// Boolean operators short-circuit.
	switch e.op {
	case tokAnd:
		if !Truthy(x) {
			return 0, nil
		}
		y, err := e.y.Eval(ctx)
		if err != nil {
			return 0, err
		}
		return boolVal(Truthy(y)), nil
	case tokOr:
		if Truthy(x) {
			return 1, nil
		}
		y, err := e.y.Eval(ctx)
		if err != nil {
			return 0, err
		}
		return boolVal(Truthy(y)), nil
	}

	y, err := e.y.Eval(ctx)
	if err != nil {
		return 0, err
	}
	switch e.op {
	case tokPlus:
		return x + y, nil
	case tokMinus:
		return x - y, nil
	case tokStar:
		return x * y, nil
	case tokSlash:
		if y == 0 {
			return 0, evalErr(ReasonDivisionByZero, "", "")
		}
		return x / y, nil
	case tokPercent:
		if y == 0 {
			return 0, evalErr(ReasonDivisionByZero, "", "modulo by zero")
		}
		return math.Mod(x, y), nil
	case tokPower:
		return math.Pow(x, y), nil
	case tokEq:
		return boolVal(x == y), nil
	case tokNeq:
		return boolVal(x != y), nil
	case tokLt:
		return boolVal(x < y), nil
	case tokLte:
		return boolVal(x <= y), nil
	case tokGt:
		return boolVal(x > y), nil
	case tokGte:
		return boolVal(x >= y), nil
	}
	return 0, fmt.Errorf("bad binary operator")
}
