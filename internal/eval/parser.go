// Package eval implements the restricted expression language used by
// dictionary equations, derivations, and when conditions. The grammar is
// deliberately closed: numeric literals, named references, history lookups
// with negative offsets (name[-1]), function fragments, and conventional
// arithmetic/comparison/boolean operators. No loops, no assignment, no I/O.
package eval

import (
	"fmt"
	"strconv"
	"strings"
)

// RawToken is the reserved identifier resolving to the current field's
// raw (DN) value inside dntoeu equations and when conditions.
const RawToken = "raw"

// Expr is a parsed expression, safe for concurrent evaluation.
type Expr interface {
	Eval(ctx Context) (float64, error)
	walk(fn func(node Expr))
}

type numberLit struct{ value float64 }

type rawRef struct{}

type nameRef struct{ name string }

type historyRef struct {
	name   string
	offset int // strictly negative; -1 is the most recent committed sample
}

type callExpr struct {
	name string
	args []Expr
}

type unaryExpr struct {
	op tokenKind
	x  Expr
}

type binaryExpr struct {
	op   tokenKind
	x, y Expr
}

func (e *numberLit) walk(fn func(Expr))  { fn(e) }
func (e *rawRef) walk(fn func(Expr))     { fn(e) }
func (e *nameRef) walk(fn func(Expr))    { fn(e) }
func (e *historyRef) walk(fn func(Expr)) { fn(e) }
func (e *callExpr) walk(fn func(Expr)) {
	fn(e)
	for _, a := range e.args {
		a.walk(fn)
	}
}
func (e *unaryExpr) walk(fn func(Expr)) {
	fn(e)
	e.x.walk(fn)
}
func (e *binaryExpr) walk(fn func(Expr)) {
	fn(e)
	e.x.walk(fn)
	e.y.walk(fn)
}

// Parse compiles an equation string into an expression tree.
func Parse(src string) (Expr, error) {
	if strings.TrimSpace(src) == "" {
		return nil, fmt.Errorf("empty expression")
	}
	tokens, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	expr, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		return nil, fmt.Errorf("unexpected %q at offset %d", p.peek().text, p.peek().pos)
	}
	return expr, nil
}

type parser struct {
	tokens []token
	pos    int
}

func (p *parser) peek() token { return p.tokens[p.pos] }

func (p *parser) next() token {
	t := p.tokens[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) expect(kind tokenKind, what string) (token, error) {
	t := p.peek()
	if t.kind != kind {
		return t, fmt.Errorf("expected %s at offset %d, got %q", what, t.pos, t.text)
	}
	return p.next(), nil
}

func (p *parser) parseOr() (Expr, error) {
	x, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOr {
		p.next()
		y, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		x = &binaryExpr{op: tokOr, x: x, y: y}
	}
	return x, nil
}

func (p *parser) parseAnd() (Expr, error) {
	x, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokAnd {
		p.next()
		y, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		x = &binaryExpr{op: tokAnd, x: x, y: y}
	}
	return x, nil
}

func (p *parser) parseComparison() (Expr, error) {
	x, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for {
		op := p.peek().kind
		switch op {
		case tokEq, tokNeq, tokLt, tokLte, tokGt, tokGte:
			p.next()
			y, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			x = &binaryExpr{op: op, x: x, y: y}
		default:
			return x, nil
		}
	}
}

func (p *parser) parseAdditive() (Expr, error) {
	x, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for {
		op := p.peek().kind
		if op != tokPlus && op != tokMinus {
			return x, nil
		}
		p.next()
		y, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		x = &binaryExpr{op: op, x: x, y: y}
	}
}

func (p *parser) parseMultiplicative() (Expr, error) {
	x, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		op := p.peek().kind
		if op != tokStar && op != tokSlash && op != tokPercent {
			return x, nil
		}
		p.next()
		y, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		x = &binaryExpr{op: op, x: x, y: y}
	}
}

func (p *parser) parseUnary() (Expr, error) {
	switch p.peek().kind {
	case tokMinus:
		p.next()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &unaryExpr{op: tokMinus, x: x}, nil
	case tokNot:
		p.next()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &unaryExpr{op: tokNot, x: x}, nil
	}
	return p.parsePower()
}

func (p *parser) parsePower() (Expr, error) {
	x, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	if p.peek().kind == tokPower {
		p.next()
		// Right associative: a ** b ** c == a ** (b ** c).
		y, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &binaryExpr{op: tokPower, x: x, y: y}, nil
	}
	return x, nil
}

func (p *parser) parsePrimary() (Expr, error) {
	t := p.peek()
	switch t.kind {
	case tokNumber:
		p.next()
		v, err := parseNumber(t.text)
		if err != nil {
			return nil, fmt.Errorf("bad number %q at offset %d", t.text, t.pos)
		}
		return &numberLit{value: v}, nil
	case tokLParen:
		p.next()
		x, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen, ")"); err != nil {
			return nil, err
		}
		return x, nil
	case tokIdent:
		p.next()
		if t.text == RawToken {
			return &rawRef{}, nil
		}
		switch p.peek().kind {
		case tokLParen:
			return p.parseCall(t.text)
		case tokLBracket:
			return p.parseHistory(t.text)
		}
		return &nameRef{name: t.text}, nil
	}
	return nil, fmt.Errorf("unexpected %q at offset %d", t.text, t.pos)
}

func (p *parser) parseCall(name string) (Expr, error) {
	p.next() // consume (
	call := &callExpr{name: name}
	if p.peek().kind == tokRParen {
		p.next()
		return call, nil
	}
	for {
		arg, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		call.args = append(call.args, arg)
		if p.peek().kind == tokComma {
			p.next()
			continue
		}
		break
	}
	if _, err := p.expect(tokRParen, ")"); err != nil {
		return nil, err
	}
	return call, nil
}

func (p *parser) parseHistory(name string) (Expr, error) {
	open := p.next() // consume [
	neg := false
	if p.peek().kind == tokMinus {
		neg = true
		p.next()
	}
	num, err := p.expect(tokNumber, "history offset")
	if err != nil {
		return nil, err
	}
	v, err := strconv.Atoi(num.text)
	if err != nil {
		return nil, fmt.Errorf("bad history offset %q at offset %d", num.text, num.pos)
	}
	if _, err := p.expect(tokRBracket, "]"); err != nil {
		return nil, err
	}
	if !neg || v == 0 {
		return nil, fmt.Errorf("history offset for %s must be negative at offset %d", name, open.pos)
	}
	return &historyRef{name: name, offset: -v}, nil
}

func parseNumber(text string) (float64, error) {
	if strings.HasPrefix(text, "0x") || strings.HasPrefix(text, "0X") {
		u, err := strconv.ParseUint(text[2:], 16, 64)
		if err != nil {
			return 0, err
		}
		return float64(u), nil
	}
	return strconv.ParseFloat(text, 64)
}

// Refs summarizes every name an expression can touch, for validation
// before any frame is decoded.
type Refs struct {
	Names     []string // plain field/derivation/constant references
	History   []string // names referenced with a history offset
	Functions []string
	UsesRaw   bool
}

// References walks the tree and collects referenced identifiers.
func References(e Expr) Refs {
	var refs Refs
	seen := map[string]bool{}
	seenHist := map[string]bool{}
	seenFn := map[string]bool{}
	e.walk(func(node Expr) {
		switch n := node.(type) {
		case *rawRef:
			refs.UsesRaw = true
		case *nameRef:
			if !seen[n.name] {
				seen[n.name] = true
				refs.Names = append(refs.Names, n.name)
			}
		case *historyRef:
			if !seenHist[n.name] {
				seenHist[n.name] = true
				refs.History = append(refs.History, n.name)
			}
		case *callExpr:
			if !seenFn[n.name] {
				seenFn[n.name] = true
				refs.Functions = append(refs.Functions, n.name)
			}
		}
	})
	return refs
}
