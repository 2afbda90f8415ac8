package eval

import (
	"fmt"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokIdent
	tokPlus
	tokMinus
	tokStar
	tokSlash
	tokPercent
	tokPower
	tokLParen
	tokRParen
	tokLBracket
	tokRBracket
	tokComma
	tokEq
	tokNeq
	tokLt
	tokLte
	tokGt
	tokGte
	tokAnd
	tokOr
	tokNot
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

// lexer splits an equation string into tokens. The grammar is small enough
// that a single forward scan suffices.
type lexer struct {
	src    string
	pos    int
	tokens []token
}

func lex(src string) ([]token, error) {
	l := &lexer{src: src}
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			l.pos++
		case c >= '0' && c <= '9', c == '.' && l.pos+1 < len(l.src) && isDigit(l.src[l.pos+1]):
			l.lexNumber()
		case isIdentStart(rune(c)):
			l.lexIdent()
		default:
			if err := l.lexOperator(); err != nil {
				return nil, err
			}
		}
	}
	l.emit(tokEOF, "", l.pos)
	return l.tokens, nil
}

func (l *lexer) emit(kind tokenKind, text string, pos int) {
	l.tokens = append(l.tokens, token{kind: kind, text: text, pos: pos})
}

func (l *lexer) lexNumber() {
	start := l.pos
	if strings.HasPrefix(l.src[l.pos:], "0x") || strings.HasPrefix(l.src[l.pos:], "0X") {
		l.pos += 2
		for l.pos < len(l.src) && isHexDigit(l.src[l.pos]) {
			l.pos++
		}
		l.emit(tokNumber, l.src[start:l.pos], start)
		return
	}
	seenDot, seenExp := false, false
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		if isDigit(c) {
			l.pos++
			continue
		}
		if c == '.' && !seenDot && !seenExp {
			seenDot = true
			l.pos++
			continue
		}
		if (c == 'e' || c == 'E') && !seenExp && l.pos > start {
			seenExp = true
			l.pos++
			if l.pos < len(l.src) && (l.src[l.pos] == '+' || l.src[l.pos] == '-') {
				l.pos++
			}
			continue
		}
		break
	}
	l.emit(tokNumber, l.src[start:l.pos], start)
}

func (l *lexer) lexIdent() {
	start := l.pos
	for l.pos < len(l.src) && isIdentPart(rune(l.src[l.pos])) {
		l.pos++
	}
	l.emit(tokIdent, l.src[start:l.pos], start)
}

func (l *lexer) lexOperator() error {
	start := l.pos
	two := ""
	if l.pos+1 < len(l.src) {
		two = l.src[l.pos : l.pos+2]
	}
	switch two {
	case "**":
		l.emit(tokPower, two, start)
		l.pos += 2
		return nil
	case "==":
		l.emit(tokEq, two, start)
		l.pos += 2
		return nil
	case "!=":
		l.emit(tokNeq, two, start)
		l.pos += 2
		return nil
	case "<=":
		l.emit(tokLte, two, start)
		l.pos += 2
		return nil
	case ">=":
		l.emit(tokGte, two, start)
		l.pos += 2
		return nil
	case "&&":
		l.emit(tokAnd, two, start)
		l.pos += 2
		return nil
	case "||":
		l.emit(tokOr, two, start)
		l.pos += 2
		return nil
	}
	switch l.src[l.pos] {
	case '+':
		l.emit(tokPlus, "+", start)
	case '-':
		l.emit(tokMinus, "-", start)
	case '*':
		l.emit(tokStar, "*", start)
	case '/':
		l.emit(tokSlash, "/", start)
	case '%':
		l.emit(tokPercent, "%", start)
	case '(':
		l.emit(tokLParen, "(", start)
	case ')':
		l.emit(tokRParen, ")", start)
	case '[':
		l.emit(tokLBracket, "[", start)
	case ']':
		l.emit(tokRBracket, "]", start)
	case ',':
		l.emit(tokComma, ",", start)
	case '<':
		l.emit(tokLt, "<", start)
	case '>':
		l.emit(tokGt, ">", start)
	case '!':
		l.emit(tokNot, "!", start)
	default:
		return fmt.Errorf("unexpected character %q at offset %d", l.src[l.pos], l.pos)
	}
	l.pos++
	return nil
}

func isDigit(c byte) bool    { return c >= '0' && c <= '9' }
func isHexDigit(c byte) bool { return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F') }

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
