package expression

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/copyleftdev/integra/internal/errors"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokName
	tokOp
)

type token struct {
	kind tokenKind
	text string
	col  int
}

func (t token) is(op string) bool {
	return t.kind == tokOp && t.text == op
}

func (t token) describe() string {
	if t.kind == tokEOF {
		return "end of formula"
	}
	return strconv.Quote(t.text)
}

// names lists every identifier a formula may use, longest first, so that
// run-together words such as "piexp" or "xx" split greedily.
var names = func() []string {
	out := []string{Variable}
	for _, m := range []map[string]string{functions, binaryFunctions, constants} {
		for name := range m {
			out = append(out, name)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i]) != len(out[j]) {
			return len(out[i]) > len(out[j])
		}
		return out[i] < out[j]
	})
	return out
}()

func isDigit(c byte) bool  { return c >= '0' && c <= '9' }
func isLetter(c byte) bool { return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' }

// lex splits src into tokens. Words that are not a known name are split into
// known names; words that cannot be split are returned as unknown.
func lex(src string) (tokens []token, unknown []string, err error) {
	for i := 0; i < len(src); {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++

		case isDigit(c) || c == '.' && i+1 < len(src) && isDigit(src[i+1]):
			j := i
			for j < len(src) && isDigit(src[j]) {
				j++
			}
			if j < len(src) && src[j] == '.' {
				j++
				for j < len(src) && isDigit(src[j]) {
					j++
				}
			}
			// 1e-3 is scientific notation; 2e and 2ex are 2*e and 2*e*x.
			if j < len(src) && (src[j] == 'e' || src[j] == 'E') {
				k := j + 1
				if k < len(src) && (src[k] == '+' || src[k] == '-') {
					k++
				}
				if k < len(src) && isDigit(src[k]) {
					for k < len(src) && isDigit(src[k]) {
						k++
					}
					j = k
				}
			}
			lit := src[i:j]
			if lit == "0" && j+1 < len(src) && strings.ContainsRune("xXbBoO", rune(src[j])) && isDigit(src[j+1]) {
				return nil, nil, parseErrorf(i+1, "only decimal numbers are supported, got %s", src[i:j+2])
			}
			tokens = append(tokens, token{kind: tokNumber, text: lit, col: i + 1})
			i = j

		case isLetter(c):
			j := i
			for j < len(src) && (isLetter(src[j]) || isDigit(src[j]) || src[j] == '_') {
				j++
			}
			word := src[i:j]
			parts, ok := split(word)
			if !ok {
				unknown = append(unknown, word)
			}
			off := i
			for _, p := range parts {
				tokens = append(tokens, token{kind: tokName, text: p, col: off + 1})
				off += len(p)
			}
			i = j

		case strings.IndexByte("+-*/^%(),", c) >= 0:
			tokens = append(tokens, token{kind: tokOp, text: string(c), col: i + 1})
			i++

		default:
			return nil, nil, parseErrorf(i+1, "unexpected %q", string(c))
		}
	}
	tokens = append(tokens, token{kind: tokEOF, col: len(src) + 1})
	return tokens, unknown, nil
}

// split breaks word into known names, preferring longer names first.
func split(word string) ([]string, bool) {
	failed := make(map[int]bool)
	var walk func(at int) []string
	walk = func(at int) []string {
		if at == len(word) {
			return []string{}
		}
		if failed[at] {
			return nil
		}
		for _, name := range names {
			if strings.HasPrefix(word[at:], name) {
				if rest := walk(at + len(name)); rest != nil {
					return append([]string{name}, rest...)
				}
			}
		}
		failed[at] = true
		return nil
	}

	parts := walk(0)
	return parts, parts != nil
}

// node is a parsed formula.
type node interface {
	render(lit func(string) string) string
}

type numberNode struct{ text string }

type nameNode struct{ name string }

type callNode struct {
	name string
	args []node
}

type unaryNode struct{ x node }

type binaryNode struct {
	op   string
	l, r node
}

func (n numberNode) render(lit func(string) string) string { return lit(n.text) }

func (n nameNode) render(func(string) string) string { return n.name }

func (n callNode) render(lit func(string) string) string {
	args := make([]string, len(n.args))
	for i, a := range n.args {
		args[i] = a.render(lit)
	}
	return n.name + "(" + strings.Join(args, ", ") + ")"
}

func (n unaryNode) render(lit func(string) string) string {
	return "-" + operand(n.x, lit)
}

func (n binaryNode) render(lit func(string) string) string {
	return operand(n.l, lit) + " " + n.op + " " + operand(n.r, lit)
}

// operand parenthesizes compound operands so the rendering never depends on
// Go's precedence rules.
func operand(n node, lit func(string) string) string {
	switch n.(type) {
	case unaryNode, binaryNode:
		return "(" + n.render(lit) + ")"
	}
	return n.render(lit)
}

// floatLiteral renders a decimal literal so Go reads it as a float.
func floatLiteral(text string) string {
	v, _ := strconv.ParseFloat(text, 64)
	s := strconv.FormatFloat(v, 'g', -1, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}

type parser struct {
	tokens []token
	pos    int
}

// parse turns src into a syntax tree.
//
//	expr  = term { ("+" | "-") term }
//	term  = unary { ("*" | "/" | "%") unary | implicit }
//	unary = ("+" | "-") unary | power
//	power = primary [ "^" unary ]
//
// Juxtaposition multiplies ("5x", "2(x+1)", "pi exp(x)") with the precedence
// of "*"; "^" binds tighter and groups to the right.
func parse(src string) (node, error) {
	if strings.TrimSpace(src) == "" {
		return nil, errors.New(errors.KindParse, "expression is empty").WithOp("expression.Normalize")
	}

	tokens, unknown, err := lex(src)
	if err != nil {
		return nil, err
	}
	if len(unknown) > 0 {
		return nil, errors.Errorf(errors.KindParse,
			"expression may only use the variable %s; unknown names: %s", Variable, strings.Join(dedupe(unknown), ", ")).
			WithOp("expression.Normalize")
	}

	p := &parser{tokens: tokens}
	n, err := p.expr()
	if err != nil {
		return nil, err
	}

	switch t := p.peek(); {
	case t.kind == tokEOF:
		return n, nil
	case t.is(")"):
		return nil, parseErrorf(t.col, "unbalanced ')'")
	default:
		return nil, parseErrorf(t.col, "unexpected %s", t.describe())
	}
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) next() token {
	t := p.tokens[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) expr() (node, error) {
	l, err := p.term()
	if err != nil {
		return nil, err
	}
	for p.peek().is("+") || p.peek().is("-") {
		op := p.next().text
		r, err := p.term()
		if err != nil {
			return nil, err
		}
		l = binaryNode{op: op, l: l, r: r}
	}
	return l, nil
}

func (p *parser) term() (node, error) {
	l, err := p.unary()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		switch {
		case t.is("*"), t.is("/"), t.is("%"):
			p.next()
			r, err := p.unary()
			if err != nil {
				return nil, err
			}
			if t.text == "%" {
				l = callNode{name: "mod", args: []node{l, r}}
			} else {
				l = binaryNode{op: t.text, l: l, r: r}
			}

		case t.kind == tokNumber:
			return nil, parseErrorf(t.col, "missing operator before %s", t.text)

		case t.kind == tokName, t.is("("):
			r, err := p.power()
			if err != nil {
				return nil, err
			}
			l = binaryNode{op: "*", l: l, r: r}

		default:
			return l, nil
		}
	}
}

func (p *parser) unary() (node, error) {
	switch t := p.peek(); {
	case t.is("+"):
		p.next()
		return p.unary()
	case t.is("-"):
		p.next()
		x, err := p.unary()
		if err != nil {
			return nil, err
		}
		return unaryNode{x: x}, nil
	}
	return p.power()
}

func (p *parser) power() (node, error) {
	base, err := p.primary()
	if err != nil {
		return nil, err
	}
	if !p.peek().is("^") {
		return base, nil
	}
	p.next()
	exp, err := p.unary()
	if err != nil {
		return nil, err
	}
	return callNode{name: "pow", args: []node{base, exp}}, nil
}

func (p *parser) primary() (node, error) {
	t := p.next()
	switch {
	case t.kind == tokNumber:
		if _, err := strconv.ParseFloat(t.text, 64); err != nil {
			return nil, parseErrorf(t.col, "number %s is out of range", t.text)
		}
		return numberNode{text: t.text}, nil

	case t.kind == tokName:
		arity := 0
		if _, ok := functions[t.text]; ok {
			arity = 1
		} else if _, ok := binaryFunctions[t.text]; ok {
			arity = 2
		}
		if arity == 0 {
			return nameNode{name: t.text}, nil
		}
		return p.call(t, arity)

	case t.is("("):
		n, err := p.expr()
		if err != nil {
			return nil, err
		}
		if err := p.closing(t); err != nil {
			return nil, err
		}
		return n, nil

	case t.is(")"):
		return nil, parseErrorf(t.col, "unbalanced ')'")

	case t.kind == tokEOF:
		return nil, parseErrorf(t.col, "formula ends unexpectedly")
	}
	return nil, parseErrorf(t.col, "unexpected %s", t.describe())
}

func (p *parser) call(fn token, arity int) (node, error) {
	open := p.next()
	if !open.is("(") {
		return nil, parseErrorf(fn.col, "%s must be followed by '('", fn.text)
	}

	var args []node
	for {
		a, err := p.expr()
		if err != nil {
			return nil, err
		}
		args = append(args, a)
		if !p.peek().is(",") {
			break
		}
		p.next()
	}
	if err := p.closing(open); err != nil {
		return nil, err
	}

	if len(args) != arity {
		plural := "s"
		if arity == 1 {
			plural = ""
		}
		return nil, parseErrorf(fn.col, "%s takes %d argument%s, got %d", fn.text, arity, plural, len(args))
	}
	return callNode{name: fn.text, args: args}, nil
}

// closing consumes the ')' matching open.
func (p *parser) closing(open token) error {
	t := p.next()
	switch {
	case t.is(")"):
		return nil
	case t.kind == tokEOF:
		return parseErrorf(open.col, "unbalanced '('")
	}
	return parseErrorf(t.col, "expected ')' to close column %d, got %s", open.col, t.describe())
}

func parseErrorf(col int, format string, args ...interface{}) error {
	return errors.Errorf(errors.KindParse, "column %d: %s", col, fmt.Sprintf(format, args...)).
		WithOp("expression.Normalize")
}
