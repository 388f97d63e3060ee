// Package expression compiles user-entered formulas in the variable x into
// functions the quadrature package can integrate.
//
// Formulas are written the way they look on paper: x^2, 5x, 2(x+1) and
// pi exp(x) all parse, as do the usual math helpers and the constants pi and
// e. Every number is a float so 1/2 means one half. A parsed formula is
// rendered as Go and compiled by a yaegi interpreter.
package expression

import (
	"fmt"
	"sort"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/copyleftdev/integra/internal/errors"
)

// Variable is the only free variable a formula may use.
const Variable = "x"

var functions = map[string]string{
	"sin":    "math.Sin(a)",
	"cos":    "math.Cos(a)",
	"tan":    "math.Tan(a)",
	"asin":   "math.Asin(a)",
	"acos":   "math.Acos(a)",
	"atan":   "math.Atan(a)",
	"arcsin": "math.Asin(a)",
	"arccos": "math.Acos(a)",
	"arctan": "math.Atan(a)",
	"sinh":   "math.Sinh(a)",
	"cosh":   "math.Cosh(a)",
	"tanh":   "math.Tanh(a)",
	"ln":     "math.Log(a)",
	"log":    "math.Log(a)",
	"log10":  "math.Log10(a)",
	"exp":    "math.Exp(a)",
	"sqrt":   "math.Sqrt(a)",
	"abs":    "math.Abs(a)",
	"ceil":   "math.Ceil(a)",
	"floor":  "math.Floor(a)",
}

var binaryFunctions = map[string]string{
	"pow": "math.Pow(a, b)",
	"mod": "a - b*math.Floor(a/b)",
}

var constants = map[string]string{
	"pi": "math.Pi",
	"PI": "math.Pi",
	"e":  "math.E",
	"E":  "math.E",
}

// Expression is a compiled formula. It is safe to evaluate from one goroutine
// at a time.
type Expression struct {
	source     string
	normalized string
	fn         func(float64) float64
}

// Compile checks src and builds an Expression from it.
func Compile(src string) (*Expression, error) {
	tree, err := parse(src)
	if err != nil {
		return nil, err
	}

	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, errors.Wrap(err, errors.KindInternal, "load interpreter symbols").WithOp("expression.Compile")
	}

	// parse catches every mistake in the formula itself, so a rejection here
	// is a rendering bug.
	if _, err := i.Eval(program(tree)); err != nil {
		return nil, errors.Wrapf(err, errors.KindInternal, "interpreter rejected formula %q", src).WithOp("expression.Compile")
	}

	v, err := i.Eval("main.Integrand")
	if err != nil {
		return nil, errors.Wrap(err, errors.KindInternal, "integrand not defined").WithOp("expression.Compile")
	}

	fn, ok := v.Interface().(func(float64) float64)
	if !ok {
		return nil, errors.Errorf(errors.KindInternal, "integrand has type %s", v.Type()).WithOp("expression.Compile")
	}

	return &Expression{source: src, normalized: tree.render(floatLiteral), fn: fn}, nil
}

// MustCompile is Compile that panics on error. Intended for tests and fixed
// formulas.
func MustCompile(src string) *Expression {
	e, err := Compile(src)
	if err != nil {
		panic(err)
	}
	return e
}

// Evaluate returns the formula's value at x.
func (e *Expression) Evaluate(x float64) float64 {
	return e.fn(x)
}

// Source is the formula as entered.
func (e *Expression) Source() string {
	return e.source
}

// String is the normalized formula that was compiled.
func (e *Expression) String() string {
	return e.normalized
}

// Normalize parses src, rejects anything outside the formula language and
// returns the canonical, fully parenthesized text of the formula.
func Normalize(src string) (string, error) {
	tree, err := parse(src)
	if err != nil {
		return "", err
	}
	return tree.render(floatLiteral), nil
}

func dedupe(names []string) []string {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// program renders the interpreted source for a parsed formula. Constants and
// literals are variables so that 1/0 or 2^1e6 overflow at run time the way
// float64 arithmetic does instead of failing constant evaluation.
func program(tree node) string {
	var (
		b    strings.Builder
		lits []string
	)
	body := tree.render(func(text string) string {
		lits = append(lits, floatLiteral(text))
		return fmt.Sprintf("lit%d", len(lits)-1)
	})

	b.WriteString("package main\n\nimport \"math\"\n\n")
	for _, name := range sortedKeys(constants) {
		fmt.Fprintf(&b, "var %s float64 = %s\n", name, constants[name])
	}
	for i, lit := range lits {
		fmt.Fprintf(&b, "var lit%d float64 = %s\n", i, lit)
	}
	b.WriteString("\n")
	for _, name := range sortedKeys(functions) {
		fmt.Fprintf(&b, "func %s(a float64) float64 { return %s }\n", name, functions[name])
	}
	for _, name := range sortedKeys(binaryFunctions) {
		fmt.Fprintf(&b, "func %s(a, b float64) float64 { return %s }\n", name, binaryFunctions[name])
	}

	fmt.Fprintf(&b, "\nfunc Integrand(%s float64) float64 {\n\treturn %s\n}\n", Variable, body)
	return b.String()
}

func sortedKeys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
