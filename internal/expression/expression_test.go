package expression

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/integra/internal/errors"
	"github.com/copyleftdev/integra/internal/quadrature"
)

func TestCompileEvaluate(t *testing.T) {
	tests := []struct {
		src  string
		x    float64
		want float64
	}{
		{src: "x*x", x: 3, want: 9},
		{src: "1/2*x", x: 4, want: 2},
		{src: "x/2", x: 3, want: 1.5},
		{src: "sin(pi/2)", x: 0, want: 1},
		{src: "arctan(1)*4", x: 0, want: math.Pi},
		{src: "ln(e) + log(E)", x: 0, want: 2},
		{src: "pow(x, 3) - 2*x", x: 2, want: 4},
		{src: "mod(x, 3)", x: 7, want: 1},
		{src: "sqrt(abs(x))", x: -16, want: 4},
		{src: "5*pow(x, 2) + PI*exp(sqrt(x))", x: 1, want: 5 + math.Pi*math.E},
		{src: "-x + 1e-1", x: 1, want: -0.9},
		{src: "7", x: 100, want: 7},
		{src: "x^2", x: 3, want: 9},
		{src: "e^x", x: 2, want: math.Exp(2)},
		{src: "x^(1/2)", x: 16, want: 4},
		{src: "x%2", x: 7, want: 1},
		{src: "x % 2", x: -3, want: 1},
		{src: "mod(x, -2)", x: 3, want: -1},
		{src: "5x", x: 3, want: 15},
		{src: "2(x+1)", x: 3, want: 8},
		{src: "(x+1)(x-1)", x: 3, want: 8},
		{src: "xx", x: 3, want: 9},
		{src: "xxx", x: 2, want: 8},
		{src: "2ex", x: 1, want: 2 * math.E},
		{src: "2^3^2", x: 0, want: 512},
		{src: "-x^2", x: 3, want: -9},
		{src: "2^-1", x: 0, want: 0.5},
		{src: "2x^2", x: 3, want: 18},
		{src: "1/2x", x: 4, want: 2},
		{src: "5*x^2+pi*exp(sqrt(x))", x: 1, want: 5 + math.Pi*math.E},
		{src: "5x^2+piexp(x^(1/2))", x: 1, want: 5 + math.Pi*math.E},
	}

	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			e, err := Compile(tt.src)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, e.Evaluate(tt.x), 1e-12)
			assert.Equal(t, tt.src, e.Source())
		})
	}
}

func TestCompileRejects(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		message string
	}{
		{name: "empty", src: "   ", message: "empty"},
		{name: "other variable", src: "x + y*z", message: "unknown names: y, z"},
		{name: "package selector", src: "math.Sin(x)", message: "unexpected"},
		{name: "escape attempt", src: "os.Exit(1)", message: "unexpected"},
		{name: "bare unknown", src: "sin(t)", message: "unknown names: t"},
		{name: "unbalanced open", src: "sin(x", message: "unbalanced"},
		{name: "unbalanced close", src: "x)", message: "unbalanced"},
		{name: "string literal", src: `"x"`, message: "unexpected"},
		{name: "hex", src: "0x10*x", message: "decimal"},
		{name: "digit in name", src: "x2", message: "unknown names: x2"},
		{name: "function without parentheses", src: "sin x", message: "sin must be followed by '('"},
		{name: "adjacent numbers", src: "2 3", message: "missing operator before 3"},
		{name: "too few arguments", src: "pow(x)", message: "pow takes 2 arguments, got 1"},
		{name: "too many arguments", src: "sin(x, 2)", message: "sin takes 1 argument, got 2"},
		{name: "trailing operator", src: "x +", message: "ends unexpectedly"},
		{name: "dangling caret", src: "x^", message: "ends unexpectedly"},
		{name: "out of range", src: "1e999*x", message: "out of range"},
		{name: "stray comma", src: "x, 2", message: "unexpected \",\""},
		{name: "column", src: "x + $", message: "column 5"},
		{name: "braces", src: "func() float64 { return x }()", message: "unexpected"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.src)
			require.Error(t, err)
			assert.Equal(t, errors.KindParse, errors.KindOf(err))
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{src: "1/2 * sin(x)+3.5", want: "((1.0 / 2.0) * sin(x)) + 3.5"},
		{src: "x*x", want: "x * x"},
		{src: "xx", want: "x * x"},
		{src: "5x^2", want: "5.0 * pow(x, 2.0)"},
		{src: "-x^2", want: "-pow(x, 2.0)"},
		{src: "2^3^2", want: "pow(2.0, pow(3.0, 2.0))"},
		{src: "x % 2", want: "mod(x, 2.0)"},
		{src: "piexp(x)", want: "pi * exp(x)"},
		{src: "x - -1e-3", want: "x - (-0.001)"},
	}

	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			got, err := Normalize(tt.src)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want, MustCompile(tt.src).String())
		})
	}
}

func TestCompileErrorsPointAtTheFormula(t *testing.T) {
	for _, src := range []string{"sin(x, 2)", "2 3", "x +"} {
		_, err := Compile(src)
		require.Error(t, err)
		assert.Equal(t, errors.KindParse, errors.KindOf(err))
		assert.Contains(t, err.Error(), "column")
		assert.NotContains(t, err.Error(), "_.go")
		assert.NotContains(t, err.Error(), "Integrand")
	}
}

func TestCompiledExpressionIntegrates(t *testing.T) {
	e := MustCompile("x*x")
	assert.InDelta(t, 1.0/3.0, quadrature.Simpson(e, 0, 1, 4), 1e-12)
	assert.InDelta(t, 0.21875, quadrature.Left(e, 0, 1, 4), 1e-12)

	sine := MustCompile("sin(x)")
	assert.InDelta(t, 2.0, quadrature.Simpson(sine, 0, math.Pi, 50), 1e-8)
}

func TestDomainErrorsPropagate(t *testing.T) {
	e := MustCompile("1/x")
	assert.True(t, math.IsInf(e.Evaluate(0), 1))

	l := MustCompile("ln(x)")
	assert.True(t, math.IsNaN(l.Evaluate(-1)))

	assert.True(t, math.IsInf(MustCompile("1/0").Evaluate(0), 1))
	assert.True(t, math.IsInf(MustCompile("2^1e6").Evaluate(0), 1))
	assert.True(t, math.IsNaN(MustCompile("x%0").Evaluate(1)))
}

func TestHelpMentionsEverything(t *testing.T) {
	help := Help()
	for name := range functions {
		assert.Contains(t, help, name+"(x)")
	}
	for _, want := range []string{"pow(a, b)", "mod(a, b)", "pi", "^", "%", "5x", "xx", "e^x", "x^(1/2)"} {
		assert.Contains(t, help, want)
	}
}

func TestMustCompilePanics(t *testing.T) {
	assert.Panics(t, func() { MustCompile("y") })
}
