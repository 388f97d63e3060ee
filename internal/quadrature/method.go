package quadrature

import (
	"math/rand"
	"sort"
	"strconv"
	"strings"

	"github.com/copyleftdev/integra/internal/errors"
)

// Method identifies one of the fixed-partition estimation rules. The values
// match the menu numbering of the interactive estimator.
type Method int

const (
	MethodSimpson Method = iota + 1
	MethodTrapezium
	MethodLeft
	MethodRight
	MethodMidpoint
	MethodAverage
)

var methodNames = map[Method]string{
	MethodSimpson:   "simpson",
	MethodTrapezium: "trapezium",
	MethodLeft:      "left",
	MethodRight:     "right",
	MethodMidpoint:  "midpoint",
	MethodAverage:   "average",
}

var methodTitles = map[Method]string{
	MethodSimpson:   "Simpson's Rule",
	MethodTrapezium: "Trapezium Rule",
	MethodLeft:      "Left Riemann Sums",
	MethodRight:     "Right Riemann Sums",
	MethodMidpoint:  "Midpoint Rule",
	MethodAverage:   "Average of Simpson, Trapezium, Left, Right and Midpoint",
}

var methodRules = map[Method]Rule{
	MethodSimpson:   Simpson,
	MethodTrapezium: Trapezium,
	MethodLeft:      Left,
	MethodRight:     Right,
	MethodMidpoint:  Midpoint,
	MethodAverage:   Average,
}

var methodAliases = map[string]Method{
	"trapezoid":   MethodTrapezium,
	"trapezoidal": MethodTrapezium,
	"trapezium":   MethodTrapezium,
	"mid":         MethodMidpoint,
	"avg":         MethodAverage,
	"mean":        MethodAverage,
}

// Methods returns every method in menu order.
func Methods() []Method {
	return []Method{MethodSimpson, MethodTrapezium, MethodLeft, MethodRight, MethodMidpoint, MethodAverage}
}

func (m Method) String() string {
	if name, ok := methodNames[m]; ok {
		return name
	}
	return "method(" + strconv.Itoa(int(m)) + ")"
}

// Title is the human-readable name.
func (m Method) Title() string {
	return methodTitles[m]
}

// Aliases lists the alternative names ParseMethod accepts for m.
func (m Method) Aliases() []string {
	var out []string
	for alias, target := range methodAliases {
		if target == m && alias != methodNames[m] {
			out = append(out, alias)
		}
	}
	sort.Strings(out)
	return out
}

// Valid reports whether m is one of the six rules.
func (m Method) Valid() bool {
	_, ok := methodRules[m]
	return ok
}

// Rule returns the estimator for m, or nil for an unknown method.
func (m Method) Rule() Rule {
	return methodRules[m]
}

// ParseMethod resolves a method name, alias or menu number.
func ParseMethod(s string) (Method, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	for m, name := range methodNames {
		if key == name {
			return m, nil
		}
	}
	if m, ok := methodAliases[key]; ok {
		return m, nil
	}
	if n, err := strconv.Atoi(key); err == nil && Method(n).Valid() {
		return Method(n), nil
	}
	return 0, errors.Errorf(errors.KindInvalidInput, "unknown method %q", s).WithOp("quadrature.ParseMethod")
}

// Estimate dispatches to the rule for m.
func Estimate(m Method, f Function, a, b float64, n int) (float64, error) {
	rule := m.Rule()
	if rule == nil {
		return 0, errors.Errorf(errors.KindInvalidInput, "unknown method %d", int(m)).WithOp("quadrature.Estimate")
	}
	return rule(f, a, b, n), nil
}

// Pick draws one of the six methods uniformly.
func Pick(rng *rand.Rand) Method {
	all := Methods()
	return all[rng.Intn(len(all))]
}

// Surprise estimates with a method drawn uniformly from rng and reports which
// one was used.
func Surprise(rng *rand.Rand, f Function, a, b float64, n int) (Method, float64) {
	m := Pick(rng)
	return m, m.Rule()(f, a, b, n)
}
