package expression

import (
	"sort"
	"strings"
)

// Help describes the formula language.
func Help() string {
	var names []string
	for name := range functions {
		names = append(names, name+"(x)")
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("Formulas depend on the single variable x.\n\n")
	b.WriteString("Operators: + - * / ^ % and parentheses.\n")
	b.WriteString("  ^ is exponentiation and groups to the right: 2^3^2 is 2^9, -x^2 is -(x^2).\n")
	b.WriteString("  % is the remainder with the sign of the divisor: -3 % 2 is 1.\n")
	b.WriteString("  pow(a, b) and mod(a, b) are the same operations written as calls.\n")
	b.WriteString("Functions: " + strings.Join(names, ", ") + "\n")
	b.WriteString("Constants: pi (PI) and e (E), so e^x is exp(x) and x^(1/2) is sqrt(x).\n")
	b.WriteString("Numbers: 2, 0.5, 1e-3. Integer division is real division, so 1/2 is 0.5.\n")
	b.WriteString("Multiplication may be implied: 5x, 2(x+1) and pi exp(x) multiply, and names\n")
	b.WriteString("may run together, so xx is x*x and piexp(x) is pi*exp(x).\n\n")
	b.WriteString("Example: 5*x^2 + pi*exp(sqrt(x)), or the same thing as 5x^2+piexp(x^(1/2))\n\n")
	b.WriteString("The function is assumed continuous on the interval. Division by zero, domain\n")
	b.WriteString("errors or infinities show up as NaN or Inf in the estimate.\n")
	return b.String()
}
