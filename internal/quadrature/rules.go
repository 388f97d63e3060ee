package quadrature

import (
	"gonum.org/v1/gonum/stat"
)

func midpointSum(f Function, a, b float64, n int) float64 {
	delta := step(a, b, n)
	return leftSum(f, a+delta/2, b+delta/2, n)
}

func trapeziumSum(f Function, a, b float64, n int) float64 {
	return (leftSum(f, a, b, n) + rightSum(f, a, b, n)) / 2
}

// simpsonSum does not require an even n; for odd n the result is the same
// weighted blend rather than the textbook composite rule.
func simpsonSum(f Function, a, b float64, n int) float64 {
	return (2*midpointSum(f, a, b, n) + trapeziumSum(f, a, b, n)) / 3
}

// averageSum recomputes every rule independently.
func averageSum(f Function, a, b float64, n int) float64 {
	estimates := []float64{
		simpsonSum(f, a, b, n),
		trapeziumSum(f, a, b, n),
		leftSum(f, a, b, n),
		rightSum(f, a, b, n),
		midpointSum(f, a, b, n),
	}
	return stat.Mean(estimates, nil)
}

// Midpoint returns the midpoint-rule estimate.
func Midpoint(f Function, a, b float64, n int) float64 {
	return oriented(f, a, b, n, midpointSum)
}

// Trapezium returns the trapezium-rule estimate, the mean of the left and
// right sums.
func Trapezium(f Function, a, b float64, n int) float64 {
	return oriented(f, a, b, n, trapeziumSum)
}

// Simpson returns (2*Midpoint + Trapezium) / 3.
func Simpson(f Function, a, b float64, n int) float64 {
	return oriented(f, a, b, n, simpsonSum)
}

// Average returns the unweighted mean of Simpson, Trapezium, Left, Right and
// Midpoint.
func Average(f Function, a, b float64, n int) float64 {
	return oriented(f, a, b, n, averageSum)
}
