package quadrature

import (
	"gonum.org/v1/gonum/floats"
)

// Rule estimates the integral of f over [a, b] with n equal subintervals.
type Rule func(f Function, a, b float64, n int) float64

// blockSize bounds the sample buffer used by the left-sum reduction.
const blockSize = 1024

// oriented applies rule on the increasing interval and restores the sign of
// the original orientation. Equal bounds short-circuit to 0.
func oriented(f Function, a, b float64, n int, rule Rule) float64 {
	if a == b {
		return 0
	}
	if a > b {
		return -rule(f, b, a, n)
	}
	return rule(f, a, b, n)
}

// step is the subinterval width for [a, b] split n ways.
func step(a, b float64, n int) float64 {
	return (b - a) / float64(n)
}

// leftSum is the unsigned left Riemann sum over a < b. Samples are reduced
// in blocks so memory stays bounded for large n.
func leftSum(f Function, a, b float64, n int) float64 {
	delta := step(a, b, n)

	block := getBlock(min(n, blockSize))
	defer putBlock(block)
	buf := *block

	total := 0.0
	for i := 0; i < n; {
		k := min(n-i, len(buf))
		for j := 0; j < k; j++ {
			buf[j] = f.Evaluate(a + float64(i+j)*delta)
		}
		total += floats.Sum(buf[:k])
		i += k
	}
	return total * delta
}

// rightSum reuses the left algorithm on the window shifted one step forward.
func rightSum(f Function, a, b float64, n int) float64 {
	delta := step(a, b, n)
	return leftSum(f, a+delta, b+delta, n)
}

// Left returns the left-endpoint Riemann sum.
func Left(f Function, a, b float64, n int) float64 {
	return oriented(f, a, b, n, leftSum)
}

// Right returns the right-endpoint Riemann sum.
func Right(f Function, a, b float64, n int) float64 {
	return oriented(f, a, b, n, rightSum)
}
