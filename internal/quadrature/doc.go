// Package quadrature estimates definite integrals of a single-variable real
// function over a finite interval.
//
// Every rule is derived from the left Riemann sum: the right sum shifts the
// sampling window forward one step, the midpoint rule shifts it half a step,
// the trapezium rule averages left and right, and Simpson's rule weights
// midpoint and trapezium as (2*M + T)/3. Reversed bounds are handled once, by
// integrating over the increasing interval and negating; equal bounds always
// yield exactly 0 without evaluating the function.
//
// Refine drives the left/right gap below a tolerance. It never decides on its
// own to add rectangles: each unsatisfied round is handed to a Driver, which
// either stops (accepting the current mean) or supplies a positive increment.
//
// Function values are never inspected. NaN and Inf propagate into the estimate.
package quadrature
