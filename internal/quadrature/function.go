package quadrature

// Function is a real function of one real variable.
type Function interface {
	Evaluate(x float64) float64
}

// Func adapts an ordinary function to Function.
type Func func(x float64) float64

// Evaluate calls fn(x).
func (fn Func) Evaluate(x float64) float64 {
	return fn(x)
}
