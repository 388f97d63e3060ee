package quadrature

import (
	"context"
	stderrors "errors"
	"math"

	"go.uber.org/zap"

	"github.com/copyleftdev/integra/internal/errors"
)

// State is what the refiner knows after computing one round.
type State struct {
	Round      int     `json:"round"`
	Rectangles int     `json:"rectangles"`
	Left       float64 `json:"left"`
	Right      float64 `json:"right"`
	Gap        float64 `json:"gap"`
	Mean       float64 `json:"mean"`
}

// Decision is a driver's answer to an unsatisfied round: stop, or add
// Increment rectangles.
type Decision struct {
	Stop      bool
	Increment int
}

// Stop accepts the current mean without meeting the tolerance.
func Stop() Decision {
	return Decision{Stop: true}
}

// Jump asks for k more rectangles.
func Jump(k int) Decision {
	return Decision{Increment: k}
}

// Valid reports whether the refiner will act on d.
func (d Decision) Valid() bool {
	return d.Stop || d.Increment >= 1
}

// Result is the outcome of a refinement.
type Result struct {
	Estimate float64 `json:"estimate"`
	Final    State   `json:"final"`
	// Converged is false when the driver stopped before the gap met the tolerance.
	Converged bool `json:"converged"`
}

type refineOptions struct {
	logger *zap.Logger
}

// Option configures Refine.
type Option func(*refineOptions)

// WithLogger logs every round at debug level.
func WithLogger(logger *zap.Logger) Option {
	return func(o *refineOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Refine estimates the integral of f over [lower, upper] from the mean of the
// left and right sums, adding rectangles until the two agree within epsilon.
//
// When a round leaves the gap above epsilon the driver is asked what to do.
// A stop decision returns the current mean with Converged false; a positive
// increment starts another round; any other decision is ignored and the driver
// is asked again with the same state. There is no limit on rounds or
// rectangles. Refine only fails when the driver returns an error or ctx ends
// while waiting on it.
func Refine(ctx context.Context, f Function, lower, upper float64, initial int, epsilon float64, driver Driver, opts ...Option) (Result, error) {
	o := refineOptions{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	if lower == upper {
		return Result{Final: State{Round: 1, Rectangles: initial}, Converged: true}, nil
	}

	round, rectangles := 1, initial
	for {
		st := measure(f, lower, upper, round, rectangles)
		o.logger.Debug("refinement round",
			zap.Int("round", st.Round),
			zap.Int("rectangles", st.Rectangles),
			zap.Float64("left", st.Left),
			zap.Float64("right", st.Right),
			zap.Float64("gap", st.Gap),
		)

		if st.Gap <= epsilon {
			return Result{Estimate: st.Mean, Final: st, Converged: true}, nil
		}

		d, err := await(ctx, driver, st, o.logger)
		if err != nil {
			return Result{Estimate: st.Mean, Final: st}, err
		}
		if d.Stop {
			o.logger.Debug("refinement stopped by driver", zap.Int("round", st.Round))
			return Result{Estimate: st.Mean, Final: st}, nil
		}

		round++
		rectangles += d.Increment
	}
}

func measure(f Function, lower, upper float64, round, rectangles int) State {
	left := Left(f, lower, upper, rectangles)
	right := Right(f, lower, upper, rectangles)
	return State{
		Round:      round,
		Rectangles: rectangles,
		Left:       left,
		Right:      right,
		Gap:        math.Abs(right - left),
		Mean:       (right + left) / 2,
	}
}

// await asks the driver until it returns a decision Refine can act on.
func await(ctx context.Context, driver Driver, st State, logger *zap.Logger) (Decision, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Decision{}, errors.Wrap(err, errors.KindCancelled, "refinement cancelled").WithOp("quadrature.Refine")
		}

		d, err := driver.Next(ctx, st)
		if err != nil {
			kind := errors.KindInternal
			if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
				kind = errors.KindCancelled
			}
			return Decision{}, errors.Wrap(err, kind, "driver failed").WithOp("quadrature.Refine")
		}
		if d.Valid() {
			return d, nil
		}
		logger.Debug("ignoring invalid decision", zap.Int("increment", d.Increment))
	}
}
