// Package batch estimates a file of integration problems concurrently.
package batch

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/copyleftdev/integra/internal/errors"
	"github.com/copyleftdev/integra/internal/expression"
	"github.com/copyleftdev/integra/internal/logging"
	"github.com/copyleftdev/integra/internal/metrics"
	"github.com/copyleftdev/integra/internal/quadrature"
)

const (
	// MethodSurprise picks one of the six rules at random.
	MethodSurprise = "surprise"
	// MethodRefine runs the tolerance refiner with a doubling driver.
	MethodRefine = "refine"

	defaultMaxRounds = 12
)

// Problem is one entry of a batch file.
type Problem struct {
	Name       string  `yaml:"name"`
	Expression string  `yaml:"expression"`
	Lower      float64 `yaml:"lower"`
	Upper      float64 `yaml:"upper"`
	Rectangles int     `yaml:"rectangles,omitempty"`
	Method     string  `yaml:"method,omitempty"`
	// Epsilon is the tolerance for MethodRefine. Setting it without a method
	// selects MethodRefine.
	Epsilon   float64 `yaml:"epsilon,omitempty"`
	MaxRounds int     `yaml:"max_rounds,omitempty"`
}

// File is the document layout of a batch file.
type File struct {
	Problems []Problem `yaml:"problems"`
}

// Load decodes a batch file. Unknown keys are rejected.
func Load(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil {
		if err == io.EOF {
			return &File{}, nil
		}
		return nil, errors.Wrap(err, errors.KindInvalidInput, "decode batch file").WithOp("batch.Load")
	}
	return &f, nil
}

// LoadFile opens and decodes path.
func LoadFile(path string) (*File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindInvalidInput, "open batch file").WithOp("batch.LoadFile")
	}
	defer fh.Close()
	return Load(fh)
}

// Outcome is the result for one problem. Err is set instead of Estimate when
// the problem could not be estimated.
type Outcome struct {
	Problem    Problem `yaml:"problem"`
	Method     string  `yaml:"method"`
	Estimate   float64 `yaml:"estimate"`
	Rectangles int     `yaml:"rectangles"`
	Rounds     int     `yaml:"rounds,omitempty"`
	Converged  bool    `yaml:"converged,omitempty"`
	Err        error   `yaml:"-"`
}

// Options controls Run.
type Options struct {
	Workers           int
	Seed              int64
	DefaultMethod     quadrature.Method
	DefaultRectangles int
	Logger            *logging.Logger
}

type plan struct {
	problem    Problem
	method     string
	rule       quadrature.Rule
	rectangles int
	maxRounds  int
	err        error
}

// Run estimates every problem and returns outcomes in input order. A failing
// problem only fails its own outcome; Run itself fails only when ctx ends.
func Run(ctx context.Context, problems []Problem, opts Options) ([]Outcome, error) {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if !opts.DefaultMethod.Valid() {
		opts.DefaultMethod = quadrature.MethodSimpson
	}
	if opts.DefaultRectangles < 1 {
		opts.DefaultRectangles = 100
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}

	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	// Plans are resolved up front so surprise picks do not depend on scheduling.
	plans := make([]plan, len(problems))
	for i, p := range problems {
		plans[i] = resolve(p, opts, rng)
	}

	outcomes := make([]Outcome, len(problems))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)

	for i := range plans {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcomes[i] = execute(gctx, plans[i])
			if outcomes[i].Err != nil {
				opts.Logger.Warn("problem failed", map[string]interface{}{
					"problem": label(plans[i].problem, i),
					"error":   outcomes[i].Err,
				})
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return outcomes, errors.Wrap(err, errors.KindCancelled, "batch interrupted").WithOp("batch.Run")
	}
	return outcomes, nil
}

func resolve(p Problem, opts Options, rng *rand.Rand) plan {
	pl := plan{problem: p, rectangles: p.Rectangles, maxRounds: p.MaxRounds}
	if pl.rectangles == 0 {
		pl.rectangles = opts.DefaultRectangles
	}
	if pl.maxRounds == 0 {
		pl.maxRounds = defaultMaxRounds
	}

	name := strings.ToLower(strings.TrimSpace(p.Method))
	switch {
	case name == MethodRefine || (name == "" && p.Epsilon != 0):
		pl.method = MethodRefine
	case name == MethodSurprise:
		m := quadrature.Pick(rng)
		pl.method, pl.rule = m.String(), m.Rule()
	case name == "":
		pl.method, pl.rule = opts.DefaultMethod.String(), opts.DefaultMethod.Rule()
	default:
		m, err := quadrature.ParseMethod(name)
		if err != nil {
			pl.err = err
			pl.method = name
			break
		}
		pl.method, pl.rule = m.String(), m.Rule()
	}
	return pl
}

func execute(ctx context.Context, pl plan) Outcome {
	out := Outcome{Problem: pl.problem, Method: pl.method, Rectangles: pl.rectangles}
	if pl.err != nil {
		out.Err = pl.err
		return out
	}

	prob := quadrature.Problem{Lower: pl.problem.Lower, Upper: pl.problem.Upper, Rectangles: pl.rectangles}
	if err := prob.Validate(); err != nil {
		out.Err = err
		return out
	}

	expr, err := expression.Compile(pl.problem.Expression)
	if err != nil {
		out.Err = err
		return out
	}
	f := metrics.Counting(expr)
	defer f.Flush()

	if pl.method != MethodRefine {
		out.Estimate = pl.rule(f, prob.Lower, prob.Upper, prob.Rectangles)
		metrics.ObserveEstimate(pl.method)
		return out
	}

	if err := quadrature.ValidateTolerance(pl.problem.Epsilon); err != nil {
		out.Err = err
		return out
	}
	res, err := quadrature.Refine(ctx, f, prob.Lower, prob.Upper, prob.Rectangles, pl.problem.Epsilon,
		quadrature.DoublingDriver{MaxRounds: pl.maxRounds})
	if err != nil {
		out.Err = err
		return out
	}
	out.Estimate = res.Estimate
	out.Rectangles = res.Final.Rectangles
	out.Rounds = res.Final.Round
	out.Converged = res.Converged
	metrics.ObserveEstimate(MethodRefine)
	metrics.RefineRounds.Observe(float64(res.Final.Round))
	return out
}

func label(p Problem, i int) string {
	if p.Name != "" {
		return p.Name
	}
	return fmt.Sprintf("#%d", i+1)
}

// Label names an outcome for reports: the problem name, or its 1-based index.
func (o Outcome) Label(i int) string {
	return label(o.Problem, i)
}
