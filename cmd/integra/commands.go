package main

import (
	"fmt"
	"math/rand"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/copyleftdev/integra/internal/batch"
	"github.com/copyleftdev/integra/internal/console"
	"github.com/copyleftdev/integra/internal/expression"
	"github.com/copyleftdev/integra/internal/metrics"
	"github.com/copyleftdev/integra/internal/quadrature"
)

// problemFlags are shared by estimate and refine.
type problemFlags struct {
	expr       string
	lower      float64
	upper      float64
	rectangles int
}

func (pf *problemFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&pf.expr, "expr", "e", "", "Function of x to integrate, e.g. \"sin(x)*exp(-x)\"")
	cmd.Flags().Float64VarP(&pf.lower, "lower", "a", 0, "Lower bound")
	cmd.Flags().Float64VarP(&pf.upper, "upper", "b", 0, "Upper bound")
	cmd.Flags().IntVarP(&pf.rectangles, "rectangles", "n", 0, "Number of rectangles (default QUAD_DEFAULT_RECTANGLES)")
	_ = cmd.MarkFlagRequired("expr")
	_ = cmd.MarkFlagRequired("lower")
	_ = cmd.MarkFlagRequired("upper")
}

// resolve compiles the expression and checks the problem.
func (pf *problemFlags) resolve(a *app) (*expression.Expression, quadrature.Problem, error) {
	n := pf.rectangles
	if n == 0 {
		n = a.cfg.Quadrature.DefaultRectangles
	}
	p := quadrature.Problem{Lower: pf.lower, Upper: pf.upper, Rectangles: n}
	if err := p.Validate(); err != nil {
		return nil, p, err
	}

	expr, err := expression.Compile(pf.expr)
	if err != nil {
		return nil, p, err
	}
	return expr, p, nil
}

func newEstimateCmd(a *app) *cobra.Command {
	var (
		pf     problemFlags
		method string
		seed   int64
	)

	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Estimate an integral with one fixed-partition rule",
		Long: `Estimate an integral with one of the fixed-partition rules.

Use --method surprise to have one picked at random.`,
		Example: `  integra estimate -e "x*x" -a 0 -b 3 -n 10 -m simpson
  integra estimate -e "1/x" -a 1 -b 2 -m surprise`,
		RunE: func(cmd *cobra.Command, args []string) error {
			expr, p, err := pf.resolve(a)
			if err != nil {
				return err
			}
			f := metrics.Counting(expr)

			name := strings.ToLower(strings.TrimSpace(method))
			if name == "" {
				name = a.cfg.Quadrature.DefaultMethod
			}

			out := cmd.OutOrStdout()
			var (
				m quadrature.Method
				v float64
			)
			if name == batch.MethodSurprise {
				if seed == 0 {
					seed = a.cfg.Quadrature.Seed
				}
				if seed == 0 {
					seed = time.Now().UnixNano()
				}
				m, v = quadrature.Surprise(rand.New(rand.NewSource(seed)), f, p.Lower, p.Upper, p.Rectangles)
				fmt.Fprintf(out, "Surprise! You got %s.\n", m.Title())
			} else {
				if m, err = quadrature.ParseMethod(name); err != nil {
					return err
				}
				if v, err = quadrature.Estimate(m, f, p.Lower, p.Upper, p.Rectangles); err != nil {
					return err
				}
			}

			a.logger.Debug("Estimate computed", map[string]interface{}{
				"method":     m.String(),
				"rectangles": p.Rectangles,
				"calls":      f.Calls(),
			})
			fmt.Fprintf(out, "%s with %d rectangles: %v\n", m.Title(), p.Rectangles, v)
			return nil
		},
	}

	pf.register(cmd)
	cmd.Flags().StringVarP(&method, "method", "m", "", "Rule name, alias, menu number or \"surprise\" (default QUAD_DEFAULT_METHOD)")
	cmd.Flags().Int64Var(&seed, "seed", 0, "Seed for --method surprise (default QUAD_SEED, then time)")
	return cmd
}

func newRefineCmd(a *app) *cobra.Command {
	var (
		pf      problemFlags
		epsilon float64
	)

	cmd := &cobra.Command{
		Use:   "refine",
		Short: "Refine left and right sums until they agree within a tolerance",
		Long: `Refine left and right sums until they agree within a tolerance.

Each round that misses the tolerance reports both sums and asks how many
rectangles to add. Answer with a positive integer, or q to accept the current
average.`,
		Example: `  integra refine -e "exp(x)" -a 0 -b 1 -n 10 --epsilon 0.001`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := quadrature.ValidateTolerance(epsilon); err != nil {
				return err
			}
			expr, p, err := pf.resolve(a)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			driver := console.NewPrompter(cmd.InOrStdin(), out)
			res, err := quadrature.Refine(cmd.Context(), expr, p.Lower, p.Upper, p.Rectangles, epsilon, driver,
				quadrature.WithLogger(a.logger.Zap()))
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "Estimate: %v\n", res.Estimate)
			if res.Converged {
				fmt.Fprintf(out, "Left and right sums agree within %v using %d rectangles.\n", epsilon, res.Final.Rectangles)
			} else {
				fmt.Fprintf(out, "Stopped at %d rectangles; the sums differ by %v.\n", res.Final.Rectangles, res.Final.Gap)
			}
			return nil
		},
	}

	pf.register(cmd)
	cmd.Flags().Float64Var(&epsilon, "epsilon", 0, "Tolerance for the gap between left and right sums")
	_ = cmd.MarkFlagRequired("epsilon")
	return cmd
}

func newBatchCmd(a *app) *cobra.Command {
	var (
		workers int
		seed    int64
	)

	cmd := &cobra.Command{
		Use:   "batch FILE",
		Short: "Estimate every problem in a YAML file",
		Long: `Estimate every problem in a YAML file concurrently.

  problems:
    - name: quarter circle
      expression: sqrt(1 - x*x)
      lower: 0
      upper: 1
      rectangles: 1000
      method: simpson
    - expression: exp(x)
      lower: 0
      upper: 1
      epsilon: 0.0001

Problems with an epsilon and no method are refined by doubling the rectangle
count until the tolerance is met or max_rounds is reached.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := batch.LoadFile(args[0])
			if err != nil {
				return err
			}

			if workers == 0 {
				workers = a.cfg.Quadrature.Workers
			}
			if seed == 0 {
				seed = a.cfg.Quadrature.Seed
			}

			outcomes, err := batch.Run(cmd.Context(), file.Problems, batch.Options{
				Workers:           workers,
				Seed:              seed,
				DefaultMethod:     a.cfg.DefaultMethod(),
				DefaultRectangles: a.cfg.Quadrature.DefaultRectangles,
				Logger:            a.logger,
			})

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PROBLEM\tMETHOD\tRECTANGLES\tESTIMATE")
			failed := 0
			for i, o := range outcomes {
				if o.Err != nil {
					failed++
					fmt.Fprintf(tw, "%s\t%s\t-\terror: %v\n", o.Label(i), o.Method, o.Err)
					continue
				}
				est := fmt.Sprint(o.Estimate)
				if o.Method == batch.MethodRefine && !o.Converged {
					est += " (not converged)"
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", o.Label(i), o.Method, o.Rectangles, est)
			}
			if ferr := tw.Flush(); ferr != nil {
				return ferr
			}
			if err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d problems failed", failed, len(outcomes))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "Concurrent estimations (default QUAD_WORKERS)")
	cmd.Flags().Int64Var(&seed, "seed", 0, "Seed for surprise problems (default QUAD_SEED, then time)")
	return cmd
}

func newMethodsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "methods",
		Short: "List the estimation rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, m := range quadrature.Methods() {
				aliases := strings.Join(m.Aliases(), ", ")
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", int(m), m, m.Title(), aliases)
			}
			fmt.Fprintf(tw, "-\t%s\tA random choice of the above\t\n", batch.MethodSurprise)
			return tw.Flush()
		},
	}
}

func newSyntaxCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "syntax",
		Short: "Show how to write functions of x",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), expression.Help())
			return err
		},
	}
}

const aboutText = `What the numbers mean

integra estimates proper definite integrals of real functions of one
variable. The function must be continuous on the closed interval [a, b].

If f(x) >= 0 on [a, b], the integral is the area between the graph of f and
the x axis from x = a to x = b. If f is a velocity, the integral is the
displacement over that time. Where f is negative, that stretch counts as
negative area, so a function that changes sign contributes the area above the
axis minus the area below it. The integral of f(x) = x from -5 to 5 is 0.

Every rule here cuts [a, b] into n rectangles of equal width and adds up
their areas. The rules differ in where each rectangle takes its height: the
left edge, the right edge, the midpoint, or a weighted blend of several
points (trapezium and Simpson's rule). More rectangles give a better estimate.
For a function that only rises or only falls, the left and right sums bracket
the true value, which is what refine uses to meet a tolerance.

Further reading: any single-variable calculus text (Stewart, Thomas, Apostol,
Spivak), or the free courses on Khan Academy and MIT OpenCourseWare.`

func newAboutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "about",
		Short: "Explain what a definite integral measures",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), aboutText)
			return err
		},
	}
}
