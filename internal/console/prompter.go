// Package console drives the tolerance refiner from a terminal.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/copyleftdev/integra/internal/quadrature"
)

// Prompter is a quadrature.Driver that shows each unsatisfied round and reads
// the operator's answer: anything containing "q" stops, a positive integer adds
// that many rectangles, and everything else is asked again. End of input stops.
//
// Reads are not interruptible; ctx is only checked between prompts.
type Prompter struct {
	in  *bufio.Reader
	out io.Writer
}

// NewPrompter reads answers from in and writes reports and prompts to out.
func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: bufio.NewReader(in), out: out}
}

// Next implements quadrature.Driver.
func (p *Prompter) Next(ctx context.Context, st quadrature.State) (quadrature.Decision, error) {
	p.report(st)

	for {
		if err := ctx.Err(); err != nil {
			return quadrature.Decision{}, err
		}

		fmt.Fprint(p.out, "How much would you like to jump? (type 'q' to quit)> ")
		line, err := p.in.ReadString('\n')
		if err != nil && err != io.EOF {
			return quadrature.Decision{}, fmt.Errorf("read answer: %w", err)
		}

		if d, ok := parseAnswer(line); ok {
			return d, nil
		}
		if err == io.EOF {
			fmt.Fprintln(p.out)
			return quadrature.Stop(), nil
		}
		fmt.Fprintln(p.out, "\nYour input should be either 'q' or a positive integer. Try again.")
	}
}

func (p *Prompter) report(st quadrature.State) {
	fmt.Fprintf(p.out, "\nRectangles: %d\n", st.Rectangles)
	fmt.Fprintf(p.out, "Left: %v\n", st.Left)
	fmt.Fprintf(p.out, "Right: %v\n", st.Right)
	fmt.Fprintf(p.out, "Difference: %v\n", st.Gap)
	fmt.Fprintf(p.out, "Average: %v\n", st.Mean)
	fmt.Fprintln(p.out, "We have not guaranteed your initial tolerance.")
}

// parseAnswer maps one line of input to a decision.
func parseAnswer(line string) (quadrature.Decision, bool) {
	answer := strings.ToLower(strings.TrimSpace(line))
	if strings.Contains(answer, "q") {
		return quadrature.Stop(), true
	}
	k, err := strconv.Atoi(answer)
	if err != nil || k < 1 {
		return quadrature.Decision{}, false
	}
	return quadrature.Jump(k), true
}
