package console

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/integra/internal/quadrature"
)

var square = quadrature.Func(func(x float64) float64 { return x * x })

func TestParseAnswer(t *testing.T) {
	tests := []struct {
		in   string
		want quadrature.Decision
		ok   bool
	}{
		{in: "q\n", want: quadrature.Stop(), ok: true},
		{in: "  QUIT  ", want: quadrature.Stop(), ok: true},
		{in: "10\n", want: quadrature.Jump(10), ok: true},
		{in: " 3 ", want: quadrature.Jump(3), ok: true},
		{in: "0", ok: false},
		{in: "-4", ok: false},
		{in: "2.5", ok: false},
		{in: "lots", ok: false},
		{in: "", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := parseAnswer(tt.in)
			assert.Equal(t, tt.ok, ok)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("decision mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPrompterRepromptsUntilValid(t *testing.T) {
	var out bytes.Buffer
	p := NewPrompter(strings.NewReader("abc\n0\n5\n"), &out)

	st := quadrature.State{Round: 1, Rectangles: 4, Left: 0.21875, Right: 0.46875, Gap: 0.25, Mean: 0.34375}
	d, err := p.Next(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, quadrature.Jump(5), d)

	text := out.String()
	assert.Contains(t, text, "Rectangles: 4")
	assert.Contains(t, text, "Left: 0.21875")
	assert.Contains(t, text, "Right: 0.46875")
	assert.Contains(t, text, "Difference: 0.25")
	assert.Contains(t, text, "Average: 0.34375")
	assert.Contains(t, text, "We have not guaranteed your initial tolerance.")
	assert.Equal(t, 2, strings.Count(text, "Try again"))
	assert.Equal(t, 3, strings.Count(text, "How much would you like to jump?"))
}

func TestPrompterEOFStops(t *testing.T) {
	p := NewPrompter(strings.NewReader("nope"), &bytes.Buffer{})
	d, err := p.Next(context.Background(), quadrature.State{})
	require.NoError(t, err)
	assert.True(t, d.Stop)

	// A final answer without a newline still counts.
	p = NewPrompter(strings.NewReader("7"), &bytes.Buffer{})
	d, err = p.Next(context.Background(), quadrature.State{})
	require.NoError(t, err)
	assert.Equal(t, quadrature.Jump(7), d)
}

func TestPrompterCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewPrompter(strings.NewReader("5\n"), &bytes.Buffer{}).Next(ctx, quadrature.State{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPrompterDrivesRefine(t *testing.T) {
	var out bytes.Buffer
	// Gap for x^2 on [0,1] is 1/n: 4 -> 10 -> 100 rectangles.
	p := NewPrompter(strings.NewReader("6\nwhat\n90\n"), &out)

	res, err := quadrature.Refine(context.Background(), square, 0, 1, 4, 0.015, p)
	require.NoError(t, err)
	assert.True(t, res.Converged)
	assert.Equal(t, 100, res.Final.Rectangles)
	assert.Equal(t, 2, strings.Count(out.String(), "Rectangles:"))
}

func TestPrompterQuitReturnsMean(t *testing.T) {
	p := NewPrompter(strings.NewReader("q\n"), &bytes.Buffer{})

	res, err := quadrature.Refine(context.Background(), square, 0, 1, 4, 1e-9, p)
	require.NoError(t, err)
	assert.False(t, res.Converged)
	assert.InDelta(t, 0.34375, res.Estimate, 1e-12)
}
