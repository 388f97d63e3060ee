package batch

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/integra/internal/errors"
	"github.com/copyleftdev/integra/internal/quadrature"
)

const sample = `
problems:
  - name: square
    expression: x*x
    lower: 0
    upper: 1
    rectangles: 4
    method: simpson
  - name: sine backwards
    expression: sin(x)
    lower: 3.141592653589793
    upper: 0
    rectangles: 100
    method: trapezoid
  - name: tolerance
    expression: exp(x)
    lower: 0
    upper: 1
    rectangles: 1
    epsilon: 0.001
  - name: broken
    expression: x + y
    lower: 0
    upper: 1
  - name: improper
    expression: x
    lower: 0
    upper: .inf
`

func TestLoad(t *testing.T) {
	f, err := Load(strings.NewReader(sample))
	require.NoError(t, err)
	require.Len(t, f.Problems, 5)

	assert.Equal(t, "square", f.Problems[0].Name)
	assert.Equal(t, 4, f.Problems[0].Rectangles)
	assert.Equal(t, 0.001, f.Problems[2].Epsilon)
	assert.True(t, math.IsInf(f.Problems[4].Upper, 1))
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	_, err := Load(strings.NewReader("problems:\n  - expresion: x\n"))
	require.Error(t, err)
	assert.Equal(t, errors.KindInvalidInput, errors.KindOf(err))
}

func TestLoadEmpty(t *testing.T) {
	f, err := Load(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, f.Problems)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "problems.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	f, err := LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, f.Problems, 5)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestRun(t *testing.T) {
	f, err := Load(strings.NewReader(sample))
	require.NoError(t, err)

	outcomes, err := Run(context.Background(), f.Problems, Options{Workers: 3, Seed: 1})
	require.NoError(t, err)
	require.Len(t, outcomes, 5)

	square := outcomes[0]
	require.NoError(t, square.Err)
	assert.Equal(t, "simpson", square.Method)
	assert.InDelta(t, 1.0/3.0, square.Estimate, 1e-12)

	sine := outcomes[1]
	require.NoError(t, sine.Err)
	assert.Equal(t, "trapezium", sine.Method)
	assert.InDelta(t, -2.0, sine.Estimate, 1e-3)

	tol := outcomes[2]
	require.NoError(t, tol.Err)
	assert.Equal(t, MethodRefine, tol.Method)
	assert.True(t, tol.Converged)
	assert.Equal(t, 2048, tol.Rectangles)
	assert.InDelta(t, math.E-1, tol.Estimate, 1e-3)

	broken := outcomes[3]
	require.Error(t, broken.Err)
	assert.Equal(t, errors.KindParse, errors.KindOf(broken.Err))
	assert.Equal(t, 100, broken.Rectangles, "default rectangles apply")

	improper := outcomes[4]
	require.Error(t, improper.Err)
	assert.Equal(t, errors.KindInvalidInput, errors.KindOf(improper.Err))
	assert.Equal(t, "improper", improper.Label(4))
}

func TestRunSurpriseIsSeeded(t *testing.T) {
	problems := make([]Problem, 8)
	for i := range problems {
		problems[i] = Problem{Expression: "x", Lower: 0, Upper: 1, Rectangles: 4, Method: MethodSurprise}
	}

	first, err := Run(context.Background(), problems, Options{Workers: 4, Seed: 11})
	require.NoError(t, err)
	second, err := Run(context.Background(), problems, Options{Workers: 2, Seed: 11})
	require.NoError(t, err)

	for i := range first {
		require.NoError(t, first[i].Err)
		_, err := quadrature.ParseMethod(first[i].Method)
		require.NoError(t, err)
		assert.Equal(t, first[i].Method, second[i].Method)
		assert.Equal(t, "#"+string(rune('1'+i)), first[i].Label(i))
	}
}

func TestRunRefineNeedsTolerance(t *testing.T) {
	outcomes, err := Run(context.Background(), []Problem{
		{Expression: "x", Lower: 0, Upper: 1, Method: MethodRefine},
		{Expression: "x", Lower: 0, Upper: 1, Method: "romberg"},
	}, Options{})
	require.NoError(t, err)
	assert.Equal(t, errors.KindInvalidInput, errors.KindOf(outcomes[0].Err))
	assert.Equal(t, errors.KindInvalidInput, errors.KindOf(outcomes[1].Err))
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, []Problem{{Expression: "x", Lower: 0, Upper: 1}}, Options{})
	require.Error(t, err)
	assert.Equal(t, errors.KindCancelled, errors.KindOf(err))
}
