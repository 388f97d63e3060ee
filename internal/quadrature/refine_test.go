package quadrature

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/copyleftdev/integra/internal/errors"
)

func failDriver(t *testing.T) Driver {
	return DriverFunc(func(context.Context, State) (Decision, error) {
		t.Fatal("driver should not be consulted")
		return Decision{}, nil
	})
}

func TestRefineEqualBounds(t *testing.T) {
	res, err := Refine(context.Background(), square, 1, 1, 4, 1e-9, failDriver(t))
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.Estimate)
	assert.True(t, res.Converged)
}

func TestRefineConvergesWithoutInput(t *testing.T) {
	// Gap for x^2 on [0,1] with n=4 is 0.25.
	res, err := Refine(context.Background(), square, 0, 1, 4, 0.5, failDriver(t))
	require.NoError(t, err)
	assert.True(t, res.Converged)
	assert.InDelta(t, 0.34375, res.Estimate, 1e-12)
	assert.Equal(t, 1, res.Final.Round)
	assert.Equal(t, 4, res.Final.Rectangles)
	assert.InDelta(t, 0.25, res.Final.Gap, 1e-12)
}

func TestRefineStopOnFirstPrompt(t *testing.T) {
	driver := NewScriptedDriver(Stop())

	res, err := Refine(context.Background(), square, 0, 1, 4, 1e-6, driver)
	require.NoError(t, err)
	assert.False(t, res.Converged)
	assert.InDelta(t, (0.21875+0.46875)/2, res.Estimate, 1e-12)

	seen := driver.Seen()
	require.Len(t, seen, 1)
	assert.Equal(t, 4, seen[0].Rectangles)
	assert.InDelta(t, 0.21875, seen[0].Left, 1e-12)
	assert.InDelta(t, 0.46875, seen[0].Right, 1e-12)
	assert.InDelta(t, 0.25, seen[0].Gap, 1e-12)
	assert.InDelta(t, 0.34375, seen[0].Mean, 1e-12)
}

func TestRefineIncrementsUntilTolerance(t *testing.T) {
	// Gap for x^2 on [0,1] is exactly 1/n.
	driver := NewScriptedDriver(Jump(6), Jump(90), Jump(900))

	res, err := Refine(context.Background(), square, 0, 1, 4, 0.015, driver)
	require.NoError(t, err)
	assert.True(t, res.Converged)
	assert.Equal(t, 100, res.Final.Rectangles)
	assert.Equal(t, 3, res.Final.Round)
	assert.LessOrEqual(t, res.Final.Gap, 0.015)
	assert.InDelta(t, 1.0/3.0, res.Estimate, 1e-4)

	seen := driver.Seen()
	require.Len(t, seen, 2)
	assert.Equal(t, []int{4, 10}, []int{seen[0].Rectangles, seen[1].Rectangles})
}

func TestRefineReversedBounds(t *testing.T) {
	res, err := Refine(context.Background(), square, 1, 0, 1000, 1e-2, failDriver(t))
	require.NoError(t, err)
	assert.True(t, res.Converged)
	assert.InDelta(t, -1.0/3.0, res.Estimate, 1e-4)
}

func TestRefineInvalidDecisionReprompts(t *testing.T) {
	driver := NewScriptedDriver(Jump(0), Jump(-5), Decision{}, Stop())

	res, err := Refine(context.Background(), square, 0, 1, 4, 1e-9, driver)
	require.NoError(t, err)
	assert.False(t, res.Converged)
	assert.Equal(t, 1, res.Final.Round, "invalid answers must not consume a round")

	seen := driver.Seen()
	require.Len(t, seen, 4)
	for _, st := range seen {
		assert.Equal(t, seen[0], st)
	}
}

func TestRefineDriverError(t *testing.T) {
	driver := NewScriptedDriver(Jump(1))

	res, err := Refine(context.Background(), square, 0, 1, 4, 1e-9, driver)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrScriptExhausted)
	assert.Equal(t, errors.KindInternal, errors.KindOf(err))
	assert.Equal(t, 5, res.Final.Rectangles)
}

func TestRefineCancelled(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	driver := NewChannelDriver()

	done := make(chan error, 1)
	go func() {
		_, err := Refine(ctx, square, 0, 1, 4, 1e-9, driver)
		done <- err
	}()

	<-driver.States()
	cancel()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.Equal(t, errors.KindCancelled, errors.KindOf(err))
	case <-time.After(5 * time.Second):
		t.Fatal("refiner did not observe cancellation")
	}
}

func TestRefineChannelDriver(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	driver := NewChannelDriver()

	var (
		wg  sync.WaitGroup
		res Result
		err error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		res, err = Refine(ctx, Func(math.Exp), 0, 1, 2, 1e-3, driver)
	}()

	first := <-driver.States()
	assert.Equal(t, 2, first.Rectangles)
	require.NoError(t, driver.Decide(ctx, Jump(8)))

	second := <-driver.States()
	assert.Equal(t, 10, second.Rectangles)
	assert.Less(t, second.Gap, first.Gap)
	require.NoError(t, driver.Decide(ctx, Stop()))

	wg.Wait()
	require.NoError(t, err)
	assert.False(t, res.Converged)
	assert.Equal(t, second, res.Final)
}

func TestDoublingDriver(t *testing.T) {
	res, err := Refine(context.Background(), Func(math.Exp), 0, 1, 1, 1e-3, DoublingDriver{})
	require.NoError(t, err)
	assert.True(t, res.Converged)
	// Gap is (e-1)/n; the first power of two under 1e-3 is 2048.
	assert.Equal(t, 2048, res.Final.Rectangles)
	assert.Equal(t, 12, res.Final.Round)

	capped, err := Refine(context.Background(), Func(math.Exp), 0, 1, 1, 1e-9, DoublingDriver{MaxRounds: 3})
	require.NoError(t, err)
	assert.False(t, capped.Converged)
	assert.Equal(t, 3, capped.Final.Round)
	assert.Equal(t, 4, capped.Final.Rectangles)
}

func TestRefineLogsRounds(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)

	_, err := Refine(context.Background(), square, 0, 1, 4, 1e-9,
		NewScriptedDriver(Jump(4), Stop()), WithLogger(zap.New(core)))
	require.NoError(t, err)

	rounds := logs.FilterMessage("refinement round").All()
	require.Len(t, rounds, 2)
	assert.Equal(t, int64(8), rounds[1].ContextMap()["rectangles"])
	assert.Equal(t, 1, logs.FilterMessage("refinement stopped by driver").Len())
}
