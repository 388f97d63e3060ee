package quadrature

import (
	"context"
	"sync"

	"github.com/copyleftdev/integra/internal/errors"
)

// Driver decides what happens after a round that missed the tolerance.
// Next may block; it should return promptly once ctx is done.
type Driver interface {
	Next(ctx context.Context, st State) (Decision, error)
}

// DriverFunc adapts a function to Driver.
type DriverFunc func(ctx context.Context, st State) (Decision, error)

// Next calls fn.
func (fn DriverFunc) Next(ctx context.Context, st State) (Decision, error) {
	return fn(ctx, st)
}

// ErrScriptExhausted is returned by a ScriptedDriver asked for more decisions
// than it was given.
var ErrScriptExhausted = errors.New(errors.KindConflict, "scripted driver has no decisions left")

// ScriptedDriver replays a fixed list of decisions and records every state it
// was shown.
type ScriptedDriver struct {
	mu        sync.Mutex
	decisions []Decision
	seen      []State
}

// NewScriptedDriver returns a driver that answers with decisions in order.
func NewScriptedDriver(decisions ...Decision) *ScriptedDriver {
	return &ScriptedDriver{decisions: decisions}
}

// Next returns the next scripted decision.
func (d *ScriptedDriver) Next(_ context.Context, st State) (Decision, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.seen = append(d.seen, st)
	if len(d.decisions) == 0 {
		return Decision{}, ErrScriptExhausted
	}
	next := d.decisions[0]
	d.decisions = d.decisions[1:]
	return next, nil
}

// Seen returns the states shown to the driver so far.
func (d *ScriptedDriver) Seen() []State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]State(nil), d.seen...)
}

// DoublingDriver doubles the rectangle count every round and stops after
// MaxRounds rounds. A zero MaxRounds never stops.
type DoublingDriver struct {
	MaxRounds int
}

// Next jumps by the current rectangle count.
func (d DoublingDriver) Next(_ context.Context, st State) (Decision, error) {
	if d.MaxRounds > 0 && st.Round >= d.MaxRounds {
		return Stop(), nil
	}
	return Jump(st.Rectangles), nil
}

// ChannelDriver hands states to another goroutine and waits for its decision.
// Each Next publishes the state on States and then blocks on Decide.
type ChannelDriver struct {
	states    chan State
	decisions chan Decision
}

// NewChannelDriver returns an unbuffered ChannelDriver.
func NewChannelDriver() *ChannelDriver {
	return &ChannelDriver{
		states:    make(chan State),
		decisions: make(chan Decision),
	}
}

// Next publishes st and waits for the matching decision.
func (d *ChannelDriver) Next(ctx context.Context, st State) (Decision, error) {
	select {
	case d.states <- st:
	case <-ctx.Done():
		return Decision{}, ctx.Err()
	}

	select {
	case dec := <-d.decisions:
		return dec, nil
	case <-ctx.Done():
		return Decision{}, ctx.Err()
	}
}

// States yields each state the refiner is waiting on.
func (d *ChannelDriver) States() <-chan State {
	return d.states
}

// Decide delivers a decision for the most recently received state.
func (d *ChannelDriver) Decide(ctx context.Context, dec Decision) error {
	select {
	case d.decisions <- dec:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
