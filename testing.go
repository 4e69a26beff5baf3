package filament

import (
	"context"
	"sync/atomic"

	"github.com/filament-run/filament/internal/supervisor"
	"github.com/filament-run/filament/internal/weave"
)

// FakeClock is a manually-advanced virtual clock for deterministic tests: it
// stands in for a process's virtual time source so a test controls exactly
// when timers fire and how far apart Weave cycles land, instead of racing a
// wall clock.
type FakeClock struct {
	nowNs atomic.Uint64
}

// NewFakeClock creates a clock starting at startNs.
func NewFakeClock(startNs uint64) *FakeClock {
	c := &FakeClock{}
	c.nowNs.Store(startNs)
	return c
}

// Now returns the clock's current virtual time in nanoseconds.
func (c *FakeClock) Now() uint64 { return c.nowNs.Load() }

// Advance moves the clock forward by deltaNs and returns the new time.
func (c *FakeClock) Advance(deltaNs uint64) uint64 {
	return c.nowNs.Add(deltaNs)
}

// Set pins the clock to an absolute virtual time, useful for jumping past a
// timer deadline without stepping through every intermediate nanosecond.
func (c *FakeClock) Set(ns uint64) { c.nowNs.Store(ns) }

// Harness wires a Kernel to a FakeClock for single-threaded, deterministic
// test drivers: one call to Step runs exactly one Weave cycle at the
// clock's current virtual time, with no wall-clock or goroutine scheduling
// involved.
type Harness struct {
	Kernel *Kernel
	Clock  *FakeClock
}

// NewHarness creates an empty kernel and a clock starting at virtual time 0.
func NewHarness() *Harness {
	return &Harness{Kernel: NewKernel(), Clock: NewFakeClock(0)}
}

// Spawn admits params as a root-level process under the harness's kernel
// and commits it immediately, skipping the same-weave discard window that
// production callers guard with Process.CommitSpawn — test drivers rarely
// need to exercise that path themselves.
func (h *Harness) Spawn(ctx context.Context, params ProcessParams, opts *Options) (*Process, error) {
	p, err := Spawn(ctx, h.Kernel, supervisor.RootID, params, opts)
	if err != nil {
		return nil, err
	}
	p.CommitSpawn()
	return p, nil
}

// Step advances the harness clock by deltaNs and runs exactly one Weave
// cycle for p at the resulting virtual time.
func (h *Harness) Step(ctx context.Context, p *Process, deltaNs uint64, inbound []weave.InboundEvent) (weave.Outcome, error) {
	now := h.Clock.Advance(deltaNs)
	return p.Tick(ctx, now, inbound)
}
