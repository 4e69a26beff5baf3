// Package weave implements the Weave transaction coordinator: the atomic
// ingress -> execute -> resource-watch -> commit-or-discard cycle that
// drives a process's module pipeline one cycle at a time.
//
// The coordinator's state-machine shape is grounded on the per-tag fetch/
// commit cycle in a ublk queue runner: ingress corresponds to priming a
// fetch, execute/resource-watch to the completion handler's per-tag state
// transitions, and commit/discard to the "only submit COMMIT if still
// Owned" guard — generalized from one in-flight I/O per tag to one
// transaction per process per cycle.
package weave

import (
	"context"
	"time"

	"github.com/filament-run/filament/internal/blob"
	"github.com/filament-run/filament/internal/capability"
	"github.com/filament-run/filament/internal/channel"
	"github.com/filament-run/filament/internal/codec"
	"github.com/filament-run/filament/internal/engine"
	"github.com/filament-run/filament/internal/staging"
	"github.com/filament-run/filament/internal/timeline"
)

// Module return codes. Negative values besides these are still treated as
// abort; only Park and Yield are non-negative.
const (
	Park  int32 = 0
	Yield int32 = 1

	// CodeFault is a host-forced abort code, distinct from anything a module
	// can return: a core/panic event forces rollback independent of every
	// module's own return value.
	CodeFault int32 = -128
	// CodeTimeout marks an abort caused by the resource watch, mirroring
	// errors.CodeErrTimeout's numeric value without importing the root
	// package (which itself will depend on this one).
	CodeTimeout int32 = -6
)

// ModuleInstance is one pipeline stage: a loaded engine Instance plus the
// pooling/context metadata the coordinator needs to drive it correctly.
type ModuleInstance struct {
	Instance   engine.Instance
	Stateless  bool   // zero user_data every Weave; memory is not reset by the coordinator
	ContextTag uint32 // 0=Logic 1=System 2=Managed

	// UserData is preserved across Weaves for Stateful instances and always
	// presented as 0 at entry for Stateless ones.
	UserData uint64
}

// Resources tracks one process's resource budget across Weaves.
type Resources struct {
	ComputeUsed  uint64
	ComputeMax   uint64
	MemCap       uint64
	TimeBudgetNs uint64
}

// InboundEvent is one event merged into staging at ingress: a timer fire, an
// fs/http reply, an upstream channel read, or a lifecycle command.
type InboundEvent struct {
	Topic string
	Value codec.Value
}

type pendingChannelWrite struct {
	ch   *channel.Channel
	data []byte
}

// emittedEvent is one module-produced static-topic output, tracked
// separately from staging's topic-coalesced buffers so that multiple emits
// to the same topic within a Weave become distinct committed events rather
// than one merged buffer.
type emittedEvent struct {
	topic string
	value codec.Value
}

// Outcome reports how one Run call resolved.
type Outcome struct {
	Committed bool
	// Disposition is Park or Yield after the "unread inputs upgrade PARK to
	// YIELD" rule, meaningful only when Committed is true.
	Disposition int32
	// AbortCode is the module or host code that caused a discard; zero when
	// Committed is true.
	AbortCode int32
	// Ticks holds the monotonic tick assigned to each static-topic output
	// committed this cycle, in commit order.
	Ticks []uint64
}

// Coordinator runs one process's pipeline through repeated Weave cycles. It
// is not safe for concurrent Run calls on the same Coordinator: weave calls
// on a given process are serialized by the scheduler.
type Coordinator struct {
	Pipeline  []*ModuleInstance
	Staging   *staging.Area
	Blobs     *blob.Table
	Timeline  *timeline.Timeline
	Router    *capability.Router
	Channels  *channel.Registry
	Resources Resources

	VirtTime    uint64
	TickCounter uint64
	RandSeed    uint64
	Trace       codec.FilamentTraceContext

	emitted              []emittedEvent
	pendingChannelWrites []pendingChannelWrite
	faulted              bool
}

// New creates a Coordinator over the given collaborators; Pipeline and
// Resources are set directly on the returned value by the caller (usually
// the process/supervisor package that owns them).
func New(st *staging.Area, bl *blob.Table, tl *timeline.Timeline, router *capability.Router, channels *channel.Registry) *Coordinator {
	return &Coordinator{Staging: st, Blobs: bl, Timeline: tl, Router: router, Channels: channels}
}

// Run executes exactly one Weave cycle: ingress, execute, resource watch,
// then commit or discard.
func (c *Coordinator) Run(ctx context.Context, inbound []InboundEvent) (Outcome, error) {
	c.ingress(inbound)

	code, err := c.execute(ctx)
	if err != nil || code < 0 || c.faulted {
		c.discard()
		abortCode := code
		if c.faulted {
			abortCode = CodeFault
		}
		return Outcome{Committed: false, AbortCode: abortCode}, err
	}

	disposition := code
	if code == Park && c.Staging.HasUnread() {
		disposition = Yield
	}

	ticks, err := c.commit()
	if err != nil {
		c.discard()
		return Outcome{Committed: false, AbortCode: CodeTimeout}, err
	}
	return Outcome{Committed: true, Disposition: disposition, Ticks: ticks}, nil
}

// ingress merges inbound events into staging, resets per-Weave tentative
// state, and zeroes user_data for Stateless instances.
func (c *Coordinator) ingress(inbound []InboundEvent) {
	c.Staging.Reset()
	c.emitted = nil
	c.pendingChannelWrites = nil
	c.faulted = false
	c.Router.KV.BeginWeave()

	for _, mi := range c.Pipeline {
		if mi.Stateless {
			mi.UserData = 0
		}
	}

	for _, ev := range inbound {
		if ev.Topic == capability.TopicCorePanic {
			c.faulted = true
		}
		c.injectInbound(ev.Topic, ev.Value)
	}
}

// execute invokes each pipeline module in order, serially, stopping at the
// first negative return or resource-limit overrun.
func (c *Coordinator) execute(ctx context.Context) (int32, error) {
	start := time.Now()
	for _, mi := range c.Pipeline {
		select {
		case <-ctx.Done():
			return CodeTimeout, ctx.Err()
		default:
		}

		args := codec.FilamentWeaveArgs{
			ComputeUsed: c.Resources.ComputeUsed,
			ComputeMax:  c.Resources.ComputeMax,
			MemCap:      c.Resources.MemCap,
			RandSeed:    c.RandSeed,
			VirtTime:    c.VirtTime,
			Trace:       c.Trace,
			TickCounter: c.TickCounter,
			UserData:    mi.UserData,
		}
		if c.Staging.HasUnread() {
			args.WakeFlags = 1
		}

		code, err := mi.Instance.Weave(args)
		if err != nil {
			return CodeTimeout, err
		}

		// Resource charge: one compute unit per module call, checked after
		// the call returns. Neither engine meters instructions, so a module
		// is never preempted mid-call for compute.
		c.Resources.ComputeUsed++
		if c.Resources.ComputeMax != 0 && c.Resources.ComputeUsed > c.Resources.ComputeMax {
			return CodeTimeout, nil
		}
		if c.Resources.TimeBudgetNs != 0 && uint64(time.Since(start).Nanoseconds()) > c.Resources.TimeBudgetNs {
			return CodeTimeout, nil
		}

		mi.UserData = args.UserData
		if code < 0 {
			return code, nil
		}
		if code != Park && code != Yield {
			return code, nil
		}
	}
	return Park, nil
}

// validateChannelWrites checks every pending write against its channel's
// remaining capacity before commit touches anything, so a Weave with one
// module queuing more than a channel can hold fails cleanly instead of
// partially landing its writes. Occupancy is reserved cumulatively per
// channel across c.pendingChannelWrites, since several writes this Weave may
// target the same channel.
func (c *Coordinator) validateChannelWrites() error {
	reserved := make(map[*channel.Channel]int, len(c.pendingChannelWrites))
	for _, w := range c.pendingChannelWrites {
		reserved[w.ch]++
		if w.ch.Len()+reserved[w.ch] > w.ch.Capacity {
			return channel.ErrIO
		}
	}
	return nil
}

// commit moves every tentative mutation into durable state: static-topic
// outputs into the timeline, the kv write buffer, blob retention/refcount
// journal, and buffered channel publishes. Every pending channel write is
// validated against its channel's capacity up front, before the timeline or
// any channel is touched, so commit either applies everything or nothing —
// once validation passes, Append and Write cannot fail in a way that would
// leave a partially-applied Weave behind.
func (c *Coordinator) commit() ([]uint64, error) {
	if err := c.validateChannelWrites(); err != nil {
		return nil, err
	}

	var ticks []uint64
	for _, e := range c.emitted {
		if capability.IsSpecial(e.topic) {
			continue // special topics are not timelined; commit drops them
		}
		seq, err := c.Timeline.Append(e.topic, e.value, c.VirtTime, c.Trace)
		if err != nil {
			return nil, err
		}
		ticks = append(ticks, seq)
	}

	for _, w := range c.pendingChannelWrites {
		if err := w.ch.Write(w.data); err != nil {
			return nil, err
		}
	}

	c.Blobs.Commit()
	c.Router.KV.Commit()
	c.Blobs.DropEphemerals()
	c.TickCounter++
	return ticks, nil
}

// discard drops every tentative mutation: staging is simply never moved to
// the timeline (the next ingress resets it), the blob journal and kv write
// buffer are reverted, and buffered channel writes are dropped without ever
// reaching the ring buffer.
func (c *Coordinator) discard() {
	c.Blobs.Discard()
	c.Router.KV.Discard()
	c.Blobs.DropEphemerals()
	c.emitted = nil
	c.pendingChannelWrites = nil
}
