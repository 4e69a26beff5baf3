// Package process ties one supervision-tree node's runtime collaborators
// into a single cooperatively-scheduled unit: its own staging area, blob
// table, timeline, capability router, and timer wheel, driving its pipeline
// through repeated Weave cycles via a weave.Coordinator.
//
// The shape is grounded on a ublk Device: a device ties its block-device
// identity (ID, paths, backend) to a fan-out of per-queue runners that
// actually move I/O; a Process ties a supervision-tree node's identity
// (quota, capability set, parent/children) to the Coordinator that actually
// runs its pipeline.
package process

import (
	"context"
	"fmt"

	"github.com/filament-run/filament/internal/blob"
	"github.com/filament-run/filament/internal/capability"
	"github.com/filament-run/filament/internal/channel"
	"github.com/filament-run/filament/internal/codec"
	"github.com/filament-run/filament/internal/engine"
	"github.com/filament-run/filament/internal/staging"
	"github.com/filament-run/filament/internal/supervisor"
	"github.com/filament-run/filament/internal/timeline"
	"github.com/filament-run/filament/internal/timer"
	"github.com/filament-run/filament/internal/weave"
)

// StageSpec describes one pipeline stage to load and instantiate into a
// Process's Coordinator at construction time.
type StageSpec struct {
	Engine    engine.Engine
	Code      []byte
	Info      codec.FilamentModuleInfo
	Stateless bool
}

// Process is the runtime counterpart of a supervisor.Process tree node: the
// node carries lifecycle/quota bookkeeping, Process carries the actual
// pipeline and the per-Weave state it runs against.
type Process struct {
	Node   *supervisor.Process
	Coord  *weave.Coordinator
	Timers *timer.Wheel
}

// New builds a Process around an already-spawned supervisor.Process node:
// fresh staging area, blob table, timeline, capability router, channel
// bindings, and timer wheel, with each stage loaded and instantiated via its
// engine before being wired into the Coordinator's pipeline in order.
func New(ctx context.Context, node *supervisor.Process, retention timeline.Policy, busBytes int, channels *channel.Registry, blobShards int, dmaEnabled bool, stages []StageSpec) (*Process, error) {
	st := staging.New(busBytes)
	pool := blob.NewPool(blobShards, dmaEnabled)
	bt := blob.NewTable(pool, node.ID)
	tl := timeline.New(retention)
	kv := capability.NewKVStore()
	async := capability.NewAsyncDispatcher()
	router := capability.NewRouter(node.Grants, kv, async)

	coord := weave.New(st, bt, tl, router, channels)
	coord.Resources = weave.Resources{
		ComputeMax:   node.ComputeMax,
		MemCap:       node.MemMax,
		TimeBudgetNs: node.TimeBudgetNs,
	}

	pipeline := make([]*weave.ModuleInstance, 0, len(stages))
	for i, stage := range stages {
		mod, err := stage.Engine.Load(stage.Code, stage.Info)
		if err != nil {
			return nil, fmt.Errorf("process: load stage %d: %w", i, err)
		}
		inst, err := mod.Instantiate(ctx)
		if err != nil {
			return nil, fmt.Errorf("process: instantiate stage %d: %w", i, err)
		}
		pipeline = append(pipeline, &weave.ModuleInstance{
			Instance:   inst,
			Stateless:  stage.Stateless,
			ContextTag: stage.Info.ContextTag,
		})
	}
	coord.Pipeline = pipeline

	return &Process{Node: node, Coord: coord, Timers: timer.New()}, nil
}

// KV exposes the process's capability-routed key/value store, shared with
// the Coordinator's hostapi and available to a host-side fs/http dispatcher
// built on top of a Process.
func (p *Process) KV() *capability.KVStore { return p.Coord.Router.KV }

// Async exposes the process's outstanding fs/http request correlator.
func (p *Process) Async() *capability.AsyncDispatcher { return p.Coord.Router.Async }

// Tick merges any timers due by now into inbound, advances virtual time, and
// runs exactly one Weave cycle. The caller supplies every other
// inbound deposit (channel reads, fs/http replies, lifecycle commands); Tick
// only owns the timer-to-event translation since the Process is what holds
// the timer wheel.
func (p *Process) Tick(ctx context.Context, virtTime uint64, inbound []weave.InboundEvent) (weave.Outcome, error) {
	p.Coord.VirtTime = virtTime
	for _, fired := range p.Timers.Fire(virtTime) {
		inbound = append(inbound, weave.InboundEvent{
			Topic: capability.TopicTimeFire,
			Value: codec.U64(fired.UserData),
		})
	}
	return p.Coord.Run(ctx, inbound)
}

// ScheduleTimer registers a one-shot virtual-time deadline on behalf of a
// filament/time/set request, returning the sequence Cancel needs to revoke
// it before it fires.
func (p *Process) ScheduleTimer(deadline uint64, userData uint64) uint64 {
	return p.Timers.Set(deadline, p.Node.ID, userData)
}

// CancelTimer revokes a previously scheduled timer; it is a no-op if seq has
// already fired or was never registered.
func (p *Process) CancelTimer(seq uint64) bool {
	return p.Timers.Cancel(seq)
}
