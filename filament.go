package filament

import (
	"context"
	"time"

	"github.com/filament-run/filament/internal/capability"
	"github.com/filament-run/filament/internal/channel"
	"github.com/filament-run/filament/internal/logging"
	"github.com/filament-run/filament/internal/process"
	"github.com/filament-run/filament/internal/supervisor"
	"github.com/filament-run/filament/internal/timeline"
	"github.com/filament-run/filament/internal/weave"
)

// Policy mirrors supervisor.Policy for callers that only import the public
// package.
type Policy = supervisor.Policy

const (
	Shared    = supervisor.Shared
	Dedicated = supervisor.Dedicated
)

// ProcessParams mirrors DeviceParams: everything needed to admit and wire up
// one process, with conservative defaults filled in by DefaultProcessParams.
type ProcessParams struct {
	Stages []process.StageSpec

	Grants          []capability.Grant
	AllowEscalation bool
	Channels        []supervisor.ChannelBinding

	MemMax       uint64
	ComputeMax   uint64
	TimeBudgetNs uint64
	Policy       Policy

	// RequestedID lets a caller request a specific process id; -1 auto-assigns.
	RequestedID int64

	StagingBytes int
	Retention    timeline.Policy
	BlobShards   int
	DMAEnabled   bool
}

// DefaultProcessParams returns conservative defaults with no pipeline stages
// and no granted capabilities; callers fill in Stages and Grants.
func DefaultProcessParams() ProcessParams {
	return ProcessParams{
		MemMax:       MinBusBytes,
		ComputeMax:   0, // 0 = unmetered
		TimeBudgetNs: 0, // 0 = unmetered
		Policy:       Shared,
		RequestedID:  AutoAssignProcessID,
		StagingBytes: DefaultStagingBytes,
		Retention:    timeline.Strict,
		BlobShards:   4,
	}
}

// Options carries cross-cutting collaborators a Kernel or Process needs but
// that aren't part of any one process's own resource budget.
type Options struct {
	Context  context.Context
	Logger   *logging.Logger
	Observer Observer
}

// Kernel owns the whole process tree and the channel registry every
// process's channels live in — the single owning container the runtime is
// threaded through, per the "avoid ambient singletons" design guidance.
type Kernel struct {
	supervisor *supervisor.Supervisor
	channels   *channel.Registry
}

// NewKernel creates an empty Kernel with a root process and no channels.
func NewKernel() *Kernel {
	channels := channel.NewRegistry()
	return &Kernel{supervisor: supervisor.New(channels), channels: channels}
}

// Process is the public handle to a running process: its supervisor
// bookkeeping, its runtime pipeline, and its own metrics.
type Process struct {
	kernel   *Kernel
	runtime  *process.Process
	metrics  *Metrics
	observer Observer
}

// ID returns the process's kernel-assigned id.
func (p *Process) ID() uint64 { return p.runtime.Node.ID }

// Metrics returns the process's live metrics counters.
func (p *Process) Metrics() *Metrics { return p.metrics }

// MetricsSnapshot returns a point-in-time snapshot of the process's metrics.
func (p *Process) MetricsSnapshot() MetricsSnapshot {
	if p.metrics == nil {
		return MetricsSnapshot{}
	}
	return p.metrics.Snapshot()
}

// Suspended reports whether Terminate has already been called for this
// process (directly, or as part of an ancestor's cascading termination).
func (p *Process) Suspended() bool { return p.runtime.Node.Suspended() }

// Spawn validates params against parent and, on success, admits and wires up
// a new child process. The returned Process is provisional until CommitSpawn
// is called for it — ordinarily by the coordinator that owns the spawning
// Weave, once that Weave itself commits.
func Spawn(ctx context.Context, k *Kernel, parentID uint64, params ProcessParams, opts *Options) (*Process, error) {
	if opts == nil {
		opts = &Options{}
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Context != nil {
		ctx = opts.Context
	}

	modules := make([]supervisor.ModuleArtifact, 0, len(params.Stages))
	for _, stage := range params.Stages {
		modules = append(modules, supervisor.ModuleArtifact{
			DigestLow:  stage.Info.DigestLow,
			DigestHigh: stage.Info.DigestHigh,
			Code:       stage.Code,
			Stateless:  stage.Stateless,
		})
	}

	node, err := k.supervisor.Spawn(parentID, supervisor.SpawnRequest{
		Modules:         modules,
		Grants:          params.Grants,
		AllowEscalation: params.AllowEscalation,
		Channels:        params.Channels,
		MemMax:          params.MemMax,
		ComputeMax:      params.ComputeMax,
		TimeBudgetNs:    params.TimeBudgetNs,
		Policy:          params.Policy,
		RequestedID:     params.RequestedID,
	})
	if err != nil {
		return nil, WrapError("process_spawn", err)
	}

	stagingBytes := params.StagingBytes
	if stagingBytes < MinBusBytes {
		stagingBytes = MinBusBytes
	}
	blobShards := params.BlobShards
	if blobShards <= 0 {
		blobShards = 4
	}

	runtime, err := process.New(ctx, node, params.Retention, stagingBytes, k.channels, blobShards, params.DMAEnabled, params.Stages)
	if err != nil {
		k.supervisor.DiscardSpawn(node.ID)
		return nil, WrapError("process_spawn", err)
	}

	var observer Observer = &NoOpObserver{}
	metrics := NewMetrics()
	if opts.Observer != nil {
		observer = opts.Observer
	} else {
		observer = NewMetricsObserver(metrics)
	}

	return &Process{kernel: k, runtime: runtime, metrics: metrics, observer: observer}, nil
}

// SpawnChild spawns params as a child of p, sharing p's kernel.
func (p *Process) SpawnChild(ctx context.Context, params ProcessParams, opts *Options) (*Process, error) {
	return Spawn(ctx, p.kernel, p.ID(), params, opts)
}

// CommitSpawn finalizes p: it becomes eligible to run its own init and first
// weave starting next cycle. The caller is whatever coordinator's Weave
// issued the spawn, once that Weave's own commit succeeds.
func (p *Process) CommitSpawn() {
	p.kernel.supervisor.CommitSpawn(p.ID())
}

// Terminate suspends p, cascades to every descendant in post-order, destroys
// every owned channel, and credits mem_max back to the parent.
func Terminate(ctx context.Context, p *Process) error {
	if p == nil {
		return NewError("process_terminate", CodeErrInvalid, "nil process")
	}
	if p.metrics != nil {
		p.metrics.Stop()
	}
	if err := p.kernel.supervisor.Terminate(p.ID()); err != nil {
		return WrapError("process_terminate", err)
	}
	return nil
}

// Tick merges any timers due by now into inbound and runs exactly one Weave
// cycle for p, recording the outcome into p's metrics.
func (p *Process) Tick(ctx context.Context, virtTime uint64, inbound []weave.InboundEvent) (weave.Outcome, error) {
	start := time.Now()
	out, err := p.runtime.Tick(ctx, virtTime, inbound)
	latencyNs := uint64(time.Since(start).Nanoseconds())

	if err != nil || !out.Committed {
		p.observer.ObserveDiscard(out.AbortCode == weave.CodeFault, latencyNs)
		return out, err
	}
	p.observer.ObserveCommit(uint64(len(out.Ticks)), 0, 0, 0, latencyNs)
	return out, nil
}
