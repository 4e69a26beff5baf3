package process

import (
	"context"
	"testing"

	"github.com/filament-run/filament/internal/capability"
	"github.com/filament-run/filament/internal/channel"
	"github.com/filament-run/filament/internal/codec"
	"github.com/filament-run/filament/internal/engine"
	"github.com/filament-run/filament/internal/supervisor"
	"github.com/filament-run/filament/internal/timeline"
	"github.com/filament-run/filament/internal/weave"
)

func testNode(t *testing.T) *supervisor.Process {
	t.Helper()
	s := supervisor.New(channel.NewRegistry())
	grants := []capability.Grant{{URN: "app/out"}, {URN: capability.TopicTimeFire}}
	node, err := s.Spawn(supervisor.RootID, supervisor.SpawnRequest{
		Grants:          grants,
		AllowEscalation: true,
		MemMax:          4096,
		ComputeMax:      1000,
		RequestedID:     -1,
	})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	s.CommitSpawn(node.ID)
	return node
}

func nativeStage(t *testing.T, weaveFn func(inst *engine.NativeInstance, args codec.FilamentWeaveArgs) (int32, error)) StageSpec {
	t.Helper()
	reg := engine.NewNativeRegistry()
	digest := [16]byte{7}
	reg.Register(digest, engine.NativeFuncs{Weave: weaveFn})
	return StageSpec{
		Engine:    engine.NewNativeEngine(reg),
		Code:      nil,
		Info:      codec.FilamentModuleInfo{ContextTag: 1, MemRequirement: 4096, DigestLow: 7},
		Stateless: false,
	}
}

func TestNewWiresPipelineAndResourceBudget(t *testing.T) {
	node := testNode(t)
	stage := nativeStage(t, func(inst *engine.NativeInstance, args codec.FilamentWeaveArgs) (int32, error) {
		return weave.Park, nil
	})

	p, err := New(context.Background(), node, timeline.Strict, 65536, channel.NewRegistry(), 4, false, []StageSpec{stage})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if len(p.Coord.Pipeline) != 1 {
		t.Fatalf("expected 1 pipeline stage, got %d", len(p.Coord.Pipeline))
	}
	if p.Coord.Resources.ComputeMax != 1000 {
		t.Fatalf("expected ComputeMax propagated from the node, got %d", p.Coord.Resources.ComputeMax)
	}
	if p.Coord.Resources.MemCap != 4096 {
		t.Fatalf("expected MemCap propagated from the node, got %d", p.Coord.Resources.MemCap)
	}
}

func TestTickMergesFiredTimersAsInboundEvents(t *testing.T) {
	node := testNode(t)
	var sawWake bool
	stage := nativeStage(t, func(inst *engine.NativeInstance, args codec.FilamentWeaveArgs) (int32, error) {
		sawWake = args.WakeFlags != 0
		return weave.Park, nil
	})

	p, err := New(context.Background(), node, timeline.Strict, 65536, channel.NewRegistry(), 4, false, []StageSpec{stage})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	p.ScheduleTimer(100, 0xCAFE)

	out, err := p.Tick(context.Background(), 50, nil)
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if !out.Committed {
		t.Fatalf("expected commit, got abort code %d", out.AbortCode)
	}
	if p.Timers.Len() != 1 {
		t.Fatal("expected the timer to remain pending before its deadline")
	}

	out, err = p.Tick(context.Background(), 100, nil)
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if !out.Committed {
		t.Fatalf("expected commit, got abort code %d", out.AbortCode)
	}
	if !sawWake {
		t.Fatal("expected the fired timer to be merged into staging, setting WakeFlags")
	}
	if p.Timers.Len() != 0 {
		t.Fatal("expected the fired timer removed from the wheel")
	}
}

func TestCancelTimerPreventsFire(t *testing.T) {
	node := testNode(t)
	stage := nativeStage(t, func(inst *engine.NativeInstance, args codec.FilamentWeaveArgs) (int32, error) {
		return weave.Park, nil
	})
	p, err := New(context.Background(), node, timeline.Strict, 65536, channel.NewRegistry(), 4, false, []StageSpec{stage})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	seq := p.ScheduleTimer(100, 1)
	if !p.CancelTimer(seq) {
		t.Fatal("expected CancelTimer to find the pending timer")
	}
	if p.Timers.Len() != 0 {
		t.Fatal("expected the wheel empty after cancellation")
	}
}
