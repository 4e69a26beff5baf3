package filament

import (
	"testing"
	"time"
)

func TestMetricsInitialState(t *testing.T) {
	m := NewMetrics()
	snap := m.Snapshot()

	if snap.WeavesCommitted != 0 || snap.WeavesDiscarded != 0 {
		t.Errorf("expected zeroed counters, got %+v", snap)
	}
}

func TestMetricsRecordCommitAndDiscard(t *testing.T) {
	m := NewMetrics()

	m.RecordCommit(3, 2, 1, 500, 1_000_000) // 1ms
	m.RecordCommit(1, 0, 0, 100, 2_000_000) // 2ms
	m.RecordDiscard(false, 500_000)         // 0.5ms, ordinary abort
	m.RecordDiscard(true, 750_000)          // 0.75ms, forced fault

	snap := m.Snapshot()

	if snap.WeavesCommitted != 2 {
		t.Errorf("expected 2 committed, got %d", snap.WeavesCommitted)
	}
	if snap.WeavesDiscarded != 2 {
		t.Errorf("expected 2 discarded, got %d", snap.WeavesDiscarded)
	}
	if snap.WeavesFaulted != 1 {
		t.Errorf("expected 1 faulted, got %d", snap.WeavesFaulted)
	}
	if snap.TimelineAppends != 4 {
		t.Errorf("expected 4 timeline appends, got %d", snap.TimelineAppends)
	}
	if snap.ChannelWrites != 2 {
		t.Errorf("expected 2 channel writes, got %d", snap.ChannelWrites)
	}
	if snap.KVSets != 1 {
		t.Errorf("expected 1 kv set, got %d", snap.KVSets)
	}
	if snap.ComputeUnits != 600 {
		t.Errorf("expected 600 compute units, got %d", snap.ComputeUnits)
	}

	totalCycles := snap.WeavesCommitted + snap.WeavesDiscarded
	wantRate := float64(snap.WeavesDiscarded) / float64(totalCycles)
	if snap.DiscardRate != wantRate {
		t.Errorf("expected DiscardRate %.4f, got %.4f", wantRate, snap.DiscardRate)
	}
}

func TestMetricsAvgLatency(t *testing.T) {
	m := NewMetrics()
	m.RecordCommit(0, 0, 0, 0, 1_000_000)
	m.RecordCommit(0, 0, 0, 0, 2_000_000)

	snap := m.Snapshot()
	want := uint64(1_500_000)
	if snap.AvgLatencyNs != want {
		t.Errorf("expected avg latency %d ns, got %d ns", want, snap.AvgLatencyNs)
	}
}

func TestMetricsUptimeStops(t *testing.T) {
	m := NewMetrics()
	time.Sleep(5 * time.Millisecond)

	m.Stop()
	snap1 := m.Snapshot()
	time.Sleep(5 * time.Millisecond)
	snap2 := m.Snapshot()

	if snap2.UptimeNs != snap1.UptimeNs {
		t.Errorf("expected uptime fixed after Stop: %d vs %d", snap1.UptimeNs, snap2.UptimeNs)
	}
}

func TestMetricsReset(t *testing.T) {
	m := NewMetrics()
	m.RecordCommit(1, 1, 1, 1, 1_000_000)
	m.RecordDiscard(true, 500_000)

	m.Reset()
	snap := m.Snapshot()

	if snap.WeavesCommitted != 0 || snap.WeavesDiscarded != 0 || snap.WeavesFaulted != 0 {
		t.Errorf("expected zeroed counters after Reset, got %+v", snap)
	}
	for i, v := range snap.LatencyHistogram {
		if v != 0 {
			t.Errorf("expected histogram bucket %d zeroed after Reset, got %d", i, v)
		}
	}
}

func TestMetricsPercentiles(t *testing.T) {
	m := NewMetrics()

	for i := 0; i < 50; i++ {
		m.RecordCommit(0, 0, 0, 0, 500_000) // 500us
	}
	for i := 0; i < 49; i++ {
		m.RecordCommit(0, 0, 0, 0, 5_000_000) // 5ms
	}
	m.RecordCommit(0, 0, 0, 0, 50_000_000) // 50ms, P99

	snap := m.Snapshot()

	if snap.WeavesCommitted != 100 {
		t.Fatalf("expected 100 committed weaves, got %d", snap.WeavesCommitted)
	}
	if snap.LatencyP50Ns < 100_000 || snap.LatencyP50Ns > 1_000_000 {
		t.Errorf("expected P50 in 100us-1ms range, got %d ns", snap.LatencyP50Ns)
	}
	if snap.LatencyP99Ns < 5_000_000 || snap.LatencyP99Ns > 100_000_000 {
		t.Errorf("expected P99 in 5ms-100ms range, got %d ns", snap.LatencyP99Ns)
	}

	var totalInBuckets uint64
	for _, v := range snap.LatencyHistogram {
		totalInBuckets += v
	}
	if totalInBuckets == 0 {
		t.Error("expected histogram buckets to be populated")
	}
}

func TestObserverForwarding(t *testing.T) {
	noop := &NoOpObserver{}
	noop.ObserveCommit(1, 1, 1, 1, 1)
	noop.ObserveDiscard(false, 1)

	m := NewMetrics()
	obs := NewMetricsObserver(m)
	obs.ObserveCommit(2, 1, 0, 10, 1_000_000)
	obs.ObserveDiscard(true, 500_000)

	snap := m.Snapshot()
	if snap.WeavesCommitted != 1 {
		t.Errorf("expected 1 committed weave via observer, got %d", snap.WeavesCommitted)
	}
	if snap.WeavesFaulted != 1 {
		t.Errorf("expected 1 faulted weave via observer, got %d", snap.WeavesFaulted)
	}
	if snap.TimelineAppends != 2 {
		t.Errorf("expected 2 timeline appends via observer, got %d", snap.TimelineAppends)
	}
}
