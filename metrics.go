package filament

import (
	"sync/atomic"
	"time"
)

// LatencyBuckets defines the Weave-duration histogram buckets in
// nanoseconds, from 1us to 10s with logarithmic spacing.
var LatencyBuckets = []uint64{
	1_000,
	10_000,
	100_000,
	1_000_000,
	10_000_000,
	100_000_000,
	1_000_000_000,
	10_000_000_000,
}

const numLatencyBuckets = 8

// Metrics tracks a process's Weave-cycle statistics: commit/discard counts,
// resource consumption, and cycle-latency percentiles.
type Metrics struct {
	WeavesCommitted atomic.Uint64
	WeavesDiscarded atomic.Uint64
	WeavesFaulted   atomic.Uint64 // discarded specifically by a core/panic forced rollback

	TimelineAppends atomic.Uint64
	ChannelWrites   atomic.Uint64
	KVSets          atomic.Uint64
	ComputeUnits    atomic.Uint64

	TotalLatencyNs atomic.Uint64
	CycleCount     atomic.Uint64

	// LatencyHistogram[i] holds the cumulative count of Weaves whose duration
	// was <= LatencyBuckets[i] nanoseconds.
	LatencyHistogram [numLatencyBuckets]atomic.Uint64

	StartTime atomic.Int64
	StopTime  atomic.Int64
}

// NewMetrics creates a metrics instance stamped with the current time as its
// start.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordCommit records one committed Weave: its resulting resource charges
// and how long the cycle took.
func (m *Metrics) RecordCommit(timelineAppends, channelWrites, kvSets, computeUnits uint64, latencyNs uint64) {
	m.WeavesCommitted.Add(1)
	m.TimelineAppends.Add(timelineAppends)
	m.ChannelWrites.Add(channelWrites)
	m.KVSets.Add(kvSets)
	m.ComputeUnits.Add(computeUnits)
	m.recordLatency(latencyNs)
}

// RecordDiscard records one discarded Weave, distinguishing a core/panic
// forced rollback from an ordinary negative-return or resource-overrun abort.
func (m *Metrics) RecordDiscard(faulted bool, latencyNs uint64) {
	m.WeavesDiscarded.Add(1)
	if faulted {
		m.WeavesFaulted.Add(1)
	}
	m.recordLatency(latencyNs)
}

func (m *Metrics) recordLatency(latencyNs uint64) {
	m.TotalLatencyNs.Add(latencyNs)
	m.CycleCount.Add(1)
	for i, bucket := range LatencyBuckets {
		if latencyNs <= bucket {
			m.LatencyHistogram[i].Add(1)
		}
	}
}

// Stop marks the process as stopped for uptime accounting.
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// MetricsSnapshot is a point-in-time, non-atomic copy of Metrics for
// reporting.
type MetricsSnapshot struct {
	WeavesCommitted uint64
	WeavesDiscarded uint64
	WeavesFaulted   uint64

	TimelineAppends uint64
	ChannelWrites   uint64
	KVSets          uint64
	ComputeUnits    uint64

	AvgLatencyNs  uint64
	LatencyP50Ns  uint64
	LatencyP99Ns  uint64
	LatencyP999Ns uint64

	LatencyHistogram [numLatencyBuckets]uint64

	UptimeNs    uint64
	WeaveRate   float64 // committed Weaves per second
	DiscardRate float64 // fraction of cycles discarded, 0.0-1.0
}

// Snapshot takes a consistent point-in-time copy and derives rates and
// latency percentiles from the histogram.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		WeavesCommitted: m.WeavesCommitted.Load(),
		WeavesDiscarded: m.WeavesDiscarded.Load(),
		WeavesFaulted:   m.WeavesFaulted.Load(),
		TimelineAppends: m.TimelineAppends.Load(),
		ChannelWrites:   m.ChannelWrites.Load(),
		KVSets:          m.KVSets.Load(),
		ComputeUnits:    m.ComputeUnits.Load(),
	}

	cycleCount := m.CycleCount.Load()
	totalLatencyNs := m.TotalLatencyNs.Load()
	if cycleCount > 0 {
		snap.AvgLatencyNs = totalLatencyNs / cycleCount
	}

	startTime := m.StartTime.Load()
	stopTime := m.StopTime.Load()
	if stopTime > 0 {
		snap.UptimeNs = uint64(stopTime - startTime)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - startTime)
	}

	if snap.UptimeNs > 0 {
		uptimeSeconds := float64(snap.UptimeNs) / 1e9
		snap.WeaveRate = float64(snap.WeavesCommitted) / uptimeSeconds
	}

	totalCycles := snap.WeavesCommitted + snap.WeavesDiscarded
	if totalCycles > 0 {
		snap.DiscardRate = float64(snap.WeavesDiscarded) / float64(totalCycles)
	}

	for i := 0; i < numLatencyBuckets; i++ {
		snap.LatencyHistogram[i] = m.LatencyHistogram[i].Load()
	}

	if cycleCount > 0 {
		snap.LatencyP50Ns = m.calculatePercentile(0.50)
		snap.LatencyP99Ns = m.calculatePercentile(0.99)
		snap.LatencyP999Ns = m.calculatePercentile(0.999)
	}

	return snap
}

// calculatePercentile estimates the cycle-latency at percentile (0.0-1.0) by
// linear interpolation between histogram buckets.
func (m *Metrics) calculatePercentile(percentile float64) uint64 {
	totalCycles := m.CycleCount.Load()
	if totalCycles == 0 {
		return 0
	}

	targetCount := uint64(float64(totalCycles) * percentile)
	prevBucket := uint64(0)
	for i, bucket := range LatencyBuckets {
		bucketCount := m.LatencyHistogram[i].Load()
		if bucketCount >= targetCount {
			prevCount := uint64(0)
			if i > 0 {
				prevCount = m.LatencyHistogram[i-1].Load()
			}
			if bucketCount == prevCount {
				return bucket
			}
			fraction := float64(targetCount-prevCount) / float64(bucketCount-prevCount)
			return prevBucket + uint64(fraction*float64(bucket-prevBucket))
		}
		prevBucket = bucket
	}
	return LatencyBuckets[numLatencyBuckets-1]
}

// Reset zeroes every counter, useful between test cases.
func (m *Metrics) Reset() {
	m.WeavesCommitted.Store(0)
	m.WeavesDiscarded.Store(0)
	m.WeavesFaulted.Store(0)
	m.TimelineAppends.Store(0)
	m.ChannelWrites.Store(0)
	m.KVSets.Store(0)
	m.ComputeUnits.Store(0)
	m.TotalLatencyNs.Store(0)
	m.CycleCount.Store(0)
	for i := 0; i < numLatencyBuckets; i++ {
		m.LatencyHistogram[i].Store(0)
	}
	m.StartTime.Store(time.Now().UnixNano())
	m.StopTime.Store(0)
}

// Observer allows pluggable Weave-cycle observation, independent of the
// built-in Metrics implementation.
type Observer interface {
	ObserveCommit(timelineAppends, channelWrites, kvSets, computeUnits uint64, latencyNs uint64)
	ObserveDiscard(faulted bool, latencyNs uint64)
}

// NoOpObserver discards every observation.
type NoOpObserver struct{}

func (NoOpObserver) ObserveCommit(uint64, uint64, uint64, uint64, uint64) {}
func (NoOpObserver) ObserveDiscard(bool, uint64)                         {}

// MetricsObserver implements Observer by recording into a Metrics.
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver creates an observer that records into m.
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveCommit(timelineAppends, channelWrites, kvSets, computeUnits uint64, latencyNs uint64) {
	o.metrics.RecordCommit(timelineAppends, channelWrites, kvSets, computeUnits, latencyNs)
}

func (o *MetricsObserver) ObserveDiscard(faulted bool, latencyNs uint64) {
	o.metrics.RecordDiscard(faulted, latencyNs)
}

var _ Observer = (*MetricsObserver)(nil)
var _ Observer = (*NoOpObserver)(nil)
