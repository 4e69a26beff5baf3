// Package timeline implements the Filament event timeline: an append-only
// log under one of three retention policies, streamed out through
// fixed-batch cursors.
package timeline

import (
	"errors"
	"sync"

	"github.com/filament-run/filament/internal/codec"
)

// Policy is one of the three retention policies a timeline is created with.
type Policy int

const (
	Strict Policy = iota
	Prunable
	Mutable
)

var (
	ErrReadOnly   = errors.New("timeline: policy does not permit this modification")
	ErrPruned     = errors.New("timeline: sequence below the low watermark")
	ErrOOM        = errors.New("timeline: destination buffer too small for one event")
	ErrNotFound   = errors.New("timeline: cursor not found")
)

// Event is one committed timeline record: a fixed header, its topic, and a
// Value payload stored as an arena-relative FilamentValue envelope plus the
// arena bytes it references.
type Event struct {
	Header     codec.FilamentEventHeader
	Topic      string
	Value      codec.FilamentValue
	Arena      []byte
	tombstoned bool
}

// Timeline is one process's append-only event log.
type Timeline struct {
	mu        sync.Mutex
	policy    Policy
	events    []Event
	byTopic   map[string][]int
	watermark uint64 // Prunable: sequence numbers at or below this are unreadable
	nextSeq   uint64
}

// New creates an empty timeline under policy.
func New(policy Policy) *Timeline {
	return &Timeline{policy: policy, byTopic: make(map[string][]int)}
}

// Append encodes value and adds a new event, assigning it the next monotonic
// sequence number. Append-only holds under every policy; only pruning and
// tombstoning are policy-gated.
func (t *Timeline) Append(topic string, value codec.Value, virtTime uint64, trace codec.FilamentTraceContext) (uint64, error) {
	fv, arena, err := codec.EncodeValue(value)
	if err != nil {
		return 0, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextSeq++
	seq := t.nextSeq
	h := codec.FilamentEventHeader{
		SeqID:    seq,
		VirtTime: virtTime,
		Trace:    trace,
		DataLen:  uint32(len(arena)),
		TopicLen: uint32(len(topic)),
		Tick:     seq,
	}
	idx := len(t.events)
	t.events = append(t.events, Event{Header: h, Topic: topic, Value: fv, Arena: arena})
	t.byTopic[topic] = append(t.byTopic[topic], idx)
	return seq, nil
}

// Prune advances the low watermark to seq. Only valid under Prunable;
// indices are never compacted, so pruned events still occupy a slot but
// become unreadable.
func (t *Timeline) Prune(seq uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.policy != Prunable {
		return ErrReadOnly
	}
	if seq > t.watermark {
		t.watermark = seq
	}
	return nil
}

// Tombstone zeroes an event's payload while preserving its header, id, and
// trace. Only valid under Mutable.
func (t *Timeline) Tombstone(seq uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.policy != Mutable {
		return ErrReadOnly
	}
	for i := range t.events {
		if t.events[i].Header.SeqID == seq {
			t.events[i].Arena = make([]byte, len(t.events[i].Arena))
			t.events[i].Value = codec.FilamentValue{}
			t.events[i].tombstoned = true
			return nil
		}
	}
	return ErrNotFound
}

// Len returns the number of events ever appended (pruned or tombstoned
// events still count).
func (t *Timeline) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.events)
}

// Watermark returns the current Prunable low watermark (always 0 outside
// that policy).
func (t *Timeline) Watermark() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.watermark
}

// visible reports whether seq is still readable under the current policy.
func (t *Timeline) visible(seq uint64) bool {
	if t.policy == Prunable && seq <= t.watermark {
		return false
	}
	return true
}
