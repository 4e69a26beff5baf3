// Package timer implements the virtual-time timer wheel backing
// filament/time/set -> filament/time/fire: one-shot deadlines keyed to a
// process's virtual clock, fired in deadline order as virtual time advances
// across Weave boundaries.
package timer

import (
	"container/heap"
	"sync"
)

// Entry is one scheduled one-shot deadline.
type Entry struct {
	Deadline  uint64 // virtual-time nanoseconds
	Process   uint64
	UserData  uint64
	Sequence  uint64 // insertion order, breaks deadline ties FIFO
}

// pending is a min-heap of Entry ordered by (Deadline, Sequence).
type pending []Entry

func (h pending) Len() int { return len(h) }
func (h pending) Less(i, j int) bool {
	if h[i].Deadline != h[j].Deadline {
		return h[i].Deadline < h[j].Deadline
	}
	return h[i].Sequence < h[j].Sequence
}
func (h pending) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *pending) Push(x any)   { *h = append(*h, x.(Entry)) }
func (h *pending) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// Wheel schedules one-shot virtual-time deadlines and drains the ones due
// by a given virtual time. It holds no goroutine of its own; the process
// package's Tick calls Fire once per cycle with the cycle's new virtual time.
type Wheel struct {
	mu       sync.Mutex
	heap     pending
	nextSeq  uint64
}

// New creates an empty wheel.
func New() *Wheel {
	return &Wheel{}
}

// Set schedules a one-shot deadline for process, returning the sequence
// number assigned to this entry (used to cancel it before it fires).
func (w *Wheel) Set(deadline uint64, process uint64, userData uint64) uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	seq := w.nextSeq
	w.nextSeq++
	heap.Push(&w.heap, Entry{Deadline: deadline, Process: process, UserData: userData, Sequence: seq})
	return seq
}

// Cancel removes a pending entry by sequence number, reporting whether it
// was still pending (it may have already fired).
func (w *Wheel) Cancel(seq uint64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, e := range w.heap {
		if e.Sequence == seq {
			heap.Remove(&w.heap, i)
			return true
		}
	}
	return false
}

// Fire pops every entry with Deadline <= now, in deadline order, ties
// broken by insertion order.
func (w *Wheel) Fire(now uint64) []Entry {
	w.mu.Lock()
	defer w.mu.Unlock()
	var due []Entry
	for w.heap.Len() > 0 && w.heap[0].Deadline <= now {
		due = append(due, heap.Pop(&w.heap).(Entry))
	}
	return due
}

// Len reports how many deadlines are still pending.
func (w *Wheel) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.heap.Len()
}

// NextDeadline reports the earliest pending deadline, and whether any
// deadline is pending at all — used by a host loop deciding how long it may
// safely idle before the next Weave must run.
func (w *Wheel) NextDeadline() (uint64, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.heap.Len() == 0 {
		return 0, false
	}
	return w.heap[0].Deadline, true
}
