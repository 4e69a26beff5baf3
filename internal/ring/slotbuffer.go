package ring

import (
	"sync"
)

// SlotBuffer is a fixed-capacity MPMC ring of byte-slice messages, the
// building block for dynamic channels: writes are non-blocking and fail
// with ErrRingFull against a full buffer; reads are destructive,
// oldest-first.
type SlotBuffer struct {
	mu      sync.Mutex
	slots   [][]byte
	head    int // next slot to read
	count   int
	msgSize int
}

// NewSlotBuffer creates a ring with room for capacity messages, each bounded
// by msgSize bytes.
func NewSlotBuffer(capacity, msgSize int) *SlotBuffer {
	return &SlotBuffer{slots: make([][]byte, capacity), msgSize: msgSize}
}

// Put enqueues a copy of data at the tail. Returns ErrRingFull if the buffer
// has no free slot. Put does not check len(data) against msgSize; Channel.Write
// rejects oversize data with ErrInvalid before calling Put.
func (b *SlotBuffer) Put(data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.count == len(b.slots) {
		return ErrRingFull
	}
	tail := (b.head + b.count) % len(b.slots)
	cp := make([]byte, len(data))
	copy(cp, data)
	b.slots[tail] = cp
	b.count++
	return nil
}

// Get dequeues the oldest message. ok is false if the buffer is empty.
func (b *SlotBuffer) Get() (data []byte, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.count == 0 {
		return nil, false
	}
	data = b.slots[b.head]
	b.slots[b.head] = nil
	b.head = (b.head + 1) % len(b.slots)
	b.count--
	return data, true
}

// Drain empties the buffer, returning every pending message in order. Used
// at channel destruction to release blob refs held by pending events.
func (b *SlotBuffer) Drain() [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([][]byte, 0, b.count)
	for b.count > 0 {
		out = append(out, b.slots[b.head])
		b.slots[b.head] = nil
		b.head = (b.head + 1) % len(b.slots)
		b.count--
	}
	return out
}

func (b *SlotBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

func (b *SlotBuffer) Cap() int { return len(b.slots) }

func (b *SlotBuffer) MsgSize() int { return b.msgSize }
