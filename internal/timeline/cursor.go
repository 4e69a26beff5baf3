package timeline

import (
	"sync"

	"github.com/filament-run/filament/internal/codec"
)

// Cursor streams events from a timeline in fixed-size batches, the backing
// primitive for tl_open/tl_next/tl_close. Next never writes a partial
// event: it returns as many whole events as fit in the destination buffer,
// ErrOOM if zero fit, and a zero byte count once the topic filter is
// exhausted.
type Cursor struct {
	mu       sync.Mutex
	tl       *Timeline
	topic    string // "" matches every topic
	nextSeq  uint64
	closed   bool
}

// Open creates a cursor over tl starting at fromSeq (exclusive), optionally
// restricted to topic ("" for every topic).
func (t *Timeline) Open(topic string, fromSeq uint64) *Cursor {
	return &Cursor{tl: t, topic: topic, nextSeq: fromSeq + 1}
}

// Close releases the cursor. Further Next calls return ErrNotFound.
func (c *Cursor) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

// encodeEvent serializes one event for the cursor wire format: a 128-byte
// header, the topic bytes, zero padding to an 8-byte boundary, the 32-byte
// Value envelope, then the arena bytes. base is the event's offset in the
// destination buffer; arena offsets are relocated to where the arena lands
// there, on a copy so the stored event is left unchanged.
func encodeEvent(e Event, base uint64) ([]byte, error) {
	pad := (8 - len(e.Topic)%8) % 8
	arena := append([]byte(nil), e.Arena...)
	arenaBase := base + uint64(128+len(e.Topic)+pad+32)
	relocated, err := codec.RelocateArena(e.Value, arena, arenaBase, 0)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, 128+len(e.Topic)+pad+32+len(arena))
	out = append(out, codec.MarshalEventHeader(e.Header)...)
	out = append(out, e.Topic...)
	out = append(out, make([]byte, pad)...)
	valueBuf := make([]byte, 32)
	copy(valueBuf, marshalValueEnvelope(relocated))
	out = append(out, valueBuf...)
	out = append(out, arena...)
	return out, nil
}

func marshalValueEnvelope(fv codec.FilamentValue) []byte {
	buf := make([]byte, 32)
	buf[0] = byte(fv.Tag)
	buf[1] = byte(fv.Tag >> 8)
	buf[2] = byte(fv.Tag >> 16)
	buf[3] = byte(fv.Tag >> 24)
	buf[4] = byte(fv.Flags)
	buf[5] = byte(fv.Flags >> 8)
	buf[6] = byte(fv.Flags >> 16)
	buf[7] = byte(fv.Flags >> 24)
	copy(buf[8:32], fv.Payload[:])
	return buf
}

// Next fills dst with as many complete, pruning/tombstone-respecting events
// as fit, advancing the cursor past them. It returns (0, nil) at EOF and
// (0, ErrOOM) if dst cannot hold even the next single event.
func (c *Cursor) Next(dst []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, ErrNotFound
	}

	c.tl.mu.Lock()
	events := c.tl.events
	byTopic := c.tl.byTopic
	c.tl.mu.Unlock()

	written := 0
	for {
		idx, ok := c.nextIndex(events, byTopic)
		if !ok {
			break
		}
		e := events[idx]
		if !c.tl.visible(e.Header.SeqID) {
			c.nextSeq = e.Header.SeqID + 1
			continue
		}
		buf, err := encodeEvent(e, uint64(written))
		if err != nil {
			return written, err
		}
		if written+len(buf) > len(dst) {
			if written == 0 {
				return 0, ErrOOM
			}
			break
		}
		copy(dst[written:], buf)
		written += len(buf)
		c.nextSeq = e.Header.SeqID + 1
	}
	return written, nil
}

// nextIndex finds the index of the next event at or after c.nextSeq matching
// the cursor's topic filter, scanning the flat event log: indices are never
// compacted, so this is a linear scan from the last position rather than a
// skip-list, trading lookup speed for a simpler, smaller log structure.
func (c *Cursor) nextIndex(events []Event, byTopic map[string][]int) (int, bool) {
	if c.topic == "" {
		for i := range events {
			if events[i].Header.SeqID >= c.nextSeq {
				return i, true
			}
		}
		return 0, false
	}
	for _, idx := range byTopic[c.topic] {
		if events[idx].Header.SeqID >= c.nextSeq {
			return idx, true
		}
	}
	return 0, false
}
