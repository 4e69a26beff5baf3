package weave

import (
	"github.com/filament-run/filament/internal/capability"
	"github.com/filament-run/filament/internal/channel"
	"github.com/filament-run/filament/internal/codec"
)

// encodeEnvelope flattens a decoded Value into the 32-byte FilamentValue
// envelope followed by its arena bytes, the wire form staging stores one
// static topic's tentative output as.
func encodeEnvelope(v codec.Value) ([]byte, error) {
	fv, arena, err := codec.EncodeValue(v)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 0, 32+len(arena))
	buf = append(buf, envelopeBytes(fv)...)
	buf = append(buf, arena...)
	return buf, nil
}

// decodeEnvelope is encodeEnvelope's inverse.
func decodeEnvelope(raw []byte) (codec.Value, error) {
	if len(raw) < 32 {
		return codec.Value{}, codec.ErrInsufficientData
	}
	fv, err := envelopeFromBytes(raw[:32])
	if err != nil {
		return codec.Value{}, err
	}
	return codec.DecodeValue(fv, raw[32:], 0)
}

func envelopeBytes(fv codec.FilamentValue) []byte {
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

func envelopeFromBytes(buf []byte) (codec.FilamentValue, error) {
	if len(buf) < 32 {
		return codec.FilamentValue{}, codec.ErrInsufficientData
	}
	fv := codec.FilamentValue{
		Tag:   codec.ValueTag(uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24),
		Flags: uint32(buf[4]) | uint32(buf[5])<<8 | uint32(buf[6])<<16 | uint32(buf[7])<<24,
	}
	copy(fv.Payload[:], buf[8:32])
	return fv, nil
}

// ReadStatic decodes the current contents of a staging topic back into a
// Value — the host-side half of a module reading one of its static inputs
// or its own prior output within the same Weave.
func (c *Coordinator) ReadStatic(topic string) (codec.Value, error) {
	n := c.Staging.Len(topic)
	if n == 0 {
		return codec.Value{}, nil
	}
	buf := make([]byte, n)
	if _, err := c.Staging.Read(topic, 0, buf); err != nil {
		return codec.Value{}, err
	}
	return decodeEnvelope(buf)
}

// injectInbound writes an inbound (kernel-originated) event into staging
// without any outbound capability check — timers, fs/http replies, and
// channel reads are trusted kernel deposits, not module emissions.
func (c *Coordinator) injectInbound(topic string, v codec.Value) {
	raw, err := encodeEnvelope(v)
	if err != nil {
		return
	}
	_ = c.Staging.Write(topic, raw)
}

// EmitStatic is the host-side half of a module's outbound static-topic
// write: authorize the topic, then buffer the encoded value into staging.
// It becomes a committed timeline event only if the whole Weave commits.
func (c *Coordinator) EmitStatic(topic string, v codec.Value) error {
	if topic == capability.TopicCorePanic {
		c.faulted = true
	}
	if err := c.Router.AuthorizeOutbound(topic); err != nil {
		return err
	}
	raw, err := encodeEnvelope(v)
	if err != nil {
		return err
	}
	if err := c.Staging.Write(topic, raw); err != nil {
		return err
	}
	c.emitted = append(c.emitted, emittedEvent{topic: topic, value: v})
	return nil
}

// ChannelWrite authorizes and buffers a publish to a dynamic channel; the
// write only reaches the channel's ring buffer at commit, so a discarded
// Weave leaves channel contents unchanged. Writes are still non-blocking
// from the module's point of view: capacity is checked synchronously here,
// against the channel's current occupancy plus every write already queued
// for it this Weave, and a write that would overflow the buffer returns
// ErrIO immediately rather than surfacing the failure later at commit.
func (c *Coordinator) ChannelWrite(uri string, data []byte) error {
	if err := c.Router.AuthorizeOutbound(uri); err != nil {
		return err
	}
	ch, ok := c.Channels.Lookup(uri)
	if !ok {
		return channel.ErrNotFound
	}
	if len(data) > ch.MsgSize {
		return channel.ErrInvalid
	}
	queued := 0
	for _, w := range c.pendingChannelWrites {
		if w.ch == ch {
			queued++
		}
	}
	if ch.Len()+queued+1 > ch.Capacity {
		return channel.ErrIO
	}
	c.pendingChannelWrites = append(c.pendingChannelWrites, pendingChannelWrite{ch: ch, data: data})
	return nil
}
