// Package channel implements Filament's dynamic typed channels: URI-keyed,
// fixed-capacity MPMC ring buffers used for communication between processes
// and between a process and its own pipeline stages.
package channel

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/filament-run/filament/internal/ring"
)

var (
	ErrNotFound = errors.New("channel: destroyed or missing")
	ErrInvalid  = errors.New("channel: oversize write")
	ErrIO       = errors.New("channel: full")
)

// ReservedPrefix roots every auto-generated channel URI in its own reserved
// namespace, distinct from any URI a manifest could declare by hand.
const ReservedPrefix = "filament/channel/"

// Channel is one dynamic typed ring-buffer channel.
type Channel struct {
	URI        string
	Owner      uint64 // process id billed for its capacity
	SchemaHash uint64
	RootType   uint32
	Capacity   int
	MsgSize    int

	buf       *ring.SlotBuffer
	destroyed atomic.Bool
}

// Registry owns every live channel, keyed by URI, plus the auto-generated id
// counter used to mint new URIs.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]*Channel
	nextID   uint64
}

// NewRegistry creates an empty channel registry.
func NewRegistry() *Registry {
	return &Registry{channels: make(map[string]*Channel)}
}

// Create allocates a new channel of capacity*msgSize bytes, bills owner (the
// caller deducts from the process's memory quota), and returns it registered
// under a fresh auto-generated URI.
func (r *Registry) Create(owner uint64, capacity, msgSize int, schemaHash uint64, rootType uint32) *Channel {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	uri := fmt.Sprintf("%s%d", ReservedPrefix, r.nextID)
	ch := &Channel{
		URI:        uri,
		Owner:      owner,
		SchemaHash: schemaHash,
		RootType:   rootType,
		Capacity:   capacity,
		MsgSize:    msgSize,
		buf:        ring.NewSlotBuffer(capacity, msgSize),
	}
	r.channels[uri] = ch
	return ch
}

// Lookup returns the channel registered at uri, if any.
func (r *Registry) Lookup(uri string) (*Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.channels[uri]
	return ch, ok
}

// Destroy removes uri from the registry and drains its backing buffer,
// returning the pending messages so the caller can release any blob refs
// they carried. Subsequent Read/Write calls against the returned Channel
// observe ErrNotFound, the channel-destruction wake signal.
func (r *Registry) Destroy(uri string) ([][]byte, bool) {
	r.mu.Lock()
	ch, ok := r.channels[uri]
	if ok {
		delete(r.channels, uri)
	}
	r.mu.Unlock()
	if !ok {
		return nil, false
	}
	ch.destroyed.Store(true)
	return ch.buf.Drain(), true
}

// Write enqueues data non-blockingly. A full ring returns ErrIO immediately;
// data longer than MsgSize returns ErrInvalid without enqueuing anything.
// Blob references embedded in data have already had their refcount bumped by
// the caller (the codec/blob layers) before Write is called, so ownership
// transfers atomically with the enqueue.
func (c *Channel) Write(data []byte) error {
	if c.destroyed.Load() {
		return ErrNotFound
	}
	if len(data) > c.MsgSize {
		return ErrInvalid
	}
	if err := c.buf.Put(data); err != nil {
		return ErrIO
	}
	return nil
}

// Read dequeues the oldest pending message. It returns (nil, nil) if the
// channel is empty; if the channel has since been destroyed, Read returns
// ErrNotFound instead, the destruction wake-up for blocked readers.
func (c *Channel) Read() (data []byte, err error) {
	data, ok := c.buf.Get()
	if ok {
		return data, nil
	}
	if c.destroyed.Load() {
		return nil, ErrNotFound
	}
	return nil, nil
}

func (c *Channel) Len() int         { return c.buf.Len() }
func (c *Channel) Destroyed() bool  { return c.destroyed.Load() }
