// Package ring provides a batched transport for deferred host-side
// operations (capability-mediated fs/net calls), and the fixed-capacity slot
// buffer dynamic channels are built on.
//
// The shape mirrors a batched, non-blocking io_uring submission loop: ops are
// prepared without blocking, then flushed with a single call, then their
// completions are collected. A full submission queue is reported immediately
// rather than blocking the caller.
package ring

import "errors"

// ErrRingFull is returned when a Ring's submission queue (or a SlotBuffer)
// has no free slot.
var ErrRingFull = errors.New("ring: submission queue full")

// OpKind distinguishes the deferred host operations a Ring can carry.
type OpKind uint32

const (
	OpFSRead OpKind = iota
	OpFSWrite
	OpHTTPRequest
)

// Op is one deferred host-side operation, keyed by the req_id a capability
// dispatch assigned it so the caller can correlate completions.
type Op struct {
	Kind     OpKind
	ReqID    [16]byte // google/uuid bytes
	Target   string   // path or URL
	Payload  []byte
	UserData uint64
}

// Result is the outcome of one completed Op.
type Result interface {
	UserData() uint64
	ReqID() [16]byte
	Value() int32 // 0 success, negative mirrors a filament.Code
	Data() []byte
	Error() error
}

// Ring is the transport contract: prepare ops without blocking, flush them
// with a single syscall-equivalent, then collect completions.
type Ring interface {
	Close() error

	// Prepare stages op for submission. Returns ErrRingFull if there is no
	// free submission slot; the caller should retry on a later tick.
	Prepare(op Op) error

	// Flush submits every prepared op in one batch and returns how many were
	// submitted.
	Flush() (uint32, error)

	// Poll returns completions available without blocking.
	Poll() ([]Result, error)

	// NewBatch creates a batch for bulk preparation outside the main queue.
	NewBatch() Batch
}

// Batch lets a caller stage several ops and submit them together.
type Batch interface {
	Add(op Op) error
	Submit() ([]Result, error)
	Len() int
}

// Config configures a Ring implementation.
type Config struct {
	Entries uint32
}
