//go:build !giouring

package ring

import "github.com/filament-run/filament/internal/logging"

// NewRing creates the default Ring implementation: a portable, purely
// in-process stand-in that completes every queued op at Flush time, without
// performing its I/O, rather than through a real io_uring submission queue.
// It exists so the kernel
// runs on hosts without io_uring (including non-Linux development hosts);
// build with the giouring tag for the real backend.
func NewRing(cfg Config) (Ring, error) {
	if cfg.Entries == 0 {
		cfg.Entries = 128
	}
	logging.Default().Debug("creating stub ring", "entries", cfg.Entries)
	return &stubRing{entries: cfg.Entries}, nil
}

type stubRing struct {
	entries uint32
	pending []Op
	done    []Result
}

func (r *stubRing) Close() error { return nil }

func (r *stubRing) Prepare(op Op) error {
	if uint32(len(r.pending)) >= r.entries {
		return ErrRingFull
	}
	r.pending = append(r.pending, op)
	return nil
}

func (r *stubRing) Flush() (uint32, error) {
	n := uint32(len(r.pending))
	for _, op := range r.pending {
		r.done = append(r.done, executeInline(op))
	}
	r.pending = r.pending[:0]
	return n, nil
}

func (r *stubRing) Poll() ([]Result, error) {
	out := r.done
	r.done = nil
	return out, nil
}

func (r *stubRing) NewBatch() Batch {
	return &stubBatch{ring: r}
}

type stubBatch struct {
	ring *stubRing
	ops  []Op
}

func (b *stubBatch) Add(op Op) error {
	b.ops = append(b.ops, op)
	return nil
}

func (b *stubBatch) Submit() ([]Result, error) {
	results := make([]Result, 0, len(b.ops))
	for _, op := range b.ops {
		results = append(results, executeInline(op))
	}
	b.ops = b.ops[:0]
	return results, nil
}

func (b *stubBatch) Len() int { return len(b.ops) }

// executeInline completes op synchronously without performing it: the result
// carries op's UserData and ReqID, a zero Value, and no data. The stub
// backend has no real kernel queue to defer to, so every op completes before
// Flush returns.
func executeInline(op Op) Result {
	return &inlineResult{userData: op.UserData, reqID: op.ReqID}
}

type inlineResult struct {
	userData uint64
	reqID    [16]byte
	value    int32
	data     []byte
	err      error
}

func (r *inlineResult) UserData() uint64 { return r.userData }
func (r *inlineResult) ReqID() [16]byte  { return r.reqID }
func (r *inlineResult) Value() int32     { return r.value }
func (r *inlineResult) Data() []byte     { return r.data }
func (r *inlineResult) Error() error     { return r.err }
