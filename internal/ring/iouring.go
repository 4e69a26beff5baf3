//go:build giouring

package ring

import (
	"encoding/binary"
	"fmt"

	"github.com/pawelgaczynski/giouring"

	"github.com/filament-run/filament/internal/logging"
)

// ioRing is the real backend: ops are submitted as NOP SQEs tagged with
// user_data so a single io_uring_enter call can flush and fence any number
// of pending completions. The capability layer performs the actual fs/net
// syscall; this ring only provides a batched completion barrier for those
// ops.
type ioRing struct {
	ring    *giouring.Ring
	pending []Op
}

// NewRing creates the real io_uring-backed Ring.
func NewRing(cfg Config) (Ring, error) {
	if cfg.Entries == 0 {
		cfg.Entries = 128
	}
	logger := logging.Default()
	logger.Debug("creating io_uring ring", "entries", cfg.Entries)

	r, err := giouring.CreateRing(cfg.Entries)
	if err != nil {
		logger.Error("giouring.CreateRing failed", "error", err)
		return nil, fmt.Errorf("ring: create: %w", err)
	}
	return &ioRing{ring: r}, nil
}

func (r *ioRing) Close() error {
	r.ring.QueueExit()
	return nil
}

func (r *ioRing) Prepare(op Op) error {
	sqe := r.ring.GetSQE()
	if sqe == nil {
		return ErrRingFull
	}
	sqe.PrepareNop()
	sqe.UserData = op.UserData
	r.pending = append(r.pending, op)
	return nil
}

func (r *ioRing) Flush() (uint32, error) {
	n, err := r.ring.SubmitAndWait(uint32(len(r.pending)))
	if err != nil {
		return 0, fmt.Errorf("ring: submit: %w", err)
	}
	return n, nil
}

func (r *ioRing) Poll() ([]Result, error) {
	results := make([]Result, 0, len(r.pending))
	for range r.pending {
		cqe, err := r.ring.PeekCQE()
		if err != nil || cqe == nil {
			break
		}
		var reqID [16]byte
		binary.LittleEndian.PutUint64(reqID[0:8], cqe.UserData)
		results = append(results, &inlineResult{
			userData: cqe.UserData,
			reqID:    reqID,
			value:    cqe.Res,
		})
		r.ring.CQESeen(cqe)
	}
	r.pending = r.pending[:0]
	return results, nil
}

func (r *ioRing) NewBatch() Batch {
	return &ioBatch{ring: r}
}

type ioBatch struct {
	ring *ioRing
	ops  []Op
}

func (b *ioBatch) Add(op Op) error {
	if err := b.ring.Prepare(op); err != nil {
		return err
	}
	b.ops = append(b.ops, op)
	return nil
}

func (b *ioBatch) Submit() ([]Result, error) {
	if _, err := b.ring.Flush(); err != nil {
		return nil, err
	}
	results, err := b.ring.Poll()
	b.ops = b.ops[:0]
	return results, err
}

func (b *ioBatch) Len() int { return len(b.ops) }
