package blob

import (
	"errors"
	"sync"
	"sync/atomic"
)

var (
	ErrOOM      = errors.New("blob: out of memory")
	ErrNotFound = errors.New("blob: handle not found")
	ErrPerm     = errors.New("blob: permission exceeds reference grant")
	ErrInvalid  = errors.New("blob: invalid request")
)

// Entry is one blob's bookkeeping record: its backing bytes, owner, refcount,
// and retention flags.
type Entry struct {
	Handle    uint64
	Owner     uint64 // owning process id
	Data      []byte
	Flags     Flags
	Retained  bool // survives past the weave that created it
	Committed bool // has ever been committed; an uncommitted, unretained blob traps on access
	refcount  int64
}

func (e *Entry) RefCount() int64 { return atomic.LoadInt64(&e.refcount) }

// journalOp is one pending refcount delta, applied on commit or reverted on
// discard: retain/release is provisional within the current Weave.
type journalOp struct {
	handle uint64
	delta  int64
	retain bool
}

// Table is a process's blob bookkeeping table plus the shared backing Pool.
// retain/release within a weave are buffered in a journal and only take
// effect at Commit; Discard drops the journal untouched.
type Table struct {
	pool    *Pool
	owner   uint64
	mu      sync.Mutex
	entries map[uint64]*Entry
	nextID  uint64
	journal []journalOp
}

// NewTable creates an empty blob table for a process, backed by pool.
func NewTable(pool *Pool, owner uint64) *Table {
	return &Table{
		pool:    pool,
		owner:   owner,
		entries: make(map[uint64]*Entry),
		nextID:  1,
	}
}

// Alloc allocates size bytes with the given dma_flags, deducting from quota
// is the caller's responsibility (the process tracks mem_max). The new blob
// starts ephemeral (Retained=false, Committed=false, refcount=1) and traps if
// accessed in a later weave without having been retained or committed.
func (t *Table) Alloc(size int, flags Flags) (*Entry, error) {
	t.mu.Lock()
	handle := t.nextID
	t.nextID++
	t.mu.Unlock()

	data, err := t.pool.Acquire(handle, size, flags)
	if err != nil {
		return nil, ErrOOM
	}
	e := &Entry{Handle: handle, Owner: t.owner, Data: data, Flags: flags, refcount: 1}
	t.mu.Lock()
	t.entries[handle] = e
	t.mu.Unlock()
	return e, nil
}

// Map verifies perm is a subset of the entry's committed permission grant and
// returns its backing bytes directly (zero-copy) for native contexts.
func (t *Table) Map(handle uint64, perm Perm) ([]byte, error) {
	t.mu.Lock()
	e, ok := t.entries[handle]
	t.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	if !e.Committed && !e.Retained {
		return nil, ErrPerm
	}
	grant := Perm(e.Flags) // low bits of Flags double as the grant for blobs created with explicit perms
	if grant != 0 && perm&^grant != 0 {
		return nil, ErrPerm
	}
	return e.Data, nil
}

// Retain journals a provisional refcount increment and retention flag; it
// takes effect only if the current weave commits.
func (t *Table) Retain(handle uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[handle]; !ok {
		return ErrNotFound
	}
	t.journal = append(t.journal, journalOp{handle: handle, delta: 1, retain: true})
	return nil
}

// Release journals a provisional refcount decrement.
func (t *Table) Release(handle uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[handle]; !ok {
		return ErrNotFound
	}
	t.journal = append(t.journal, journalOp{handle: handle, delta: -1})
	return nil
}

// Commit applies every journaled refcount delta, drops entries that reach
// zero refcount and were never retained, and clears the journal.
func (t *Table) Commit() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, op := range t.journal {
		e, ok := t.entries[op.handle]
		if !ok {
			continue
		}
		atomic.AddInt64(&e.refcount, op.delta)
		if op.retain {
			e.Retained = true
		}
		e.Committed = true
	}
	t.journal = t.journal[:0]
	for h, e := range t.entries {
		if e.RefCount() <= 0 && !e.Retained {
			t.pool.Release(e.Data, e.Flags)
			delete(t.entries, h)
		}
	}
}

// Discard drops the journal without applying any of it: the blob table
// shows no net change.
func (t *Table) Discard() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.journal = t.journal[:0]
}

// DropEphemerals releases every entry that was never retained nor committed:
// scratch blobs a module allocated and never explicitly retained or
// referenced in a committed event. The coordinator calls this at the end of
// every Weave, after commit or discard, so such blobs don't linger against
// the process's memory quota. Retained or committed entries are left as they
// are.
func (t *Table) DropEphemerals() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for h, e := range t.entries {
		if !e.Retained && !e.Committed {
			t.pool.Release(e.Data, e.Flags)
			delete(t.entries, h)
		}
	}
}

// Get returns the entry for handle without checking permissions, used by the
// weave coordinator to inspect state (e.g. during cascading termination).
func (t *Table) Get(handle uint64) (*Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[handle]
	return e, ok
}

// Len reports the number of live entries, for tests and metrics.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
