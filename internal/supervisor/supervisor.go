// Package supervisor implements the process supervision tree: spawn
// validation, cascading termination, and the monotonic process-id and
// mem_max-quota bookkeeping that ties a child's budget to its parent's.
//
// The lifecycle shape is grounded on the control-plane command sequence in a
// ublk controller: AddDevice validates and stages a device descriptor before
// SetParams/StartDevice ever touch the data plane, and StopDevice/
// DeleteDevice unwind it; Spawn/CommitSpawn/Terminate here play the same
// roles, generalized to a tree of processes instead of a flat device table.
// The transactional commit/discard split on a staged spawn mirrors the
// blob table's journal: a spawn only becomes durable when the Weave that
// issued it commits.
package supervisor

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"sync"

	"github.com/filament-run/filament/internal/capability"
	"github.com/filament-run/filament/internal/channel"
	"github.com/filament-run/filament/internal/codec"
)

var (
	ErrDigestMismatch       = errors.New("supervisor: module digest does not match loaded artifact")
	ErrCapabilityEscalation = errors.New("supervisor: child capabilities exceed parent's grant")
	ErrSchemaMismatch       = errors.New("supervisor: channel schema mismatch between producer and consumer")
	ErrQuotaExceeded        = errors.New("supervisor: mem_max exceeds parent's remaining budget")
	ErrNotFound             = errors.New("supervisor: unknown process id")
	ErrIDInUse              = errors.New("supervisor: requested process id already in use")
	ErrPinnedAffinity       = errors.New("supervisor: pinned capability granted to a stateless module")
)

// Policy mirrors FilamentProcessSpawnArgs.Policy.
type Policy uint32

const (
	Shared    Policy = iota // participates in the global barrier
	Dedicated               // runs independently, never blocks the global cycle
)

// RootID is the id of the implicit root process every top-level Spawn call
// is a child of; it carries no quota limit of its own.
const RootID uint64 = 0

// ModuleArtifact pairs a pipeline stage's declared digest with the code
// bytes actually loaded for it, the check Spawn performs per stage before
// admitting a process. Digest comparison mirrors the low/high 64-bit split of
// the engine package verifies a wasm module's digest against. Stateless
// marks a stage whose instances are pooled and handed out across owners
// rather than dedicated to this process alone.
type ModuleArtifact struct {
	DigestLow  uint64
	DigestHigh uint64
	Code       []byte
	Stateless  bool
}

func (m ModuleArtifact) verify() error {
	sum := sha256.Sum256(m.Code)
	low := binary.LittleEndian.Uint64(sum[0:8])
	high := binary.LittleEndian.Uint64(sum[8:16])
	if low != m.DigestLow || high != m.DigestHigh {
		return ErrDigestMismatch
	}
	return nil
}

// ChannelBinding is one channel URI a spawn request wires the child to. If
// the URI already names a live channel, Spawn checks its schema against the
// binding rather than assuming the child is the first connector.
type ChannelBinding struct {
	URI        string
	SchemaHash uint64
	RootType   uint32
}

// SpawnRequest carries everything Spawn needs to validate and admit a child.
type SpawnRequest struct {
	Modules         []ModuleArtifact
	Grants          []capability.Grant
	AllowEscalation bool // host-granted exception to the capability-subset check
	Channels        []ChannelBinding
	MemMax          uint64
	ComputeMax      uint64
	TimeBudgetNs    uint64
	Policy          Policy
	RequestedID     int64 // -1 = auto-assign (mirrors FilamentProcessSpawnArgs.RequestedID)
}

// Process is the supervisor's view of one tree node: lifecycle and quota
// bookkeeping only. The running pipeline itself — the weave.Coordinator,
// staging area, and timeline — is owned by the process package, which reads
// Grants/MemMax/ComputeMax/TimeBudgetNs from here to build one.
type Process struct {
	ID           uint64
	ParentID     uint64
	Policy       Policy
	Grants       *capability.Set
	MemMax       uint64
	MemAvailable uint64 // quota still uncommitted to this process's own children
	ComputeMax   uint64
	TimeBudgetNs uint64

	channels  []string
	children  []uint64
	suspended bool
	committed bool
}

func (p *Process) Suspended() bool    { return p.suspended }
func (p *Process) Committed() bool    { return p.committed }
func (p *Process) Children() []uint64 { return append([]uint64(nil), p.children...) }

type pendingSpawn struct {
	parentID   uint64
	memCharged uint64
}

// Supervisor owns the whole process tree and the channel registry every
// process's owned channels live in, for cascading destroy on termination.
type Supervisor struct {
	mu       sync.Mutex
	channels *channel.Registry
	procs    map[uint64]*Process
	pending  map[uint64]*pendingSpawn
	nextID   uint64
}

// New creates a Supervisor with a single root process (id 0, unlimited
// quota, no capabilities) that every top-level Spawn call is a child of.
func New(channels *channel.Registry) *Supervisor {
	s := &Supervisor{
		channels: channels,
		procs:    make(map[uint64]*Process),
		pending:  make(map[uint64]*pendingSpawn),
	}
	s.procs[RootID] = &Process{
		ID:           RootID,
		ParentID:     RootID,
		Grants:       capability.NewSet(nil),
		MemAvailable: ^uint64(0),
		committed:    true,
	}
	return s
}

// Lookup returns the process registered under id, if any.
func (s *Supervisor) Lookup(id uint64) (*Process, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.procs[id]
	return p, ok
}

// Spawn validates a child process against its parent and, if every check
// passes, stages it in the tree with a freshly assigned (or caller-requested)
// process id. The new process is provisional: it becomes eligible for its
// own init/first weave only once CommitSpawn is called for its id by the
// coordinator that owns the spawning Weave.
func (s *Supervisor) Spawn(parentID uint64, req SpawnRequest) (*Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	parent, ok := s.procs[parentID]
	if !ok {
		return nil, ErrNotFound
	}

	for _, m := range req.Modules {
		if err := m.verify(); err != nil {
			return nil, err
		}
		if m.Stateless {
			for _, g := range req.Grants {
				if err := capability.CheckAffinity(g, true); err != nil {
					return nil, ErrPinnedAffinity
				}
			}
		}
	}

	if !req.AllowEscalation && !parent.Grants.Subset(req.Grants) {
		return nil, ErrCapabilityEscalation
	}

	if err := s.checkChannelSchemasLocked(req.Channels); err != nil {
		return nil, err
	}

	if req.MemMax > parent.MemAvailable {
		return nil, ErrQuotaExceeded
	}

	pid, err := s.assignIDLocked(req.RequestedID)
	if err != nil {
		return nil, err
	}

	proc := &Process{
		ID:           pid,
		ParentID:     parentID,
		Policy:       req.Policy,
		Grants:       capability.NewSet(req.Grants),
		MemMax:       req.MemMax,
		MemAvailable: req.MemMax,
		ComputeMax:   req.ComputeMax,
		TimeBudgetNs: req.TimeBudgetNs,
	}

	parent.MemAvailable -= req.MemMax
	parent.children = append(parent.children, pid)
	s.procs[pid] = proc
	s.pending[pid] = &pendingSpawn{parentID: parentID, memCharged: req.MemMax}
	return proc, nil
}

func (s *Supervisor) assignIDLocked(requested int64) (uint64, error) {
	if requested < 0 {
		s.nextID++
		return s.nextID, nil
	}
	pid := uint64(requested)
	if _, exists := s.procs[pid]; exists {
		return 0, ErrIDInUse
	}
	if pid > s.nextID {
		s.nextID = pid
	}
	return pid, nil
}

func (s *Supervisor) checkChannelSchemasLocked(bindings []ChannelBinding) error {
	for _, b := range bindings {
		ch, ok := s.channels.Lookup(b.URI)
		if !ok {
			continue // not yet created; this spawn's owner will be its producer
		}
		if ch.SchemaHash != b.SchemaHash || ch.RootType != b.RootType {
			return ErrSchemaMismatch
		}
	}
	return nil
}

// RegisterChannel records uri as owned by owner, so Terminate destroys it
// when owner (or an ancestor) is terminated.
func (s *Supervisor) RegisterChannel(owner uint64, uri string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.procs[owner]; ok {
		p.channels = append(p.channels, uri)
	}
}

// CommitSpawn finalizes a process staged by Spawn during the current Weave:
// it is no longer provisional and is eligible to run its own init and first
// weave starting next cycle.
func (s *Supervisor) CommitSpawn(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, staged := s.pending[id]; !staged {
		return
	}
	if p, ok := s.procs[id]; ok {
		p.committed = true
	}
	delete(s.pending, id)
}

// DiscardSpawn reverses a spawn staged but never committed: termination (or
// any other abort) within the same Weave as the spawn simply discards the
// pending record, crediting the tentatively deducted mem_max back to the
// parent and removing the child before its init or first weave ever runs.
func (s *Supervisor) DiscardSpawn(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pending, staged := s.pending[id]
	if !staged {
		return
	}
	if parent, ok := s.procs[pending.parentID]; ok {
		parent.MemAvailable += pending.memCharged
		parent.children = removeID(parent.children, id)
	}
	delete(s.procs, id)
	delete(s.pending, id)
}

// Terminate suspends id and cascades to every descendant in post-order:
// each node's owned channels are destroyed — waking blocked readers with
// ErrNotFound; the pending messages Destroy drains are dropped without
// releasing any blob refs they carry — before its own quota is credited back
// to its parent and it is dropped from the tree.
func (s *Supervisor) Terminate(id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.procs[id]; !ok {
		return ErrNotFound
	}
	s.terminateSubtreeLocked(id)
	return nil
}

func (s *Supervisor) terminateSubtreeLocked(id uint64) {
	proc, ok := s.procs[id]
	if !ok {
		return
	}
	for _, childID := range append([]uint64(nil), proc.children...) {
		s.terminateSubtreeLocked(childID)
	}

	proc.suspended = true
	for _, uri := range proc.channels {
		s.channels.Destroy(uri)
	}

	if proc.ID != RootID {
		if parent, ok := s.procs[proc.ParentID]; ok {
			parent.MemAvailable += proc.MemMax
			parent.children = removeID(parent.children, proc.ID)
		}
	}

	delete(s.procs, id)
	delete(s.pending, id)
}

func removeID(ids []uint64, target uint64) []uint64 {
	out := ids[:0]
	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}

// ModuleArtifactFromDefinition builds a ModuleArtifact from a decoded
// manifest module definition and the code bytes it refers to, the form
// callers parsing a FilamentProcessSpawnArgs pipeline will most often have
// on hand.
func ModuleArtifactFromDefinition(d codec.FilamentModuleDefinition, code []byte) ModuleArtifact {
	return ModuleArtifact{
		DigestLow:  d.DigestLow,
		DigestHigh: d.DigestHigh,
		Code:       code,
		Stateless:  d.PoolingFlag == 1,
	}
}
