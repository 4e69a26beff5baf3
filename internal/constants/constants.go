// Package constants holds kernel-wide fixed values: the magic number,
// recursion/URI limits, and default sizing for the staging area, channels,
// and queues.
package constants

import "time"

// Wire-fixed constants. These values are part of the wire contract and must
// never change without a protocol version bump.
const (
	// Magic is the module ABI magic number checked in get_info.
	Magic uint32 = 0x9D2F8A41

	// MaxRecursion bounds nested map/list/bytes depth in a Value.
	MaxRecursion = 64

	// MaxURILen bounds topic and channel URI length.
	MaxURILen = 2048

	// MinBlobBytes is the minimum size the blob allocator will ever hand out.
	MinBlobBytes = 128

	// MinBusBytes is the minimum staging area / channel byte budget.
	MinBusBytes = 65536
)

// Default configuration constants for process and channel creation.
const (
	// DefaultQueueDepth is the default number of module instances processed
	// per pipeline stage before a scheduler yields to other processes.
	DefaultQueueDepth = 128

	// DefaultStagingBytes is the default staging area capacity (must be >= MinBusBytes).
	DefaultStagingBytes = MinBusBytes

	// DefaultChannelCapacity is the default channel ring slot count.
	DefaultChannelCapacity = 256

	// DefaultMsgSize is the default per-slot byte size for a dynamic channel.
	DefaultMsgSize = 4096

	// AutoAssignProcessID indicates the kernel should auto-assign a process id.
	AutoAssignProcessID = -1
)

// Timing constants for the supervisor and timer wheel.
//
// Unlike wall-clock I/O drivers, Filament has no udev-style asynchronous device
// node to wait on: these are cooperative-scheduling cadences, not kernel-race
// workarounds. They exist so a host loop polling Tick() doesn't busy-spin.
const (
	// SupervisorDrainPoll is a poll interval for waiting on in-flight Weaves
	// before reclaiming a process's resources. supervisor.Terminate does not
	// poll or wait: it reclaims immediately.
	SupervisorDrainPoll = 1 * time.Millisecond

	// SupervisorDrainTimeout bounds a graceful drain wait before reclaiming
	// anyway. supervisor.Terminate does not consult it.
	SupervisorDrainTimeout = 2 * time.Second
)

// Memory allocation constants.
const (
	// BlobShardBytes is a nominal blob pool shard size. The blob pool selects
	// shards by handle and does not read this value.
	BlobShardBytes = 64 * 1024
)
