package filament

import "github.com/filament-run/filament/internal/constants"

// Re-exported wire-fixed constants, so callers of the public API never need
// to import internal/constants directly.
const (
	Magic        = constants.Magic
	MaxRecursion = constants.MaxRecursion
	MaxURILen    = constants.MaxURILen
	MinBlobBytes = constants.MinBlobBytes
	MinBusBytes  = constants.MinBusBytes
)

// Re-exported defaults for process and channel creation.
const (
	DefaultQueueDepth      = constants.DefaultQueueDepth
	DefaultStagingBytes    = constants.DefaultStagingBytes
	DefaultChannelCapacity = constants.DefaultChannelCapacity
	DefaultMsgSize         = constants.DefaultMsgSize
	AutoAssignProcessID    = constants.AutoAssignProcessID
)

// Re-exported supervisor drain cadences and allocator granularity.
const (
	SupervisorDrainPoll    = constants.SupervisorDrainPoll
	SupervisorDrainTimeout = constants.SupervisorDrainTimeout
	BlobShardBytes         = constants.BlobShardBytes
)
