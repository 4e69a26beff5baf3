// Package codec implements the Filament ABI: the fixed-layout structures
// exchanged across the module boundary and the tagged-union Value codec
// used to move data between staging, channels, and the timeline.
//
// All structures are little-endian and 8-byte aligned. Reserved pad fields must be
// zero on emission; readers ignore them on the way in.
package codec

import "unsafe"

// ValueTag discriminates the FilamentValue union.
type ValueTag uint32

const (
	TagUnit ValueTag = iota
	TagBool
	TagI64
	TagU64
	TagF64
	TagString
	TagBlobRef
	TagMap
	TagList
	TagBytes
)

// FilamentString is a 16-byte view into arena bytes: an offset (relocatable
// pointer) and a length, padded to 8-byte alignment.
type FilamentString struct {
	Ptr uint64 // arena offset or linear-memory offset, post-relocation
	Len uint32
	Pad uint32
}

var _ [16]byte = [unsafe.Sizeof(FilamentString{})]byte{}

// FilamentBlob identifies a blob reference carried inside a Value.
type FilamentBlob struct {
	Handle uint64
	Size   uint64
	Perm   uint32 // R/W/X bits, see blob.Perm
	Flags  uint32
}

var _ [24]byte = [unsafe.Sizeof(FilamentBlob{})]byte{}

// FilamentArray is a 16-byte view over a contiguous run of elements (FilamentValue
// for a list, FilamentPair for a map), same shape as FilamentString.
type FilamentArray struct {
	Ptr   uint64
	Count uint32
	Pad   uint32
}

var _ [16]byte = [unsafe.Sizeof(FilamentArray{})]byte{}

// FilamentPair is one map entry: a string key and a generic value, 48 bytes.
type FilamentPair struct {
	Key   FilamentString
	Value FilamentValue
}

var _ [48]byte = [unsafe.Sizeof(FilamentPair{})]byte{}

// FilamentValue is the 32-byte tagged-union envelope: a 4-byte tag, 4-byte
// flags, and 24 bytes of discriminated payload (a union big enough for the
// largest scalar view - a FilamentString/FilamentArray/FilamentBlob - while
// the whole envelope stays fixed at 32 bytes).
type FilamentValue struct {
	Tag     ValueTag
	Flags   uint32
	Payload [24]byte
}

var _ [32]byte = [unsafe.Sizeof(FilamentValue{})]byte{}

// FilamentTraceContext is a 32-byte W3C-shaped trace context: 16-byte trace id,
// 8-byte parent span id, 4-byte flags, 4 bytes reserved.
type FilamentTraceContext struct {
	TraceID [16]byte
	SpanID  [8]byte
	Flags   uint32
	Pad     uint32
}

var _ [32]byte = [unsafe.Sizeof(FilamentTraceContext{})]byte{}

// FilamentEventHeader is the fixed 128-byte event header. Topic bytes,
// 8-byte alignment padding, then payload bytes follow it in the event buffer.
type FilamentEventHeader struct {
	SeqID       uint64 // monotonic within a timeline once committed
	WallTimeNs  int64  // informational only, never constrained
	VirtTime    uint64
	SchemaHash  uint64
	SourceAgent uint64
	Trace       FilamentTraceContext
	TopicLen    uint32
	DataLen     uint32
	Encoding    uint32
	Flags       uint32
	Tick        uint64 // assigned at commit; 0 until then
	Reserved    [32]byte
}

var _ [128]byte = [unsafe.Sizeof(FilamentEventHeader{})]byte{}

// FilamentResourceLimits is the 24-byte resource budget attached to a process.
type FilamentResourceLimits struct {
	MemMax       uint64
	ComputeMax   uint64
	TimeBudgetNs uint64
}

var _ [24]byte = [unsafe.Sizeof(FilamentResourceLimits{})]byte{}

// FilamentHostInfo is the 48-byte host identity block passed to get_info.
type FilamentHostInfo struct {
	KernelVersion uint32
	Pad           uint32
	HostPID       uint64
	HostCapsLen   uint32
	Pad2          uint32
	BootVirtTime  uint64
	Reserved      [16]byte
}

var _ [48]byte = [unsafe.Sizeof(FilamentHostInfo{})]byte{}

// FilamentModuleInfo is the 56-byte struct a module's get_info returns.
type FilamentModuleInfo struct {
	Magic          uint32
	AbiVersion     uint32
	MemRequirement uint64
	ContextTag     uint32 // 0=Logic 1=System 2=Managed
	PoolingFlag    uint32 // 0=Stateful 1=Stateless
	NameLen        uint32
	Pad            uint32
	DigestLow      uint64
	DigestHigh     uint64
	Reserved       [8]byte
}

var _ [56]byte = [unsafe.Sizeof(FilamentModuleInfo{})]byte{}

// FilamentWeaveArgs is the 128-byte argument block delivered to weave.
type FilamentWeaveArgs struct {
	Ctx           uint64
	TimeBudgetNs  uint64
	ComputeUsed   uint64
	ComputeMax    uint64
	MemCap        uint64
	RandSeed      uint64
	VirtTime      uint64
	DeltaSinceNs  uint64
	TickCounter   uint64
	Trace         FilamentTraceContext
	WakeFlags     uint32
	Pad           uint32
	UserData      uint64
	Reserved      [8]byte
}

var _ [128]byte = [unsafe.Sizeof(FilamentWeaveArgs{})]byte{}

// FilamentChannelDefinition is the 40-byte manifest-level description of a
// dynamic channel to be created at spawn.
type FilamentChannelDefinition struct {
	URIPtr     uint64
	URILen     uint32
	Pad        uint32
	Capacity   uint32
	MsgSize    uint32
	SchemaHash uint64
	RootType   uint32
	Direction  uint32 // 0=in 1=out 2=bidi
}

var _ [40]byte = [unsafe.Sizeof(FilamentChannelDefinition{})]byte{}

// FilamentModuleDefinition is the 64-byte manifest-level description of one
// pipeline stage within FilamentProcessSpawnArgs.
type FilamentModuleDefinition struct {
	AliasPtr       uint64
	AliasLen       uint32
	Pad            uint32
	DigestLow      uint64
	DigestHigh     uint64
	MemRequirement uint64
	ContextTag     uint32
	PoolingFlag    uint32
	EngineKind     uint32 // 0=wasm 1=native 2=stub
	Pad2           uint32
	Reserved       uint64
}

var _ [64]byte = [unsafe.Sizeof(FilamentModuleDefinition{})]byte{}

// FilamentProcessSpawnArgs is the 64-byte manifest root structure: any
// textual manifest format must map losslessly onto this.
type FilamentProcessSpawnArgs struct {
	ParentID      uint64
	RequestedID   int64 // -1 = auto-assign
	MemMax        uint64
	ComputeMax    uint64
	TimeBudgetNs  uint64
	CapsPtr       uint64
	ModuleDefsPtr uint64
	CapsLen       uint32
	Policy        uint32 // 0=SHARED 1=DEDICATED
}

var _ [64]byte = [unsafe.Sizeof(FilamentProcessSpawnArgs{})]byte{}
