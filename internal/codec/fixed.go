package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/filament-run/filament/internal/constants"
)

// MarshalEventHeader writes h as 128 bytes, field by field, matching the
// fixed kernel-struct layout the rest of the ABI uses.
func MarshalEventHeader(h FilamentEventHeader) []byte {
	buf := make([]byte, 128)
	binary.LittleEndian.PutUint64(buf[0:8], h.SeqID)
	binary.LittleEndian.PutUint64(buf[8:16], uint64(h.WallTimeNs))
	binary.LittleEndian.PutUint64(buf[16:24], h.VirtTime)
	binary.LittleEndian.PutUint64(buf[24:32], h.SchemaHash)
	binary.LittleEndian.PutUint64(buf[32:40], h.SourceAgent)
	copy(buf[40:56], h.Trace.TraceID[:])
	copy(buf[56:64], h.Trace.SpanID[:])
	binary.LittleEndian.PutUint32(buf[64:68], h.Trace.Flags)
	binary.LittleEndian.PutUint32(buf[68:72], h.Trace.Pad)
	binary.LittleEndian.PutUint32(buf[72:76], h.TopicLen)
	binary.LittleEndian.PutUint32(buf[76:80], h.DataLen)
	binary.LittleEndian.PutUint32(buf[80:84], h.Encoding)
	binary.LittleEndian.PutUint32(buf[84:88], h.Flags)
	binary.LittleEndian.PutUint64(buf[88:96], h.Tick)
	copy(buf[96:128], h.Reserved[:])
	return buf
}

// UnmarshalEventHeader is the inverse of MarshalEventHeader.
func UnmarshalEventHeader(buf []byte) (FilamentEventHeader, error) {
	if len(buf) < 128 {
		return FilamentEventHeader{}, &MarshalError{Type: "FilamentEventHeader", Op: "decode", Err: ErrInsufficientData}
	}
	var h FilamentEventHeader
	h.SeqID = binary.LittleEndian.Uint64(buf[0:8])
	h.WallTimeNs = int64(binary.LittleEndian.Uint64(buf[8:16]))
	h.VirtTime = binary.LittleEndian.Uint64(buf[16:24])
	h.SchemaHash = binary.LittleEndian.Uint64(buf[24:32])
	h.SourceAgent = binary.LittleEndian.Uint64(buf[32:40])
	copy(h.Trace.TraceID[:], buf[40:56])
	copy(h.Trace.SpanID[:], buf[56:64])
	h.Trace.Flags = binary.LittleEndian.Uint32(buf[64:68])
	h.Trace.Pad = binary.LittleEndian.Uint32(buf[68:72])
	h.TopicLen = binary.LittleEndian.Uint32(buf[72:76])
	h.DataLen = binary.LittleEndian.Uint32(buf[76:80])
	h.Encoding = binary.LittleEndian.Uint32(buf[80:84])
	h.Flags = binary.LittleEndian.Uint32(buf[84:88])
	h.Tick = binary.LittleEndian.Uint64(buf[88:96])
	copy(h.Reserved[:], buf[96:128])
	return h, nil
}

// MarshalWeaveArgs writes a as 128 bytes.
func MarshalWeaveArgs(a FilamentWeaveArgs) []byte {
	buf := make([]byte, 128)
	binary.LittleEndian.PutUint64(buf[0:8], a.Ctx)
	binary.LittleEndian.PutUint64(buf[8:16], a.TimeBudgetNs)
	binary.LittleEndian.PutUint64(buf[16:24], a.ComputeUsed)
	binary.LittleEndian.PutUint64(buf[24:32], a.ComputeMax)
	binary.LittleEndian.PutUint64(buf[32:40], a.MemCap)
	binary.LittleEndian.PutUint64(buf[40:48], a.RandSeed)
	binary.LittleEndian.PutUint64(buf[48:56], a.VirtTime)
	binary.LittleEndian.PutUint64(buf[56:64], a.DeltaSinceNs)
	binary.LittleEndian.PutUint64(buf[64:72], a.TickCounter)
	copy(buf[72:88], a.Trace.TraceID[:])
	copy(buf[88:96], a.Trace.SpanID[:])
	binary.LittleEndian.PutUint32(buf[96:100], a.Trace.Flags)
	binary.LittleEndian.PutUint32(buf[100:104], a.Trace.Pad)
	binary.LittleEndian.PutUint32(buf[104:108], a.WakeFlags)
	binary.LittleEndian.PutUint32(buf[108:112], a.Pad)
	binary.LittleEndian.PutUint64(buf[112:120], a.UserData)
	copy(buf[120:128], a.Reserved[:])
	return buf
}

// UnmarshalWeaveArgs is the inverse of MarshalWeaveArgs.
func UnmarshalWeaveArgs(buf []byte) (FilamentWeaveArgs, error) {
	if len(buf) < 128 {
		return FilamentWeaveArgs{}, &MarshalError{Type: "FilamentWeaveArgs", Op: "decode", Err: ErrInsufficientData}
	}
	var a FilamentWeaveArgs
	a.Ctx = binary.LittleEndian.Uint64(buf[0:8])
	a.TimeBudgetNs = binary.LittleEndian.Uint64(buf[8:16])
	a.ComputeUsed = binary.LittleEndian.Uint64(buf[16:24])
	a.ComputeMax = binary.LittleEndian.Uint64(buf[24:32])
	a.MemCap = binary.LittleEndian.Uint64(buf[32:40])
	a.RandSeed = binary.LittleEndian.Uint64(buf[40:48])
	a.VirtTime = binary.LittleEndian.Uint64(buf[48:56])
	a.DeltaSinceNs = binary.LittleEndian.Uint64(buf[56:64])
	a.TickCounter = binary.LittleEndian.Uint64(buf[64:72])
	copy(a.Trace.TraceID[:], buf[72:88])
	copy(a.Trace.SpanID[:], buf[88:96])
	a.Trace.Flags = binary.LittleEndian.Uint32(buf[96:100])
	a.Trace.Pad = binary.LittleEndian.Uint32(buf[100:104])
	a.WakeFlags = binary.LittleEndian.Uint32(buf[104:108])
	a.Pad = binary.LittleEndian.Uint32(buf[108:112])
	a.UserData = binary.LittleEndian.Uint64(buf[112:120])
	copy(a.Reserved[:], buf[120:128])
	return a, nil
}

// MarshalResourceLimits writes l as 24 bytes.
func MarshalResourceLimits(l FilamentResourceLimits) []byte {
	buf := make([]byte, 24)
	binary.LittleEndian.PutUint64(buf[0:8], l.MemMax)
	binary.LittleEndian.PutUint64(buf[8:16], l.ComputeMax)
	binary.LittleEndian.PutUint64(buf[16:24], l.TimeBudgetNs)
	return buf
}

// UnmarshalResourceLimits is the inverse of MarshalResourceLimits.
func UnmarshalResourceLimits(buf []byte) (FilamentResourceLimits, error) {
	if len(buf) < 24 {
		return FilamentResourceLimits{}, &MarshalError{Type: "FilamentResourceLimits", Op: "decode", Err: ErrInsufficientData}
	}
	return FilamentResourceLimits{
		MemMax:       binary.LittleEndian.Uint64(buf[0:8]),
		ComputeMax:   binary.LittleEndian.Uint64(buf[8:16]),
		TimeBudgetNs: binary.LittleEndian.Uint64(buf[16:24]),
	}, nil
}

// MarshalModuleInfo writes m as 56 bytes.
func MarshalModuleInfo(m FilamentModuleInfo) []byte {
	buf := make([]byte, 56)
	binary.LittleEndian.PutUint32(buf[0:4], m.Magic)
	binary.LittleEndian.PutUint32(buf[4:8], m.AbiVersion)
	binary.LittleEndian.PutUint64(buf[8:16], m.MemRequirement)
	binary.LittleEndian.PutUint32(buf[16:20], m.ContextTag)
	binary.LittleEndian.PutUint32(buf[20:24], m.PoolingFlag)
	binary.LittleEndian.PutUint32(buf[24:28], m.NameLen)
	binary.LittleEndian.PutUint32(buf[28:32], m.Pad)
	binary.LittleEndian.PutUint64(buf[32:40], m.DigestLow)
	binary.LittleEndian.PutUint64(buf[40:48], m.DigestHigh)
	copy(buf[48:56], m.Reserved[:])
	return buf
}

// UnmarshalModuleInfo is the inverse of MarshalModuleInfo. It also verifies
// the magic number, since every caller needs that check anyway.
func UnmarshalModuleInfo(buf []byte) (FilamentModuleInfo, error) {
	if len(buf) < 56 {
		return FilamentModuleInfo{}, &MarshalError{Type: "FilamentModuleInfo", Op: "decode", Err: ErrInsufficientData}
	}
	var m FilamentModuleInfo
	m.Magic = binary.LittleEndian.Uint32(buf[0:4])
	m.AbiVersion = binary.LittleEndian.Uint32(buf[4:8])
	m.MemRequirement = binary.LittleEndian.Uint64(buf[8:16])
	m.ContextTag = binary.LittleEndian.Uint32(buf[16:20])
	m.PoolingFlag = binary.LittleEndian.Uint32(buf[20:24])
	m.NameLen = binary.LittleEndian.Uint32(buf[24:28])
	m.Pad = binary.LittleEndian.Uint32(buf[28:32])
	m.DigestLow = binary.LittleEndian.Uint64(buf[32:40])
	m.DigestHigh = binary.LittleEndian.Uint64(buf[40:48])
	copy(m.Reserved[:], buf[48:56])
	if m.Magic != constants.Magic {
		return FilamentModuleInfo{}, &MarshalError{Type: "FilamentModuleInfo", Op: "decode", Err: fmt.Errorf("codec: bad magic %#x", m.Magic)}
	}
	return m, nil
}

// MarshalChannelDefinition writes d as 40 bytes.
func MarshalChannelDefinition(d FilamentChannelDefinition) []byte {
	buf := make([]byte, 40)
	binary.LittleEndian.PutUint64(buf[0:8], d.URIPtr)
	binary.LittleEndian.PutUint32(buf[8:12], d.URILen)
	binary.LittleEndian.PutUint32(buf[12:16], d.Pad)
	binary.LittleEndian.PutUint32(buf[16:20], d.Capacity)
	binary.LittleEndian.PutUint32(buf[20:24], d.MsgSize)
	binary.LittleEndian.PutUint64(buf[24:32], d.SchemaHash)
	binary.LittleEndian.PutUint32(buf[32:36], d.RootType)
	binary.LittleEndian.PutUint32(buf[36:40], d.Direction)
	return buf
}

// UnmarshalChannelDefinition is the inverse of MarshalChannelDefinition.
func UnmarshalChannelDefinition(buf []byte) (FilamentChannelDefinition, error) {
	if len(buf) < 40 {
		return FilamentChannelDefinition{}, &MarshalError{Type: "FilamentChannelDefinition", Op: "decode", Err: ErrInsufficientData}
	}
	var d FilamentChannelDefinition
	d.URIPtr = binary.LittleEndian.Uint64(buf[0:8])
	d.URILen = binary.LittleEndian.Uint32(buf[8:12])
	d.Pad = binary.LittleEndian.Uint32(buf[12:16])
	d.Capacity = binary.LittleEndian.Uint32(buf[16:20])
	d.MsgSize = binary.LittleEndian.Uint32(buf[20:24])
	d.SchemaHash = binary.LittleEndian.Uint64(buf[24:32])
	d.RootType = binary.LittleEndian.Uint32(buf[32:36])
	d.Direction = binary.LittleEndian.Uint32(buf[36:40])
	return d, nil
}

// MarshalModuleDefinition writes d as 64 bytes.
func MarshalModuleDefinition(d FilamentModuleDefinition) []byte {
	buf := make([]byte, 64)
	binary.LittleEndian.PutUint64(buf[0:8], d.AliasPtr)
	binary.LittleEndian.PutUint32(buf[8:12], d.AliasLen)
	binary.LittleEndian.PutUint32(buf[12:16], d.Pad)
	binary.LittleEndian.PutUint64(buf[16:24], d.DigestLow)
	binary.LittleEndian.PutUint64(buf[24:32], d.DigestHigh)
	binary.LittleEndian.PutUint64(buf[32:40], d.MemRequirement)
	binary.LittleEndian.PutUint32(buf[40:44], d.ContextTag)
	binary.LittleEndian.PutUint32(buf[44:48], d.PoolingFlag)
	binary.LittleEndian.PutUint32(buf[48:52], d.EngineKind)
	binary.LittleEndian.PutUint32(buf[52:56], d.Pad2)
	binary.LittleEndian.PutUint64(buf[56:64], d.Reserved)
	return buf
}

// UnmarshalModuleDefinition is the inverse of MarshalModuleDefinition.
func UnmarshalModuleDefinition(buf []byte) (FilamentModuleDefinition, error) {
	if len(buf) < 64 {
		return FilamentModuleDefinition{}, &MarshalError{Type: "FilamentModuleDefinition", Op: "decode", Err: ErrInsufficientData}
	}
	var d FilamentModuleDefinition
	d.AliasPtr = binary.LittleEndian.Uint64(buf[0:8])
	d.AliasLen = binary.LittleEndian.Uint32(buf[8:12])
	d.Pad = binary.LittleEndian.Uint32(buf[12:16])
	d.DigestLow = binary.LittleEndian.Uint64(buf[16:24])
	d.DigestHigh = binary.LittleEndian.Uint64(buf[24:32])
	d.MemRequirement = binary.LittleEndian.Uint64(buf[32:40])
	d.ContextTag = binary.LittleEndian.Uint32(buf[40:44])
	d.PoolingFlag = binary.LittleEndian.Uint32(buf[44:48])
	d.EngineKind = binary.LittleEndian.Uint32(buf[48:52])
	d.Pad2 = binary.LittleEndian.Uint32(buf[52:56])
	d.Reserved = binary.LittleEndian.Uint64(buf[56:64])
	return d, nil
}

// MarshalProcessSpawnArgs writes a as 64 bytes.
func MarshalProcessSpawnArgs(a FilamentProcessSpawnArgs) []byte {
	buf := make([]byte, 64)
	binary.LittleEndian.PutUint64(buf[0:8], a.ParentID)
	binary.LittleEndian.PutUint64(buf[8:16], uint64(a.RequestedID))
	binary.LittleEndian.PutUint64(buf[16:24], a.MemMax)
	binary.LittleEndian.PutUint64(buf[24:32], a.ComputeMax)
	binary.LittleEndian.PutUint64(buf[32:40], a.TimeBudgetNs)
	binary.LittleEndian.PutUint64(buf[40:48], a.CapsPtr)
	binary.LittleEndian.PutUint64(buf[48:56], a.ModuleDefsPtr)
	binary.LittleEndian.PutUint32(buf[56:60], a.CapsLen)
	binary.LittleEndian.PutUint32(buf[60:64], a.Policy)
	return buf
}

// UnmarshalProcessSpawnArgs is the inverse of MarshalProcessSpawnArgs.
func UnmarshalProcessSpawnArgs(buf []byte) (FilamentProcessSpawnArgs, error) {
	if len(buf) < 64 {
		return FilamentProcessSpawnArgs{}, &MarshalError{Type: "FilamentProcessSpawnArgs", Op: "decode", Err: ErrInsufficientData}
	}
	var a FilamentProcessSpawnArgs
	a.ParentID = binary.LittleEndian.Uint64(buf[0:8])
	a.RequestedID = int64(binary.LittleEndian.Uint64(buf[8:16]))
	a.MemMax = binary.LittleEndian.Uint64(buf[16:24])
	a.ComputeMax = binary.LittleEndian.Uint64(buf[24:32])
	a.TimeBudgetNs = binary.LittleEndian.Uint64(buf[32:40])
	a.CapsPtr = binary.LittleEndian.Uint64(buf[40:48])
	a.ModuleDefsPtr = binary.LittleEndian.Uint64(buf[48:56])
	a.CapsLen = binary.LittleEndian.Uint32(buf[56:60])
	a.Policy = binary.LittleEndian.Uint32(buf[60:64])
	return a, nil
}
