package codec

import (
	"encoding/binary"
	"fmt"
	"unicode/utf8"
	"unsafe"

	"github.com/filament-run/filament/internal/constants"
)

// MarshalError is a structured codec error: it names the struct/value being
// processed and wraps the underlying cause, if any.
type MarshalError struct {
	Type string
	Op   string
	Err  error
}

func (e *MarshalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("codec: %s %s: %v", e.Op, e.Type, e.Err)
	}
	return fmt.Sprintf("codec: %s %s", e.Op, e.Type)
}

func (e *MarshalError) Unwrap() error { return e.Err }

var (
	ErrInsufficientData = fmt.Errorf("codec: insufficient data")
	ErrInvalidType      = fmt.Errorf("codec: invalid type")
)

// ValidateURI rejects control bytes, NULs, and over-length topic/channel
// URIs, enforcing the MaxURILen bound on topic strings.
func ValidateURI(uri string) error {
	if len(uri) == 0 {
		return &MarshalError{Type: "uri", Op: "validate", Err: fmt.Errorf("empty uri")}
	}
	if len(uri) > constants.MaxURILen {
		return &MarshalError{Type: "uri", Op: "validate", Err: fmt.Errorf("uri exceeds %d bytes", constants.MaxURILen)}
	}
	if !utf8.ValidString(uri) {
		return &MarshalError{Type: "uri", Op: "validate", Err: ErrInvalidUTF8}
	}
	for i := 0; i < len(uri); i++ {
		if uri[i] < 0x20 || uri[i] == 0x7f {
			return &MarshalError{Type: "uri", Op: "validate", Err: fmt.Errorf("control byte at offset %d", i)}
		}
	}
	return nil
}

// EncodeValue flattens a Value tree into a FilamentValue envelope plus an
// arena of variable-length bytes. Arena offsets recorded in the envelope (and
// in any nested FilamentString/FilamentArray) are relative to the start of
// the returned arena; a host relocates them by adding the arena's base
// address before handing the envelope to a guest.
func EncodeValue(v Value) (FilamentValue, []byte, error) {
	if d := v.depth(); d > constants.MaxRecursion {
		return FilamentValue{}, nil, &MarshalError{Type: "Value", Op: "encode", Err: ErrRecursionLimit}
	}
	arena := make([]byte, 0, 64)
	fv, arena, err := encodeValueInto(v, arena)
	if err != nil {
		return FilamentValue{}, nil, err
	}
	return fv, arena, nil
}

func encodeValueInto(v Value, arena []byte) (FilamentValue, []byte, error) {
	fv := FilamentValue{Tag: v.Tag}
	switch v.Tag {
	case TagUnit:
		// no payload
	case TagBool:
		if v.Bool {
			fv.Payload[0] = 1
		}
	case TagI64:
		binary.LittleEndian.PutUint64(fv.Payload[0:8], uint64(v.I64))
	case TagU64:
		binary.LittleEndian.PutUint64(fv.Payload[0:8], v.U64)
	case TagF64:
		binary.LittleEndian.PutUint64(fv.Payload[0:8], mathFloat64bits(v.F64))
	case TagString:
		if !utf8.ValidString(v.Str) {
			return FilamentValue{}, arena, &MarshalError{Type: "Value.Str", Op: "encode", Err: ErrInvalidUTF8}
		}
		off := len(arena)
		arena = append(arena, v.Str...)
		putFilamentString(fv.Payload[0:16], uint64(off), uint32(len(v.Str)))
	case TagBytes:
		off := len(arena)
		arena = append(arena, v.Bytes...)
		putFilamentString(fv.Payload[0:16], uint64(off), uint32(len(v.Bytes)))
	case TagBlobRef:
		putBlob(fv.Payload[0:24], v.Blob)
	case TagList:
		entryBuf := make([]byte, 0, len(v.List)*int(unsafe.Sizeof(FilamentValue{})))
		var err error
		for _, elem := range v.List {
			var efv FilamentValue
			efv, arena, err = encodeValueInto(elem, arena)
			if err != nil {
				return FilamentValue{}, arena, err
			}
			entryBuf = append(entryBuf, marshalFilamentValueRaw(efv)...)
		}
		off := len(arena)
		arena = append(arena, entryBuf...)
		putFilamentArray(fv.Payload[0:16], uint64(off), uint32(len(v.List)))
	case TagMap:
		entryBuf := make([]byte, 0, len(v.Map)*48)
		var err error
		for _, entry := range v.Map {
			if !utf8.ValidString(entry.Key) {
				return FilamentValue{}, arena, &MarshalError{Type: "Value.Map.Key", Op: "encode", Err: ErrInvalidUTF8}
			}
			keyOff := len(arena)
			arena = append(arena, entry.Key...)
			var efv FilamentValue
			efv, arena, err = encodeValueInto(entry.Value, arena)
			if err != nil {
				return FilamentValue{}, arena, err
			}
			var pairBuf [48]byte
			putFilamentString(pairBuf[0:16], uint64(keyOff), uint32(len(entry.Key)))
			copy(pairBuf[16:48], marshalFilamentValueRaw(efv))
			entryBuf = append(entryBuf, pairBuf[:]...)
		}
		off := len(arena)
		arena = append(arena, entryBuf...)
		putFilamentArray(fv.Payload[0:16], uint64(off), uint32(len(v.Map)))
	default:
		return FilamentValue{}, arena, &MarshalError{Type: "Value", Op: "encode", Err: ErrInvalidType}
	}
	return fv, arena, nil
}

// DecodeValue reconstructs a Value from a FilamentValue whose variable parts
// live in arena, already relocated so arena[0] corresponds to offset 0 in any
// embedded FilamentString/FilamentArray. depth is the caller's current
// nesting depth (pass 0 at the top level); decode fails past MaxRecursion.
func DecodeValue(fv FilamentValue, arena []byte, depth int) (Value, error) {
	if depth > constants.MaxRecursion {
		return Value{}, &MarshalError{Type: "Value", Op: "decode", Err: ErrRecursionLimit}
	}
	switch fv.Tag {
	case TagUnit:
		return Unit(), nil
	case TagBool:
		return Bool(fv.Payload[0] != 0), nil
	case TagI64:
		return I64(int64(binary.LittleEndian.Uint64(fv.Payload[0:8]))), nil
	case TagU64:
		return U64(binary.LittleEndian.Uint64(fv.Payload[0:8])), nil
	case TagF64:
		return F64(mathFloat64frombits(binary.LittleEndian.Uint64(fv.Payload[0:8]))), nil
	case TagString:
		off, n, err := getFilamentString(fv.Payload[0:16], arena)
		if err != nil {
			return Value{}, err
		}
		s := string(arena[off : off+n])
		if !utf8.ValidString(s) {
			return Value{}, &MarshalError{Type: "Value.Str", Op: "decode", Err: ErrInvalidUTF8}
		}
		return Str(s), nil
	case TagBytes:
		off, n, err := getFilamentString(fv.Payload[0:16], arena)
		if err != nil {
			return Value{}, err
		}
		out := make([]byte, n)
		copy(out, arena[off:off+n])
		return Bytes(out), nil
	case TagBlobRef:
		return Value{Tag: TagBlobRef, Blob: getBlob(fv.Payload[0:24])}, nil
	case TagList:
		off, n, err := getFilamentArray(fv.Payload[0:16], arena, int(unsafe.Sizeof(FilamentValue{})))
		if err != nil {
			return Value{}, err
		}
		elems := make([]Value, 0, n)
		stride := int(unsafe.Sizeof(FilamentValue{}))
		for i := 0; i < n; i++ {
			efv, err := unmarshalFilamentValueRaw(arena[off+i*stride : off+(i+1)*stride])
			if err != nil {
				return Value{}, err
			}
			elem, err := DecodeValue(efv, arena, depth+1)
			if err != nil {
				return Value{}, err
			}
			elems = append(elems, elem)
		}
		return List(elems), nil
	case TagMap:
		off, n, err := getFilamentArray(fv.Payload[0:16], arena, 48)
		if err != nil {
			return Value{}, err
		}
		entries := make([]MapEntry, 0, n)
		for i := 0; i < n; i++ {
			pair := arena[off+i*48 : off+(i+1)*48]
			keyOff, keyLen, err := getFilamentString(pair[0:16], arena)
			if err != nil {
				return Value{}, err
			}
			key := string(arena[keyOff : keyOff+keyLen])
			if !utf8.ValidString(key) {
				return Value{}, &MarshalError{Type: "Value.Map.Key", Op: "decode", Err: ErrInvalidUTF8}
			}
			efv, err := unmarshalFilamentValueRaw(pair[16:48])
			if err != nil {
				return Value{}, err
			}
			val, err := DecodeValue(efv, arena, depth+1)
			if err != nil {
				return Value{}, err
			}
			entries = append(entries, MapEntry{Key: key, Value: val})
		}
		return Map(entries), nil
	default:
		return Value{}, &MarshalError{Type: "Value", Op: "decode", Err: ErrInvalidType}
	}
}

func putFilamentString(dst []byte, off uint64, n uint32) {
	binary.LittleEndian.PutUint64(dst[0:8], off)
	binary.LittleEndian.PutUint32(dst[8:12], n)
}

func getFilamentString(src []byte, arena []byte) (off int, n int, err error) {
	o := binary.LittleEndian.Uint64(src[0:8])
	l := binary.LittleEndian.Uint32(src[8:12])
	off, n = int(o), int(l)
	if off < 0 || n < 0 || off+n > len(arena) {
		return 0, 0, &MarshalError{Type: "FilamentString", Op: "decode", Err: ErrInsufficientData}
	}
	return off, n, nil
}

func putFilamentArray(dst []byte, off uint64, count uint32) {
	binary.LittleEndian.PutUint64(dst[0:8], off)
	binary.LittleEndian.PutUint32(dst[8:12], count)
}

func getFilamentArray(src []byte, arena []byte, stride int) (off int, count int, err error) {
	o := binary.LittleEndian.Uint64(src[0:8])
	c := binary.LittleEndian.Uint32(src[8:12])
	off, count = int(o), int(c)
	if off < 0 || count < 0 || off+count*stride > len(arena) {
		return 0, 0, &MarshalError{Type: "FilamentArray", Op: "decode", Err: ErrInsufficientData}
	}
	return off, count, nil
}

func putBlob(dst []byte, b FilamentBlob) {
	binary.LittleEndian.PutUint64(dst[0:8], b.Handle)
	binary.LittleEndian.PutUint64(dst[8:16], b.Size)
	binary.LittleEndian.PutUint32(dst[16:20], b.Perm)
	binary.LittleEndian.PutUint32(dst[20:24], b.Flags)
}

func getBlob(src []byte) FilamentBlob {
	return FilamentBlob{
		Handle: binary.LittleEndian.Uint64(src[0:8]),
		Size:   binary.LittleEndian.Uint64(src[8:16]),
		Perm:   binary.LittleEndian.Uint32(src[16:20]),
		Flags:  binary.LittleEndian.Uint32(src[20:24]),
	}
}

func marshalFilamentValueRaw(fv FilamentValue) []byte {
	buf := make([]byte, unsafe.Sizeof(FilamentValue{}))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(fv.Tag))
	binary.LittleEndian.PutUint32(buf[4:8], fv.Flags)
	copy(buf[8:32], fv.Payload[:])
	return buf
}

func unmarshalFilamentValueRaw(buf []byte) (FilamentValue, error) {
	if len(buf) < int(unsafe.Sizeof(FilamentValue{})) {
		return FilamentValue{}, &MarshalError{Type: "FilamentValue", Op: "decode", Err: ErrInsufficientData}
	}
	var fv FilamentValue
	fv.Tag = ValueTag(binary.LittleEndian.Uint32(buf[0:4]))
	fv.Flags = binary.LittleEndian.Uint32(buf[4:8])
	copy(fv.Payload[:], buf[8:32])
	return fv, nil
}

// RelocateArena rebases every offset embedded in fv (and any FilamentString
// or FilamentArray offsets reachable from it, recursively, through arena) by
// base. Used when an arena is copied from host memory into a module's linear
// memory (or vice versa) at a different address.
func RelocateArena(fv FilamentValue, arena []byte, base uint64, depth int) (FilamentValue, error) {
	if depth > constants.MaxRecursion {
		return FilamentValue{}, &MarshalError{Type: "Value", Op: "relocate", Err: ErrRecursionLimit}
	}
	switch fv.Tag {
	case TagString, TagBytes:
		off := binary.LittleEndian.Uint64(fv.Payload[0:8])
		binary.LittleEndian.PutUint64(fv.Payload[0:8], off+base)
	case TagList:
		off, n, err := getFilamentArray(fv.Payload[0:16], arena, int(unsafe.Sizeof(FilamentValue{})))
		if err != nil {
			return FilamentValue{}, err
		}
		stride := int(unsafe.Sizeof(FilamentValue{}))
		for i := 0; i < n; i++ {
			slot := arena[off+i*stride : off+(i+1)*stride]
			efv, err := unmarshalFilamentValueRaw(slot)
			if err != nil {
				return FilamentValue{}, err
			}
			relocated, err := RelocateArena(efv, arena, base, depth+1)
			if err != nil {
				return FilamentValue{}, err
			}
			copy(slot, marshalFilamentValueRaw(relocated))
		}
		o := binary.LittleEndian.Uint64(fv.Payload[0:8])
		binary.LittleEndian.PutUint64(fv.Payload[0:8], o+base)
	case TagMap:
		off, n, err := getFilamentArray(fv.Payload[0:16], arena, 48)
		if err != nil {
			return FilamentValue{}, err
		}
		for i := 0; i < n; i++ {
			pair := arena[off+i*48 : off+(i+1)*48]
			keyOff := binary.LittleEndian.Uint64(pair[0:8])
			binary.LittleEndian.PutUint64(pair[0:8], keyOff+base)
			efv, err := unmarshalFilamentValueRaw(pair[16:48])
			if err != nil {
				return FilamentValue{}, err
			}
			relocated, err := RelocateArena(efv, arena, base, depth+1)
			if err != nil {
				return FilamentValue{}, err
			}
			copy(pair[16:48], marshalFilamentValueRaw(relocated))
		}
		o := binary.LittleEndian.Uint64(fv.Payload[0:8])
		binary.LittleEndian.PutUint64(fv.Payload[0:8], o+base)
	}
	return fv, nil
}

func mathFloat64bits(f float64) uint64   { return *(*uint64)(unsafe.Pointer(&f)) }
func mathFloat64frombits(b uint64) float64 { return *(*float64)(unsafe.Pointer(&b)) }
