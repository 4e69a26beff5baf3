package codec

import (
	"fmt"
)

// Value is the host-side decoded form of a FilamentValue: a tagged union over
// the handful of shapes a module boundary can carry. Maps and lists nest
// other Values; nesting depth is bounded by MaxRecursion at decode time, not
// by this type.
type Value struct {
	Tag    ValueTag
	Bool   bool
	I64    int64
	U64    uint64
	F64    float64
	Str    string
	Blob   FilamentBlob
	Bytes  []byte
	List   []Value
	Map    []MapEntry
}

// MapEntry is one key/value pair of a Value map. Keys are always strings;
// order is preserved since maps are not required to be sorted.
type MapEntry struct {
	Key   string
	Value Value
}

func Unit() Value                 { return Value{Tag: TagUnit} }
func Bool(b bool) Value            { return Value{Tag: TagBool, Bool: b} }
func I64(v int64) Value            { return Value{Tag: TagI64, I64: v} }
func U64(v uint64) Value           { return Value{Tag: TagU64, U64: v} }
func F64(v float64) Value          { return Value{Tag: TagF64, F64: v} }
func Str(s string) Value           { return Value{Tag: TagString, Str: s} }
func Bytes(b []byte) Value         { return Value{Tag: TagBytes, Bytes: b} }
func List(vs []Value) Value        { return Value{Tag: TagList, List: vs} }
func Map(entries []MapEntry) Value { return Value{Tag: TagMap, Map: entries} }
func BlobRef(h uint64, size uint64, perm uint32) Value {
	return Value{Tag: TagBlobRef, Blob: FilamentBlob{Handle: h, Size: size, Perm: perm}}
}

// depth returns the nesting depth of v, counting v itself as depth 1 for
// non-scalar tags and 0 for scalars (only Map/List recurse).
func (v Value) depth() int {
	switch v.Tag {
	case TagList:
		max := 0
		for _, e := range v.List {
			if d := e.depth(); d > max {
				max = d
			}
		}
		return max + 1
	case TagMap:
		max := 0
		for _, e := range v.Map {
			if d := e.Value.depth(); d > max {
				max = d
			}
		}
		return max + 1
	default:
		return 0
	}
}

// ErrRecursionLimit is returned when a Value's nesting exceeds MaxRecursion.
var ErrRecursionLimit = fmt.Errorf("codec: value nesting exceeds recursion limit")

// ErrInvalidUTF8 is returned when a string-bearing Value is not valid UTF-8.
var ErrInvalidUTF8 = fmt.Errorf("codec: string is not valid UTF-8")
