package codec

import (
	"testing"
	"unsafe"
)

// Test struct sizes match the ABI. These must never drift.
func TestStructSizes(t *testing.T) {
	tests := []struct {
		name     string
		size     uintptr
		expected int
	}{
		{"FilamentString", unsafe.Sizeof(FilamentString{}), 16},
		{"FilamentBlob", unsafe.Sizeof(FilamentBlob{}), 24},
		{"FilamentArray", unsafe.Sizeof(FilamentArray{}), 16},
		{"FilamentPair", unsafe.Sizeof(FilamentPair{}), 48},
		{"FilamentValue", unsafe.Sizeof(FilamentValue{}), 32},
		{"FilamentTraceContext", unsafe.Sizeof(FilamentTraceContext{}), 32},
		{"FilamentEventHeader", unsafe.Sizeof(FilamentEventHeader{}), 128},
		{"FilamentResourceLimits", unsafe.Sizeof(FilamentResourceLimits{}), 24},
		{"FilamentHostInfo", unsafe.Sizeof(FilamentHostInfo{}), 48},
		{"FilamentModuleInfo", unsafe.Sizeof(FilamentModuleInfo{}), 56},
		{"FilamentWeaveArgs", unsafe.Sizeof(FilamentWeaveArgs{}), 128},
		{"FilamentChannelDefinition", unsafe.Sizeof(FilamentChannelDefinition{}), 40},
		{"FilamentModuleDefinition", unsafe.Sizeof(FilamentModuleDefinition{}), 64},
		{"FilamentProcessSpawnArgs", unsafe.Sizeof(FilamentProcessSpawnArgs{}), 64},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if int(tt.size) != tt.expected {
				t.Errorf("%s size = %d, want %d", tt.name, tt.size, tt.expected)
			}
		})
	}
}

func TestEncodeDecodeScalars(t *testing.T) {
	cases := []Value{
		Unit(),
		Bool(true),
		Bool(false),
		I64(-42),
		U64(42),
		F64(3.5),
		Str("hello"),
		Bytes([]byte{1, 2, 3}),
		BlobRef(7, 4096, 0b011),
	}
	for _, v := range cases {
		fv, arena, err := EncodeValue(v)
		if err != nil {
			t.Fatalf("EncodeValue(%+v): %v", v, err)
		}
		got, err := DecodeValue(fv, arena, 0)
		if err != nil {
			t.Fatalf("DecodeValue(%+v): %v", v, err)
		}
		if got.Tag != v.Tag {
			t.Fatalf("tag mismatch: got %v want %v", got.Tag, v.Tag)
		}
	}
}

func TestEncodeDecodeList(t *testing.T) {
	v := List([]Value{I64(1), I64(2), Str("three")})
	fv, arena, err := EncodeValue(v)
	if err != nil {
		t.Fatalf("EncodeValue: %v", err)
	}
	got, err := DecodeValue(fv, arena, 0)
	if err != nil {
		t.Fatalf("DecodeValue: %v", err)
	}
	if len(got.List) != 3 {
		t.Fatalf("List len = %d, want 3", len(got.List))
	}
	if got.List[2].Str != "three" {
		t.Errorf("List[2].Str = %q, want %q", got.List[2].Str, "three")
	}
}

func TestEncodeDecodeMap(t *testing.T) {
	v := Map([]MapEntry{
		{Key: "a", Value: I64(1)},
		{Key: "b", Value: Str("two")},
	})
	fv, arena, err := EncodeValue(v)
	if err != nil {
		t.Fatalf("EncodeValue: %v", err)
	}
	got, err := DecodeValue(fv, arena, 0)
	if err != nil {
		t.Fatalf("DecodeValue: %v", err)
	}
	if len(got.Map) != 2 || got.Map[0].Key != "a" || got.Map[1].Value.Str != "two" {
		t.Fatalf("Map round-trip mismatch: %+v", got.Map)
	}
}

func TestEncodeRejectsExcessiveRecursion(t *testing.T) {
	v := Unit()
	for i := 0; i < 70; i++ {
		v = List([]Value{v})
	}
	if _, _, err := EncodeValue(v); err == nil {
		t.Fatal("EncodeValue should reject nesting past MaxRecursion")
	}
}

func TestEncodeRejectsInvalidUTF8(t *testing.T) {
	bad := Str(string([]byte{0xff, 0xfe, 0xfd}))
	if _, _, err := EncodeValue(bad); err == nil {
		t.Fatal("EncodeValue should reject invalid UTF-8 strings")
	}
}

func TestValidateURI(t *testing.T) {
	if err := ValidateURI("filament/kv/set"); err != nil {
		t.Errorf("ValidateURI rejected a valid uri: %v", err)
	}
	if err := ValidateURI(""); err == nil {
		t.Error("ValidateURI should reject empty uri")
	}
	if err := ValidateURI("bad\x00topic"); err == nil {
		t.Error("ValidateURI should reject control bytes")
	}
}

func TestEventHeaderRoundTrip(t *testing.T) {
	h := FilamentEventHeader{
		SeqID:      1,
		WallTimeNs: 1000,
		VirtTime:   2000,
		SchemaHash: 0xdeadbeef,
		TopicLen:   12,
		DataLen:    64,
		Tick:       9,
	}
	buf := MarshalEventHeader(h)
	if len(buf) != 128 {
		t.Fatalf("MarshalEventHeader len = %d, want 128", len(buf))
	}
	got, err := UnmarshalEventHeader(buf)
	if err != nil {
		t.Fatalf("UnmarshalEventHeader: %v", err)
	}
	if got != h {
		t.Errorf("round-trip mismatch: got %+v want %+v", got, h)
	}
}

func TestWeaveArgsRoundTrip(t *testing.T) {
	a := FilamentWeaveArgs{
		Ctx:          1,
		TimeBudgetNs: 5_000_000,
		ComputeMax:   1_000_000,
		MemCap:       65536,
		VirtTime:     42,
		TickCounter:  7,
		UserData:     0xC0FFEE,
	}
	buf := MarshalWeaveArgs(a)
	got, err := UnmarshalWeaveArgs(buf)
	if err != nil {
		t.Fatalf("UnmarshalWeaveArgs: %v", err)
	}
	if got != a {
		t.Errorf("round-trip mismatch: got %+v want %+v", got, a)
	}
}

func TestProcessSpawnArgsRoundTrip(t *testing.T) {
	a := FilamentProcessSpawnArgs{
		ParentID:    1,
		RequestedID: -1,
		MemMax:      1 << 20,
		ComputeMax:  10000,
		CapsLen:     3,
		Policy:      1,
	}
	buf := MarshalProcessSpawnArgs(a)
	got, err := UnmarshalProcessSpawnArgs(buf)
	if err != nil {
		t.Fatalf("UnmarshalProcessSpawnArgs: %v", err)
	}
	if got != a {
		t.Errorf("round-trip mismatch: got %+v want %+v", got, a)
	}
}
