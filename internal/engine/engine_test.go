package engine

import (
	"context"
	"testing"

	"github.com/filament-run/filament/internal/codec"
)

func testDigest() [16]byte {
	return [16]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
}

func testInfo(contextTag uint32) codec.FilamentModuleInfo {
	d := testDigest()
	return codec.FilamentModuleInfo{
		Magic:          0x9D2F8A41,
		AbiVersion:     1,
		MemRequirement: 4096,
		ContextTag:     contextTag,
		DigestLow:      uint64(d[0]) | uint64(d[1])<<8 | uint64(d[2])<<16 | uint64(d[3])<<24 | uint64(d[4])<<32 | uint64(d[5])<<40 | uint64(d[6])<<48 | uint64(d[7])<<56,
		DigestHigh:     uint64(d[8]) | uint64(d[9])<<8 | uint64(d[10])<<16 | uint64(d[11])<<24 | uint64(d[12])<<32 | uint64(d[13])<<40 | uint64(d[14])<<48 | uint64(d[15])<<56,
	}
}

func TestNativeEngineRejectsLogicContext(t *testing.T) {
	reg := NewNativeRegistry()
	e := NewNativeEngine(reg)
	_, err := e.Load(nil, testInfo(0))
	if err != ErrUnsupportedContext {
		t.Fatalf("expected ErrUnsupportedContext, got %v", err)
	}
}

func TestNativeEngineLoadUnregisteredDigestFails(t *testing.T) {
	reg := NewNativeRegistry()
	e := NewNativeEngine(reg)
	_, err := e.Load(nil, testInfo(1))
	if err == nil {
		t.Fatal("expected error for unregistered digest")
	}
}

func TestNativeEngineInstantiateAndWeave(t *testing.T) {
	reg := NewNativeRegistry()
	var weaveCalled bool
	reg.Register(testDigest(), NativeFuncs{
		Init: func(inst *NativeInstance, argsPtr uint64, argsLen uint32) (int32, error) {
			return 0, nil
		},
		Weave: func(inst *NativeInstance, args codec.FilamentWeaveArgs) (int32, error) {
			weaveCalled = true
			return 0, nil
		},
	})
	e := NewNativeEngine(reg)
	mod, err := e.Load(nil, testInfo(1))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	inst, err := mod.Instantiate(context.Background())
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	defer inst.Close(context.Background())

	if code, err := inst.Init(0, 0); err != nil || code != 0 {
		t.Fatalf("Init: code=%d err=%v", code, err)
	}
	if code, err := inst.Weave(codec.FilamentWeaveArgs{}); err != nil || code != 0 {
		t.Fatalf("Weave: code=%d err=%v", code, err)
	}
	if !weaveCalled {
		t.Fatal("expected Weave to invoke registered NativeFuncs.Weave")
	}
}

func TestNativeInstanceReserveGrowsMemoryAligned(t *testing.T) {
	reg := NewNativeRegistry()
	reg.Register(testDigest(), NativeFuncs{})
	e := NewNativeEngine(reg)
	mod, _ := e.Load(nil, testInfo(2))
	instAny, _ := mod.Instantiate(context.Background())
	inst := instAny.(*NativeInstance)

	base := len(inst.mem)
	ptr, err := inst.Reserve(37, 8)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if ptr < uint64(base) {
		t.Fatalf("expected reserved base >= %d, got %d", base, ptr)
	}
	if ptr%8 != 0 {
		t.Fatalf("expected 8-byte aligned offset, got %d", ptr)
	}
}

func TestNativeInstanceReadWriteMemoryRoundTrip(t *testing.T) {
	reg := NewNativeRegistry()
	reg.Register(testDigest(), NativeFuncs{})
	e := NewNativeEngine(reg)
	mod, _ := e.Load(nil, testInfo(2))
	inst, _ := mod.Instantiate(context.Background())

	payload := []byte("filament-native-instance")
	ptr, err := inst.Reserve(uint32(len(payload)), 1)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if err := inst.WriteMemory(ptr, payload); err != nil {
		t.Fatalf("WriteMemory: %v", err)
	}
	got, err := inst.ReadMemory(ptr, uint32(len(payload)))
	if err != nil {
		t.Fatalf("ReadMemory: %v", err)
	}
	if string(got) != string(payload) {
		t.Fatalf("round trip mismatch: got %q want %q", got, payload)
	}
}

func TestNativeInstanceReadMemoryOutOfBoundsFails(t *testing.T) {
	reg := NewNativeRegistry()
	reg.Register(testDigest(), NativeFuncs{})
	e := NewNativeEngine(reg)
	mod, _ := e.Load(nil, testInfo(2))
	inst, _ := mod.Instantiate(context.Background())

	if _, err := inst.ReadMemory(1<<40, 8); err == nil {
		t.Fatal("expected out-of-bounds read to fail")
	}
}

func TestNativeInstanceResetMemoryTruncatesAndZeroes(t *testing.T) {
	reg := NewNativeRegistry()
	reg.Register(testDigest(), NativeFuncs{})
	e := NewNativeEngine(reg)
	mod, _ := e.Load(nil, testInfo(2))
	instAny, _ := mod.Instantiate(context.Background())
	inst := instAny.(*NativeInstance)
	highWater := inst.highWater

	ptr, _ := inst.Reserve(64, 1)
	_ = inst.WriteMemory(ptr, []byte("dirty"))

	if err := inst.ResetMemory(); err != nil {
		t.Fatalf("ResetMemory: %v", err)
	}
	if len(inst.mem) != highWater {
		t.Fatalf("expected memory truncated to %d bytes, got %d", highWater, len(inst.mem))
	}
	for i, b := range inst.mem {
		if b != 0 {
			t.Fatalf("expected zeroed memory at %d, got %d", i, b)
		}
	}
}

func TestNativeInstanceCanonicalizeNaNIsRecorded(t *testing.T) {
	reg := NewNativeRegistry()
	reg.Register(testDigest(), NativeFuncs{})
	e := NewNativeEngine(reg)
	mod, _ := e.Load(nil, testInfo(2))
	instAny, _ := mod.Instantiate(context.Background())
	inst := instAny.(*NativeInstance)

	inst.CanonicalizeNaN(true)
	if !inst.nanCanon {
		t.Fatal("expected CanonicalizeNaN(true) to set nanCanon")
	}
}

func TestWasmEngineLoadRejectsNonLogicContext(t *testing.T) {
	e := NewWasmEngine(context.Background())
	_, err := e.Load([]byte{0x00, 0x61, 0x73, 0x6d}, testInfo(2))
	if err != ErrUnsupportedContext {
		t.Fatalf("expected ErrUnsupportedContext, got %v", err)
	}
}

func TestWasmEngineLoadRejectsDigestMismatch(t *testing.T) {
	e := NewWasmEngine(context.Background())
	info := testInfo(0)
	info.DigestLow ^= 0xFF
	_, err := e.Load([]byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}, info)
	if err != ErrBadDigest {
		t.Fatalf("expected ErrBadDigest, got %v", err)
	}
}
