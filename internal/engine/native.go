package engine

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/filament-run/filament/internal/codec"
)

// NativeFuncs is the Go-native equivalent of a module's exported ABI entry
// points, registered by digest rather than compiled from bytes. System and
// Managed-context modules are kernel-trusted Go code, not guest WASM, so
// there is nothing to sandbox-compile.
type NativeFuncs struct {
	Init  func(instance *NativeInstance, argsPtr uint64, argsLen uint32) (int32, error)
	Weave func(instance *NativeInstance, args codec.FilamentWeaveArgs) (int32, error)
}

// NativeRegistry maps a module digest to its NativeFuncs. Callers register
// each System/Managed module they link in before loading it through a native
// engine; it is the native analogue of loading WASM bytes by digest.
type NativeRegistry struct {
	mu    sync.RWMutex
	funcs map[[16]byte]NativeFuncs
}

// NewNativeRegistry creates an empty registry.
func NewNativeRegistry() *NativeRegistry {
	return &NativeRegistry{funcs: make(map[[16]byte]NativeFuncs)}
}

// Register binds digest to funcs. Re-registering the same digest replaces
// the previous binding, which is only expected in tests.
func (r *NativeRegistry) Register(digest [16]byte, funcs NativeFuncs) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[digest] = funcs
}

func (r *NativeRegistry) lookup(digest [16]byte) (NativeFuncs, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.funcs[digest]
	return f, ok
}

// nativeEngine hosts System/Managed-context modules and stands in for wasm
// in tests that don't need a real guest sandbox.
type nativeEngine struct {
	registry *NativeRegistry
}

// NewNativeEngine creates an Engine that resolves module code by digest
// against registry rather than executing it.
func NewNativeEngine(registry *NativeRegistry) Engine {
	return &nativeEngine{registry: registry}
}

type nativeModule struct {
	info  codec.FilamentModuleInfo
	funcs NativeFuncs
}

func digestFromInfo(info codec.FilamentModuleInfo) [16]byte {
	var d [16]byte
	binary.LittleEndian.PutUint64(d[0:8], info.DigestLow)
	binary.LittleEndian.PutUint64(d[8:16], info.DigestHigh)
	return d
}

func (e *nativeEngine) Load(code []byte, info codec.FilamentModuleInfo) (Module, error) {
	if info.ContextTag != 1 && info.ContextTag != 2 {
		return nil, ErrUnsupportedContext
	}
	funcs, ok := e.registry.lookup(digestFromInfo(info))
	if !ok {
		return nil, fmt.Errorf("engine: no native module registered for digest %x", digestFromInfo(info))
	}
	return &nativeModule{info: info, funcs: funcs}, nil
}

func (m *nativeModule) Info() codec.FilamentModuleInfo { return m.info }

func (m *nativeModule) Instantiate(ctx context.Context) (Instance, error) {
	mem := make([]byte, m.info.MemRequirement)
	return &NativeInstance{funcs: m.funcs, mem: mem, highWater: len(mem)}, nil
}

func (m *nativeModule) Close(ctx context.Context) error { return nil }

// NativeInstance is a flat byte slice standing in for linear memory, grown
// on Reserve and zeroed on ResetMemory.
type NativeInstance struct {
	mu        sync.Mutex
	funcs     NativeFuncs
	mem       []byte
	highWater int // length at instantiation, the ResetMemory truncation point
	nanCanon  bool
}

func (n *NativeInstance) Reserve(size uint32, align uint32) (uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	base := uint64(len(n.mem))
	if align > 1 {
		rem := base % uint64(align)
		if rem != 0 {
			pad := uint64(align) - rem
			n.mem = append(n.mem, make([]byte, pad)...)
			base += pad
		}
	}
	n.mem = append(n.mem, make([]byte, size)...)
	return base, nil
}

func (n *NativeInstance) Init(argsPtr uint64, argsLen uint32) (int32, error) {
	if n.funcs.Init == nil {
		return 0, nil
	}
	return n.funcs.Init(n, argsPtr, argsLen)
}

func (n *NativeInstance) Weave(args codec.FilamentWeaveArgs) (int32, error) {
	if n.funcs.Weave == nil {
		return 0, nil
	}
	return n.funcs.Weave(n, args)
}

func (n *NativeInstance) ReadMemory(offset uint64, length uint32) ([]byte, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	end := offset + uint64(length)
	if end > uint64(len(n.mem)) {
		return nil, ErrNotInstantiated
	}
	out := make([]byte, length)
	copy(out, n.mem[offset:end])
	return out, nil
}

func (n *NativeInstance) WriteMemory(offset uint64, data []byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	end := offset + uint64(len(data))
	if end > uint64(len(n.mem)) {
		return ErrNotInstantiated
	}
	copy(n.mem[offset:end], data)
	return nil
}

func (n *NativeInstance) ResetMemory() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.mem = n.mem[:n.highWater]
	for i := range n.mem {
		n.mem[i] = 0
	}
	return nil
}

// CanonicalizeNaN is a no-op for native Go float arithmetic, which is
// already IEEE-754 deterministic across the platforms this kernel targets;
// the flag is retained so callers need not special-case the engine kind.
func (n *NativeInstance) CanonicalizeNaN(enable bool) { n.nanCanon = enable }

func (n *NativeInstance) Close(ctx context.Context) error { return nil }
