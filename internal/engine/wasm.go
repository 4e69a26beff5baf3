package engine

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/filament-run/filament/internal/codec"
)

// wasmEngine hosts Logic-context modules as compiled WebAssembly, verified
// by digest before every Load.
type wasmEngine struct {
	runtime wazero.Runtime
}

// NewWasmEngine creates a wazero-backed Engine. The runtime is shared across
// all modules loaded from it; a Module's Close closes only its compiled
// module, and nothing closes the runtime itself.
func NewWasmEngine(ctx context.Context) Engine {
	cfg := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	return &wasmEngine{runtime: wazero.NewRuntimeWithConfig(ctx, cfg)}
}

func (e *wasmEngine) Load(code []byte, info codec.FilamentModuleInfo) (Module, error) {
	if info.ContextTag != 0 {
		return nil, ErrUnsupportedContext
	}
	sum := sha256.Sum256(code)
	wantLow := binary.LittleEndian.Uint64(sum[0:8])
	wantHigh := binary.LittleEndian.Uint64(sum[8:16])
	if wantLow != info.DigestLow || wantHigh != info.DigestHigh {
		return nil, ErrBadDigest
	}
	ctx := context.Background()
	compiled, err := e.runtime.CompileModule(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("engine: compile module: %w", err)
	}
	return &wasmModule{runtime: e.runtime, compiled: compiled, info: info}, nil
}

type wasmModule struct {
	runtime  wazero.Runtime
	compiled wazero.CompiledModule
	info     codec.FilamentModuleInfo
}

func (m *wasmModule) Info() codec.FilamentModuleInfo { return m.info }

func (m *wasmModule) Instantiate(ctx context.Context) (Instance, error) {
	pages := uint32((m.info.MemRequirement + 65535) / 65536)
	if pages == 0 {
		pages = 1
	}
	modCfg := wazero.NewModuleConfig().WithStartFunctions()
	mod, err := m.runtime.InstantiateModule(ctx, m.compiled, modCfg)
	if err != nil {
		return nil, fmt.Errorf("engine: instantiate module: %w", err)
	}
	inst := &WasmInstance{
		mod:        mod,
		mem:        mod.Memory(),
		initPages:  pages,
		initFunc:   mod.ExportedFunction("filament_init"),
		weaveFunc:  mod.ExportedFunction("filament_weave"),
		canonNaN:   true,
	}
	return inst, nil
}

func (m *wasmModule) Close(ctx context.Context) error {
	return m.compiled.Close(ctx)
}

// WasmInstance wraps one wazero api.Module, a sandboxed guest with its own
// linear memory, never shared across processes.
type WasmInstance struct {
	mod       api.Module
	mem       api.Memory
	initPages uint32
	initFunc  api.Function
	weaveFunc api.Function
	canonNaN  bool
}

func (w *WasmInstance) Reserve(size uint32, align uint32) (uint64, error) {
	before, ok := w.mem.Grow(0)
	if !ok {
		return 0, fmt.Errorf("engine: memory grow query failed")
	}
	base := uint64(before) * 65536
	if align > 1 {
		rem := base % uint64(align)
		if rem != 0 {
			base += uint64(align) - rem
		}
	}
	pages := (size + 65535) / 65536
	if pages > 0 {
		if _, ok := w.mem.Grow(pages); !ok {
			return 0, fmt.Errorf("engine: memory grow by %d pages failed", pages)
		}
	}
	return base, nil
}

func (w *WasmInstance) Init(argsPtr uint64, argsLen uint32) (int32, error) {
	if w.initFunc == nil {
		return 0, nil
	}
	results, err := w.initFunc.Call(context.Background(), argsPtr, uint64(argsLen))
	if err != nil {
		return 0, err
	}
	return int32(results[0]), nil
}

func (w *WasmInstance) Weave(args codec.FilamentWeaveArgs) (int32, error) {
	if w.weaveFunc == nil {
		return 0, nil
	}
	buf := codec.MarshalWeaveArgs(args)
	ptr, err := w.Reserve(uint32(len(buf)), 8)
	if err != nil {
		return 0, err
	}
	if err := w.WriteMemory(ptr, buf); err != nil {
		return 0, err
	}
	results, err := w.weaveFunc.Call(context.Background(), ptr)
	if err != nil {
		return 0, err
	}
	return int32(results[0]), nil
}

func (w *WasmInstance) ReadMemory(offset uint64, length uint32) ([]byte, error) {
	data, ok := w.mem.Read(uint32(offset), length)
	if !ok {
		return nil, ErrNotInstantiated
	}
	out := make([]byte, length)
	copy(out, data)
	return out, nil
}

func (w *WasmInstance) WriteMemory(offset uint64, data []byte) error {
	if !w.mem.Write(uint32(offset), data) {
		return ErrNotInstantiated
	}
	return nil
}

// ResetMemory discards the instance and relies on the caller to re-instantiate
// from the compiled module for reuse by a Stateless pool; wazero modules have
// no in-place memory-truncation primitive, so pooling recreates rather than
// rewinds.
func (w *WasmInstance) ResetMemory() error {
	return w.mod.Close(context.Background())
}

// CanonicalizeNaN records the caller's preference; wazero's compiler already
// canonicalizes NaN bit patterns per the WebAssembly spec, so this is a
// bookkeeping flag rather than a runtime switch.
func (w *WasmInstance) CanonicalizeNaN(enable bool) { w.canonNaN = enable }

func (w *WasmInstance) Close(ctx context.Context) error {
	return w.mod.Close(ctx)
}
