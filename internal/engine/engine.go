// Package engine provides the pluggable module-execution contract: load
// compiled module bytes, instantiate a sandboxed Instance per process,
// and drive it through the weave/init lifecycle. Two engines implement it -
// a wazero-backed Logic engine for WebAssembly modules and a native engine
// for System/Managed-context modules and tests.
package engine

import (
	"context"
	"errors"

	"github.com/filament-run/filament/internal/codec"
)

var (
	// ErrUnsupportedContext is returned when a module's ContextTag does not
	// match what the engine implementation can host.
	ErrUnsupportedContext = errors.New("engine: unsupported module context")
	// ErrBadDigest is returned when a loaded module's computed digest does
	// not match the digest recorded in its FilamentModuleInfo.
	ErrBadDigest = errors.New("engine: digest mismatch")
	// ErrNotInstantiated is returned by ReadMemory/WriteMemory when the
	// requested range lies outside the instance's addressable memory.
	ErrNotInstantiated = errors.New("engine: instance not instantiated")
)

// Engine loads module code into a reusable, verified Module.
type Engine interface {
	// Load checks info's context tag against what the engine hosts, resolves
	// the module by info's digest (the wasm engine compares it with the
	// SHA-256 of code; the native engine looks it up in its registry), and
	// prepares it for repeated instantiation. It does not check the magic
	// number or ABI version.
	Load(code []byte, info codec.FilamentModuleInfo) (Module, error)
}

// Module is verified, loaded module code, ready to be instantiated once per
// Stateful process or pooled across Stateless instances.
type Module interface {
	Info() codec.FilamentModuleInfo
	Instantiate(ctx context.Context) (Instance, error)
	Close(ctx context.Context) error
}

// Instance is one sandboxed module instance bound to a process's linear
// memory (or its native equivalent). Reserve/Init/Weave mirror the module's
// exported ABI entry points; ResetMemory and CanonicalizeNaN back the
// Stateless pooling path, where an instance is returned to a pool and must
// be scrubbed before reuse.
type Instance interface {
	// Reserve asks the instance to grow its addressable memory by size
	// bytes aligned to align, returning the base offset of the new region.
	Reserve(size uint32, align uint32) (uint64, error)
	// Init calls the module's init entry point with a relocated argument
	// block already written into the instance's memory at argsPtr.
	Init(argsPtr uint64, argsLen uint32) (int32, error)
	// Weave calls the module's weave entry point for one transaction cycle.
	Weave(args codec.FilamentWeaveArgs) (int32, error)
	// ReadMemory copies length bytes starting at offset out of the
	// instance's addressable memory.
	ReadMemory(offset uint64, length uint32) ([]byte, error)
	// WriteMemory copies data into the instance's addressable memory at
	// offset.
	WriteMemory(offset uint64, data []byte) error
	// ResetMemory restores the instance to its post-instantiate state, used
	// before a Stateless instance is returned to its pool.
	ResetMemory() error
	// CanonicalizeNaN toggles NaN-canonicalization for cross-module
	// determinism; enabled by default for Logic-context instances.
	CanonicalizeNaN(enable bool)
	Close(ctx context.Context) error
}
