// Package blob implements the Filament memory plane: a handle-indexed buffer
// allocator with reference counting, ephemeral/retained bookkeeping, and an
// optional DMA-backed pool for the System execution context.
package blob

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/filament-run/filament/internal/constants"
)

// Flags are the alloc-time dma_flags bits.
type Flags uint32

const (
	FlagDMARequired Flags = 1 << iota
	FlagDMAOptional
)

// Perm is the R/W/X grant attached to a reference acquired at map time.
type Perm uint32

const (
	PermRead Perm = 1 << iota
	PermWrite
	PermExec
)

// shard is a lock-protected segment of the pool, selected by handle. It does
// not carve allocations out of a shared byte region: each standard
// allocation is its own heap slice, and free is never filled or reused.
type shard struct {
	mu   sync.Mutex
	free [][]byte
}

// Pool hands out backing byte slices for blob allocations. Standard
// allocations are individual Go heap slices of the requested size (at least
// MinBlobBytes); DMA allocations come from anonymous mmap regions so
// native/System-context modules can receive a stable, page-aligned address.
type Pool struct {
	shards []shard
	dmaMu  sync.Mutex
	dmaRegions [][]byte
	dmaEnabled bool
}

// NewPool creates a pool with shardCount independent free-list shards.
// dmaEnabled controls whether FlagDMARequired allocations can succeed; hosts
// without a DMA-capable backend construct the pool with dmaEnabled=false so
// DMA-required allocs deterministically return ERR_OOM.
func NewPool(shardCount int, dmaEnabled bool) *Pool {
	if shardCount < 1 {
		shardCount = 1
	}
	return &Pool{
		shards:     make([]shard, shardCount),
		dmaEnabled: dmaEnabled,
	}
}

func (p *Pool) shardFor(handle uint64) *shard {
	return &p.shards[handle%uint64(len(p.shards))]
}

// Acquire returns size bytes of backing storage for handle, honoring flags.
// DMA-required allocations use mmap'd anonymous memory; DMA-optional and
// plain allocations use the Go heap. If both DMA bits are set, the request
// is treated as DMA-optional.
func (p *Pool) Acquire(handle uint64, size int, flags Flags) ([]byte, error) {
	if size < constants.MinBlobBytes {
		size = constants.MinBlobBytes
	}
	dmaRequired := flags&FlagDMARequired != 0 && flags&FlagDMAOptional == 0
	if dmaRequired {
		if !p.dmaEnabled {
			return nil, fmt.Errorf("blob: dma pool unavailable")
		}
		return p.acquireDMA(size)
	}
	sh := p.shardFor(handle)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return make([]byte, size), nil
}

func (p *Pool) acquireDMA(size int) ([]byte, error) {
	p.dmaMu.Lock()
	defer p.dmaMu.Unlock()
	region, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("blob: dma mmap: %w", err)
	}
	p.dmaRegions = append(p.dmaRegions, region)
	return region, nil
}

// Release returns backing storage to the pool. DMA regions are munmap'd;
// heap-backed buffers are left for the garbage collector.
func (p *Pool) Release(data []byte, flags Flags) error {
	dmaRequired := flags&FlagDMARequired != 0 && flags&FlagDMAOptional == 0
	if !dmaRequired {
		return nil
	}
	p.dmaMu.Lock()
	defer p.dmaMu.Unlock()
	for i, r := range p.dmaRegions {
		if &r[0] == &data[0] {
			p.dmaRegions = append(p.dmaRegions[:i], p.dmaRegions[i+1:]...)
			break
		}
	}
	return unix.Munmap(data)
}
