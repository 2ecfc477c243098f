// Package allocator implements the kernel's physical frame allocator as a
// bitmap over the usable regions reported by the bootloader's memory map.
// A hardware build would pack the free bitmap directly into raw physical
// memory located via unsafe pointer arithmetic tied to a real higher-half
// direct map; since this module has no real hardware backing, the bitmap
// lives in an ordinary Go slice, while keeping the same pool layout,
// reservation bookkeeping and metadata self-hosting (it reserves a small
// region inside the largest usable memory block).
package allocator

import (
	"fmt"
	"sync"

	"github.com/SafaOS/SafaOS-sub001/kernel/kfmt/early"
	"github.com/SafaOS/SafaOS-sub001/kernel/mem/pmm"
)

type framePool struct {
	startFrame pmm.Frame
	endFrame   pmm.Frame
	freeCount  uint64
	// bitmap[i] set means frame (startFrame+i) is allocated/reserved.
	bitmap []bool
}

func (p *framePool) contains(f pmm.Frame) bool {
	return f >= p.startFrame && f <= p.endFrame
}

// BitmapAllocator implements the physical frame allocator. All methods are
// safe for concurrent use: a single mutex is held only across allocator
// calls.
type BitmapAllocator struct {
	mu sync.Mutex

	pools []framePool

	totalFrames    uint64
	reservedFrames uint64

	// mappedFrames is an observability counter the VMM raises and lowers
	// through IncMapped/DecMapped.
	mappedFrames  uint64
	allocCalls    uint64
	dallocCalls   uint64
	metadataOwned uint64
}

// metadataFrames is how many frames worth of bookkeeping we reserve inside
// the largest pool to stand in for the allocator's own self-hosted
// bitmap/pool arrays.
const metadataFrames = 1

// New builds a BitmapAllocator from the bootloader-reported memory map. It
// reserves a small number of frames inside the largest usable pool to model
// the allocator's own metadata footprint, self-hosting its bookkeeping
// inside the memory it manages.
func New(mm MemoryMap) (*BitmapAllocator, error) {
	ranges := mm.UsableFrameRanges()
	if len(ranges) == 0 {
		return nil, fmt.Errorf("pmm: no usable memory regions in memory map")
	}

	alloc := &BitmapAllocator{pools: make([]framePool, len(ranges))}

	largest := 0
	for i, r := range ranges {
		alloc.pools[i] = framePool{
			startFrame: r.Start,
			endFrame:   r.End,
			freeCount:  r.Count(),
			bitmap:     make([]bool, r.Count()),
		}
		alloc.totalFrames += r.Count()
		if r.Count() > ranges[largest].Count() {
			largest = i
		}
	}

	reserve := uint64(metadataFrames)
	if reserve > alloc.pools[largest].freeCount {
		reserve = alloc.pools[largest].freeCount
	}
	for i := uint64(0); i < reserve; i++ {
		alloc.pools[largest].bitmap[i] = true
	}
	alloc.pools[largest].freeCount -= reserve
	alloc.reservedFrames += reserve
	alloc.metadataOwned = reserve

	early.Printf(
		"[pmm] page stats: free: %d/%d (%d reserved)\n",
		alloc.totalFrames-alloc.reservedFrames, alloc.totalFrames, alloc.reservedFrames,
	)

	return alloc, nil
}

// AllocateFrame reserves and returns a free frame. Its contents are
// undefined; callers that need zeroed memory must zero it themselves via
// pmm.RAM.Zero. Returns (pmm.InvalidFrame, false) on OOM.
func (alloc *BitmapAllocator) AllocateFrame() (pmm.Frame, bool) {
	alloc.mu.Lock()
	defer alloc.mu.Unlock()

	for p := range alloc.pools {
		pool := &alloc.pools[p]
		if pool.freeCount == 0 {
			continue
		}
		for i, used := range pool.bitmap {
			if used {
				continue
			}
			pool.bitmap[i] = true
			pool.freeCount--
			alloc.reservedFrames++
			alloc.allocCalls++
			return pool.startFrame + pmm.Frame(i), true
		}
	}

	return pmm.InvalidFrame, false
}

// DeallocateFrame returns f to the free pool. Deallocating a frame that was
// never allocated from this allocator, or that lies outside any usable
// region, is a programmer error and panics.
func (alloc *BitmapAllocator) DeallocateFrame(f pmm.Frame) {
	alloc.mu.Lock()
	defer alloc.mu.Unlock()

	for p := range alloc.pools {
		pool := &alloc.pools[p]
		if !pool.contains(f) {
			continue
		}

		idx := f - pool.startFrame
		if !pool.bitmap[idx] {
			panic(fmt.Sprintf("pmm: double free of frame %#x", f.Address()))
		}

		pool.bitmap[idx] = false
		pool.freeCount++
		alloc.reservedFrames--
		alloc.dallocCalls++
		return
	}

	panic(fmt.Sprintf("pmm: deallocate of frame %#x outside any usable region", f.Address()))
}

// MappedFrames returns the number of frames currently mapped into some
// address space, as tracked by the VMM via IncMapped/DecMapped.
func (alloc *BitmapAllocator) MappedFrames() uint64 {
	alloc.mu.Lock()
	defer alloc.mu.Unlock()
	return alloc.mappedFrames
}

// IncMapped/DecMapped let the vmm package report frames entering/leaving a
// mapped state, independent of allocation state (a frame can be allocated
// but briefly unmapped, e.g. while being moved).
func (alloc *BitmapAllocator) IncMapped(n uint64) {
	alloc.mu.Lock()
	alloc.mappedFrames += n
	alloc.mu.Unlock()
}

func (alloc *BitmapAllocator) DecMapped(n uint64) {
	alloc.mu.Lock()
	if n > alloc.mappedFrames {
		n = alloc.mappedFrames
	}
	alloc.mappedFrames -= n
	alloc.mu.Unlock()
}

// UsableFrames returns the total number of frames available across all
// pools, including ones currently allocated.
func (alloc *BitmapAllocator) UsableFrames() uint64 {
	alloc.mu.Lock()
	defer alloc.mu.Unlock()
	return alloc.totalFrames
}

// ReservedFrames returns the number of frames currently allocated or
// reserved for allocator metadata.
func (alloc *BitmapAllocator) ReservedFrames() uint64 {
	alloc.mu.Lock()
	defer alloc.mu.Unlock()
	return alloc.reservedFrames
}

// FreeFrames returns the number of frames still available for allocation.
func (alloc *BitmapAllocator) FreeFrames() uint64 {
	return alloc.UsableFrames() - alloc.ReservedFrames()
}
