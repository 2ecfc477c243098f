package vmm

import (
	"errors"
	"sync"

	"github.com/SafaOS/SafaOS-sub001/kernel/config"
	"github.com/SafaOS/SafaOS-sub001/kernel/mem"
	"github.com/SafaOS/SafaOS-sub001/kernel/mem/pmm"
	"github.com/SafaOS/SafaOS-sub001/kernel/mem/pmm/allocator"
)

// ErrNoFreeRange is returned by MapNPages when no run of n consecutive free
// pages, surrounded by the requested guard pages, exists between the search
// origin and the address space's floor.
var ErrNoFreeRange = errors.New("vmm: no free virtual address range")

// ErrDataLimitExceeded is returned by ExtendDataBy when growing the data
// segment would cross the configured break limit.
var ErrDataLimitExceeded = errors.New("vmm: data break limit exceeded")

// AddrSpace is a process's virtual address space: a page table plus the
// bookkeeping needed to find free ranges in it and to grow the classic
// break-pointer data segment. Allocations grow downward from a fixed
// lookupStart toward lower addresses, leaving room above executableEnd for
// break-pointer growth.
type AddrSpace struct {
	mu sync.Mutex

	table *PageTable
	alloc *allocator.BitmapAllocator
	ram   *pmm.RAM

	// executableEnd is the first address above the loaded binary image;
	// extendDataBy grows from here.
	executableEnd uintptr
	// dataBreak is the current end of the break-pointer region.
	dataBreak uintptr
	// lookupStart is where bulk anonymous mappings begin searching,
	// comfortably above executableEnd to leave sbrk-style growth room.
	lookupStart uintptr
	// nextAllocationEnd is the cursor bulk allocations search downward
	// from.
	nextAllocationEnd uintptr
	// floor is the lowest address any allocation may use.
	floor uintptr
}

// NewAddrSpace constructs a VAS from a fresh page table with the kernel
// half copied from kernelTable. executableEnd marks where the loaded
// binary's image ends; lookupStart is where bulk mappings begin searching.
func NewAddrSpace(alloc *allocator.BitmapAllocator, ram *pmm.RAM, kernelTable *PageTable, executableEnd, lookupStart, floor uintptr) (*AddrSpace, error) {
	table, err := New(alloc, ram)
	if err != nil {
		return nil, err
	}
	if kernelTable != nil {
		table.CopyHigherHalf(kernelTable)
	}

	return &AddrSpace{
		table:             table,
		alloc:             alloc,
		ram:               ram,
		executableEnd:     executableEnd,
		dataBreak:         executableEnd,
		lookupStart:       lookupStart,
		nextAllocationEnd: lookupStart,
		floor:             floor,
	}, nil
}

// Table returns the underlying page table, for callers (the scheduler's
// context switch, syscall argument validation) that need raw translation.
func (as *AddrSpace) Table() *PageTable { return as.table }

// PageRange is an inclusive [First, Last] run of mapped pages.
type PageRange struct {
	First, Last Page
}

// Count returns the number of pages in the range.
func (r PageRange) Count() uint64 { return uint64(r.Last-r.First) + 1 }

// MapNPages finds n consecutive free pages, trying first the run that starts
// at addrHint (or at the allocation cursor, initially lookupStart, if
// addrHint is zero) and then stepping downward toward the floor,
// optionally surrounded by guardPages
// unmapped pages on each side, maps them, and returns the range. Frames are
// drawn from framesHint first (in order); once exhausted, fresh frames are
// allocated. Every mapped page is zeroed before return.
func (as *AddrSpace) MapNPages(addrHint uintptr, n uint64, guardPages uint64, flags Flags, framesHint []pmm.Frame) (PageRange, error) {
	as.mu.Lock()
	defer as.mu.Unlock()

	start, err := as.findFreeRunLocked(addrHint, n, guardPages)
	if err != nil {
		return PageRange{}, err
	}

	mapped := make([]Page, 0, n)
	for i := uint64(0); i < n; i++ {
		page := start + Page(i)

		var frame pmm.Frame
		if i < uint64(len(framesHint)) {
			frame = framesHint[i]
		} else {
			f, ok := as.alloc.AllocateFrame()
			if !ok {
				as.rollbackLocked(mapped)
				return PageRange{}, ErrFrameAllocFailed
			}
			frame = f
		}

		if err := as.table.MapTo(page, frame, flags); err != nil {
			if i >= uint64(len(framesHint)) {
				as.alloc.DeallocateFrame(frame)
			}
			as.rollbackLocked(mapped)
			return PageRange{}, err
		}
		if as.ram != nil {
			as.ram.Zero(frame)
		}
		mapped = append(mapped, page)
	}

	last := start + Page(n-1)
	if start.Address() < as.nextAllocationEnd {
		as.nextAllocationEnd = start.Address()
	}
	return PageRange{First: start, Last: last}, nil
}

func (as *AddrSpace) rollbackLocked(mapped []Page) {
	for _, p := range mapped {
		if f, ok := as.table.GetFrame(p); ok {
			_ = as.table.Unmap(p)
			as.alloc.DeallocateFrame(f)
		}
	}
}

// findFreeRunLocked scans downward from the search origin for n consecutive
// unmapped pages with guardPages of unmapped pages free on either side.
func (as *AddrSpace) findFreeRunLocked(addrHint uintptr, n, guardPages uint64) (Page, error) {
	origin := as.nextAllocationEnd
	if addrHint != 0 {
		origin = addrHint
	}

	total := n + 2*guardPages
	candidate := PageFromAddress(origin)

	for uintptr(candidate)<<mem.PageShift >= as.floor {
		runStart := candidate - Page(guardPages)
		if uintptr(runStart)<<mem.PageShift < as.floor {
			break
		}

		if as.runFreeLocked(runStart, total) {
			return candidate, nil
		}
		candidate -= Page(total)
	}

	return 0, ErrNoFreeRange
}

func (as *AddrSpace) runFreeLocked(start Page, n uint64) bool {
	for i := uint64(0); i < n; i++ {
		if _, ok := as.table.GetFrame(start + Page(i)); ok {
			return false
		}
	}
	return true
}

// TrackedMapping is a VAS allocation whose Drop (Close) unmaps its pages and
// returns their frames, giving callers an RAII-style handle instead of a
// bare range they must remember to free.
type TrackedMapping struct {
	as    *AddrSpace
	rng   PageRange
	freed bool
}

// Range returns the page range backing this mapping.
func (m *TrackedMapping) Range() PageRange { return m.rng }

// Close unmaps the tracked range and frees its frames. Calling Close twice
// is a no-op.
func (m *TrackedMapping) Close() error {
	if m.freed {
		return nil
	}
	m.freed = true
	return m.as.FreeUnmapRange(m.rng)
}

// MapNPagesTracked behaves like MapNPages but returns a handle whose Close
// unmaps the range and releases its frames.
func (as *AddrSpace) MapNPagesTracked(addrHint uintptr, n uint64, guardPages uint64, flags Flags, framesHint []pmm.Frame) (*TrackedMapping, error) {
	rng, err := as.MapNPages(addrHint, n, guardPages, flags, framesHint)
	if err != nil {
		return nil, err
	}
	return &TrackedMapping{as: as, rng: rng}, nil
}

// FreeUnmapRange unmaps every page in rng and returns its frames to the
// allocator.
func (as *AddrSpace) FreeUnmapRange(rng PageRange) error {
	as.mu.Lock()
	defer as.mu.Unlock()

	for p := rng.First; p <= rng.Last; p++ {
		frame, ok := as.table.GetFrame(p)
		if !ok {
			continue
		}
		if err := as.table.Unmap(p); err != nil {
			return err
		}
		as.alloc.DeallocateFrame(frame)
	}
	return nil
}

// ExtendDataBy grows (delta > 0) or shrinks (delta < 0) the break-pointer
// data segment by delta bytes, page-aligning internally, and returns the
// new break address. Growth beyond the configured data-break limit past
// executableEnd fails without mutating the VAS.
func (as *AddrSpace) ExtendDataBy(delta int64) (uintptr, error) {
	as.mu.Lock()
	defer as.mu.Unlock()

	limit := as.executableEnd + uintptr(config.Get().DataBreakLimitBytes)
	newBreak := uintptr(int64(as.dataBreak) + delta)

	if delta > 0 {
		if newBreak > limit {
			return as.dataBreak, ErrDataLimitExceeded
		}
		oldPage := PageFromAddress(mem.AlignUp(as.dataBreak))
		newPage := PageFromAddress(mem.AlignUp(newBreak))
		for p := oldPage; p < newPage; p++ {
			if _, ok := as.table.GetFrame(p); ok {
				continue
			}
			f, ok := as.alloc.AllocateFrame()
			if !ok {
				for q := oldPage; q < p; q++ {
					if fq, ok := as.table.GetFrame(q); ok {
						_ = as.table.Unmap(q)
						as.alloc.DeallocateFrame(fq)
					}
				}
				return as.dataBreak, ErrFrameAllocFailed
			}
			if err := as.table.MapTo(p, f, FlagWritable|FlagUser); err != nil {
				as.alloc.DeallocateFrame(f)
				return as.dataBreak, err
			}
			if as.ram != nil {
				as.ram.Zero(f)
			}
		}
	} else if delta < 0 {
		if newBreak < as.executableEnd {
			newBreak = as.executableEnd
		}
		oldPage := PageFromAddress(mem.AlignUp(as.dataBreak))
		newPage := PageFromAddress(mem.AlignUp(newBreak))
		for p := newPage; p < oldPage; p++ {
			if f, ok := as.table.GetFrame(p); ok {
				_ = as.table.Unmap(p)
				as.alloc.DeallocateFrame(f)
			}
		}
	}

	as.dataBreak = newBreak
	return as.dataBreak, nil
}

// DataBreak returns the current break-pointer address.
func (as *AddrSpace) DataBreak() uintptr {
	as.mu.Lock()
	defer as.mu.Unlock()
	return as.dataBreak
}
