package vmm

import (
	"errors"
	"sync"

	"github.com/SafaOS/SafaOS-sub001/kernel/mem"
	"github.com/SafaOS/SafaOS-sub001/kernel/mem/pmm"
	"github.com/SafaOS/SafaOS-sub001/kernel/mem/pmm/allocator"
)

const (
	pageLevels      = 4
	bitsPerLevel    = 9
	entriesPerLevel = 1 << bitsPerLevel
	// kernelHalfIndex is the top-level table index at which the kernel
	// half begins. Higher-half entries are shared between all page
	// tables: half of the top-level table's entries are reserved for the
	// kernel, the other half for user mappings.
	kernelHalfIndex = entriesPerLevel / 2
)

// MapError enumerates the failure modes of a single map_to call.
type MapError struct {
	Reason string
}

func (e *MapError) Error() string { return "vmm: " + e.Reason }

var (
	ErrAlreadyMapped       = &MapError{Reason: "page already mapped"}
	ErrFrameAllocFailed    = &MapError{Reason: "frame allocation failed"}
	ErrInvalidAlignment    = &MapError{Reason: "address not page aligned"}
	ErrInvalidMapping      = errors.New("vmm: page is not mapped")
	ErrHugePageUnsupported = errors.New("vmm: huge pages are not supported")
)

func levelIndex(page Page, level int) int {
	shift := bitsPerLevel * (pageLevels - 1 - level)
	return int(uint64(page) >> shift & (entriesPerLevel - 1))
}

// entry is a single page-table entry. For non-leaf levels child points at
// the next table down; for the leaf level frame/flags describe the mapping.
type entry struct {
	present bool
	frame   pmm.Frame
	flags   Flags
	child   *table
}

// table is one level of the hierarchical page table. Each non-root table
// consumes one frame from the allocator, so that dropping a process frees
// its intermediate-level tables along with the rest of its address space.
type table struct {
	entries    [entriesPerLevel]entry
	frame      pmm.Frame
	ownsFrame  bool
	liveCount  int // number of present entries, used to prune empty tables
}

// PageTable is the architecture-neutral mapping API. A PageTable owns
// exactly one root table per process.
type PageTable struct {
	mu    sync.RWMutex
	root  *table
	alloc *allocator.BitmapAllocator
	ram   *pmm.RAM
}

// New creates a fresh, empty page table with no kernel-half mappings. Use
// CopyHigherHalf to populate the kernel half from an existing table.
func New(alloc *allocator.BitmapAllocator, ram *pmm.RAM) (*PageTable, error) {
	root, err := newTable(alloc, false)
	if err != nil {
		return nil, err
	}
	return &PageTable{root: root, alloc: alloc, ram: ram}, nil
}

func newTable(alloc *allocator.BitmapAllocator, ownsFrame bool) (*table, error) {
	t := &table{ownsFrame: ownsFrame}
	if ownsFrame {
		f, ok := alloc.AllocateFrame()
		if !ok {
			return nil, ErrFrameAllocFailed
		}
		t.frame = f
	}
	return t, nil
}

// MapTo installs a single mapping, allocating intermediate-level tables as
// needed.
func (pt *PageTable) MapTo(page Page, frame pmm.Frame, flags Flags) error {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	cur := pt.root
	for level := 0; level < pageLevels-1; level++ {
		idx := levelIndex(page, level)
		e := &cur.entries[idx]
		if !e.present {
			child, err := newTable(pt.alloc, true)
			if err != nil {
				return err
			}
			e.present = true
			e.child = child
			cur.liveCount++
		}
		cur = e.child
	}

	idx := levelIndex(page, pageLevels-1)
	leaf := &cur.entries[idx]
	if leaf.present {
		return ErrAlreadyMapped
	}

	leaf.present = true
	leaf.frame = frame
	leaf.flags = flags
	cur.liveCount++
	pt.alloc.IncMapped(1)
	return nil
}

// GetFrame translates a page to its backing frame, if mapped.
func (pt *PageTable) GetFrame(page Page) (pmm.Frame, bool) {
	pt.mu.RLock()
	defer pt.mu.RUnlock()

	leaf := pt.walkLeaf(page)
	if leaf == nil || !leaf.present {
		return pmm.InvalidFrame, false
	}
	return leaf.frame, true
}

func (pt *PageTable) walkLeaf(page Page) *entry {
	cur := pt.root
	for level := 0; level < pageLevels-1; level++ {
		idx := levelIndex(page, level)
		e := &cur.entries[idx]
		if !e.present {
			return nil
		}
		cur = e.child
	}
	return &cur.entries[levelIndex(page, pageLevels-1)]
}

// Unmap removes the mapping for page; the caller owns the frame afterward
// and is responsible for freeing it if appropriate.
func (pt *PageTable) Unmap(page Page) error {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	return pt.unmapLocked(page)
}

func (pt *PageTable) unmapLocked(page Page) error {
	var path [pageLevels]*table
	cur := pt.root
	path[0] = cur
	for level := 0; level < pageLevels-1; level++ {
		idx := levelIndex(page, level)
		e := &cur.entries[idx]
		if !e.present {
			return ErrInvalidMapping
		}
		cur = e.child
		path[level+1] = cur
	}

	idx := levelIndex(page, pageLevels-1)
	leaf := &cur.entries[idx]
	if !leaf.present {
		return ErrInvalidMapping
	}
	leaf.present = false
	cur.liveCount--
	pt.alloc.DecMapped(1)

	// Prune intermediate tables that became fully empty, freeing their
	// frames back to the allocator.
	for level := pageLevels - 2; level >= 0; level-- {
		child := path[level+1]
		if child.liveCount > 0 {
			break
		}
		parentIdx := levelIndex(page, level)
		parent := path[level]
		parent.entries[parentIdx].present = false
		parent.entries[parentIdx].child = nil
		parent.liveCount--
		if child.ownsFrame {
			pt.alloc.DeallocateFrame(child.frame)
		}
	}

	return nil
}

// MapContiguous atomically maps nPages consecutive pages starting at
// virtStart to nPages consecutive frames starting at physStart. On partial
// failure, every mapping already installed by this call is rolled back.
func (pt *PageTable) MapContiguous(virtStart Page, physStart pmm.Frame, nPages uint64, flags Flags) error {
	var i uint64
	for ; i < nPages; i++ {
		if err := pt.MapTo(virtStart+Page(i), physStart+pmm.Frame(i), flags); err != nil {
			for j := uint64(0); j < i; j++ {
				_ = pt.Unmap(virtStart + Page(j))
			}
			return err
		}
	}
	return nil
}

// AllocMap allocates fresh frames and maps them over [start, start+n),
// zeroing each page's contents.
func (pt *PageTable) AllocMap(start Page, nPages uint64, flags Flags) error {
	allocated := make([]pmm.Frame, 0, nPages)
	for i := uint64(0); i < nPages; i++ {
		f, ok := pt.alloc.AllocateFrame()
		if !ok {
			for _, af := range allocated {
				pt.alloc.DeallocateFrame(af)
			}
			return ErrFrameAllocFailed
		}
		allocated = append(allocated, f)
	}

	for i, f := range allocated {
		if err := pt.MapTo(start+Page(i), f, flags); err != nil {
			for j := i; j < len(allocated); j++ {
				pt.alloc.DeallocateFrame(allocated[j])
			}
			for j := 0; j < i; j++ {
				_ = pt.Unmap(start + Page(j))
			}
			return err
		}
		if pt.ram != nil {
			pt.ram.Zero(f)
		}
	}
	return nil
}

// FreeUnmap unmaps [start, start+n) and returns the underlying frames to
// the allocator.
func (pt *PageTable) FreeUnmap(start Page, nPages uint64) error {
	for i := uint64(0); i < nPages; i++ {
		page := start + Page(i)
		frame, ok := pt.GetFrame(page)
		if !ok {
			continue
		}
		if err := pt.Unmap(page); err != nil {
			return err
		}
		pt.alloc.DeallocateFrame(frame)
	}
	return nil
}

// CopyHigherHalf duplicates the kernel-half top-level entries from src into
// pt so that all address spaces share the same kernel mappings.
func (pt *PageTable) CopyHigherHalf(src *PageTable) {
	src.mu.RLock()
	defer src.mu.RUnlock()
	pt.mu.Lock()
	defer pt.mu.Unlock()

	for idx := kernelHalfIndex; idx < entriesPerLevel; idx++ {
		pt.root.entries[idx] = src.root.entries[idx]
	}
}

// Read copies len(dst) bytes from the mapping backing vaddr, using pt's RAM
// to resolve frame contents. It is used by VAS-level helpers and tests that
// need to observe mapped memory contents (e.g. zero-fill, mmap round-trips).
func (pt *PageTable) Read(vaddr uintptr, dst []byte) (int, error) {
	return pt.ioAt(vaddr, dst, false)
}

// Write copies len(src) bytes into the mapping backing vaddr.
func (pt *PageTable) Write(vaddr uintptr, src []byte) (int, error) {
	return pt.ioAt(vaddr, src, true)
}

func (pt *PageTable) ioAt(vaddr uintptr, buf []byte, write bool) (int, error) {
	done := 0
	for done < len(buf) {
		page := PageFromAddress(vaddr)
		frame, ok := pt.GetFrame(page)
		if !ok {
			return done, ErrInvalidMapping
		}

		offset := vaddr - page.Address()
		chunk := uintptr(mem.PageSize) - offset
		remaining := uintptr(len(buf) - done)
		if chunk > remaining {
			chunk = remaining
		}

		frameBytes := pt.ram.FrameBytes(frame)
		if write {
			copy(frameBytes[offset:], buf[done:done+int(chunk)])
		} else {
			copy(buf[done:done+int(chunk)], frameBytes[offset:])
		}

		done += int(chunk)
		vaddr += chunk
	}
	return done, nil
}
