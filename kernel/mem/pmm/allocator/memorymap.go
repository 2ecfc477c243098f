package allocator

import "github.com/SafaOS/SafaOS-sub001/kernel/mem/pmm"

// MemoryMapEntry describes a single region from the Limine-supplied memory
// map. Usable is false for regions firmware has flagged as reserved,
// ACPI-reclaimable, or otherwise off-limits; such frames are never handed
// out.
type MemoryMapEntry struct {
	PhysAddress uintptr
	Length      uint64
	Usable      bool
}

// MemoryMap is the full set of regions reported at boot.
type MemoryMap []MemoryMapEntry

// UsableFrameRanges returns, for each usable region, the inclusive
// [startFrame, endFrame] range it covers, after rounding the region's
// address range in to whole frames.
func (mm MemoryMap) UsableFrameRanges() []FrameRange {
	var ranges []FrameRange
	for _, e := range mm {
		if !e.Usable || e.Length == 0 {
			continue
		}

		start := pmm.FrameFromAddress(alignUp(e.PhysAddress))
		endExclusive := pmm.FrameFromAddress(alignDown(e.PhysAddress + uintptr(e.Length)))
		if endExclusive == 0 || endExclusive-1 < start {
			continue
		}
		end := endExclusive - 1
		ranges = append(ranges, FrameRange{Start: start, End: end})
	}
	return ranges
}

// FrameRange is an inclusive [Start, End] range of frame numbers.
type FrameRange struct {
	Start, End pmm.Frame
}

// Count returns the number of frames covered by the range.
func (r FrameRange) Count() uint64 {
	return uint64(r.End-r.Start) + 1
}

func alignUp(addr uintptr) uintptr {
	const mask = uintptr(4096 - 1)
	return (addr + mask) &^ mask
}

func alignDown(addr uintptr) uintptr {
	const mask = uintptr(4096 - 1)
	return addr &^ mask
}
