package pmm

import "github.com/SafaOS/SafaOS-sub001/kernel/mem"

// RAM is a host-addressable stand-in for the physical memory a real kernel
// accesses through the higher-half direct map. The bootloader hands the
// kernel a memory map describing real physical RAM; since this module runs
// as an ordinary Go process rather than on bare metal, RAM backs every
// Frame with an actual byte slice so that allocator zero-fill, alloc_map
// and mmap round-trips are observable and testable.
type RAM struct {
	bytes []byte
}

// NewRAM allocates a simulated RAM of the given size, rounded up to a whole
// number of frames.
func NewRAM(size mem.Size) *RAM {
	frames := size.Pages()
	return &RAM{bytes: make([]byte, frames*uint64(mem.PageSize))}
}

// Frames returns the total number of frames backed by this RAM.
func (r *RAM) Frames() uint64 {
	return uint64(len(r.bytes)) / uint64(mem.PageSize)
}

// FrameBytes returns the backing slice for a single frame. The returned
// slice aliases RAM's storage; callers must not retain it past the frame's
// lifetime.
func (r *RAM) FrameBytes(f Frame) []byte {
	start := uint64(f) * uint64(mem.PageSize)
	return r.bytes[start : start+uint64(mem.PageSize)]
}

// Zero clears a frame's contents to zero.
func (r *RAM) Zero(f Frame) {
	mem.Memset(r.FrameBytes(f), 0)
}
