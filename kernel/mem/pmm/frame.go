// Package pmm defines the physical-frame primitives shared by the bitmap
// allocator and the virtual memory manager.
package pmm

import (
	"math"

	"github.com/SafaOS/SafaOS-sub001/kernel/mem"
)

// Frame describes a physical memory page index.
type Frame uint64

// InvalidFrame is returned by allocators when they fail to reserve a frame.
const InvalidFrame = Frame(math.MaxUint64)

// IsValid reports whether this is a real frame.
func (f Frame) IsValid() bool {
	return f != InvalidFrame
}

// Address returns the base physical address of this frame.
func (f Frame) Address() uintptr {
	return uintptr(f) << mem.PageShift
}

// FrameFromAddress returns the Frame that contains the given physical
// address, rounding down to the containing frame if addr is not aligned.
func FrameFromAddress(addr uintptr) Frame {
	return Frame(addr >> mem.PageShift)
}
