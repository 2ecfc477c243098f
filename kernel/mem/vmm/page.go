// Package vmm provides the architecture-neutral page-table abstraction and,
// on top of it, the per-process virtual address space allocator. A
// hardware build would walk real x86_64 page tables through unsafe pointer
// arithmetic over a higher-half-mapped physical address; since this module
// runs as an ordinary Go process with no real MMU, the hierarchy is modeled
// directly as a tree of Go structs (table.go), keeping the same naming
// (Map/Unmap/flags) and the same separation between a low-level table walk
// and the higher-level allocator built on top of it (addr_space.go).
package vmm

import "github.com/SafaOS/SafaOS-sub001/kernel/mem"

// Page describes a virtual memory page index.
type Page uintptr

// Address returns the virtual address this page begins at.
func (p Page) Address() uintptr {
	return uintptr(p) << mem.PageShift
}

// PageFromAddress returns the Page containing the given virtual address,
// rounding down to the containing page if addr is not page-aligned.
func PageFromAddress(addr uintptr) Page {
	return Page(mem.AlignDown(addr) >> mem.PageShift)
}
