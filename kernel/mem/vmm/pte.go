package vmm

// Flags describes the permission bits attached to a page-table entry:
// readable is implicit, the rest are opt-in.
type Flags uint8

const (
	// FlagWritable marks the page as writable; absent, it is read-only.
	FlagWritable Flags = 1 << iota
	// FlagUser marks the page as accessible from user mode.
	FlagUser
	// FlagExecutable marks the page as executable. When absent the
	// architecture layer is expected to set the DEP/NX bit.
	FlagExecutable
	// FlagDeviceUncacheable marks the page as MMIO (no caching).
	FlagDeviceUncacheable
)

// Has reports whether all bits of want are set in f.
func (f Flags) Has(want Flags) bool {
	return f&want == want
}
