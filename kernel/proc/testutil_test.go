package proc

import (
	"testing"

	"github.com/SafaOS/SafaOS-sub001/kernel/mem"
	"github.com/SafaOS/SafaOS-sub001/kernel/mem/pmm"
	"github.com/SafaOS/SafaOS-sub001/kernel/mem/pmm/allocator"
	"github.com/SafaOS/SafaOS-sub001/kernel/mem/vmm"
)

func testAllocAndRAM(t *testing.T, frames uint64) (*allocator.BitmapAllocator, *pmm.RAM) {
	t.Helper()
	alloc, err := allocator.New(allocator.MemoryMap{
		{PhysAddress: 0, Length: frames * uint64(mem.PageSize), Usable: true},
	})
	if err != nil {
		t.Fatal(err)
	}
	return alloc, pmm.NewRAM(mem.Size(frames) * mem.PageSize)
}

func testKernelTable(t *testing.T, alloc *allocator.BitmapAllocator, ram *pmm.RAM) *vmm.PageTable {
	t.Helper()
	pt, err := vmm.New(alloc, ram)
	if err != nil {
		t.Fatal(err)
	}
	return pt
}

// minimalELF returns a minimal valid little-endian x86_64 ELF64 executable
// with a single PT_LOAD segment, for exercising loadELF without shipping a
// real binary in the test tree.
func minimalELF(entryAddr uintptr, code []byte) []byte {
	const (
		ehdrSize = 64
		phdrSize = 56
	)
	entry := uint64(entryAddr)
	total := ehdrSize + phdrSize + len(code)
	buf := make([]byte, total)

	copy(buf[0:4], []byte{0x7f, 'E', 'L', 'F'})
	buf[4] = 2 // ELFCLASS64
	buf[5] = 1 // ELFDATA2LSB
	buf[6] = 1 // EV_CURRENT
	le16(buf[16:18], 2)              // e_type = ET_EXEC
	le16(buf[18:20], 0x3e)           // e_machine = EM_X86_64
	le32(buf[20:24], 1)              // e_version
	le64(buf[24:32], entry)          // e_entry
	le64(buf[32:40], ehdrSize)       // e_phoff
	le64(buf[40:48], 0)              // e_shoff
	le16(buf[52:54], ehdrSize)       // e_ehsize
	le16(buf[54:56], phdrSize)       // e_phentsize
	le16(buf[56:58], 1)              // e_phnum

	ph := buf[ehdrSize : ehdrSize+phdrSize]
	le32(ph[0:4], 1)                   // p_type = PT_LOAD
	le32(ph[4:8], 5)                   // p_flags = R+X
	le64(ph[8:16], ehdrSize+phdrSize)  // p_offset
	le64(ph[16:24], entry)             // p_vaddr
	le64(ph[24:32], entry)             // p_paddr
	le64(ph[32:40], uint64(len(code))) // p_filesz
	le64(ph[40:48], uint64(len(code))) // p_memsz
	le64(ph[48:56], 0x1000)            // p_align

	copy(buf[ehdrSize+phdrSize:], code)
	return buf
}

func le16(dst []byte, v uint16) { dst[0] = byte(v); dst[1] = byte(v >> 8) }
func le32(dst []byte, v uint32) {
	for i := 0; i < 4; i++ {
		dst[i] = byte(v >> (8 * i))
	}
}
func le64(dst []byte, v uint64) {
	for i := 0; i < 8; i++ {
		dst[i] = byte(v >> (8 * i))
	}
}
