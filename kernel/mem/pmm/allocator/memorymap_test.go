package allocator

import (
	"testing"

	"github.com/SafaOS/SafaOS-sub001/kernel/mem"
	"github.com/SafaOS/SafaOS-sub001/kernel/mem/pmm"
)

func TestUsableFrameRangesSkipsUnusableAndEmpty(t *testing.T) {
	mm := MemoryMap{
		{PhysAddress: 0, Length: uint64(4 * mem.PageSize), Usable: true},
		{PhysAddress: uintptr(4 * mem.PageSize), Length: uint64(mem.PageSize), Usable: false},
		{PhysAddress: uintptr(5 * mem.PageSize), Length: 0, Usable: true},
		{PhysAddress: uintptr(6 * mem.PageSize), Length: uint64(2 * mem.PageSize), Usable: true},
	}

	ranges := mm.UsableFrameRanges()
	if exp, got := 2, len(ranges); exp != got {
		t.Fatalf("expected %d ranges; got %d", exp, got)
	}

	if exp, got := (FrameRange{Start: pmm.Frame(0), End: pmm.Frame(3)}), ranges[0]; exp != got {
		t.Fatalf("expected first range %+v; got %+v", exp, got)
	}
	if exp, got := (FrameRange{Start: pmm.Frame(6), End: pmm.Frame(7)}), ranges[1]; exp != got {
		t.Fatalf("expected second range %+v; got %+v", exp, got)
	}
}

func TestUsableFrameRangesRoundsPartialRegionDown(t *testing.T) {
	// A region that is not a whole number of frames long reports every
	// frame it fully covers; the trailing partial frame is dropped when
	// the region's end is rounded down.
	mm := MemoryMap{
		{PhysAddress: 0, Length: uint64(mem.PageSize) + 100, Usable: true},
	}

	ranges := mm.UsableFrameRanges()
	if exp, got := 1, len(ranges); exp != got {
		t.Fatalf("expected %d range; got %d", exp, got)
	}
	if exp, got := uint64(1), ranges[0].Count(); exp != got {
		t.Fatalf("expected range to cover %d frame; got %d", exp, got)
	}
}

func TestUsableFrameRangesSubFrameRegionIsSkipped(t *testing.T) {
	mm := MemoryMap{
		{PhysAddress: 10, Length: 50, Usable: true},
	}

	ranges := mm.UsableFrameRanges()
	if exp, got := 0, len(ranges); exp != got {
		t.Fatalf("expected %d ranges for a sub-frame region; got %d", exp, got)
	}
}

func TestFrameRangeCount(t *testing.T) {
	r := FrameRange{Start: pmm.Frame(10), End: pmm.Frame(10)}
	if exp, got := uint64(1), r.Count(); exp != got {
		t.Fatalf("expected count %d; got %d", exp, got)
	}

	r = FrameRange{Start: pmm.Frame(10), End: pmm.Frame(19)}
	if exp, got := uint64(10), r.Count(); exp != got {
		t.Fatalf("expected count %d; got %d", exp, got)
	}
}
