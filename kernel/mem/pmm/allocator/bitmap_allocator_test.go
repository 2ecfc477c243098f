package allocator

import (
	"testing"

	"github.com/SafaOS/SafaOS-sub001/kernel/mem"
	"github.com/SafaOS/SafaOS-sub001/kernel/mem/pmm"
)

func testMemoryMap(frames uint64) MemoryMap {
	return MemoryMap{
		{PhysAddress: 0, Length: frames * uint64(mem.PageSize), Usable: true},
	}
}

func TestNewReservesMetadataInLargestPool(t *testing.T) {
	alloc, err := New(testMemoryMap(16))
	if err != nil {
		t.Fatal(err)
	}

	if exp, got := uint64(16), alloc.UsableFrames(); exp != got {
		t.Fatalf("expected %d usable frames; got %d", exp, got)
	}
	if exp, got := uint64(metadataFrames), alloc.ReservedFrames(); exp != got {
		t.Fatalf("expected %d reserved frames; got %d", exp, got)
	}
	if exp, got := uint64(16-metadataFrames), alloc.FreeFrames(); exp != got {
		t.Fatalf("expected %d free frames; got %d", exp, got)
	}
}

func TestNewRejectsEmptyMemoryMap(t *testing.T) {
	if _, err := New(MemoryMap{}); err == nil {
		t.Fatal("expected an error for an empty memory map")
	}
}

func TestAllocateAndDeallocateFrame(t *testing.T) {
	alloc, err := New(testMemoryMap(4))
	if err != nil {
		t.Fatal(err)
	}

	freeBefore := alloc.FreeFrames()

	f, ok := alloc.AllocateFrame()
	if !ok {
		t.Fatal("expected to allocate a frame")
	}
	if exp, got := freeBefore-1, alloc.FreeFrames(); exp != got {
		t.Fatalf("expected %d free frames after allocation; got %d", exp, got)
	}

	alloc.DeallocateFrame(f)
	if exp, got := freeBefore, alloc.FreeFrames(); exp != got {
		t.Fatalf("expected %d free frames after deallocation; got %d", exp, got)
	}
}

func TestAllocateFrameExhaustion(t *testing.T) {
	alloc, err := New(testMemoryMap(metadataFrames + 2))
	if err != nil {
		t.Fatal(err)
	}

	var allocated []pmm.Frame
	for {
		f, ok := alloc.AllocateFrame()
		if !ok {
			break
		}
		allocated = append(allocated, f)
	}

	if exp, got := 2, len(allocated); exp != got {
		t.Fatalf("expected to allocate %d frames before exhaustion; got %d", exp, got)
	}
	if exp, got := uint64(0), alloc.FreeFrames(); exp != got {
		t.Fatalf("expected 0 free frames; got %d", got)
	}

	if _, ok := alloc.AllocateFrame(); ok {
		t.Fatal("expected allocation to fail once the pool is exhausted")
	}
}

func TestDeallocateFrameDoubleFreePanics(t *testing.T) {
	alloc, err := New(testMemoryMap(4))
	if err != nil {
		t.Fatal(err)
	}

	f, ok := alloc.AllocateFrame()
	if !ok {
		t.Fatal("expected to allocate a frame")
	}
	alloc.DeallocateFrame(f)

	defer func() {
		if recover() == nil {
			t.Fatal("expected a double free to panic")
		}
	}()
	alloc.DeallocateFrame(f)
}

func TestDeallocateFrameOutsideAnyPoolPanics(t *testing.T) {
	alloc, err := New(testMemoryMap(4))
	if err != nil {
		t.Fatal(err)
	}

	defer func() {
		if recover() == nil {
			t.Fatal("expected deallocating an out-of-range frame to panic")
		}
	}()
	alloc.DeallocateFrame(pmm.Frame(1_000_000))
}

func TestIncDecMappedFrames(t *testing.T) {
	alloc, err := New(testMemoryMap(4))
	if err != nil {
		t.Fatal(err)
	}

	alloc.IncMapped(3)
	if exp, got := uint64(3), alloc.MappedFrames(); exp != got {
		t.Fatalf("expected %d mapped frames; got %d", exp, got)
	}

	alloc.DecMapped(5) // clamps at zero rather than underflowing
	if exp, got := uint64(0), alloc.MappedFrames(); exp != got {
		t.Fatalf("expected mapped frames to clamp at %d; got %d", exp, got)
	}
}
