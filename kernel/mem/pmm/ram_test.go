package pmm

import (
	"testing"

	"github.com/SafaOS/SafaOS-sub001/kernel/mem"
)

func TestNewRAMRoundsUpToWholeFrames(t *testing.T) {
	r := NewRAM(mem.Size(1))
	if exp, got := uint64(1), r.Frames(); exp != got {
		t.Fatalf("expected %d frame; got %d", exp, got)
	}

	r = NewRAM(4 * mem.PageSize)
	if exp, got := uint64(4), r.Frames(); exp != got {
		t.Fatalf("expected %d frames; got %d", exp, got)
	}
}

func TestFrameBytesAliasesStorage(t *testing.T) {
	r := NewRAM(2 * mem.PageSize)

	b := r.FrameBytes(Frame(0))
	if exp, got := int(mem.PageSize), len(b); exp != got {
		t.Fatalf("expected frame slice of length %d; got %d", exp, got)
	}

	b[0] = 0xAB
	if got := r.FrameBytes(Frame(0))[0]; got != 0xAB {
		t.Fatalf("expected write through aliased slice to be observable; got %#x", got)
	}

	// Frame 1 must be unaffected.
	if got := r.FrameBytes(Frame(1))[0]; got != 0 {
		t.Fatalf("expected frame 1 to be untouched; got %#x", got)
	}
}

func TestZeroClearsFrame(t *testing.T) {
	r := NewRAM(mem.PageSize)
	b := r.FrameBytes(Frame(0))
	for i := range b {
		b[i] = 0xFF
	}

	r.Zero(Frame(0))

	for i, v := range r.FrameBytes(Frame(0)) {
		if v != 0 {
			t.Fatalf("expected byte %d to be zeroed; got %#x", i, v)
		}
	}
}
