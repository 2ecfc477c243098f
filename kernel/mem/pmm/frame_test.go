package pmm

import (
	"math"
	"testing"

	"github.com/SafaOS/SafaOS-sub001/kernel/mem"
)

func TestFrameIsValid(t *testing.T) {
	if InvalidFrame.IsValid() {
		t.Fatal("expected InvalidFrame to be invalid")
	}
	if !Frame(0).IsValid() {
		t.Fatal("expected frame 0 to be valid")
	}
}

func TestFrameAddress(t *testing.T) {
	specs := []struct {
		frame Frame
		exp   uintptr
	}{
		{Frame(0), 0},
		{Frame(1), uintptr(mem.PageSize)},
		{Frame(16), 16 * uintptr(mem.PageSize)},
	}

	for specIndex, spec := range specs {
		if got := spec.frame.Address(); got != spec.exp {
			t.Errorf("[spec %d] expected address %#x; got %#x", specIndex, spec.exp, got)
		}
	}
}

func TestFrameFromAddress(t *testing.T) {
	specs := []struct {
		addr uintptr
		exp  Frame
	}{
		{0, Frame(0)},
		{uintptr(mem.PageSize), Frame(1)},
		{uintptr(mem.PageSize) + 1, Frame(1)},
		{uintptr(mem.PageSize)*16 + 100, Frame(16)},
	}

	for specIndex, spec := range specs {
		if got := FrameFromAddress(spec.addr); got != spec.exp {
			t.Errorf("[spec %d] expected frame %d; got %d", specIndex, spec.exp, got)
		}
	}
}

func TestInvalidFrameSentinel(t *testing.T) {
	if uint64(InvalidFrame) != math.MaxUint64 {
		t.Fatalf("expected InvalidFrame to equal math.MaxUint64; got %d", uint64(InvalidFrame))
	}
}
