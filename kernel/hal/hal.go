// Package hal provides the architecture-neutral hardware abstraction surface
// consumed by the early boot path. Concrete drivers (framebuffer rendering,
// serial, PS/2, xHCI/USB) do physical device bring-up elsewhere; this
// package specifies only the contract the core nucleus expects from them.
package hal

import "io"

// Terminal is the minimal output surface the early boot path and the kernel
// panic handler require. Concrete consoles (framebuffer text, serial) are
// wired in by arch-specific bring-up code, out of scope here.
type Terminal interface {
	io.Writer
	io.ByteWriter
	Clear()
}

// ActiveTerminal points to the currently active terminal. It defaults to a
// discarding terminal so that packages can log before a concrete terminal
// has been attached (e.g. in tests).
var ActiveTerminal Terminal = discardTerminal{}

// SetActiveTerminal installs t as the terminal used by kernel/kfmt/early and
// kernel.Panic.
func SetActiveTerminal(t Terminal) {
	if t == nil {
		t = discardTerminal{}
	}
	ActiveTerminal = t
}

type discardTerminal struct{}

func (discardTerminal) Write(p []byte) (int, error) { return len(p), nil }
func (discardTerminal) WriteByte(byte) error        { return nil }
func (discardTerminal) Clear()                      {}
