package vfs

import "io"

// Offset is an open descriptor's seek position.
type Offset = int64

// Node is the minimal capability every VFS entry implements: enough to
// stat it and to list it if it is a directory. Optional capabilities
// (Reader, Writer, Truncater, ...) are discovered with a type assertion,
// the same capability-interface pattern kfmt/early and the driver tree
// use for the hardware-facing hooks: every node exposes only the
// operations it actually supports.
type Node interface {
	Attrs() Attrs
	Name() string
}

// Reader is implemented by nodes that support positioned reads.
type Reader interface {
	Node
	ReadAt(buf []byte, off Offset) (int, error)
}

// Writer is implemented by nodes that support positioned writes.
type Writer interface {
	Node
	WriteAt(buf []byte, off Offset) (int, error)
}

// Truncater is implemented by nodes whose size can be changed directly.
type Truncater interface {
	Node
	Truncate(size uint64) error
}

// Syncer is implemented by nodes that buffer writes and can flush them.
type Syncer interface {
	Node
	Sync() error
}

// DirIterOpener is implemented by directory nodes.
type DirIterOpener interface {
	Node
	OpenDirIter() (DirIter, error)
}

// DirCreator is implemented by directory nodes that support creating
// children directly (ramfs, sysfs at build time).
type DirCreator interface {
	Node
	CreateChild(name string, kind NodeKind) (Node, error)
	RemoveChild(name string) error
	Lookup(name string) (Node, bool)
}

// CmdResult is the outcome of a device Command call: the device
// ioctl-style "ctl" dispatch (GetInfo/Sync for framebuffer,
// GetFlags/SetFlags for tty).
type CmdResult struct {
	Value uint64
}

// Commander is implemented by device nodes that accept numeric command
// codes (devfs framebuffer/tty ctl opcodes).
type Commander interface {
	Node
	Command(cmd uint64, arg uint64) (CmdResult, error)
}

// MMapOpener is implemented by nodes that can back a memory mapping
// directly (framebuffer device memory, for instance).
type MMapOpener interface {
	Node
	MMap(offset Offset, length uint64) ([]byte, error)
}

// DirIter walks a directory's children one DirEntry at a time.
type DirIter interface {
	Next() (DirEntry, error)
}

// ErrEndOfDir is returned by a DirIter once all entries are exhausted.
var ErrEndOfDir = io.EOF
