package vfs

import "sync"

// OpenOptions is the bitmask passed to Open/OpenAll.
type OpenOptions uint32

const (
	OptRead      OpenOptions = 1 << 0
	OptWrite     OpenOptions = 1 << 1
	OptAppend    OpenOptions = 1 << 2
	OptCreateNew OpenOptions = 1 << 3
	OptTruncate  OpenOptions = 1 << 4
)

func (o OpenOptions) Has(flag OpenOptions) bool { return o&flag != 0 }

// Descriptor is an open handle onto a Node: a Ri-backed resource holding
// the node, the options it was opened with, and a cursor for sequential
// reads/writes. Follows the same small mutable struct guarded by its own
// mutex pattern kernel/mem/pmm/vmm uses rather than relying on the caller
// to serialize access.
type Descriptor struct {
	mu     sync.Mutex
	node   Node
	opts   OpenOptions
	cursor Offset
	dir    DirIter
}

// NewDescriptor wraps node as an open handle with opts.
func NewDescriptor(node Node, opts OpenOptions) *Descriptor {
	return &Descriptor{node: node, opts: opts}
}

func (d *Descriptor) Node() Node { return d.node }

func (d *Descriptor) Options() OpenOptions { return d.opts }

// Read reads into buf starting at the descriptor's current cursor and
// advances it.
func (d *Descriptor) Read(buf []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.opts.Has(OptRead) {
		return 0, NewError(ErrOperationNotSupported, "descriptor not opened for read")
	}
	r, ok := d.node.(Reader)
	if !ok {
		return 0, NewError(ErrOperationNotSupported, "node does not support read")
	}
	n, err := r.ReadAt(buf, d.cursor)
	d.cursor += Offset(n)
	return n, err
}

// Write writes buf at the descriptor's current cursor (or at EOF if the
// descriptor was opened with OptAppend) and advances the cursor.
func (d *Descriptor) Write(buf []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.opts.Has(OptWrite) {
		return 0, NewError(ErrOperationNotSupported, "descriptor not opened for write")
	}
	w, ok := d.node.(Writer)
	if !ok {
		return 0, NewError(ErrOperationNotSupported, "node does not support write")
	}
	if d.opts.Has(OptAppend) {
		d.cursor = Offset(d.node.Attrs().Size)
	}
	n, err := w.WriteAt(buf, d.cursor)
	d.cursor += Offset(n)
	return n, err
}

// Seek repositions the cursor, interpreting whence like io.Seeker
// (0=start, 1=current, 2=end).
func (d *Descriptor) Seek(offset Offset, whence int) (Offset, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var base Offset
	switch whence {
	case 0:
		base = 0
	case 1:
		base = d.cursor
	case 2:
		base = Offset(d.node.Attrs().Size)
	default:
		return 0, NewError(ErrInvalidArg, "bad whence")
	}
	next := base + offset
	if next < 0 {
		return 0, NewError(ErrInvalidOffset, "negative result")
	}
	d.cursor = next
	return d.cursor, nil
}

// Truncate resizes the underlying node if it supports it.
func (d *Descriptor) Truncate(size uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	t, ok := d.node.(Truncater)
	if !ok {
		return NewError(ErrOperationNotSupported, "node does not support truncate")
	}
	return t.Truncate(size)
}

// Sync flushes the underlying node if it buffers writes.
func (d *Descriptor) Sync() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	s, ok := d.node.(Syncer)
	if !ok {
		return nil
	}
	return s.Sync()
}

// ReadDir returns the next directory entry, opening a DirIter lazily on
// first use.
func (d *Descriptor) ReadDir() (DirEntry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.dir == nil {
		opener, ok := d.node.(DirIterOpener)
		if !ok {
			return DirEntry{}, NewError(ErrNotADirectory, "")
		}
		it, err := opener.OpenDirIter()
		if err != nil {
			return DirEntry{}, err
		}
		d.dir = it
	}
	return d.dir.Next()
}

// Command dispatches a device ioctl-style command (devfs).
func (d *Descriptor) Command(cmd uint64, arg uint64) (CmdResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	c, ok := d.node.(Commander)
	if !ok {
		return CmdResult{}, NewError(ErrInvalidCmd, "node does not support commands")
	}
	return c.Command(cmd, arg)
}

// MMap maps a region of the node into memory, if supported.
func (d *Descriptor) MMap(offset Offset, length uint64) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	m, ok := d.node.(MMapOpener)
	if !ok {
		return nil, NewError(ErrOperationNotSupported, "node does not support mmap")
	}
	return m.MMap(offset, length)
}
