// Package procfs implements SafaOS's "proc:" drive: a read-only,
// dynamically generated view over the live process table plus a handful
// of kernel counters, matching the contract the safa-binutils "plist"
// and "meminfo" utilities expect.
package procfs

import (
	"fmt"
	"strconv"

	"github.com/SafaOS/SafaOS-sub001/kernel/proc"
	"github.com/SafaOS/SafaOS-sub001/kernel/vfs"
)

// MemInfo is the snapshot of frame-allocator counters procfs renders as
// proc:/meminfo, matching the field names safa-binutils's meminfo utility
// expects.
type MemInfo struct {
	MappedFrames   uint64
	UsableFrames   uint64
	ReservedFrames uint64
}

// MemInfoFunc is called fresh on every read of proc:/meminfo.
type MemInfoFunc func() MemInfo

// MetricsFunc renders the current Prometheus exposition text for
// proc:/metrics, called fresh on every read.
type MetricsFunc func() []byte

// Root is procfs's read-only root directory: every live PID plus the
// fixed nodes (metrics, boot-id, meminfo). It has no persistent child
// map the way ramfs.Dir does — every Lookup/OpenDirIter call derives its
// answer from the live process table, since a process can appear or
// disappear between any two VFS calls.
type Root struct {
	table   *proc.Table
	bootID  string
	memInfo MemInfoFunc
	metrics MetricsFunc
}

// New constructs the proc: root over table. bootID is rendered at
// proc:/boot-id; memInfo and metrics are called lazily on each read of
// their respective nodes.
func New(table *proc.Table, bootID string, memInfo MemInfoFunc, metrics MetricsFunc) *Root {
	return &Root{table: table, bootID: bootID, memInfo: memInfo, metrics: metrics}
}

func (r *Root) Attrs() vfs.Attrs { return vfs.Attrs{Kind: vfs.KindDirectory} }
func (r *Root) Name() string     { return "" }

func (r *Root) Lookup(name string) (vfs.Node, bool) {
	switch name {
	case "metrics":
		return &staticFile{name: name, contentFn: r.metrics}, true
	case "boot-id":
		bootID := r.bootID
		return &staticFile{name: name, contentFn: func() []byte { return []byte(bootID) }}, true
	case "meminfo":
		return &staticFile{name: name, contentFn: func() []byte { return r.renderMemInfo() }}, true
	}

	pid, err := strconv.ParseUint(name, 10, 32)
	if err != nil {
		return nil, false
	}
	p, ok := r.table.Lookup(proc.Pid(pid))
	if !ok {
		return nil, false
	}
	return &pidDir{pid: proc.Pid(pid), p: p}, true
}

func (r *Root) renderMemInfo() []byte {
	info := r.memInfo()
	return []byte(fmt.Sprintf(
		"mapped_frames: %d\nusable_frames: %d\nreserved_frames: %d\n",
		info.MappedFrames, info.UsableFrames, info.ReservedFrames,
	))
}

func (r *Root) CreateChild(string, vfs.NodeKind) (vfs.Node, error) {
	return nil, vfs.NewError(vfs.ErrOperationNotSupported, "proc: is read-only")
}

func (r *Root) RemoveChild(string) error {
	return vfs.NewError(vfs.ErrOperationNotSupported, "proc: is read-only")
}

func (r *Root) OpenDirIter() (vfs.DirIter, error) {
	var pids []proc.Pid
	r.table.ForEach(func(p *proc.Process) { pids = append(pids, p.Pid) })

	names := make([]string, 0, len(pids)+3)
	for _, pid := range pids {
		names = append(names, strconv.FormatUint(uint64(pid), 10))
	}
	names = append(names, "metrics", "boot-id", "meminfo")
	return &rootIter{root: r, names: names}, nil
}

type rootIter struct {
	root  *Root
	names []string
	pos   int
}

func (it *rootIter) Next() (vfs.DirEntry, error) {
	for it.pos < len(it.names) {
		name := it.names[it.pos]
		it.pos++
		node, ok := it.root.Lookup(name)
		if !ok {
			continue
		}
		return vfs.NewDirEntry(node.Attrs(), name), nil
	}
	return vfs.DirEntry{}, vfs.ErrEndOfDir
}

// staticFile is a read-only node whose content is computed fresh from
// contentFn on every read, used for the counters/identity nodes that
// have no per-process backing.
type staticFile struct {
	name      string
	contentFn func() []byte
}

func (f *staticFile) Attrs() vfs.Attrs {
	return vfs.Attrs{Kind: vfs.KindFile, Size: uint64(len(f.contentFn()))}
}
func (f *staticFile) Name() string { return f.name }

func (f *staticFile) ReadAt(buf []byte, off vfs.Offset) (int, error) {
	data := f.contentFn()
	if off < 0 {
		return 0, vfs.NewError(vfs.ErrInvalidOffset, "")
	}
	if int(off) >= len(data) {
		return 0, nil
	}
	return copy(buf, data[off:]), nil
}

// pidDir is the per-process directory proc:/<pid>/, exposing name, ppid,
// cwd, and state as readable files, matching the layout the
// safa-binutils "plist" utility expects.
type pidDir struct {
	pid proc.Pid
	p   *proc.Process
}

func (d *pidDir) Attrs() vfs.Attrs { return vfs.Attrs{Kind: vfs.KindDirectory} }
func (d *pidDir) Name() string     { return strconv.FormatUint(uint64(d.pid), 10) }

func (d *pidDir) fields() map[string]func() []byte {
	return map[string]func() []byte{
		"name":  func() []byte { return []byte(d.p.Name) },
		"ppid":  func() []byte { return []byte(strconv.FormatUint(uint64(d.p.ParentPid()), 10)) },
		"cwd":   func() []byte { return []byte(d.p.Cwd()) },
		"state": func() []byte { return []byte(stateName(d.p.State())) },
	}
}

func stateName(s proc.State) string {
	switch s {
	case proc.StateAlive:
		return "alive"
	case proc.StateDead:
		return "dead"
	case proc.StateRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

func (d *pidDir) Lookup(name string) (vfs.Node, bool) {
	fn, ok := d.fields()[name]
	if !ok {
		return nil, false
	}
	return &staticFile{name: name, contentFn: fn}, true
}

func (d *pidDir) CreateChild(string, vfs.NodeKind) (vfs.Node, error) {
	return nil, vfs.NewError(vfs.ErrOperationNotSupported, "proc: is read-only")
}

func (d *pidDir) RemoveChild(string) error {
	return vfs.NewError(vfs.ErrOperationNotSupported, "proc: is read-only")
}

func (d *pidDir) OpenDirIter() (vfs.DirIter, error) {
	names := []string{"name", "ppid", "cwd", "state"}
	return &pidDirIter{dir: d, names: names}, nil
}

type pidDirIter struct {
	dir   *pidDir
	names []string
	pos   int
}

func (it *pidDirIter) Next() (vfs.DirEntry, error) {
	if it.pos >= len(it.names) {
		return vfs.DirEntry{}, vfs.ErrEndOfDir
	}
	name := it.names[it.pos]
	it.pos++
	node, _ := it.dir.Lookup(name)
	return vfs.NewDirEntry(node.Attrs(), name), nil
}
