// Package proc implements the process and thread model: the resource table
// each process owns, process lifecycle (spawn, exit, reparenting), and the
// thread/context a scheduler schedules. The shapes below follow the same
// small-struct-plus-mutex style used throughout kernel/mem, generalized to
// hold process/thread state instead of page tables.
package proc

import (
	"errors"
	"sync"

	"github.com/SafaOS/SafaOS-sub001/kernel/mem/vmm"
)

// Ri is a resource id: a dense small integer, unique within a process and
// stable until the resource it names is destroyed.
type Ri uint32

// ResourceKind tags which variant a Resource holds.
type ResourceKind uint8

const (
	KindFile ResourceKind = iota
	KindDirIter
	KindMapping
	KindShm
	KindServerSocket
	KindServerConn
	KindClientConn
	KindSocketDesc
)

// FileDescriptor is the VFS-facing handle a File resource wraps. It is
// defined as an interface here to avoid an import cycle with kernel/vfs;
// kernel/vfs.Descriptor satisfies it.
type FileDescriptor interface {
	Close() error
}

// DirIter is the VFS-facing handle a DirIter resource wraps.
type DirIter interface {
	Close() error
}

// SocketAddressFamily/SocketKind describe a socket resource's parameters;
// sockets themselves are NotSupported until a transport exists (see
// ServerSocket/ServerConn/ClientConn below), but the descriptor shape is
// modeled so the resource table's variant set matches the data model in
// full.
type SocketAddressFamily uint8

const (
	SocketUnix SocketAddressFamily = iota
	SocketInet
)

type SocketKind uint8

const (
	SocketStream SocketKind = iota
	SocketDgram
)

// SocketDesc is the socket-creation-parameters resource variant.
type SocketDesc struct {
	Domain   SocketAddressFamily
	Kind     SocketKind
	Blocking bool
}

// Resource is a tagged variant held by a process's resource table.
type Resource struct {
	Kind ResourceKind

	File    FileDescriptor
	DirIter DirIter
	Mapping *vmm.TrackedMapping
	Socket  SocketDesc

	// Local is true if this resource is thread-local (destroyed when its
	// owning thread exits) rather than process-global.
	Local bool
	// OwnerCid names the thread a Local resource belongs to. Ignored for
	// process-global resources.
	OwnerCid Cid
}

func (r Resource) clone() Resource {
	c := r
	if r.File != nil {
		if cloner, ok := r.File.(interface{ Clone() FileDescriptor }); ok {
			c.File = cloner.Clone()
		}
	}
	return c
}

var (
	// ErrUnknownResource is returned for operations on a Ri the table
	// does not hold.
	ErrUnknownResource = errors.New("proc: unknown resource")
	// ErrUnsupportedResource is returned when an operation is attempted
	// against a resource of the wrong kind.
	ErrUnsupportedResource = errors.New("proc: resource does not support this operation")
)

// ResourceTable is a sparse Ri → Resource map with O(1) lookup and
// insertion, as a process's handle table.
type ResourceTable struct {
	mu        sync.RWMutex
	resources map[Ri]Resource
	nextRi    Ri
}

// NewResourceTable returns an empty table.
func NewResourceTable() *ResourceTable {
	return &ResourceTable{resources: make(map[Ri]Resource)}
}

// AddGlobal inserts a process-global resource and returns its Ri.
func (t *ResourceTable) AddGlobal(r Resource) Ri {
	r.Local = false
	return t.add(r)
}

// AddLocal inserts a thread-local resource owned by owner and returns its
// Ri. RemoveLocalForThread(owner) destroys it when that thread exits.
func (t *ResourceTable) AddLocal(r Resource, owner Cid) Ri {
	r.Local = true
	r.OwnerCid = owner
	return t.add(r)
}

func (t *ResourceTable) add(r Resource) Ri {
	t.mu.Lock()
	defer t.mu.Unlock()
	ri := t.nextRi
	t.resources[ri] = r
	t.nextRi++
	return ri
}

// Remove deletes the resource at ri, returning whether it existed.
func (t *ResourceTable) Remove(ri Ri) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.resources[ri]; !ok {
		return false
	}
	delete(t.resources, ri)
	return true
}

// Get returns the resource at ri, if present.
func (t *ResourceTable) Get(ri Ri) (Resource, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.resources[ri]
	return r, ok
}

// Duplicate deep-clones the resource at ri into a new slot and returns its
// new Ri.
func (t *ResourceTable) Duplicate(ri Ri) (Ri, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.resources[ri]
	if !ok {
		return 0, ErrUnknownResource
	}
	newRi := t.nextRi
	t.resources[newRi] = r.clone()
	t.nextRi++
	return newRi, nil
}

// CloneAll returns a new table containing a deep clone of every resource in
// t, used by spawn to inherit the full handle set (SpawnFlags.CloneResources).
func (t *ResourceTable) CloneAll() *ResourceTable {
	t.mu.RLock()
	defer t.mu.RUnlock()

	clone := &ResourceTable{
		resources: make(map[Ri]Resource, len(t.resources)),
		nextRi:    t.nextRi,
	}
	for ri, r := range t.resources {
		clone.resources[ri] = r.clone()
	}
	return clone
}

// CloneSubset returns a new table containing deep clones of exactly the
// given resource ids, used by spawn to inherit only stdio handles. Returns
// an error if any requested id is missing.
func (t *ResourceTable) CloneSubset(ris []Ri) (*ResourceTable, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	clone := &ResourceTable{resources: make(map[Ri]Resource, len(ris))}
	var maxRi Ri
	for _, ri := range ris {
		r, ok := t.resources[ri]
		if !ok {
			return nil, ErrUnknownResource
		}
		clone.resources[ri] = r.clone()
		if ri >= maxRi {
			maxRi = ri + 1
		}
	}
	clone.nextRi = maxRi
	return clone, nil
}

// RemoveLocalForThread removes and returns every thread-local resource
// owned by cid, reaped proactively as soon as that thread exits (this
// module picks proactive reap over lazy reap-on-next-allocation).
func (t *ResourceTable) RemoveLocalForThread(cid Cid) []Resource {
	t.mu.Lock()
	defer t.mu.Unlock()

	var removed []Resource
	for ri, r := range t.resources {
		if r.Local && r.OwnerCid == cid {
			removed = append(removed, r)
			delete(t.resources, ri)
		}
	}
	return removed
}

// RemoveAllLocal removes and returns every thread-local resource in the
// table, regardless of owner, used when the whole process is torn down.
func (t *ResourceTable) RemoveAllLocal() []Resource {
	t.mu.Lock()
	defer t.mu.Unlock()

	var removed []Resource
	for ri, r := range t.resources {
		if r.Local {
			removed = append(removed, r)
			delete(t.resources, ri)
		}
	}
	return removed
}

// Len reports how many resources are currently held.
func (t *ResourceTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.resources)
}
