package vfs

import "encoding/binary"

// NodeKind classifies a VFS node, matching the stable wire byte values
// userspace's FileAttr.kind expects.
type NodeKind uint8

const (
	KindFile NodeKind = iota
	KindDirectory
	KindDevice
)

// Attrs is a node's metadata: the wire-format FileAttr.
type Attrs struct {
	Kind NodeKind
	Size uint64
}

// maxNameLength is the fixed name buffer size in the wire-format DirEntry.
const maxNameLength = 128

// DirEntry is the stable wire-format directory entry shared with
// userspace.
type DirEntry struct {
	Attrs      Attrs
	NameLength uint64
	Name       [maxNameLength]byte
}

// NewDirEntry constructs a DirEntry for name, truncating to the wire
// format's fixed 128-byte name buffer if necessary.
func NewDirEntry(attrs Attrs, name string) DirEntry {
	var e DirEntry
	e.Attrs = attrs
	n := copy(e.Name[:], name)
	e.NameLength = uint64(n)
	return e
}

// NameString returns the entry's name as a Go string.
func (e DirEntry) NameString() string {
	return string(e.Name[:e.NameLength])
}

// wireSize is the byte length of the DirEntry's stable on-the-wire
// encoding: kind(1) + pad(7) + size(8) + name_length(8) + name(128).
const wireSize = 1 + 7 + 8 + 8 + maxNameLength

// Marshal encodes e into the stable wire format consumed by userspace.
func (e DirEntry) Marshal() []byte {
	buf := make([]byte, wireSize)
	buf[0] = byte(e.Attrs.Kind)
	binary.LittleEndian.PutUint64(buf[8:16], e.Attrs.Size)
	binary.LittleEndian.PutUint64(buf[16:24], e.NameLength)
	copy(buf[24:24+maxNameLength], e.Name[:])
	return buf
}

// UnmarshalDirEntry decodes a DirEntry from its stable wire format.
func UnmarshalDirEntry(buf []byte) (DirEntry, bool) {
	if len(buf) < wireSize {
		return DirEntry{}, false
	}
	var e DirEntry
	e.Attrs.Kind = NodeKind(buf[0])
	e.Attrs.Size = binary.LittleEndian.Uint64(buf[8:16])
	e.NameLength = binary.LittleEndian.Uint64(buf[16:24])
	copy(e.Name[:], buf[24:24+maxNameLength])
	return e, true
}
