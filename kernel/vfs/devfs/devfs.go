// Package devfs implements SafaOS's "dev:" drive: a fixed set of device
// nodes (framebuffer, tty, serial, and keyboard and USB when their
// controllers are present) backed by the concrete drivers under
// kernel/driver, each accepting the numeric ctl opcodes the device
// layer's send_command contract defines.
package devfs

import (
	"fmt"

	"github.com/SafaOS/SafaOS-sub001/kernel/driver/console"
	"github.com/SafaOS/SafaOS-sub001/kernel/driver/ps2"
	"github.com/SafaOS/SafaOS-sub001/kernel/driver/serial"
	"github.com/SafaOS/SafaOS-sub001/kernel/driver/tty"
	"github.com/SafaOS/SafaOS-sub001/kernel/driver/usb"
	"github.com/SafaOS/SafaOS-sub001/kernel/vfs"
)

// Framebuffer ctl opcodes, matching the device send_command contract.
const (
	FramebufferCmdSync    = 0
	FramebufferCmdGetInfo = 1
)

// Tty ctl opcodes, matching the device send_command contract.
const (
	TtyCmdGetFlags = 0
	TtyCmdSetFlags = 1
)

// TtyFlags mirrors the original's tty flags word (only echo is modeled).
type TtyFlags uint64

const TtyFlagEcho TtyFlags = 1 << 0

// Root is devfs's fixed root directory: framebuffer ("fb"), tty ("tty"),
// serial ("ser"), PS/2 keyboard ("kbd"), and USB host controller ("usb")
// nodes. Unlike ramfs/procfs, the child set is fixed at construction and
// never grows.
type Root struct {
	children map[string]vfs.Node
	order    []string
}

// New constructs dev: with a framebuffer node over cons, a tty node over
// vt, a serial node over port, a keyboard node over kbd, and a
// device-listing node over hc. kbd and hc may be nil on configurations
// without those controllers; their nodes are omitted.
func New(cons console.Console, vt *tty.Vt, port serial.Port, kbd *ps2.Controller, hc *usb.Controller) *Root {
	r := &Root{children: make(map[string]vfs.Node)}
	r.add("fb", &Framebuffer{cons: cons})
	r.add("tty", &Tty{vt: vt})
	r.add("ser", &Serial{port: port})
	if kbd != nil {
		r.add("kbd", &Keyboard{ctl: kbd})
	}
	if hc != nil {
		r.add("usb", &USB{hc: hc})
	}
	return r
}

func (r *Root) add(name string, n vfs.Node) {
	r.children[name] = n
	r.order = append(r.order, name)
}

func (r *Root) Attrs() vfs.Attrs { return vfs.Attrs{Kind: vfs.KindDirectory} }
func (r *Root) Name() string     { return "" }

func (r *Root) Lookup(name string) (vfs.Node, bool) {
	n, ok := r.children[name]
	return n, ok
}

func (r *Root) CreateChild(string, vfs.NodeKind) (vfs.Node, error) {
	return nil, vfs.NewError(vfs.ErrOperationNotSupported, "dev: nodes are fixed at boot")
}

func (r *Root) RemoveChild(string) error {
	return vfs.NewError(vfs.ErrOperationNotSupported, "dev: nodes are fixed at boot")
}

func (r *Root) OpenDirIter() (vfs.DirIter, error) {
	return &rootIter{r: r}, nil
}

type rootIter struct {
	r   *Root
	pos int
}

func (it *rootIter) Next() (vfs.DirEntry, error) {
	if it.pos >= len(it.r.order) {
		return vfs.DirEntry{}, vfs.ErrEndOfDir
	}
	name := it.r.order[it.pos]
	it.pos++
	return vfs.NewDirEntry(it.r.children[name].Attrs(), name), nil
}

// Framebuffer is the dev:/fb device node: a KindDevice file exposing the
// console's pixel buffer as a linear byte region, plus the GetInfo/Sync
// ctl opcodes.
type Framebuffer struct {
	cons console.Console
}

func (f *Framebuffer) Attrs() vfs.Attrs {
	w, h := f.cons.Dimensions()
	return vfs.Attrs{Kind: vfs.KindDevice, Size: uint64(w) * uint64(h)}
}
func (f *Framebuffer) Name() string { return "fb" }

// Command dispatches GetInfo (returns width<<32|height) and Sync
// (no-op — this software console has no compositor to flush to).
func (f *Framebuffer) Command(cmd uint64, arg uint64) (vfs.CmdResult, error) {
	switch cmd {
	case FramebufferCmdGetInfo:
		w, h := f.cons.Dimensions()
		return vfs.CmdResult{Value: uint64(w)<<32 | uint64(h)}, nil
	case FramebufferCmdSync:
		return vfs.CmdResult{}, nil
	default:
		return vfs.CmdResult{}, vfs.NewError(vfs.ErrInvalidCmd, "")
	}
}

// Tty is the dev:/tty device node: writes go through the line
// discipline (kernel/driver/tty.Vt); reads are not supported (no
// keyboard buffer is modeled at this layer).
type Tty struct {
	vt    *tty.Vt
	flags TtyFlags
}

func (t *Tty) Attrs() vfs.Attrs { return vfs.Attrs{Kind: vfs.KindDevice} }
func (t *Tty) Name() string     { return "tty" }

func (t *Tty) WriteAt(buf []byte, _ vfs.Offset) (int, error) {
	return t.vt.Write(buf)
}

func (t *Tty) Command(cmd uint64, arg uint64) (vfs.CmdResult, error) {
	switch cmd {
	case TtyCmdGetFlags:
		return vfs.CmdResult{Value: uint64(t.flags)}, nil
	case TtyCmdSetFlags:
		t.flags = TtyFlags(arg)
		return vfs.CmdResult{}, nil
	default:
		return vfs.CmdResult{}, vfs.NewError(vfs.ErrInvalidCmd, "")
	}
}

// Serial is the dev:/ser device node: byte-oriented read/write over a
// serial.Port.
type Serial struct {
	port serial.Port
}

func (s *Serial) Attrs() vfs.Attrs { return vfs.Attrs{Kind: vfs.KindDevice} }
func (s *Serial) Name() string     { return "ser" }

func (s *Serial) ReadAt(buf []byte, _ vfs.Offset) (int, error) {
	n := 0
	for n < len(buf) {
		b, ok := s.port.ReadByte()
		if !ok {
			break
		}
		buf[n] = b
		n++
	}
	return n, nil
}

func (s *Serial) WriteAt(buf []byte, _ vfs.Offset) (int, error) {
	for _, b := range buf {
		s.port.WriteByte(b)
	}
	return len(buf), nil
}

// Keyboard is the dev:/kbd device node: each read drains pending PS/2
// scan-code events, two bytes per event (scan code, released flag).
type Keyboard struct {
	ctl *ps2.Controller
}

func (k *Keyboard) Attrs() vfs.Attrs { return vfs.Attrs{Kind: vfs.KindDevice} }
func (k *Keyboard) Name() string     { return "kbd" }

func (k *Keyboard) ReadAt(buf []byte, _ vfs.Offset) (int, error) {
	n := 0
	for n+2 <= len(buf) {
		ev, ok := k.ctl.Poll()
		if !ok {
			break
		}
		buf[n] = ev.ScanCode
		if ev.Released {
			buf[n+1] = 1
		} else {
			buf[n+1] = 0
		}
		n += 2
	}
	return n, nil
}

// USB is the dev:/usb device node: reads render one line per attached
// device ("addr vendor:product"), derived fresh from the host controller
// on every read.
type USB struct {
	hc *usb.Controller
}

func (u *USB) Attrs() vfs.Attrs {
	return vfs.Attrs{Kind: vfs.KindDevice, Size: uint64(len(u.render()))}
}
func (u *USB) Name() string { return "usb" }

func (u *USB) render() []byte {
	var out []byte
	for _, d := range u.hc.Devices() {
		out = append(out, fmt.Sprintf("%d %04x:%04x\n", d.Address, d.VendorID, d.ProdID)...)
	}
	return out
}

func (u *USB) ReadAt(buf []byte, off vfs.Offset) (int, error) {
	data := u.render()
	if off < 0 {
		return 0, vfs.NewError(vfs.ErrInvalidOffset, "")
	}
	if int(off) >= len(data) {
		return 0, nil
	}
	return copy(buf, data[off:]), nil
}
