// Package ps2 specifies the contract a concrete PS/2 keyboard/mouse driver
// satisfies. Wire-level PS/2 bring-up happens in arch-specific code;
// Controller is a host-testable stand-in that lets kernel/vfs/devfs expose
// a "kbd:" device node.
package ps2

// Event is a single PS/2 scan-code event.
type Event struct {
	ScanCode byte
	Released bool
}

// Controller buffers scan-code events produced by the (out of scope)
// interrupt handler for consumption through devfs.
type Controller struct {
	pending []Event
}

// Push enqueues an event. Called by the (out of scope) IRQ handler.
func (c *Controller) Push(ev Event) { c.pending = append(c.pending, ev) }

// Poll dequeues the next pending event, if any.
func (c *Controller) Poll() (Event, bool) {
	if len(c.pending) == 0 {
		return Event{}, false
	}
	ev := c.pending[0]
	c.pending = c.pending[1:]
	return ev, true
}
