// Package usb specifies the contract a concrete xHCI host-controller driver
// satisfies. Enumeration, transfer rings and concrete device classes live in
// arch-specific code; Controller only tracks attached devices so
// kernel/vfs/devfs can enumerate "usb:" device nodes.
package usb

// Device describes a USB device attached to the host controller.
type Device struct {
	Address  uint8
	VendorID uint16
	ProdID   uint16
}

// Controller is a host-testable stand-in for a real xHCI controller.
type Controller struct {
	devices []Device
}

// Attach registers a newly enumerated device. Called by the (out of scope)
// xHCI enumeration routine.
func (c *Controller) Attach(d Device) { c.devices = append(c.devices, d) }

// Devices returns the currently attached devices.
func (c *Controller) Devices() []Device { return append([]Device(nil), c.devices...) }
