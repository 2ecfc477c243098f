// Package boot assigns each kernel run a unique instance identity and
// logs the startup banner, the way a long-running daemon stamps every
// log line and metrics series with a run id so operators can tell two
// boots of the same machine apart.
package boot

import (
	"github.com/google/uuid"

	"github.com/SafaOS/SafaOS-sub001/kernel/klog"
)

// Info is the identity of the current kernel run.
type Info struct {
	// ID is a fresh random identifier generated once per boot, exposed
	// at proc:/boot-id.
	ID string
	// Version is the kernel build's version string, caller-supplied
	// (a linker-injected constant on real hardware; a literal here).
	Version string
}

// New generates a fresh boot identity and logs the startup banner.
func New(version string) Info {
	info := Info{ID: uuid.NewString(), Version: version}
	klog.WithFields(klog.Fields{
		"boot_id": info.ID,
		"version": info.Version,
	}).Infof("kernel boot")
	return info
}
