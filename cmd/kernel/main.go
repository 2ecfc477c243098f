// Command kernel boots a single SafaOS instance inside an ordinary host
// process: it wires the physical/virtual memory managers, the process
// table and scheduler, the futex registry, the mounted drives, and the
// syscall dispatcher together, spawns the init process, and drives the
// scheduler's timer tick until a process (or an operator signal) requests
// shutdown or reboot.
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SafaOS/SafaOS-sub001/kernel/boot"
	"github.com/SafaOS/SafaOS-sub001/kernel/config"
	"github.com/SafaOS/SafaOS-sub001/kernel/driver/console"
	"github.com/SafaOS/SafaOS-sub001/kernel/driver/ps2"
	"github.com/SafaOS/SafaOS-sub001/kernel/driver/serial"
	"github.com/SafaOS/SafaOS-sub001/kernel/driver/tty"
	"github.com/SafaOS/SafaOS-sub001/kernel/driver/usb"
	"github.com/SafaOS/SafaOS-sub001/kernel/futex"
	"github.com/SafaOS/SafaOS-sub001/kernel/hal"
	"github.com/SafaOS/SafaOS-sub001/kernel/klog"
	"github.com/SafaOS/SafaOS-sub001/kernel/mem"
	"github.com/SafaOS/SafaOS-sub001/kernel/mem/pmm"
	"github.com/SafaOS/SafaOS-sub001/kernel/mem/pmm/allocator"
	"github.com/SafaOS/SafaOS-sub001/kernel/mem/vmm"
	"github.com/SafaOS/SafaOS-sub001/kernel/metrics"
	"github.com/SafaOS/SafaOS-sub001/kernel/proc"
	"github.com/SafaOS/SafaOS-sub001/kernel/ramdisk"
	"github.com/SafaOS/SafaOS-sub001/kernel/sched"
	ksyscall "github.com/SafaOS/SafaOS-sub001/kernel/syscall"
	"github.com/SafaOS/SafaOS-sub001/kernel/vfs"
	"github.com/SafaOS/SafaOS-sub001/kernel/vfs/devfs"
	"github.com/SafaOS/SafaOS-sub001/kernel/vfs/procfs"
	"github.com/SafaOS/SafaOS-sub001/kernel/vfs/ramfs"
	"github.com/SafaOS/SafaOS-sub001/kernel/vfs/rodfs"
	"github.com/SafaOS/SafaOS-sub001/kernel/vfs/sysfs"
)

const kernelVersion = "0.1.0"

func main() {
	var (
		ramMiB      = flag.Uint64("ram-mib", 256, "simulated RAM size in MiB")
		cpus        = flag.Int("cpus", 2, "number of simulated CPUs")
		ramdiskPath = flag.String("ramdisk", "", "path to a ustar boot archive to mount at sys:")
	)
	flag.Parse()

	info := boot.New(kernelVersion)

	cons := &console.FramebufferConsole{}
	cons.Init(80, 25)
	vt := &tty.Vt{}
	vt.AttachTo(cons)
	hal.SetActiveTerminal(vt)

	ram := pmm.NewRAM(mem.Size(*ramMiB << 20))
	alloc, err := allocator.New(hostMemoryMap(ram))
	if err != nil {
		klog.WithFields(klog.Fields{"error": err}).Infof("frame allocator init failed")
		os.Exit(1)
	}

	kernelTable, err := vmm.New(alloc, ram)
	if err != nil {
		klog.WithFields(klog.Fields{"error": err}).Infof("kernel page table init failed")
		os.Exit(1)
	}

	table := proc.NewTable()
	bootStart := time.Now()
	clock := func() uint64 { return uint64(time.Since(bootStart).Milliseconds()) }
	scheduler := sched.New(*cpus, table, clock)
	futexRegistry := futex.NewRegistry()

	vfsys := vfs.New(nil)
	vfsys.Mount("ram", ramfs.NewDir(""))

	port := &serial.LoopbackPort{}
	vfsys.Mount("dev", devfs.New(cons, vt, port, &ps2.Controller{}, &usb.Controller{}))

	sysRoot := rodfs.NewDir("")
	if *ramdiskPath != "" {
		data, err := os.ReadFile(*ramdiskPath)
		if err != nil {
			klog.WithFields(klog.Fields{"error": err, "path": *ramdiskPath}).Infof("ramdisk read failed")
			os.Exit(1)
		}
		sysRoot, err = ramdisk.Load(data)
		if err != nil {
			klog.WithFields(klog.Fields{"error": err}).Infof("ramdisk parse failed")
			os.Exit(1)
		}
	}
	vfsys.Mount("sys", sysfs.Mount(sysRoot))

	metricsReg := metrics.New(alloc, table, scheduler)
	vfsys.Mount("proc", procfs.New(table, info.ID, func() procfs.MemInfo {
		return procfs.MemInfo{
			MappedFrames:   alloc.MappedFrames(),
			UsableFrames:   alloc.UsableFrames(),
			ReservedFrames: alloc.ReservedFrames(),
		}
	}, metricsReg.Render))

	power := make(chan ksyscall.PowerAction, 1)
	dispatcher := &ksyscall.Dispatcher{
		Table:       table,
		Sched:       scheduler,
		Futex:       futexRegistry,
		VFS:         vfsys,
		Alloc:       alloc,
		RAM:         ram,
		Clock:       clock,
		KernelTable: kernelTable,
		Power:       power,
		Metrics:     metricsReg,
	}

	spawnInit(dispatcher, kernelTable)
	watchSignals(power)

	runScheduler(scheduler, *cpus, power)
}

// hostMemoryMap builds a single-region memory map spanning all of ram's
// frames, standing in for the bootloader-reported map a real build would
// parse out of the multiboot/Limine protocol.
func hostMemoryMap(ram *pmm.RAM) allocator.MemoryMap {
	return allocator.MemoryMap{
		{PhysAddress: 0, Length: ram.Frames() * uint64(mem.PageSize), Usable: true},
	}
}

// watchSignals translates an operator's Ctrl-C/SIGTERM into the same
// PowerShutdown value a userspace sys_shutdown call would produce,
// keeping runScheduler's stop path single.
func watchSignals(power chan<- ksyscall.PowerAction) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigs
		power <- ksyscall.PowerShutdown
	}()
}

// spawnInit registers SafaOS's first process: a kernel-resident function
// rather than an ELF image, since no userspace binary has been loaded yet.
func spawnInit(d *ksyscall.Dispatcher, kernelTable *vmm.PageTable) {
	enqueue := func(t *proc.Thread) { d.Sched.Enqueue(t, -1) }

	params := proc.SpawnParams{
		Name:     "init",
		Cwd:      "sys:/",
		Image:    proc.Image{KernelFunc: func() {}},
		Priority: proc.PriorityMedium,
	}

	process, thread, err := d.Table.Spawn(params, kernelTable, d.Alloc, d.RAM, nil, enqueue)
	if err != nil {
		klog.WithFields(klog.Fields{"error": err}).Infof("init spawn failed")
		os.Exit(1)
	}

	klog.WithFields(klog.Fields{"pid": process.Pid}).Infof("init running")

	go runInit(d, process, thread)
}

// runInit is init's body: it exercises the mounted drives, then waits for
// a shutdown/reboot request from a later thread.
func runInit(d *ksyscall.Dispatcher, process *proc.Process, thread *proc.Thread) {
	if status := d.CreateDir("ram:/tmp"); status != ksyscall.StatusOK {
		klog.WithFields(klog.Fields{"status": status}).Infof("init: mkdir ram:/tmp failed")
	}

	ri, status := d.Open(process, thread.Cid, "ram:/tmp/motd", vfs.OptWrite|vfs.OptCreateNew)
	if status == ksyscall.StatusOK {
		d.Write(process, ri, []byte("SafaOS is up\n"), 0)
		d.Destroy(process, ri)
	} else {
		klog.WithFields(klog.Fields{"status": status}).Infof("init: open ram:/tmp/motd failed")
	}

	select {}
}

// runScheduler drives each CPU's timer tick at the configured interval
// until a shutdown/reboot request arrives on power.
func runScheduler(s *sched.Scheduler, cpus int, power <-chan ksyscall.PowerAction) {
	interval := time.Duration(config.Get().TickIntervalMs) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			for cpu := 0; cpu < cpus; cpu++ {
				s.Tick(cpu)
			}
		case action := <-power:
			switch action {
			case ksyscall.PowerShutdown:
				klog.WithFields(klog.Fields{}).Infof("shutdown requested")
			case ksyscall.PowerReboot:
				klog.WithFields(klog.Fields{}).Infof("reboot requested")
			}
			return
		}
	}
}
