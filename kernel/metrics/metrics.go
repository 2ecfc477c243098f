// Package metrics exposes the kernel's internal counters as a Prometheus
// text-exposition snapshot, rendered fresh on every read of proc:/metrics.
// A production build would scrape this over a real network listener;
// without one here, Registry.Render hands the text straight to procfs.
package metrics

import (
	"bytes"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/SafaOS/SafaOS-sub001/kernel/mem/pmm/allocator"
	"github.com/SafaOS/SafaOS-sub001/kernel/proc"
	"github.com/SafaOS/SafaOS-sub001/kernel/sched"
)

// Registry owns the kernel's metric collectors and renders them on demand.
type Registry struct {
	reg *prometheus.Registry

	frameAllocCalls   prometheus.Counter
	frameDeallocCalls prometheus.Counter
	mappedFrames      prometheus.GaugeFunc
	usableFrames      prometheus.GaugeFunc
	reservedFrames    prometheus.GaugeFunc

	processCount prometheus.GaugeFunc
	readyLen     *prometheus.GaugeVec
	waitingLen   *prometheus.GaugeVec

	vfsOpens  prometheus.Counter
	vfsCloses prometheus.Counter

	sched *sched.Scheduler
}

// New registers every collector against a fresh registry. alloc/table/s
// back the gauges that read live kernel state; they must outlive the
// Registry.
func New(alloc *allocator.BitmapAllocator, table *proc.Table, s *sched.Scheduler) *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		reg: reg,
		frameAllocCalls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "safaos_frame_alloc_calls_total",
			Help: "Physical frame allocations performed since boot.",
		}),
		frameDeallocCalls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "safaos_frame_dealloc_calls_total",
			Help: "Physical frame deallocations performed since boot.",
		}),
		vfsOpens: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "safaos_vfs_opens_total",
			Help: "VFS Open/OpenAll calls served since boot.",
		}),
		vfsCloses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "safaos_vfs_closes_total",
			Help: "VFS resource destroy calls served since boot.",
		}),
		readyLen: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "safaos_scheduler_ready_length",
			Help: "Runnable threads currently queued per CPU.",
		}, []string{"cpu"}),
		waitingLen: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "safaos_scheduler_waiting_length",
			Help: "Sleeping/waiting threads currently parked per CPU.",
		}, []string{"cpu"}),
	}

	r.mappedFrames = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "safaos_frames_mapped",
		Help: "Physical frames currently mapped into some address space.",
	}, func() float64 { return float64(alloc.MappedFrames()) })

	r.usableFrames = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "safaos_frames_usable",
		Help: "Physical frames the allocator considers usable in total.",
	}, func() float64 { return float64(alloc.UsableFrames()) })

	r.reservedFrames = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "safaos_frames_reserved",
		Help: "Physical frames currently allocated or reserved for allocator metadata.",
	}, func() float64 { return float64(alloc.ReservedFrames()) })

	r.processCount = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "safaos_process_count",
		Help: "Processes currently registered in the process table.",
	}, func() float64 { return float64(table.Len()) })

	reg.MustRegister(
		r.frameAllocCalls, r.frameDeallocCalls,
		r.mappedFrames, r.usableFrames, r.reservedFrames,
		r.processCount, r.readyLen, r.waitingLen,
		r.vfsOpens, r.vfsCloses,
	)

	r.sched = s
	if s != nil {
		for i := 0; i < s.CPUs(); i++ {
			label := prometheus.Labels{"cpu": itoa(i)}
			r.readyLen.With(label)
			r.waitingLen.With(label)
		}
	}

	return r
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// IncVFSOpen/IncVFSClose are called by the syscall dispatcher on every
// successful open/destroy, the same increment-on-event idiom
// client_golang's own HTTP instrumentation middleware uses.
func (r *Registry) IncVFSOpen()  { r.vfsOpens.Inc() }
func (r *Registry) IncVFSClose() { r.vfsCloses.Inc() }

// IncFrameAlloc/IncFrameDealloc count allocation churn, independent of the
// current live count the gauges above report. The allocator does not call
// them itself; the counters move only when a caller reports an event.
func (r *Registry) IncFrameAlloc()   { r.frameAllocCalls.Inc() }
func (r *Registry) IncFrameDealloc() { r.frameDeallocCalls.Inc() }

// refreshSchedGauges pulls current per-CPU queue depths from the
// scheduler just before a gather, since GaugeVec has no per-label
// GaugeFunc equivalent to poll lazily the way the frame/process gauges
// above do.
func (r *Registry) refreshSchedGauges() {
	if r.sched == nil {
		return
	}
	for i := 0; i < r.sched.CPUs(); i++ {
		cpu := r.sched.CPU(i)
		label := prometheus.Labels{"cpu": itoa(i)}
		r.readyLen.With(label).Set(float64(cpu.ReadyLen()))
		r.waitingLen.With(label).Set(float64(cpu.WaitingLen()))
	}
}

// Render gathers every registered collector and encodes it in the
// Prometheus text exposition format, the payload procfs serves at
// proc:/metrics.
func (r *Registry) Render() []byte {
	r.refreshSchedGauges()

	families, err := r.reg.Gather()
	if err != nil {
		return []byte("# metrics gather error: " + err.Error() + "\n")
	}

	var buf bytes.Buffer
	enc := expfmt.NewEncoder(&buf, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return []byte("# metrics encode error: " + err.Error() + "\n")
		}
	}
	return buf.Bytes()
}
