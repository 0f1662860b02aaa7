package sched

import (
	"sync/atomic"

	"pastoral/pkg/apic"
	"pastoral/pkg/bitmap"
	"pastoral/pkg/defs"
	"pastoral/pkg/hashtable"
)

// KernelConfig is the plain configuration struct threaded explicitly
// through the kernel executive, rather than compiled-in constants -- the
// one place global tunables live.
type KernelConfig struct {
	ThreadKernelStackSize uintptr
	ThreadUserStackSize   uintptr
	MaxCores              int
	CodeSelectorUser      uint16
	CodeSelectorKernel    uint16
}

func (c KernelConfig) kernelStackFor(pid defs.Pid_t, tid defs.Tid_t) uintptr {
	// A real kernel carves this out of the high-half VMA window via the
	// frame allocator; this module only needs a stable, distinct value
	// per (pid, tid) for bookkeeping and tests.
	return uintptr(0x0000700000000000) + uintptr(pid)*0x1000000 + uintptr(tid)*0x10000
}

// CoreLocal_t is the fixed, per-core state reachable without a lock --
// CORE_LOCAL in the original design notes.
type CoreLocal_t struct {
	Pid         defs.Pid_t
	Tid         defs.Tid_t
	Errno       int
	KernelStack uintptr
	UserStack   uintptr
}

// Kernel_t is the single "kernel executive" object encapsulating the
// otherwise-global mutable state (task_list, pid_bitmap, sched_lock,
// per-core array) called out in the redesign notes.
type Kernel_t struct {
	Tasks     *hashtable.Hashtable_t[defs.Pid_t, *Task_t]
	PidBitmap *bitmap.Bitmap_t
	Cores     []CoreLocal_t
	EOI       apic.EOI_i
	Cfg       KernelConfig

	lock int32 // sched_lock, acquired with test-and-set
}

func NewKernel(cfg KernelConfig, eoi apic.EOI_i) *Kernel_t {
	cores := make([]CoreLocal_t, cfg.MaxCores)
	for i := range cores {
		// Pid_t's zero value is a legitimate PID, so an unstarted core
		// must be marked with the PidNone sentinel explicitly or Tick's
		// outgoing-thread snapshot would mistake it for "pid 0 was
		// running here" on the very first switch.
		cores[i].Pid = defs.PidNone
	}
	return &Kernel_t{
		Tasks:     hashtable.MkHash[defs.Pid_t, *Task_t](32, hashtable.IntHash[defs.Pid_t]),
		PidBitmap: bitmap.Mk(64),
		Cores:     cores,
		EOI:       eoi,
		Cfg:       cfg,
	}
}

// tryLock attempts to acquire sched_lock with test-and-set, reporting
// success. A contended attempt returns false immediately -- no EOI, no
// spin -- so an interrupt-driven caller can let the next tick retry.
func (k *Kernel_t) tryLock() bool {
	return atomic.CompareAndSwapInt32(&k.lock, 0, 1)
}

func (k *Kernel_t) unlock() {
	atomic.StoreInt32(&k.lock, 0)
}
