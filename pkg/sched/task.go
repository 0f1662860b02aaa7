// Package sched implements the task/thread model and the scheduler:
// PID/TID allocation, per-core selection ("longest-waiting wins"), context
// switch bookkeeping, and program start-up. Grounded on
// original_source/kernel/sched/sched.c for the exact algorithms, styled on
// the teacher's hashtable/accnt/tinfo packages for the surrounding
// bookkeeping (biscuit's own proc package was empty in the retrieved
// fragment).
package sched

import (
	"pastoral/pkg/accnt"
	"pastoral/pkg/bitmap"
	"pastoral/pkg/defs"
	"pastoral/pkg/fd"
	"pastoral/pkg/hashtable"
	"pastoral/pkg/limits"
	"pastoral/pkg/vm"
)

// Regs_t is the saved register frame for a thread, restored by the
// scheduler's restore-and-iretq step.
type Regs_t struct {
	RIP, RSP, RFLAGS uintptr
	CS, SS           uint16
	GPRs             [15]uint64
}

// Thread_t is one schedulable thread of execution within a Task_t.
type Thread_t struct {
	Pid         defs.Pid_t
	Tid         defs.Tid_t
	Status      defs.Status
	Regs        Regs_t
	UserFSBase  uintptr
	UserGSBase  uintptr
	KernelStack uintptr
	UserStack   uintptr
	Errno       int
	IdleCount   int
	Acc         *accnt.Accnt_t
}

// Task_t is a process: an address space, a thread set, and an FD table.
type Task_t struct {
	Pid       defs.Pid_t
	Ppid      defs.Pid_t
	Status    defs.Status
	Vm        *vm.Vm_t
	Threads   *hashtable.Hashtable_t[defs.Tid_t, *Thread_t]
	TidBitmap *bitmap.Bitmap_t
	Fds       *fd.Table_t
	IdleCount int
}

// DefaultTask allocates a PID from the kernel's resizable bitmap, sets up
// the task's thread/fd containers, pre-reserves fd 0/1/2, and links it into
// the kernel's global task_list. ppid is inherited from current, or
// defs.PidNone if current is nil.
func (k *Kernel_t) DefaultTask(current *Task_t, as *vm.Vm_t) (*Task_t, defs.Err_t) {
	if !limits.Syslimit.Sysprocs.Take() {
		return nil, defs.E_RESOURCE
	}
	pid := defs.Pid_t(k.PidBitmap.Alloc())
	ppid := defs.PidNone
	if current != nil {
		ppid = current.Pid
	}
	t := &Task_t{
		Pid:       pid,
		Ppid:      ppid,
		Status:    defs.YIELD,
		Vm:        as,
		Threads:   hashtable.MkHash[defs.Tid_t, *Thread_t](16, hashtable.IntHash[defs.Tid_t]),
		TidBitmap: bitmap.Mk(8),
		Fds:       fd.MkTable(),
	}
	t.Fds.Reserve(0, nil, 0)
	t.Fds.Reserve(1, nil, 0)
	t.Fds.Reserve(2, nil, 0)
	k.Tasks.Set(pid, t)
	return t, 0
}

// DefaultThread allocates a TID, reserves a simulated kernel stack, and
// inserts the thread into task's container with initial status YIELD.
func (k *Kernel_t) DefaultThread(t *Task_t) *Thread_t {
	tid := defs.Tid_t(t.TidBitmap.Alloc())
	th := &Thread_t{
		Pid:         t.Pid,
		Tid:         tid,
		Status:      defs.YIELD,
		KernelStack: k.Cfg.kernelStackFor(t.Pid, tid),
		Acc:         accnt.Mk(),
	}
	t.Threads.Set(tid, th)
	return th
}
