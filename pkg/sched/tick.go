package sched

import (
	"context"

	"golang.org/x/sync/errgroup"

	"pastoral/pkg/defs"
)

// Tick runs one scheduler selection + switch on the given core. Every
// task's idle_count is bumped, the task (then, by the same rule, thread)
// with the largest idle_count among WAITING candidates is chosen (ties
// broken by iteration order, which Hashtable_t.Iter gives deterministically
// for a fixed insert order), and the outgoing thread's errno and user stack
// are saved before the incoming one's are installed in the core-local
// state. No register frame or FS/GS base is saved or restored, and there
// is no return to user mode: the switch ends with the EOI.
//
// Returns false if sched_lock was contended (E_LOCK_BUSY, the caller's tick
// should simply return and let the next interrupt retry) or if there was
// nothing to switch to.
func (k *Kernel_t) Tick(core int) bool {
	if !k.tryLock() {
		return false
	}
	defer k.unlock()

	nextTask := k.pickTask()
	if nextTask == nil {
		return false
	}
	nextThread := k.pickThread(nextTask)
	if nextThread == nil {
		return false
	}

	cl := &k.Cores[core]
	if cl.Pid != defs.PidNone {
		if outTask, ok := k.Tasks.Get(cl.Pid); ok {
			if outThread, ok := outTask.Threads.Get(cl.Tid); ok {
				outThread.Errno = cl.Errno
				outThread.UserStack = cl.UserStack
				outThread.Status = defs.WAITING
				outThread.Acc.Systadd()
				outTask.Status = defs.WAITING
			}
		}
	}

	nextTask.Vm.Activate()

	cl.Pid = nextTask.Pid
	cl.Tid = nextThread.Tid
	cl.Errno = nextThread.Errno
	cl.KernelStack = nextThread.KernelStack
	cl.UserStack = nextThread.UserStack

	nextTask.IdleCount = 0
	nextThread.IdleCount = 0
	nextTask.Status = defs.RUNNING
	nextThread.Status = defs.RUNNING
	nextThread.Acc.Utadd()

	k.EOI.EOI()
	return true
}

func (k *Kernel_t) pickTask() *Task_t {
	var best *Task_t
	k.Tasks.Iter(func(_ defs.Pid_t, t *Task_t) bool {
		t.IdleCount++
		if t.Status != defs.WAITING {
			return false
		}
		if best == nil || t.IdleCount > best.IdleCount {
			best = t
		}
		return false
	})
	return best
}

func (k *Kernel_t) pickThread(t *Task_t) *Thread_t {
	var best *Thread_t
	t.Threads.Iter(func(_ defs.Tid_t, th *Thread_t) bool {
		th.IdleCount++
		if th.Status != defs.WAITING {
			return false
		}
		if best == nil || th.IdleCount > best.IdleCount {
			best = th
		}
		return false
	})
	return best
}

// RunCores simulates nCores independent reschedule interrupts each ticking
// the scheduler n times, contending on sched_lock the way real cores would.
// Built on golang.org/x/sync/errgroup so a core goroutine's error cancels
// the rest promptly instead of leaving a hung simulation.
func RunCores(ctx context.Context, k *Kernel_t, nCores, ticksPerCore int) error {
	g, ctx := errgroup.WithContext(ctx)
	for c := 0; c < nCores; c++ {
		core := c
		g.Go(func() error {
			for i := 0; i < ticksPerCore; i++ {
				select {
				case <-ctx.Done():
					return ctx.Err()
				default:
				}
				k.Tick(core % k.Cfg.MaxCores)
			}
			return nil
		})
	}
	return g.Wait()
}
