package sched

import (
	"io"

	"pastoral/pkg/cpufeat"
	"pastoral/pkg/defs"
	"pastoral/pkg/elf"
	"pastoral/pkg/fd"
	"pastoral/pkg/tty"
	"pastoral/pkg/vm"
)

const interpreterLoadBase = 0x40000000

// ExecArgs bundles the argv/envp a caller passes to TaskExec.
type ExecArgs struct {
	Argv []string
	Envp []string
}

// Opener_i resolves a path to a readable file, standing in for the VFS open
// call task_exec makes before handing the descriptor to the ELF loader.
type Opener_i interface {
	Open(path string) (io.ReaderAt, defs.Err_t)
}

// TaskExec implements §4.D's program start-up: create the task and a fresh
// default page table, activate it temporarily (saving the caller's PID),
// open and load the ELF image (following one level of PT_INTERP), install
// stdin/stdout/stderr backed by ttyDev, build the primary thread via
// ThreadExec, restore the caller, and mark both WAITING. The whole sequence
// is serialized by sched_lock.
func (k *Kernel_t) TaskExec(cpu cpufeat.Reader_i, opener Opener_i, path string, args ExecArgs, ttyDev tty.Device_i, memmap []vm.MemRegion_t) (*Task_t, defs.Err_t) {
	if !k.tryLock() {
		return nil, defs.E_LOCK_BUSY
	}
	defer k.unlock()

	core := 0
	callerPid := k.Cores[core].Pid

	as, err := vm.DefaultTable(cpu, &vm.LocalInvlpg{}, &vm.SoftCR3{}, 0x0000000000400000, memmap)
	if err != 0 {
		return nil, err
	}
	t, err := k.DefaultTask(nil, as)
	if err != 0 {
		return nil, err
	}

	k.Cores[core].Pid = t.Pid
	as.Activate()

	f, oerr := opener.Open(path)
	if oerr != 0 {
		k.Cores[core].Pid = callerPid
		return nil, defs.E_NOENT
	}

	aux, interp, lerr := elf.Load(as, f)
	if lerr != 0 {
		k.Cores[core].Pid = callerPid
		return nil, lerr
	}
	entry := aux.Entry
	if interp != "" {
		interpF, oerr := opener.Open(interp)
		if oerr == 0 {
			iaux, _, ierr := elf.Load(as, interpF)
			if ierr == 0 {
				entry = iaux.Entry + interpreterLoadBase
			}
		}
	}

	t.Fds.Reserve(0, tty.NewAsset(ttyDev, 0), fd.ReadOnly)
	t.Fds.Reserve(1, tty.NewAsset(ttyDev, 0), fd.WriteOnly)
	t.Fds.Reserve(2, tty.NewAsset(ttyDev, 0), fd.WriteOnly)

	th := k.DefaultThread(t)
	if err := k.ThreadExec(t, th, entry, k.Cfg.CodeSelectorUser, true, args, aux); err != 0 {
		k.Cores[core].Pid = callerPid
		return nil, err
	}

	k.Cores[core].Pid = callerPid
	t.Status = defs.WAITING
	th.Status = defs.WAITING
	return t, 0
}

// ThreadExec fills in a fresh register frame per §4.C: rip=entry,
// rflags=0x202, segment selectors derived from the code selector (user:
// ss=cs-8, kernel: ss=cs+8). User threads get an anonymous-mmap'd stack
// with the argv/envp/auxv image built at its top; kernel threads start at
// the top of their kernel stack.
func (k *Kernel_t) ThreadExec(t *Task_t, th *Thread_t, entry uintptr, codeSel uint16, isUser bool, args ExecArgs, aux elf.AuxVec) defs.Err_t {
	th.Regs.RIP = entry
	th.Regs.RFLAGS = 0x202
	th.Regs.CS = codeSel

	if !isUser {
		th.Regs.SS = codeSel + 8
		th.Regs.RSP = th.KernelStack
		return 0
	}

	th.Regs.SS = codeSel - 8
	base, err := t.Vm.VmaddAnon(int(k.Cfg.ThreadUserStackSize), vm.PROT_READ|vm.PROT_WRITE|vm.PROT_USER)
	if err != 0 {
		return err
	}
	top := base + k.Cfg.ThreadUserStackSize
	// Pre-populate the stack pages (a real kernel's first-touch path would
	// fault them in one at a time; task_exec needs the argv/envp/auxv
	// bytes resident before the first instruction runs, so it populates
	// eagerly here).
	for va := base; va < top; va += 0x1000 {
		if err := t.Vm.Pgfault(va, 0); err != 0 {
			return err
		}
	}
	th.UserStack = top
	rsp, ok := BuildStack(t.Vm, top, args.Argv, args.Envp, aux)
	if !ok {
		return defs.E_RESOURCE
	}
	th.Regs.RSP = rsp
	return 0
}
