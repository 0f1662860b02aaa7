package sched

import (
	"testing"

	"pastoral/pkg/apic"
	"pastoral/pkg/defs"
	"pastoral/pkg/elf"
	"pastoral/pkg/limits"
	"pastoral/pkg/mem"
	"pastoral/pkg/vm"
)

func testKernel(t *testing.T) *Kernel_t {
	t.Helper()
	mem.Phys_init(8192)
	return NewKernel(KernelConfig{
		ThreadKernelStackSize: 0x4000,
		ThreadUserStackSize:   0x10000,
		MaxCores:              2,
		CodeSelectorUser:      0x20 | 3,
		CodeSelectorKernel:    0x08,
	}, &apic.CountingEOI{})
}

func newTestVm(t *testing.T) *vm.Vm_t {
	t.Helper()
	as, err := vm.MkVm(vm.Ops4, &vm.LocalInvlpg{}, &vm.SoftCR3{}, 0x0000700000000000)
	if err != 0 {
		t.Fatalf("MkVm: %v", err)
	}
	return as
}

// Property 10: resource exhaustion leaves the PID bitmap untouched.
func TestDefaultTaskResourceExhaustion(t *testing.T) {
	k := testKernel(t)
	saved := limits.Syslimit.Sysprocs
	limits.Syslimit.Sysprocs = 0
	defer func() { limits.Syslimit.Sysprocs = saved }()

	occupancyBefore := k.PidBitmap.Count()
	_, err := k.DefaultTask(nil, newTestVm(t))
	if err != defs.E_RESOURCE {
		t.Fatalf("DefaultTask with no room = %v, want E_RESOURCE", err)
	}
	if k.PidBitmap.Count() != occupancyBefore {
		t.Fatalf("PID bitmap occupancy changed from %d to %d on a failed DefaultTask",
			occupancyBefore, k.PidBitmap.Count())
	}
}

// Property 8: scheduler fairness in the small -- with two WAITING tasks and
// no other load, after 2k ticks each has been selected exactly k times.
func TestSchedulerFairnessInTheSmall(t *testing.T) {
	k := testKernel(t)
	saved := limits.Syslimit.Sysprocs
	limits.Syslimit.Sysprocs = 1000
	defer func() { limits.Syslimit.Sysprocs = saved }()

	a, err := k.DefaultTask(nil, newTestVm(t))
	if err != 0 {
		t.Fatalf("DefaultTask a: %v", err)
	}
	b, err := k.DefaultTask(nil, newTestVm(t))
	if err != 0 {
		t.Fatalf("DefaultTask b: %v", err)
	}
	a.Status = defs.WAITING
	b.Status = defs.WAITING
	ta := k.DefaultThread(a)
	tb := k.DefaultThread(b)
	ta.Status = defs.WAITING
	tb.Status = defs.WAITING

	selections := map[defs.Pid_t]int{}
	const k_ = 20
	for i := 0; i < 2*k_; i++ {
		if !k.Tick(0) {
			t.Fatalf("tick %d did not select a task", i)
		}
		selections[k.Cores[0].Pid]++
		// Return the just-run task/thread to WAITING so it's eligible
		// again next tick, simulating an immediate voluntary yield.
		cur, _ := k.Tasks.Get(k.Cores[0].Pid)
		cur.Status = defs.WAITING
		curTh, _ := cur.Threads.Get(k.Cores[0].Tid)
		curTh.Status = defs.WAITING
	}
	if selections[a.Pid] != k_ || selections[b.Pid] != k_ {
		t.Fatalf("selections = %v, want each task selected %d times", selections, k_)
	}
}

// Property 9: ABI stack layout.
func TestBuildStackLayout(t *testing.T) {
	as := newTestVm(t)
	base, err := as.VmaddAnon(0x10000, vm.PROT_READ|vm.PROT_WRITE|vm.PROT_USER)
	if err != 0 {
		t.Fatalf("VmaddAnon: %v", err)
	}
	top := base + 0x10000
	for va := base; va < top; va += mem.PGSIZE {
		if err := as.Pgfault(va, 0); err != 0 {
			t.Fatalf("pre-populate stack: %v", err)
		}
	}

	aux := elf.AuxVec{Phdr: 0x400040, Phent: 56, Phnum: 9, Entry: 0x401000}
	sp, ok := BuildStack(as, top, []string{"./p", "-x"}, []string{"A=1"}, aux)
	if !ok {
		t.Fatal("BuildStack failed")
	}
	if sp%16 != 0 {
		t.Fatalf("rsp = %#x is not 16-byte aligned", sp)
	}

	words := readWords(t, as, sp, 20)
	if words[0] != 2 {
		t.Fatalf("argc word = %d, want 2", words[0])
	}
	arg0 := readCString(t, as, uintptr(words[1]))
	arg1 := readCString(t, as, uintptr(words[2]))
	if arg0 != "./p" || arg1 != "-x" {
		t.Fatalf("argv = %q,%q, want ./p,-x", arg0, arg1)
	}
	if words[3] != 0 {
		t.Fatalf("argv terminator word = %d, want 0", words[3])
	}
	env0 := readCString(t, as, uintptr(words[4]))
	if env0 != "A=1" {
		t.Fatalf("envp[0] = %q, want A=1", env0)
	}
	if words[5] != 0 {
		t.Fatalf("envp terminator word = %d, want 0", words[5])
	}

	foundEntry := false
	for i := 6; i+1 < len(words); i += 2 {
		if words[i] == elf.AT_ENTRY && words[i+1] == uint64(aux.Entry) {
			foundEntry = true
		}
	}
	if !foundEntry {
		t.Fatalf("auxv did not contain (AT_ENTRY, %#x): %v", aux.Entry, words)
	}
}

func readWords(t *testing.T, as *vm.Vm_t, addr uintptr, n int) []uint64 {
	t.Helper()
	out := make([]uint64, n)
	for i := range out {
		a := addr + uintptr(i*8)
		ref, ok := as.Ops.LowestLevel(as.Root, a&^uintptr(mem.PGOFFSET))
		if !ok {
			t.Fatalf("no mapping at %#x", a)
		}
		pte := ref.Resolve()
		pa := mem.Pa_t(uint64(pte) & mem.PTE_ADDR)
		off := int(a & uintptr(mem.PGOFFSET))
		b := mem.Physmem.Dmap8(pa)[off : off+8]
		var w uint64
		for k := 0; k < 8; k++ {
			w |= uint64(b[k]) << (8 * k)
		}
		out[i] = w
	}
	return out
}

func readCString(t *testing.T, as *vm.Vm_t, addr uintptr) string {
	t.Helper()
	var b []byte
	for i := 0; i < 256; i++ {
		a := addr + uintptr(i)
		ref, ok := as.Ops.LowestLevel(as.Root, a&^uintptr(mem.PGOFFSET))
		if !ok {
			t.Fatalf("no mapping at %#x", a)
		}
		pte := ref.Resolve()
		pa := mem.Pa_t(uint64(pte) & mem.PTE_ADDR)
		off := int(a & uintptr(mem.PGOFFSET))
		c := mem.Physmem.Dmap8(pa)[off]
		if c == 0 {
			break
		}
		b = append(b, c)
	}
	return string(b)
}
