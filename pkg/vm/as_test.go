package vm

import (
	"testing"

	"pastoral/pkg/mem"
)

func freshVm(t *testing.T) *Vm_t {
	t.Helper()
	mem.Phys_init(4096)
	as, err := MkVm(Ops4, &LocalInvlpg{}, &SoftCR3{}, 0x0000700000000000)
	if err != 0 {
		t.Fatalf("MkVm: %v", err)
	}
	return as
}

// Property 5: anonymous mmap first-touch.
func TestAnonMmapFirstTouch(t *testing.T) {
	as := freshVm(t)
	base, err := as.VmaddAnon(mem.PGSIZE, PROT_READ|PROT_WRITE|PROT_USER)
	if err != 0 {
		t.Fatalf("VmaddAnon: %v", err)
	}

	if err := as.Pgfault(base, 0); err != 0 {
		t.Fatalf("first-touch fault: %v", err)
	}
	ref, ok := as.Ops.LowestLevel(as.Root, base)
	if !ok {
		t.Fatal("expected a mapping after first-touch fault")
	}
	pte := ref.Resolve()
	pa := mem.Pa_t(uint64(pte) & mem.PTE_ADDR)
	page := mem.Physmem.Dmap(pa)
	for i, b := range page {
		if b != 0 {
			t.Fatalf("freshly faulted-in page not zeroed at byte %d", i)
		}
	}

	page[0] = 0xAB
	got := mem.Physmem.Dmap(pa)[0]
	if got != 0xAB {
		t.Fatalf("write then read = %#x, want 0xab", got)
	}
}

// Properties 3 & 4, scenario S3: fork sharing and COW promotion.
func TestForkSharingAndCOWPromotion(t *testing.T) {
	parent := freshVm(t)
	base, err := parent.VmaddAnon(mem.PGSIZE, PROT_READ|PROT_WRITE|PROT_USER)
	if err != 0 {
		t.Fatalf("VmaddAnon: %v", err)
	}
	if err := parent.Pgfault(base, 0); err != 0 {
		t.Fatalf("first-touch: %v", err)
	}
	parentPg, _ := parent.Pages.Get(base)
	mem.Physmem.Dmap(parentPg.Paddr)[0] = 0x11

	child, err := MkVm(Ops4, &LocalInvlpg{}, &SoftCR3{}, 0x0000700000000000)
	if err != 0 {
		t.Fatalf("MkVm child: %v", err)
	}
	if err := parent.Fork(child); err != 0 {
		t.Fatalf("Fork: %v", err)
	}

	// Property 3: both sides are COW, RW clear, refcount reflects both
	// sharers.
	pPte := parentPg.PTE.Resolve()
	if uint64(pPte)&mem.PTE_COW == 0 || uint64(pPte)&mem.PTE_W != 0 {
		t.Fatalf("parent PTE after fork = %#x, want COW set and W clear", uint64(pPte))
	}
	childPg, ok := child.Pages.Get(base)
	if !ok {
		t.Fatal("child has no Page record for shared region")
	}
	cPte := childPg.PTE.Resolve()
	if uint64(cPte)&mem.PTE_COW == 0 || uint64(cPte)&mem.PTE_W != 0 {
		t.Fatalf("child PTE after fork = %#x, want COW set and W clear", uint64(cPte))
	}
	if mem.Physmem.Refcnt(parentPg.Paddr) != 2 {
		t.Fatalf("refcnt after fork = %d, want 2", mem.Physmem.Refcnt(parentPg.Paddr))
	}

	// Property 4 / S3: child write faults, copies, parent is untouched.
	const writeFault = 1 // ecode bit 0 (P) set: page was present
	if err := child.Pgfault(base, writeFault); err != 0 {
		t.Fatalf("COW fault: %v", err)
	}
	childPgAfter, _ := child.Pages.Get(base)
	if childPgAfter.Paddr == parentPg.Paddr {
		t.Fatal("child should have a distinct frame after COW break")
	}
	mem.Physmem.Dmap(childPgAfter.Paddr)[0] = 0x22

	if mem.Physmem.Dmap(parentPg.Paddr)[0] != 0x11 {
		t.Fatal("parent's frame must be unchanged by child's COW write")
	}
	childFlags := childPgAfter.PTE.Resolve()
	if uint64(childFlags)&mem.PTE_COW != 0 || uint64(childFlags)&mem.PTE_W == 0 {
		t.Fatalf("child PTE after COW break = %#x, want COW clear and W set", uint64(childFlags))
	}
}

// Property 10 is exercised in package sched (DefaultTask / Syslimit), not
// here, since it needs the task layer.
