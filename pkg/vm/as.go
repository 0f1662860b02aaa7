package vm

import (
	"sync"

	"pastoral/pkg/defs"
	"pastoral/pkg/hashtable"
	"pastoral/pkg/mem"
)

// Vm_t is a per-task address space: a page-table root plus the bookkeeping
// the fault handler and fork need. Grounded on the teacher's Vm_t (embedded
// mutex, Pmap/P_pmap pair, lock-assert-style accessors), extended with the
// region tree and bump pointer the teacher's fragment referenced but never
// defined.
type Vm_t struct {
	sync.Mutex
	Ops     TableOps_i
	Root    mem.Pa_t
	Pages   *hashtable.Hashtable_t[uintptr, *Page_t]
	Regions RegionTree_t
	Bump    uintptr
	Tlb     Invlpg_i
	Cr3     CR3Sim_i
}

// MkVm allocates a fresh address space rooted at a new page-table frame,
// with anonymous mmap allocation starting at userMin.
func MkVm(ops TableOps_i, tlb Invlpg_i, cr3 CR3Sim_i, userMin uintptr) (*Vm_t, defs.Err_t) {
	_, root, ok := mem.Physmem.Pmap_new()
	if !ok {
		return nil, defs.E_RESOURCE
	}
	return &Vm_t{
		Ops:   ops,
		Root:  root,
		Pages: hashtable.MkHash[uintptr, *Page_t](64, hashUintptr),
		Bump:  userMin,
		Tlb:   tlb,
		Cr3:   cr3,
	}, 0
}

// Activate installs this address space's root as the live page table,
// corresponding to vmm_init_page_table / §4.A's init_page_table.
func (as *Vm_t) Activate() {
	InitPageTable(as.Cr3, as.Root)
}

// VmaddAnon carves out a fresh anonymous region of length bytes (rounded up
// to a page) from the bump allocator and records it in the region tree.
// No frames are populated until the region is first touched.
func (as *Vm_t) VmaddAnon(length int, prot int) (uintptr, defs.Err_t) {
	as.Lock()
	defer as.Unlock()
	n := uintptr(length)
	n = (n + mem.PGOFFSET) &^ uintptr(mem.PGOFFSET)
	base := as.Bump
	as.Bump += n
	as.Regions.Insert(&Vminfo_t{Base: base, Limit: n, Prot: prot, Mtype: VANON})
	return base, 0
}

// Fork produces sibling (child's) mappings sharing parent's frames
// read-only with COW set, per §4.B: for every page for the parent, bump its
// refcount, clear RW/set COW on both parent and child PTEs, clone the Page
// record, and remap in the child.
func (parent *Vm_t) Fork(child *Vm_t) defs.Err_t {
	parent.Lock()
	defer parent.Unlock()

	var ferr defs.Err_t
	parent.Pages.Iter(func(vaddr uintptr, pg *Page_t) bool {
		mem.Physmem.Refup(pg.Paddr)

		newFlags := (pg.Flags &^ uint64(mem.PTE_W)) | mem.PTE_COW
		pg.Flags = newFlags
		pg.PTE.Write(mem.Pa_t(uint64(pg.Paddr) | newFlags))

		clone := &Page_t{Vaddr: pg.Vaddr, Paddr: pg.Paddr, Size: pg.Size, Flags: newFlags}
		ref, ok := child.Ops.MapPage(child.Root, vaddr, pg.Paddr, newFlags)
		if !ok {
			ferr = defs.E_RESOURCE
			return true
		}
		clone.PTE = ref
		child.Pages.Set(vaddr, clone)
		return false
	})
	return ferr
}

// flagsFromProt translates mmap protection bits to PTE flags: R is
// implicit, +W if WRITE, +US if USER, NX cleared if EXEC, P cleared if
// NONE -- exactly vmm_pf_handler's translation.
func flagsFromProt(prot int) uint64 {
	var f uint64 = mem.PTE_P
	if prot&PROT_WRITE != 0 {
		f |= mem.PTE_W
	}
	if prot&PROT_USER != 0 {
		f |= mem.PTE_U
	}
	if prot&PROT_EXEC == 0 {
		f |= mem.PTE_NX
	}
	if prot == PROT_NONE {
		f &^= uint64(mem.PTE_P)
	}
	return f
}

// Pgfault is the page-fault handler: on a not-present fault inside a known
// region, populate a fresh anonymous frame; on a present fault against a
// COW PTE, either promote in place (last owner) or copy-on-write; anything
// else is unhandled. ecode bit 0 is the hardware "P" (was-present) bit.
func (as *Vm_t) Pgfault(faultaddr uintptr, ecode uint64) defs.Err_t {
	as.Lock()
	defer as.Unlock()

	const ecodeP = 1 << 0
	base := pageBase(faultaddr)

	if ecode&ecodeP == 0 {
		region := as.Regions.Find(faultaddr)
		if region == nil {
			return defs.E_UNHANDLED
		}
		flags := flagsFromProt(region.Prot)
		paddr, _, ok := mem.Physmem.Refpg_new()
		if !ok {
			return defs.E_RESOURCE
		}
		ref, ok := as.Ops.MapPage(as.Root, base, paddr, flags)
		if !ok {
			return defs.E_RESOURCE
		}
		as.Pages.Set(base, &Page_t{Vaddr: base, Paddr: paddr, Size: mem.PGSIZE, Flags: flags, PTE: ref})
		return 0
	}

	ref, ok := as.Ops.LowestLevel(as.Root, base)
	if !ok {
		return defs.E_NOTFOUND_RECORD
	}
	pte := ref.Resolve()
	if uint64(pte)&mem.PTE_COW == 0 {
		return defs.E_UNHANDLED
	}

	pg, found := as.Pages.Get(base)
	if !found {
		return defs.E_NOTFOUND_RECORD
	}

	// The Page's "reference" count in the data model is literally the
	// backing frame's allocator refcount, shared by every address space
	// whose Page record points at this paddr (fork bumped it). If we are
	// the last sharer there is nothing to copy; promote in place.
	if mem.Physmem.Refcnt(pg.Paddr) <= 1 {
		pg.Flags = (pg.Flags &^ uint64(mem.PTE_COW)) | mem.PTE_W
		ref.Write(mem.Pa_t(uint64(pg.Paddr) | pg.Flags))
		return 0
	}

	newpa, newpg, ok := mem.Physmem.Refpg_new_nozero()
	if !ok {
		return defs.E_RESOURCE
	}
	copy(newpg[:], mem.Physmem.Dmap(pg.Paddr)[:])
	mem.Physmem.Refdown(pg.Paddr) // this mapping no longer shares the old frame
	newFlags := (pg.Flags &^ uint64(mem.PTE_COW)) | mem.PTE_W
	ref.Write(mem.Pa_t(uint64(newpa) | newFlags))
	// Pages.Set does not replace an existing key, so update the record in place.
	pg.Paddr = newpa
	pg.Flags = newFlags
	pg.PTE = ref
	return 0
}
