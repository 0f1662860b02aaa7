// Package vm implements the page-table engine (4- and 5-level paging),
// address-space manager (anonymous mmap regions, copy-on-write fork, page
// faults), grounded on the teacher's Vm_t/Pmap_t shape and on
// original_source/kernel/mm/vmm.c for the exact walk/fork/fault algorithms.
package vm

import (
	"unsafe"

	"pastoral/pkg/mem"
)

// PTERef_t names a live PTE slot as (physical table frame, index within
// it) rather than a raw Go pointer, so a Page record can reference "its"
// PTE without creating a GC-visible cycle between Page, PTE, and Page
// Table -- the pair is just data, resolved on demand via Resolve. The
// zero value is not a usable reference; callers get one only via a
// successful MapPage/LowestLevel.
type PTERef_t struct {
	Table mem.Pa_t
	Index int
}

func mkRef(table mem.Pa_t, index int) PTERef_t {
	return PTERef_t{Table: table, Index: index}
}

// Resolve returns the live PTE value at this slot.
func (r PTERef_t) Resolve() mem.Pa_t {
	pm := tableView(r.Table)
	return pm[r.Index]
}

// Write stores a new PTE value at this slot.
func (r PTERef_t) Write(v mem.Pa_t) {
	pm := tableView(r.Table)
	pm[r.Index] = v
}

func tableView(pa mem.Pa_t) *mem.Pmap_t {
	b := mem.Physmem.Dmap(pa)
	return (*mem.Pmap_t)(unsafe.Pointer(b))
}

// TableOps_i is the polymorphic page-table operation set, selected once at
// table-construction time (4-level vs 5-level) and stored on the Vm_t --
// a small interface implemented by ops_t, instantiated as Ops4 and Ops5,
// rather than raw C-style function pointers.
type TableOps_i interface {
	// MapPage installs a mapping for vaddr -> paddr with the given flags,
	// lazily allocating intermediate tables. For a huge (2 MiB, PS set)
	// mapping it returns ok=true but an invalid PTERef_t (huge leaves live
	// at level 2; callers needing a rewritable slot must map 4 KiB pages).
	MapPage(root mem.Pa_t, vaddr uintptr, paddr mem.Pa_t, flags uint64) (PTERef_t, bool)
	// UnmapPage clears the present bit at vaddr's leaf, invalidates the
	// local TLB for it, and returns the size freed (0 if nothing was
	// mapped there -- unmap is idempotent).
	UnmapPage(root mem.Pa_t, vaddr uintptr, tlb Invlpg_i) int
	// LowestLevel returns the PTE slot reached walking to vaddr, and
	// whether the walk reached a leaf at all.
	LowestLevel(root mem.Pa_t, vaddr uintptr) (PTERef_t, bool)
	Levels() int
}

type ops_t struct{ levels int }

// Ops4 is the 4-level (PML4-rooted) table operation set.
var Ops4 TableOps_i = ops_t{levels: 4}

// Ops5 is the 5-level (PML5-rooted, LA57) table operation set.
var Ops5 TableOps_i = ops_t{levels: 5}

func (o ops_t) Levels() int { return o.levels }

// idx returns the index into the page table at the given level (1 = PT,
// up to o.levels = the root) for vaddr, matching
// compute_table_indices's shift-by-(12+9*(level-1)) pattern -- for
// whichever level is actually the root, so a 5-level walk never reuses the
// 4-level root's shift (the bug the original pml5_unmap_page had).
func (o ops_t) idx(level int, vaddr uintptr) int {
	shift := uint(12 + 9*(level-1))
	return int((vaddr >> shift) & 0x1ff)
}

const maskFlagsForIntermediate = mem.PTE_P | mem.PTE_W | mem.PTE_U

// walk descends from root towards level 1, allocating missing intermediate
// tables when alloc is true. It returns the physical address of the level-1
// table (or the level-2 table, if it stopped early at a huge leaf) plus the
// index within it, and whether a huge (PS) leaf was found along the way.
func (o ops_t) walk(root mem.Pa_t, vaddr uintptr, alloc bool, flags uint64) (tbl mem.Pa_t, index int, huge bool, ok bool) {
	cur := root
	for level := o.levels; level >= 2; level-- {
		i := o.idx(level, vaddr)
		pm := tableView(cur)
		ent := pm[i]
		if ent&mem.PTE_P == 0 {
			if !alloc {
				return 0, 0, false, false
			}
			_, newpa, allocated := mem.Physmem.Pmap_new()
			if !allocated {
				return 0, 0, false, false
			}
			ent = mem.Pa_t(uint64(newpa) | maskFlagsForIntermediate)
			pm[i] = ent
		}
		if level == 2 && ent&mem.PTE_PS != 0 {
			return cur, i, true, true
		}
		cur = mem.Pa_t(uint64(ent) & mem.PTE_ADDR)
	}
	i := o.idx(1, vaddr)
	return cur, i, false, true
}

func (o ops_t) MapPage(root mem.Pa_t, vaddr uintptr, paddr mem.Pa_t, flags uint64) (PTERef_t, bool) {
	huge := flags&mem.PTE_PS != 0
	if huge {
		// Huge leaves are written at level 2: walk to level 2 without
		// descending into (non-existent) level-1 tables.
		cur := root
		var i int
		for level := o.levels; level >= 3; level-- {
			i = o.idx(level, vaddr)
			pm := tableView(cur)
			ent := pm[i]
			if ent&mem.PTE_P == 0 {
				_, newpa, allocated := mem.Physmem.Pmap_new()
				if !allocated {
					return PTERef_t{}, false
				}
				ent = mem.Pa_t(uint64(newpa) | maskFlagsForIntermediate)
				pm[i] = ent
			}
			cur = mem.Pa_t(uint64(ent) & mem.PTE_ADDR)
		}
		i = o.idx(2, vaddr)
		pm := tableView(cur)
		pm[i] = mem.Pa_t(uint64(paddr) | flags)
		return PTERef_t{}, true
	}
	tbl, i, huge2, ok := o.walk(root, vaddr, true, flags)
	if !ok || huge2 {
		return PTERef_t{}, false
	}
	pm := tableView(tbl)
	leafFlags := flags &^ mem.PTE_PS
	pm[i] = mem.Pa_t(uint64(paddr) | leafFlags)
	return mkRef(tbl, i), true
}

func (o ops_t) UnmapPage(root mem.Pa_t, vaddr uintptr, tlb Invlpg_i) int {
	tbl, i, huge, ok := o.walk(root, vaddr, false, 0)
	if !ok {
		return 0
	}
	pm := tableView(tbl)
	ent := pm[i]
	if ent&mem.PTE_P == 0 {
		return 0
	}
	pm[i] = ent &^ mem.Pa_t(mem.PTE_P)
	if tlb != nil {
		tlb.Invlpg(vaddr)
	}
	if huge {
		return mem.HPGSIZE
	}
	return mem.PGSIZE
}

func (o ops_t) LowestLevel(root mem.Pa_t, vaddr uintptr) (PTERef_t, bool) {
	tbl, i, huge, ok := o.walk(root, vaddr, false, 0)
	if !ok {
		return PTERef_t{}, false
	}
	_ = huge
	return mkRef(tbl, i), true
}

// MapRange installs count pages (4 KiB, or 2 MiB if flags has PTE_PS) of
// physical memory starting at paddr into vaddr..vaddr+count*stride,
// advancing both addresses by the discovered stride.
func MapRange(ops TableOps_i, root mem.Pa_t, vaddr uintptr, paddr mem.Pa_t, count int, flags uint64) bool {
	stride := uintptr(mem.PGSIZE)
	pstride := mem.Pa_t(mem.PGSIZE)
	if flags&mem.PTE_PS != 0 {
		stride = mem.HPGSIZE
		pstride = mem.HPGSIZE
	}
	o := ops.(ops_t)
	for k := 0; k < count; k++ {
		if _, ok := o.MapPage(root, vaddr, paddr, flags); !ok {
			return false
		}
		vaddr += stride
		paddr += pstride
	}
	return true
}

// UnmapRange removes count pages starting at vaddr, using whatever stride
// each page turns out to have been mapped with.
func UnmapRange(ops TableOps_i, root mem.Pa_t, vaddr uintptr, count int, tlb Invlpg_i) int {
	o := ops.(ops_t)
	total := 0
	for k := 0; k < count; k++ {
		n := o.UnmapPage(root, vaddr, tlb)
		if n == 0 {
			vaddr += mem.PGSIZE
			continue
		}
		total += n
		vaddr += uintptr(n)
	}
	return total
}
