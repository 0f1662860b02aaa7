package vm

import "pastoral/pkg/mem"

// Page_t is the in-memory record for one mapped virtual page. It mirrors
// the hardware PTE (so a reference-count check can be validated against
// it) and names its own PTE slot via PTERef_t, so a copy-on-write break can
// rewrite the live mapping without walking the table again.
type Page_t struct {
	Vaddr uintptr
	Paddr mem.Pa_t
	Size  int // mem.PGSIZE or mem.HPGSIZE
	Flags uint64
	PTE   PTERef_t
}

func (p *Page_t) cow() bool   { return p.Flags&mem.PTE_COW != 0 }
func (p *Page_t) writable() bool { return p.Flags&mem.PTE_W != 0 }

func hashUintptr(v uintptr) uint32 {
	// fnv-1a, good enough for page-aligned addresses as hash table keys.
	var h uint32 = 2166136261
	for i := 0; i < 8; i++ {
		h ^= uint32(byte(v >> (8 * i)))
		h *= 16777619
	}
	return h
}

func pageBase(vaddr uintptr) uintptr {
	return vaddr &^ uintptr(mem.PGOFFSET)
}
