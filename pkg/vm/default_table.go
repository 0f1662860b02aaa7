package vm

import (
	"pastoral/pkg/cpufeat"
	"pastoral/pkg/defs"
	"pastoral/pkg/mem"
)

// Kernel virtual-memory window bases. Values are illustrative canonical
// high-half addresses; what matters for this module is that they are
// distinct, 2 MiB aligned, and above the user/kernel split.
const (
	KernelHighVMA uintptr = 0xffffffff80000000
	HighVMA       uintptr = 0xffff800000000000
)

// MemRegion_t is one entry of the early-boot memory map -- the "early-boot
// memory-map consumer" is otherwise out of scope, so DefaultTable takes the
// map as a plain argument rather than discovering it itself.
type MemRegion_t struct {
	Base   uintptr
	Length uintptr
}

// SelectOps picks the 4- or 5-level table operations based on the CPUID
// reader's LA57 bit.
func SelectOps(cpu cpufeat.Reader_i) TableOps_i {
	if cpu.HasLA57() {
		return Ops5
	}
	return Ops4
}

const twoGiB = 2 << 30
const fourGiB = 4 << 30

// DefaultTable builds the "default" page table shared in shape by the
// kernel and every user task: the first 2 GiB of physical memory mapped at
// KernelHighVMA, the first 4 GiB mapped at HighVMA, both with 2 MiB
// present/RW/PS/G/US pages, plus each firmware memory-map entry mapped at
// HighVMA on 2 MiB boundaries (rounded up), per §4.A.
func DefaultTable(cpu cpufeat.Reader_i, tlb Invlpg_i, cr3 CR3Sim_i, userMin uintptr, memmap []MemRegion_t) (*Vm_t, defs.Err_t) {
	ops := SelectOps(cpu)
	as, err := MkVm(ops, tlb, cr3, userMin)
	if err != 0 {
		return nil, err
	}

	const hugeFlags = mem.PTE_P | mem.PTE_W | mem.PTE_PS | mem.PTE_G | mem.PTE_U

	if !MapRange(ops, as.Root, KernelHighVMA, 0, twoGiB/mem.HPGSIZE, hugeFlags) {
		return nil, defs.E_RESOURCE
	}
	if !MapRange(ops, as.Root, HighVMA, 0, fourGiB/mem.HPGSIZE, hugeFlags) {
		return nil, defs.E_RESOURCE
	}

	for _, region := range memmap {
		base := region.Base &^ uintptr(mem.HPGSIZE-1)
		end := (region.Base + region.Length + mem.HPGSIZE - 1) &^ uintptr(mem.HPGSIZE-1)
		count := int((end - base) / mem.HPGSIZE)
		if count <= 0 {
			continue
		}
		if !MapRange(ops, as.Root, HighVMA+base, mem.Pa_t(base), count, hugeFlags) {
			return nil, defs.E_RESOURCE
		}
	}

	return as, 0
}
