// Package elf loads ELF64 program images into an address space and builds
// the auxiliary vector the scheduler's task_exec needs. Decoding is done
// with the standard library's debug/elf (the ELF loader's own decoding
// logic is named as an external collaborator in scope §1; what is in scope
// is driving debug/elf's output into the vm package's mapping calls).
package elf

import (
	"bytes"
	"debug/elf"
	"io"

	"pastoral/pkg/defs"
	"pastoral/pkg/mem"
	"pastoral/pkg/vm"
)

// Auxiliary vector keys this core understands.
const (
	AT_PHDR   = 3
	AT_PHENT  = 4
	AT_PHNUM  = 5
	AT_ENTRY  = 9
)

// AuxVec is the subset of the auxiliary vector task_exec threads through to
// thread_exec's stack-layout builder.
type AuxVec struct {
	Phdr   uintptr
	Phent  uintptr
	Phnum  uintptr
	Entry  uintptr
}

// Pairs returns the (key, value) pairs in the order §6 specifies.
func (a AuxVec) Pairs() [][2]uint64 {
	return [][2]uint64{
		{AT_PHNUM, uint64(a.Phnum)},
		{AT_PHENT, uint64(a.Phent)},
		{AT_PHDR, uint64(a.Phdr)},
		{AT_ENTRY, uint64(a.Entry)},
	}
}

// Load maps every PT_LOAD segment of the ELF image in r into as, returning
// the auxiliary vector and the PT_INTERP path if the binary declares one.
func Load(as *vm.Vm_t, r io.ReaderAt) (AuxVec, string, defs.Err_t) {
	f, err := elf.NewFile(r)
	if err != nil {
		return AuxVec{}, "", defs.E_OPEN
	}
	if f.Class != elf.ELFCLASS64 || f.Machine != elf.EM_X86_64 {
		return AuxVec{}, "", defs.E_OPEN
	}

	var interp string
	var phdrVaddr uintptr
	nload := 0

	for _, p := range f.Progs {
		switch p.Type {
		case elf.PT_INTERP:
			data := make([]byte, p.Filesz)
			if _, err := p.ReadAt(data, 0); err == nil {
				interp = string(bytes.TrimRight(data, "\x00"))
			}
		case elf.PT_PHDR:
			phdrVaddr = uintptr(p.Vaddr)
		case elf.PT_LOAD:
			if e := loadSegment(as, p); e != 0 {
				return AuxVec{}, "", e
			}
			nload++
		}
	}
	_ = nload

	aux := AuxVec{
		Phdr:  phdrVaddr,
		Phent: uintptr(unsafeProgHeaderSize()),
		Phnum: uintptr(len(f.Progs)),
		Entry: uintptr(f.Entry),
	}
	return aux, interp, 0
}

func unsafeProgHeaderSize() int {
	// ELF64 program header entries are a fixed 56 bytes.
	return 56
}

func loadSegment(as *vm.Vm_t, p *elf.Prog) defs.Err_t {
	start := uintptr(p.Vaddr) &^ uintptr(mem.PGOFFSET)
	end := (uintptr(p.Vaddr) + uintptr(p.Memsz) + mem.PGOFFSET) &^ uintptr(mem.PGOFFSET)
	data := make([]byte, p.Filesz)
	if _, err := p.ReadAt(data, 0); err != nil && err != io.EOF {
		return defs.E_IO
	}

	prot := vm.PROT_USER
	if p.Flags&elf.PF_R != 0 {
		prot |= vm.PROT_READ
	}
	if p.Flags&elf.PF_W != 0 {
		prot |= vm.PROT_WRITE
	}
	if p.Flags&elf.PF_X != 0 {
		prot |= vm.PROT_EXEC
	}
	flags := protToFlags(prot)

	fileOff := int(uintptr(p.Vaddr) - start)
	for va := start; va < end; va += mem.PGSIZE {
		pa, page, allocated := mem.Physmem.Refpg_new()
		if !allocated {
			return defs.E_RESOURCE
		}
		if _, ok := as.Ops.MapPage(as.Root, va, pa, flags); !ok {
			return defs.E_RESOURCE
		}
		copyPageFromSegment(page, data, fileOff, int(va-start))
	}
	return 0
}

func copyPageFromSegment(page *mem.Bytepg_t, data []byte, fileBase, pageStart int) {
	for i := 0; i < mem.PGSIZE; i++ {
		srcIdx := pageStart + i - fileBase
		if srcIdx >= 0 && srcIdx < len(data) {
			page[i] = data[srcIdx]
		}
	}
}

func protToFlags(prot int) uint64 {
	var f uint64 = mem.PTE_P | mem.PTE_U
	if prot&vm.PROT_WRITE != 0 {
		f |= mem.PTE_W
	}
	if prot&vm.PROT_EXEC == 0 {
		f |= mem.PTE_NX
	}
	return f
}
