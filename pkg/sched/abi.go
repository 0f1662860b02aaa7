package sched

import (
	"pastoral/pkg/elf"
	"pastoral/pkg/mem"
	"pastoral/pkg/vm"
)

// BuildStack writes the System V AMD64 argv/envp/auxv image at the top of
// a freshly anonymous-mmap'd user stack region and returns the rsp the
// thread should start with. Grounded exactly on sched_arg_placement: string
// bytes go at the very top, then the AT_NULL-terminated auxv pairs, a
// null-terminated envp pointer array, a null-terminated argv pointer array,
// then argc, with padding inserted so
// that (argc+envc+1) words end up 16-byte aligned at the final rsp.
func BuildStack(as *vm.Vm_t, stackTop uintptr, argv, envp []string, aux elf.AuxVec) (uintptr, bool) {
	// Write the string bytes first, from the top of the stack downward,
	// recording each string's final address.
	sp := stackTop
	argvPtrs := make([]uint64, len(argv))
	envpPtrs := make([]uint64, len(envp))

	writeString := func(s string) uintptr {
		b := append([]byte(s), 0)
		sp -= uintptr(len(b))
		if !writeBytes(as, sp, b) {
			return 0
		}
		return sp
	}

	for i := len(envp) - 1; i >= 0; i-- {
		envpPtrs[i] = uint64(writeString(envp[i]))
	}
	for i := len(argv) - 1; i >= 0; i-- {
		argvPtrs[i] = uint64(writeString(argv[i]))
	}

	// Build the full word list in the exact order memory should hold it,
	// low address to high: argc, argv pointers, null, envp pointers,
	// null, auxv (key,value) pairs, (0,0) terminator.
	var block []uint64
	block = append(block, uint64(len(argv)))
	block = append(block, argvPtrs...)
	block = append(block, 0)
	block = append(block, envpPtrs...)
	block = append(block, 0)
	for _, kv := range aux.Pairs() {
		block = append(block, kv[0], kv[1])
	}
	block = append(block, 0, 0)

	size := uintptr(len(block) * 8)
	sp -= size
	sp = sp &^ 0xf
	if !writeWords(as, sp, block) {
		return 0, false
	}
	return sp, true
}

func writeBytes(as *vm.Vm_t, addr uintptr, data []byte) bool {
	for i := 0; i < len(data); {
		page := addr + uintptr(i)
		base := page &^ uintptr(mem.PGOFFSET)
		ref, ok := as.Ops.LowestLevel(as.Root, base)
		if !ok {
			return false
		}
		pte := ref.Resolve()
		pa := mem.Pa_t(uint64(pte) & mem.PTE_ADDR)
		dst := mem.Physmem.Dmap8(pa)
		off := int(page - base)
		n := copy(dst[off:], data[i:])
		if n == 0 {
			return false
		}
		i += n
	}
	return true
}

func writeWords(as *vm.Vm_t, addr uintptr, words []uint64) bool {
	b := make([]byte, len(words)*8)
	for i, w := range words {
		for k := 0; k < 8; k++ {
			b[i*8+k] = byte(w >> (8 * k))
		}
	}
	return writeBytes(as, addr, b)
}
