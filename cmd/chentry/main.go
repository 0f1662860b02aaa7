// Command chentry rewrites the entry-point field of an ELF64 executable,
// the way a boot pipeline patches a kernel image's start address after
// linking, then replays the patched file through this module's own loader
// (pkg/elf.Load) to confirm the rewrite produced a program this core can
// actually start -- the same loader pkg/sched.TaskExec drives at exec time,
// not a second, ad hoc set of header checks.
package main

import (
	"encoding/binary"
	"fmt"
	"log"
	"os"
	"strconv"

	"pastoral/pkg/elf"
	"pastoral/pkg/mem"
	"pastoral/pkg/vm"

	dbgelf "debug/elf"
)

func usage(me string) {
	fmt.Printf("%s <filename> <addr>\n\nrewrite the ELF entry point of <filename> to <addr>\n", me)
	os.Exit(1)
}

func main() {
	if len(os.Args) != 3 {
		usage(os.Args[0])
	}
	path := os.Args[1]
	addr, err := parseAddr(os.Args[2])
	if err != nil {
		log.Fatal(err)
	}
	if addr>>32 != 0 {
		log.Fatal("entry does not fit a 32-bit load address")
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()

	ef, err := dbgelf.NewFile(f)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("chentry: %s entry 0x%x -> 0x%x\n", path, ef.FileHeader.Entry, addr)
	ef.FileHeader.Entry = addr

	if _, err := f.Seek(0, 0); err != nil {
		log.Fatal(err)
	}
	if err := binary.Write(f, binary.LittleEndian, &ef.FileHeader); err != nil {
		log.Fatal(err)
	}

	if err := verifyLoadable(f, uintptr(addr)); err != nil {
		log.Fatalf("chentry: patched file no longer loads: %v", err)
	}
	fmt.Printf("chentry: %s verified loadable at new entry\n", path)
}

// verifyLoadable drives the patched file through elf.Load against a scratch
// address space -- the same loader task_exec uses -- and checks the auxv
// entry point it reports back matches what was just written, catching a
// corrupt rewrite (bad header, truncated program table) before it ships.
func verifyLoadable(f *os.File, wantEntry uintptr) error {
	mem.Phys_init(1 << 16)
	as, verr := vm.MkVm(vm.Ops4, &vm.LocalInvlpg{}, &vm.SoftCR3{}, 0x0000700000000000)
	if verr != 0 {
		return fmt.Errorf("building scratch address space: %v", verr)
	}
	aux, _, lerr := elf.Load(as, f)
	if lerr != 0 {
		return fmt.Errorf("elf.Load: %v", lerr)
	}
	if aux.Entry != wantEntry {
		return fmt.Errorf("loader reports entry 0x%x, want 0x%x", aux.Entry, wantEntry)
	}
	return nil
}

func parseAddr(s string) (uint64, error) {
	a, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q", s)
	}
	return a, nil
}
