// Command pastoral-boot wires the virtual memory manager, the scheduler,
// and the block/partition layer together the way a kernel's entry point
// would: build the default page table, register a disk's partitions,
// construct a kernel executive, exec an init task from an ELF file on the
// host filesystem, and simulate a few cores ticking. Adapted from the shape of
// the teacher's kernel entry sequence, reduced to what this module
// actually implements -- there is no real boot loader handoff, no real
// disk controller, and no real page-fault trap gate here, only the
// software model each package provides.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"pastoral/pkg/apic"
	"pastoral/pkg/block"
	"pastoral/pkg/cpufeat"
	"pastoral/pkg/defs"
	"pastoral/pkg/fs"
	"pastoral/pkg/mem"
	"pastoral/pkg/sched"
	"pastoral/pkg/tty"
	"pastoral/pkg/vm"

	"github.com/google/pprof/profile"
	"golang.org/x/sys/cpu"
)

func main() {
	diskPath := flag.String("disk", "", "path to a disk image produced by mkdiskimg")
	initPath := flag.String("init", "", "host filesystem path to the init ELF binary")
	cores := flag.Int("cores", 4, "number of simulated cores")
	ticks := flag.Int("ticks", 100, "scheduler ticks per core")
	profilePath := flag.String("profile", "", "write a pprof-format frame-occupancy profile here")
	nframes := flag.Int("frames", 1<<16, "physical frames to simulate")
	flag.Parse()

	mem.Phys_init(*nframes)

	reader := cpufeat.HostReader{}
	fmt.Printf("pastoral-boot: %d logical cores, LA57=%v, AVX2=%v\n",
		*cores, reader.HasLA57(), cpu.X86.HasAVX2)

	k := sched.NewKernel(sched.KernelConfig{
		ThreadKernelStackSize: 0x4000,
		ThreadUserStackSize:   0x100000,
		MaxCores:              *cores,
		CodeSelectorUser:      0x20 | 3,
		CodeSelectorKernel:    0x08,
	}, &apic.CountingEOI{})

	if *diskPath != "" {
		disk, err := block.OpenFileDisk(*diskPath, block.BlockSize)
		if err != nil {
			log.Fatal(err)
		}
		defer disk.Close()

		bdev := block.MkDisk("disk0", "sda", disk, 1)
		if err := block.RegisterDisk(bdev, nil, []block.Prober_i{
			fs.CacheWarmingProber_t{BlockSize: block.BlockSize, Capacity: 16},
			fs.NullProber_t{},
		}); err != 0 {
			log.Printf("pastoral-boot: disk registration: %v", err)
		} else {
			fmt.Printf("pastoral-boot: registered %d partition(s) on %s\n", len(bdev.Partitions), bdev.DeviceName)
		}
	}

	if *initPath != "" {
		console := tty.MkRing(4096)
		opener := fileOpener{}
		t, err := k.TaskExec(reader, opener, *initPath, sched.ExecArgs{Argv: []string{*initPath}}, console, nil)
		if err != 0 {
			log.Printf("pastoral-boot: exec %s: %v", *initPath, err)
		} else {
			fmt.Printf("pastoral-boot: started pid %d\n", t.Pid)
		}
	}

	if err := sched.RunCores(context.Background(), k, *cores, *ticks); err != nil {
		log.Printf("pastoral-boot: core simulation stopped: %v", err)
	}

	if *profilePath != "" {
		if err := dumpFrameProfile(*profilePath, k); err != nil {
			log.Printf("pastoral-boot: profile: %v", err)
		}
	}
	fmt.Println("pastoral-boot: done")
}

// dumpFrameProfile writes a pprof-format profile of resident-frame counts
// per task, one sample per PID, using github.com/google/pprof's profile
// package directly rather than runtime/pprof's CPU sampler -- there is no
// real CPU to sample here, only the frame allocator's bookkeeping.
func dumpFrameProfile(path string, k *sched.Kernel_t) error {
	frameFn := &profile.Function{ID: 1, Name: "resident_frames"}
	loc := &profile.Location{ID: 1, Line: []profile.Line{{Function: frameFn}}}
	p := &profile.Profile{
		SampleType: []*profile.ValueType{{Type: "frames", Unit: "count"}},
		PeriodType: &profile.ValueType{Type: "frames", Unit: "count"},
		Period:     1,
		Function:   []*profile.Function{frameFn},
		Location:   []*profile.Location{loc},
	}

	k.Tasks.Iter(func(pid defs.Pid_t, t *sched.Task_t) bool {
		count := int64(0)
		t.Vm.Pages.Iter(func(_ uintptr, _ *vm.Page_t) bool { count++; return false })
		p.Sample = append(p.Sample, &profile.Sample{
			Location: []*profile.Location{loc},
			Value:    []int64{count},
			Label:    map[string][]string{"pid": {fmt.Sprint(pid)}},
		})
		return false
	})

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return p.Write(f)
}

type fileOpener struct{}

func (fileOpener) Open(path string) (io.ReaderAt, defs.Err_t) {
	f, err := os.Open(path)
	if err != nil {
		return nil, defs.E_OPEN
	}
	return f, 0
}
