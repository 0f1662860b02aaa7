// Package mem implements the physical frame allocator and the direct map
// that the page-table engine and address-space manager build on. The real
// kernel this is adapted from gets its frames from firmware memory-map
// enumeration and maps them into a fixed high-half window with hardware
// paging; since this module runs as an ordinary process with no access to
// physical memory or privileged instructions, the "physical address space"
// is simulated as a flat arena and the direct map is simply a slice view
// into it. Every caller-visible type and method name is kept the same
// shape as the frame allocator this is grounded on, so the rest of the
// kernel (vm, sched) is none the wiser.
package mem

import (
	"fmt"
	"sync"
	"unsafe"
)

const (
	PGSHIFT  = 12
	PGSIZE   = 1 << PGSHIFT
	PGOFFSET = PGSIZE - 1
	PGMASK   = ^uintptr(PGOFFSET)

	HPGSHIFT = 21
	HPGSIZE  = 1 << HPGSHIFT // 2 MiB

	PTE_P   = 1 << 0
	PTE_W   = 1 << 1
	PTE_U   = 1 << 2
	PTE_PCD = 1 << 4
	PTE_A   = 1 << 5
	PTE_D   = 1 << 6
	PTE_PS  = 1 << 7
	PTE_G   = 1 << 8
	// PTE_COW occupies a software-available bit (bit 9) of the PTE.
	PTE_COW    = 1 << 9
	PTE_WASCOW = 1 << 10
	PTE_NX     = 1 << 63

	PTE_ADDR = uint64(0x000ffffffffff000)
)

// Pa_t is a physical address. It indexes into the simulated arena rather
// than real RAM.
type Pa_t uintptr

// Bytepg_t is the byte-addressable view of one 4 KiB frame.
type Bytepg_t [PGSIZE]uint8

// Pg_t is the word-addressable view of one 4 KiB frame (512 uint64s).
type Pg_t [512]uint64

// Pmap_t is a 4 KiB page-table frame, an array of 512 PTEs.
type Pmap_t [512]Pa_t

// Physpg_t is the bookkeeping record for one frame: a reference count and
// the set of cores that might have it cached in a TLB.
type Physpg_t struct {
	Refcnt  int32
	Cpumask uint64
}

// Physmem_t is the physical frame pool. Pgs is indexed by frame number
// (Pa_t >> PGSHIFT); arena holds the simulated backing bytes.
type Physmem_t struct {
	sync.Mutex
	arena   []Bytepg_t
	Pgs     []Physpg_t
	free    []uint32 // stack of free frame numbers
	nframes uint32
}

// Physmem is the kernel-wide frame pool, mirroring the teacher's global
// singleton; Phys_init must be called once before use.
var Physmem = &Physmem_t{}

// Phys_init reserves nframes frames of simulated physical memory.
func Phys_init(nframes int) {
	Physmem.arena = make([]Bytepg_t, nframes)
	Physmem.Pgs = make([]Physpg_t, nframes)
	Physmem.free = make([]uint32, nframes)
	for i := range Physmem.free {
		Physmem.free[i] = uint32(nframes - 1 - i)
	}
	Physmem.nframes = uint32(nframes)
}

func (p *Physmem_t) frameOf(pa Pa_t) uint32 {
	return uint32(pa >> PGSHIFT)
}

// Refpg_new allocates a zeroed frame with reference count 1.
func (p *Physmem_t) Refpg_new() (Pa_t, *Bytepg_t, bool) {
	pa, pg, ok := p.Refpg_new_nozero()
	if ok {
		for i := range pg {
			pg[i] = 0
		}
	}
	return pa, pg, ok
}

// Refpg_new_nozero allocates a frame with reference count 1 without
// clearing its contents.
func (p *Physmem_t) Refpg_new_nozero() (Pa_t, *Bytepg_t, bool) {
	p.Lock()
	defer p.Unlock()
	if len(p.free) == 0 {
		return 0, nil, false
	}
	n := len(p.free) - 1
	fn := p.free[n]
	p.free = p.free[:n]
	p.Pgs[fn] = Physpg_t{Refcnt: 1}
	pa := Pa_t(fn) << PGSHIFT
	return pa, &p.arena[fn], true
}

// Refcnt returns the current reference count of the frame at pa.
func (p *Physmem_t) Refcnt(pa Pa_t) int32 {
	p.Lock()
	defer p.Unlock()
	return p.Pgs[p.frameOf(pa)].Refcnt
}

// Refup increments the reference count of the frame at pa.
func (p *Physmem_t) Refup(pa Pa_t) {
	p.Lock()
	defer p.Unlock()
	p.Pgs[p.frameOf(pa)].Refcnt++
}

// Refdown decrements the reference count of the frame at pa and frees it
// when it reaches zero. It reports whether the frame was freed.
func (p *Physmem_t) Refdown(pa Pa_t) bool {
	p.Lock()
	defer p.Unlock()
	fn := p.frameOf(pa)
	p.Pgs[fn].Refcnt--
	if p.Pgs[fn].Refcnt <= 0 {
		p.free = append(p.free, fn)
		return true
	}
	return false
}

// Dmap returns the direct-mapped byte view of the frame at pa.
func (p *Physmem_t) Dmap(pa Pa_t) *Bytepg_t {
	return &p.arena[p.frameOf(pa)]
}

// Dmap8 is like Dmap but returns a plain byte slice.
func (p *Physmem_t) Dmap8(pa Pa_t) []uint8 {
	return p.arena[p.frameOf(pa)][:]
}

// Pmap_new allocates a zeroed page-table frame and returns both the typed
// view and its physical address.
func (p *Physmem_t) Pmap_new() (*Pmap_t, Pa_t, bool) {
	pa, b, ok := p.Refpg_new()
	if !ok {
		return nil, 0, false
	}
	return (*Pmap_t)(unsafe.Pointer(b)), pa, true
}

// Pgcount returns the number of frames currently free.
func (p *Physmem_t) Pgcount() int {
	p.Lock()
	defer p.Unlock()
	return len(p.free)
}

// String reports pool occupancy, used by diagnostics and the boot demo's
// profile dump.
func (p *Physmem_t) String() string {
	p.Lock()
	defer p.Unlock()
	return fmt.Sprintf("physmem: %d/%d frames free", len(p.free), p.nframes)
}
