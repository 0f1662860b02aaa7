package vm

import "pastoral/pkg/mem"

// Invlpg_i models the local TLB-invalidation primitive (invlpg). A real
// kernel has exactly one of these, backed by inline assembly; this module
// models it as an interface so unmap paths are testable without privileged
// instructions and so a future multi-core shootdown implementation has an
// obvious seam to extend. Only local invalidation is implemented here --
// multi-core shootdown is explicitly left to the implementer (see the
// concurrency notes): unmap paths only ever call the local primitive.
type Invlpg_i interface {
	Invlpg(vaddr uintptr)
}

// LocalInvlpg is the only Invlpg_i implementation this module provides. It
// records invalidations for test assertions; a real kernel would instead
// execute the invlpg instruction.
type LocalInvlpg struct {
	Count int
}

func (l *LocalInvlpg) Invlpg(vaddr uintptr) {
	l.Count++
}

// CR3Sim_i models loading the page-table base register. Real hardware
// requires a privileged MOV to CR3; this module exposes the same "install
// this root and serialize" contract as an interface so InitPageTable is
// observable in tests.
type CR3Sim_i interface {
	LoadCR3(root mem.Pa_t)
}

// SoftCR3 just remembers the last loaded root.
type SoftCR3 struct {
	Current mem.Pa_t
}

func (s *SoftCR3) LoadCR3(root mem.Pa_t) {
	s.Current = root
}

// InitPageTable loads root into the (simulated) hardware page-table base
// register with a memory-ordering barrier -- here, nothing more than the
// CR3Sim_i call itself, since Go's memory model already orders the
// preceding writes against this call on the same goroutine.
func InitPageTable(cr3 CR3Sim_i, root mem.Pa_t) {
	cr3.LoadCR3(root)
}
