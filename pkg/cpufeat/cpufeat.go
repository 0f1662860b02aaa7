// Package cpufeat models the CPUID reader the page-table engine consults to
// decide between 4-level and 5-level paging. Real LA57 detection is CPUID
// leaf 7 subleaf 0, bit 16 of ECX; this module has no privileged CPUID
// instruction available, and golang.org/x/sys/cpu does not expose that bit
// on any Go build target today, so HostReader has nothing to read here.
// golang.org/x/sys/cpu itself is exercised for a real, gated decision
// elsewhere in this module (see cmd/pastoral-boot's boot-time capability
// report); this package would only be dressing up a constant with an
// unrelated feature check, so it does not import the library at all.
package cpufeat

// Reader_i is the CPUID-reader contract the vm package depends on.
type Reader_i interface {
	HasLA57() bool
}

// HostReader always reports LA57 absent: no mainstream x86-64 chip exposes
// it through any feature-detection library Go's build targets today, and
// this core has no privileged CPUID instruction of its own to fall back to.
type HostReader struct{}

func (HostReader) HasLA57() bool {
	return false
}

// FixedReader is a software stand-in for tests and the boot demo that want
// to force a specific LA57 answer without depending on the host CPU.
type FixedReader struct {
	LA57 bool
}

func (f FixedReader) HasLA57() bool { return f.LA57 }
