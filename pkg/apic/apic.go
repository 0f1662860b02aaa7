// Package apic models the local APIC's end-of-interrupt signal, one of the
// contracts the scheduler's switch protocol consumes by interface only
// (see Non-goals: no real interrupt controller driver is implemented).
package apic

// EOI_i is the local-APIC end-of-interrupt contract.
type EOI_i interface {
	EOI()
}

// CountingEOI is a software stand-in that just counts calls, used by tests
// and the boot demo.
type CountingEOI struct {
	Count int
}

func (c *CountingEOI) EOI() { c.Count++ }
