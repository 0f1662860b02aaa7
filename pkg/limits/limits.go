// Package limits tracks system-wide resource ceilings (max tasks, fds,
// block-cache pages). Only Sysprocs is consulted, by sched.DefaultTask
// before it hands out a new PID; Fds and Blocks are not consulted anywhere.
// Adapted from the teacher's limits package, keeping only these fields.
package limits

import (
	"sync/atomic"
	"unsafe"
)

// Sysatomic_t is a numeric limit that can be atomically updated.
type Sysatomic_t int64

// Syslimit_t tracks system-wide resource limits.
type Syslimit_t struct {
	Sysprocs Sysatomic_t
	Fds      Sysatomic_t
	Blocks   Sysatomic_t
}

// Syslimit is the kernel-wide configured limits, overridable in tests.
var Syslimit = MkSysLimit()

// MkSysLimit returns the default set of limits.
func MkSysLimit() *Syslimit_t {
	return &Syslimit_t{
		Sysprocs: 1e4,
		Fds:      1024,
		Blocks:   100000,
	}
}

func (s *Sysatomic_t) aptr() *int64 { return (*int64)(unsafe.Pointer(s)) }

// Given increases the limit by n.
func (s *Sysatomic_t) Given(n uint) {
	atomic.AddInt64(s.aptr(), int64(n))
}

// Taken tries to decrement the limit by n, reporting success.
func (s *Sysatomic_t) Taken(n uint) bool {
	g := atomic.AddInt64(s.aptr(), -int64(n))
	if g >= 0 {
		return true
	}
	atomic.AddInt64(s.aptr(), int64(n))
	return false
}

// Take decrements the limit by one and reports success.
func (s *Sysatomic_t) Take() bool { return s.Taken(1) }

// Give increments the limit by one.
func (s *Sysatomic_t) Give() { s.Given(1) }
