// Package accnt implements per-thread CPU-time accounting, fed by the
// scheduler's Tick: the incoming thread is switched to user-mode charging
// and the outgoing thread to system-mode charging. Adapted from the
// teacher's accnt package without its rusage serialization; Fetch returns
// plain (user, sys) nanosecond totals.
package accnt

import (
	"sync"
	"time"
)

// Accnt_t holds user/system nanosecond counters for one thread.
type Accnt_t struct {
	sync.Mutex
	Userns int64
	Sysns  int64
	last   time.Time
	inSys  bool
}

func Mk() *Accnt_t {
	return &Accnt_t{last: time.Now()}
}

// Utadd charges the time since the last charge to the mode entered at that
// charge, then starts charging user time.
func (a *Accnt_t) Utadd() {
	a.Lock()
	defer a.Unlock()
	a.charge(false)
}

// Systadd charges the time since the last charge to the mode entered at
// that charge, then starts charging system time.
func (a *Accnt_t) Systadd() {
	a.Lock()
	defer a.Unlock()
	a.charge(true)
}

func (a *Accnt_t) charge(sys bool) {
	now := time.Now()
	d := now.Sub(a.last).Nanoseconds()
	if a.inSys {
		a.Sysns += d
	} else {
		a.Userns += d
	}
	a.last = now
	a.inSys = sys
}

// Fetch returns the accumulated (user, sys) nanosecond totals.
func (a *Accnt_t) Fetch() (int64, int64) {
	a.Lock()
	defer a.Unlock()
	return a.Userns, a.Sysns
}
