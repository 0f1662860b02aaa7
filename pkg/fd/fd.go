// Package fd implements file descriptor handles and the per-task FD table.
// Grounded on the teacher's fd.Fd_t/Cwd_t shape, extended to unify the FD
// bitmap and fd_list containers per the Open Question in §9: a reservation
// marks the bitmap and inserts the fd_list placeholder as a single atomic
// operation, so the two containers can never disagree about which numbers
// are taken.
package fd

import (
	"sync"

	"pastoral/pkg/bitmap"
	"pastoral/pkg/defs"
	"pastoral/pkg/hashtable"
	"pastoral/pkg/stat"
)

// Asset_i is what an FD handle is backed by: a tty line, a partition
// window, a regular file, or a pipe. The decoding/driving logic behind any
// given asset (ext2, tty hardware) is out of scope; only this contract is.
type Asset_i interface {
	Read(dst []byte, offset int) (int, defs.Err_t)
	Write(src []byte, offset int) (int, defs.Err_t)
	Stat() stat.Stat_t
}

// Open-flag bits recorded on a Handle_t; only the access-mode bits matter
// to this core since the asset itself enforces read/write behavior.
const (
	ReadOnly  = 0x0
	WriteOnly = 0x1
	ReadWrite = 0x2
)

// Handle_t is one open file descriptor.
type Handle_t struct {
	Num      defs.Fd_t
	Flags    int
	Position int
	Asset    Asset_i
}

// Table_t is a task's fd_list plus the bitmap that tracks which numbers are
// in use, kept in lock-step.
type Table_t struct {
	sync.Mutex
	Bitmap *bitmap.Bitmap_t
	List   *hashtable.Hashtable_t[defs.Fd_t, *Handle_t]
}

func MkTable() *Table_t {
	return &Table_t{
		Bitmap: bitmap.Mk(16),
		List:   hashtable.MkHash[defs.Fd_t, *Handle_t](16, hashtable.IntHash[defs.Fd_t]),
	}
}

// Reserve marks fd as taken in both the bitmap and fd_list, inserting a
// handle bound to asset; a handle already present under fdnum is replaced.
// It is how stdin/stdout/stderr (fd 0/1/2) get pre-reserved by DefaultTask
// and then rebound to the tty by TaskExec.
func (t *Table_t) Reserve(fdnum defs.Fd_t, asset Asset_i, flags int) {
	t.Lock()
	defer t.Unlock()
	t.Bitmap.Reserve(int(fdnum))
	if _, ok := t.List.Get(fdnum); ok {
		t.List.Del(fdnum)
	}
	t.List.Set(fdnum, &Handle_t{Num: fdnum, Flags: flags, Asset: asset})
}

// Alloc picks the lowest free fd number, marks it in the bitmap and inserts
// a handle bound to asset. It never fails: the bitmap grows as needed, and
// Alloc does not consult limits.Syslimit.
func (t *Table_t) Alloc(asset Asset_i, flags int) defs.Fd_t {
	t.Lock()
	n := defs.Fd_t(t.Bitmap.Alloc())
	t.Unlock()
	t.List.Set(n, &Handle_t{Num: n, Flags: flags, Asset: asset})
	return n
}

func (t *Table_t) Get(fdnum defs.Fd_t) (*Handle_t, bool) {
	return t.List.Get(fdnum)
}

func (t *Table_t) Close(fdnum defs.Fd_t) {
	t.Lock()
	defer t.Unlock()
	if _, ok := t.List.Get(fdnum); ok {
		t.List.Del(fdnum)
	}
	t.Bitmap.Free(int(fdnum))
}

// Cwd_t is a task's current working directory handle, adapted unchanged in
// shape from the teacher's Cwd_t.
type Cwd_t struct {
	sync.Mutex
	Path string
}
