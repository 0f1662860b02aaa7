// Package tty models the terminal device backing stdin/stdout/stderr
// during task_exec. The real tty driver is out of scope (external
// collaborator, §1); this is a software ring-buffer implementation,
// grounded on the teacher's circbuf.Circbuf_t (head/tail indices over a
// fixed backing slice).
package tty

import (
	"pastoral/pkg/defs"
	"pastoral/pkg/fd"
	"pastoral/pkg/stat"
)

// Device_i is the tty contract an Asset_i implementation wraps.
type Device_i interface {
	Read(dst []byte) (int, defs.Err_t)
	Write(src []byte) (int, defs.Err_t)
}

// Ring_t is a fixed-capacity circular buffer standing in for a real tty
// line discipline.
type Ring_t struct {
	buf        []uint8
	head, tail int
	size       int
}

func MkRing(capacity int) *Ring_t {
	return &Ring_t{buf: make([]uint8, capacity)}
}

func (r *Ring_t) Write(src []byte) (int, defs.Err_t) {
	n := 0
	for _, b := range src {
		if r.size == len(r.buf) {
			break
		}
		r.buf[r.head] = b
		r.head = (r.head + 1) % len(r.buf)
		r.size++
		n++
	}
	return n, 0
}

func (r *Ring_t) Read(dst []byte) (int, defs.Err_t) {
	n := 0
	for n < len(dst) && r.size > 0 {
		dst[n] = r.buf[r.tail]
		r.tail = (r.tail + 1) % len(r.buf)
		r.size--
		n++
	}
	return n, 0
}

// asset_t adapts a Device_i to fd.Asset_i so it can back an FD handle.
type asset_t struct {
	dev  Device_i
	mode uint
}

func NewAsset(dev Device_i, mode uint) fd.Asset_i {
	return &asset_t{dev: dev, mode: mode}
}

func (a *asset_t) Read(dst []byte, offset int) (int, defs.Err_t) {
	return a.dev.Read(dst)
}

func (a *asset_t) Write(src []byte, offset int) (int, defs.Err_t) {
	return a.dev.Write(src)
}

func (a *asset_t) Stat() stat.Stat_t {
	var s stat.Stat_t
	s.Wmode(a.mode)
	return s
}
