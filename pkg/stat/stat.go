// Package stat implements the kernel's stat(2)-shaped record, used by the
// block/partition layer to describe a partition character device and by fd
// handles generally. Adapted from the teacher's raw-byte Stat_t (which
// exists to match a fixed wire layout for a syscall ABI this module does
// not implement); here it is a plain struct, since nothing in this module
// marshals it across a process boundary.
package stat

const (
	S_IFCHR = 0o020000
	S_IFREG = 0o100000
	S_IFDIR = 0o040000

	RWALL = 0o666
)

// Stat_t mirrors struct stat's fields this kernel actually populates.
type Stat_t struct {
	Dev     uint
	Ino     uint
	Mode    uint
	Size    uint
	Rdev    uint
	Blksize uint
	Blocks  uint
}

func (s *Stat_t) Wmode(m uint)    { s.Mode = m }
func (s *Stat_t) Wsize(n uint)    { s.Size = n }
func (s *Stat_t) Wrdev(d uint)    { s.Rdev = d }
func (s *Stat_t) Wdev(d uint)     { s.Dev = d }
func (s *Stat_t) Wino(i uint)     { s.Ino = i }
func (s *Stat_t) Wblksize(b uint) { s.Blksize = b }

func (s *Stat_t) IsChr() bool { return s.Mode&S_IFCHR == S_IFCHR }
