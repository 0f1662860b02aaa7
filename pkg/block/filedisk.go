package block

import (
	"os"
	"sync"

	"pastoral/pkg/defs"
)

// FileDisk_t simulates a disk backed by a regular file, directly grounded
// on the teacher's ahci_disk_t (ufs/driver.go): a mutex guarding a
// seek-then-read/write pair so concurrent callers can't interleave a seek
// with someone else's I/O.
type FileDisk_t struct {
	sync.Mutex
	f    *os.File
	bsiz int
}

func OpenFileDisk(path string, blockSize int) (*FileDisk_t, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	return &FileDisk_t{f: f, bsiz: blockSize}, nil
}

func (fd *FileDisk_t) BlockSize() int { return fd.bsiz }

func (fd *FileDisk_t) ReadAt(lba int, dst []byte) defs.Err_t {
	fd.Lock()
	defer fd.Unlock()
	if _, err := fd.f.Seek(int64(lba*fd.bsiz), 0); err != nil {
		return defs.E_IO
	}
	if _, err := fd.f.Read(dst); err != nil {
		return defs.E_IO
	}
	return 0
}

func (fd *FileDisk_t) WriteAt(lba int, src []byte) defs.Err_t {
	fd.Lock()
	defer fd.Unlock()
	if _, err := fd.f.Seek(int64(lba*fd.bsiz), 0); err != nil {
		return defs.E_IO
	}
	if _, err := fd.f.Write(src); err != nil {
		return defs.E_IO
	}
	return 0
}

func (fd *FileDisk_t) Close() error {
	return fd.f.Close()
}
