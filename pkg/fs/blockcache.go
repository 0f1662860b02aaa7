// Package fs supplies the filesystem probe dispatch seam and a small block
// cache the probers can share. The filesystem probers themselves (ext2,
// etc.) are external collaborators (§1); this package only provides two
// always-declining implementations of block.Prober_i (NullProber_t and
// CacheWarmingProber_t), and block-cache infrastructure adapted from the teacher's
// fs/blk.go (Bdev_block_t / BlkList_t) so a future real prober has
// somewhere to cache reads instead of reading through to the partition on
// every probe.
package fs

import (
	"container/list"
	"sync"

	"pastoral/pkg/block"
	"pastoral/pkg/defs"
)

// Block_t is a cached partition block, a trimmed Bdev_block_t: this core
// has no log/commit/revoke block types or async disk-request machinery
// (that lived in the teacher's journaling layer, out of scope here), just
// the cache entry shape.
type Block_t struct {
	sync.Mutex
	Num  int
	Data []byte
}

// Cache_t is a bounded LRU-ish block cache for a single partition, keyed
// by block number, adapted from BlkList_t's list.List-backed chain.
type Cache_t struct {
	sync.Mutex
	part     *block.Partition_t
	blkSize  int
	capacity int
	l        *list.List
	index    map[int]*list.Element
}

func MkCache(part *block.Partition_t, blkSize, capacity int) *Cache_t {
	return &Cache_t{
		part:     part,
		blkSize:  blkSize,
		capacity: capacity,
		l:        list.New(),
		index:    make(map[int]*list.Element),
	}
}

// Get returns block num's data, reading through to the partition and
// inserting into the cache on a miss, evicting the least-recently-used
// entry if the cache is at capacity.
func (c *Cache_t) Get(num int) (*Block_t, defs.Err_t) {
	c.Lock()
	if e, ok := c.index[num]; ok {
		c.l.MoveToFront(e)
		b := e.Value.(*Block_t)
		c.Unlock()
		return b, 0
	}
	c.Unlock()

	buf := make([]byte, c.blkSize)
	if _, err := c.part.Read(buf, num*c.blkSize); err != 0 {
		return nil, err
	}
	b := &Block_t{Num: num, Data: buf}

	c.Lock()
	defer c.Unlock()
	if e, ok := c.index[num]; ok {
		c.l.MoveToFront(e)
		return e.Value.(*Block_t), 0
	}
	e := c.l.PushFront(b)
	c.index[num] = e
	if c.l.Len() > c.capacity {
		back := c.l.Back()
		if back != nil {
			evicted := back.Value.(*Block_t)
			delete(c.index, evicted.Num)
			c.l.Remove(back)
		}
	}
	return b, 0
}
