package fs

import "pastoral/pkg/block"

// NullProber_t always declines -- the stand-in for the real filesystem
// probers named out of scope. It exists so RegisterDisk's probe-dispatch
// loop (§4.E) has at least one concrete block.Prober_i to run even though
// no real filesystem recognizer is implemented.
type NullProber_t struct{}

func (NullProber_t) Probe(p *block.Partition_t) bool {
	return false
}

// CacheWarmingProber_t reads the first block of a partition through a
// Cache_t and declines, same as NullProber_t, but exercises the block
// cache so a later real prober could be slotted in without re-plumbing.
type CacheWarmingProber_t struct {
	BlockSize int
	Capacity  int
}

func (c CacheWarmingProber_t) Probe(p *block.Partition_t) bool {
	cache := MkCache(p, c.BlockSize, c.Capacity)
	if _, err := cache.Get(0); err != 0 {
		return false
	}
	return false
}
