package block

import (
	"sync"

	"pastoral/pkg/defs"
	"pastoral/pkg/stat"
)

type registryAsset = interface {
	Read([]byte, int) (int, defs.Err_t)
	Write([]byte, int) (int, defs.Err_t)
	Stat() stat.Stat_t
}

type regEntry struct {
	major, minor int
	asset        registryAsset
}

// MemRegistry_t is the one in-memory DeviceRegistry_i implementation: the
// real VFS character-device registry is out of scope (§1), so this just
// keeps a path-keyed map for tests and the boot demo to inspect.
type MemRegistry_t struct {
	sync.Mutex
	entries map[string]regEntry
}

func MkMemRegistry() *MemRegistry_t {
	return &MemRegistry_t{entries: make(map[string]regEntry)}
}

func (r *MemRegistry_t) RegisterChar(path string, major, minor int, asset registryAsset) defs.Err_t {
	r.Lock()
	defer r.Unlock()
	r.entries[path] = regEntry{major: major, minor: minor, asset: asset}
	return 0
}

func (r *MemRegistry_t) Lookup(path string) (registryAsset, bool) {
	r.Lock()
	defer r.Unlock()
	e, ok := r.entries[path]
	if !ok {
		return nil, false
	}
	return e.asset, true
}

func (r *MemRegistry_t) Count() int {
	r.Lock()
	defer r.Unlock()
	return len(r.entries)
}
