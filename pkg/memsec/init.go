package memsec

import (
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/oblique/memsec/internal/platform"
	"github.com/oblique/memsec/internal/secure"
)

// allocator is the process init state: written once by newAllocator and
// read-only afterwards, so it is shared without locking.
type allocator struct {
	mem      platform.Memory
	pageSize uintptr
	pageMask uintptr
	canary   []byte

	// canaryStore owns canary.
	canaryStore *secure.Canary
}

var (
	initOnce     sync.Once
	defaultAlloc atomic.Pointer[allocator]
)

// instance returns the process allocator, initializing it on first use.
func instance() *allocator {
	initOnce.Do(func() {
		defaultAlloc.Store(newAllocator(platform.Default()))
	})
	return defaultAlloc.Load()
}

func newAllocator(mem platform.Memory) *allocator {
	ps := uintptr(mem.PageSize())
	if ps < CanarySize || ps < unsafe.Sizeof(uintptr(0)) {
		fatal("page size %d too small", ps)
	}
	if ps&(ps-1) != 0 {
		fatal("page size %d is not a power of two", ps)
	}

	a := &allocator{
		mem:      mem,
		pageSize: ps,
		pageMask: ps - 1,
	}
	a.canaryStore = newCanary()
	a.canary = a.canaryStore.Bytes()
	return a
}

// newCanary draws the canary into frozen memguard storage, falling back to
// the heap when memguard cannot lock memory. Without a secure random source
// the process cannot continue.
func newCanary() *secure.Canary {
	c, err := secure.NewCanary(CanarySize)
	if err != nil {
		fatal("canary: %v", err)
	}
	if !c.Locked() {
		getLogger().Debug("memsec: locked canary storage unavailable, using heap: %v", c.Fallback())
	}
	return c
}
