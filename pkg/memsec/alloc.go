package memsec

import (
	"math/bits"
	"unsafe"

	"github.com/oblique/memsec/internal/metrics"
	"github.com/oblique/memsec/internal/platform"
	"github.com/oblique/memsec/pkg/prot"
)

// Malloc returns a guarded block of size bytes filled with GarbageValue.
// It reports false when size is too large for the layout arithmetic or the
// operating system refuses the allocation. Malloc(0) returns a valid,
// non-nil pointer that must still be passed to Free.
func Malloc(size uintptr) (unsafe.Pointer, bool) {
	return instance().malloc(size)
}

// AllocArray is Malloc for count elements of elemSize bytes. It reports
// false, without allocating, when the product overflows.
func AllocArray(count, elemSize uintptr) (unsafe.Pointer, bool) {
	hi, n := bits.Mul(uint(count), uint(elemSize))
	if hi != 0 {
		metrics.RecordAllocation(metrics.ResultOverflow, 0)
		return nil, false
	}
	return Malloc(uintptr(n))
}

// Free verifies and releases a block returned by Malloc or AllocArray.
// The payload is zeroed before the pages are unmapped. Free(nil) is a no-op.
// A damaged canary terminates the process.
func Free(p unsafe.Pointer) {
	if p == nil {
		return
	}
	instance().free(p)
}

func (a *allocator) malloc(size uintptr) (unsafe.Pointer, bool) {
	l, ok := ComputeLayout(size, a.pageSize)
	if !ok {
		metrics.RecordAllocation(metrics.ResultOverflow, 0)
		return nil, false
	}

	base, err := a.mem.AllocAligned(l.Total)
	if err != nil {
		getLogger().Debug("memsec: allocate %d bytes: %v", l.Total, err)
		metrics.RecordAllocation(metrics.ResultNoMemory, 0)
		return nil, false
	}

	// From here on the block is partially built; any failure aborts.
	a.mustProtect(unsafe.Add(base, l.LeadingGuardOffset()), a.pageSize, prot.NoAccess)
	a.mustProtect(unsafe.Add(base, l.TrailingGuardOffset()), a.pageSize, prot.NoAccess)

	region := unsafe.Add(base, l.RegionOffset())
	a.pin(region, l.PayloadRegion)

	canary := unsafe.Add(base, l.CanaryOffset())
	copy(Bytes(canary, CanarySize), a.canary)
	user := unsafe.Add(canary, CanarySize)
	Memset(Bytes(user, size), GarbageValue)

	*(*uintptr)(base) = l.PayloadRegion
	a.mustProtect(base, a.pageSize, prot.ReadOnly)

	if b := a.locate(user); b.region != region || b.size != l.PayloadRegion {
		fatal("layout mismatch for %d-byte block at %p", size, base)
	}

	metrics.RecordAllocation(metrics.ResultOK, l.PayloadRegion)
	return user, true
}

func (a *allocator) free(p unsafe.Pointer) {
	b := a.locate(p)
	total := b.total(a.pageSize)

	if err := a.mem.Protect(b.base, total, prot.ReadWrite); err != nil {
		fatal("unprotect block at %p: %v", b.base, err)
	}
	if !Memeq(Bytes(unsafe.Add(p, -CanarySize), CanarySize), a.canary) {
		fatal("canary mismatch for block at %p: buffer underflow or foreign pointer", p)
	}

	munlock(a.mem, Bytes(b.region, b.size))
	if err := a.mem.FreeAligned(b.base, total); err != nil {
		fatal("release block at %p: %v", b.base, err)
	}

	metrics.RecordFree(b.size)
}

func (a *allocator) mustProtect(p unsafe.Pointer, size uintptr, mode prot.Prot) {
	if err := a.mem.Protect(p, size, mode); err != nil {
		fatal("set %s on %d bytes at %p: %v", mode, size, p, err)
	}
}

// pin keeps the payload region out of swap and, where supported, out of
// core dumps. Both are best-effort.
func (a *allocator) pin(region unsafe.Pointer, size uintptr) {
	mlock(a.mem, Bytes(region, size))
	if d, ok := a.mem.(platform.DumpExcluder); ok {
		if err := d.DontDump(region, size); err != nil {
			getLogger().Debug("memsec: %v", err)
		}
	}
}
