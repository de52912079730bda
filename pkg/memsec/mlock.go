package memsec

import (
	"unsafe"

	"github.com/oblique/memsec/internal/metrics"
	"github.com/oblique/memsec/internal/platform"
)

// Mlock asks the operating system to keep the pages holding b resident so
// they are never written to swap. It reports false when the request is
// refused, usually because of RLIMIT_MEMLOCK.
func Mlock(b []byte) bool {
	return mlock(platform.Default(), b)
}

// Munlock zeroes b and then releases the lock taken by Mlock. b is zeroed
// even when the unlock itself fails.
func Munlock(b []byte) bool {
	return munlock(platform.Default(), b)
}

func mlock(mem platform.Memory, b []byte) bool {
	if len(b) == 0 {
		return true
	}
	if err := mem.Lock(unsafe.Pointer(unsafe.SliceData(b)), uintptr(len(b))); err != nil {
		getLogger().Debug("memsec: %v", err)
		metrics.RecordLockFailure()
		return false
	}
	return true
}

func munlock(mem platform.Memory, b []byte) bool {
	Memzero(b)
	if len(b) == 0 {
		return true
	}
	if err := mem.Unlock(unsafe.Pointer(unsafe.SliceData(b)), uintptr(len(b))); err != nil {
		getLogger().Debug("memsec: %v", err)
		return false
	}
	return true
}
