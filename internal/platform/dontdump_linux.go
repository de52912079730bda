package platform

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// DontDump excludes the range from core dumps.
func (m *unixMemory) DontDump(p unsafe.Pointer, size uintptr) error {
	if err := unix.Madvise(bytesAt(p, size), unix.MADV_DONTDUMP); err != nil {
		return fmt.Errorf("madvise(MADV_DONTDUMP): %w", err)
	}
	return nil
}
