//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package platform

import (
	"fmt"
	"math"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/oblique/memsec/pkg/prot"
)

var native Memory = &unixMemory{pageSize: unix.Getpagesize()}

type unixMemory struct {
	pageSize int
}

func (m *unixMemory) PageSize() int {
	return m.pageSize
}

func (m *unixMemory) AllocAligned(size uintptr) (unsafe.Pointer, error) {
	if size == 0 || size > math.MaxInt {
		return nil, fmt.Errorf("mmap %d bytes: %w", size, unix.EINVAL)
	}
	b, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("mmap %d bytes: %w", size, err)
	}
	return unsafe.Pointer(unsafe.SliceData(b)), nil
}

// FreeAligned rebuilds the slice unix.Mmap handed out; the x/sys mapper
// identifies mappings by their first and last byte, so p and size must be
// exactly what AllocAligned produced.
func (m *unixMemory) FreeAligned(p unsafe.Pointer, size uintptr) error {
	if err := unix.Munmap(bytesAt(p, size)); err != nil {
		return fmt.Errorf("munmap: %w", err)
	}
	return nil
}

func (m *unixMemory) Protect(p unsafe.Pointer, size uintptr, mode prot.Prot) error {
	flags, ok := nativeProt(mode)
	if !ok {
		return &ProtError{Mode: mode, Err: ErrUnsupported}
	}
	if err := unix.Mprotect(bytesAt(p, size), flags); err != nil {
		return &ProtError{Mode: mode, Err: err}
	}
	return nil
}

func (m *unixMemory) Lock(p unsafe.Pointer, size uintptr) error {
	if err := unix.Mlock(bytesAt(p, size)); err != nil {
		return fmt.Errorf("mlock: %w", err)
	}
	return nil
}

func (m *unixMemory) Unlock(p unsafe.Pointer, size uintptr) error {
	if err := unix.Munlock(bytesAt(p, size)); err != nil {
		return fmt.Errorf("munlock: %w", err)
	}
	return nil
}
