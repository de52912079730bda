//go:build windows

package platform

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/oblique/memsec/pkg/prot"
)

var native Memory = &windowsMemory{pageSize: os.Getpagesize()}

type windowsMemory struct {
	pageSize int
}

func (m *windowsMemory) PageSize() int {
	return m.pageSize
}

func (m *windowsMemory) AllocAligned(size uintptr) (unsafe.Pointer, error) {
	addr, err := windows.VirtualAlloc(0, size, windows.MEM_COMMIT|windows.MEM_RESERVE, windows.PAGE_READWRITE)
	if err != nil {
		return nil, fmt.Errorf("VirtualAlloc %d bytes: %w", size, err)
	}
	if addr == 0 {
		return nil, fmt.Errorf("VirtualAlloc %d bytes: null address", size)
	}
	return unsafe.Pointer(addr), nil
}

// FreeAligned releases the whole reservation; MEM_RELEASE requires a zero size.
func (m *windowsMemory) FreeAligned(p unsafe.Pointer, _ uintptr) error {
	if err := windows.VirtualFree(uintptr(p), 0, windows.MEM_RELEASE); err != nil {
		return fmt.Errorf("VirtualFree: %w", err)
	}
	return nil
}

func (m *windowsMemory) Protect(p unsafe.Pointer, size uintptr, mode prot.Prot) error {
	flags, ok := nativeProt(mode)
	if !ok {
		return &ProtError{Mode: mode, Err: ErrUnsupported}
	}
	var old uint32
	if err := windows.VirtualProtect(uintptr(p), size, flags, &old); err != nil {
		return &ProtError{Mode: mode, Err: err}
	}
	return nil
}

func (m *windowsMemory) Lock(p unsafe.Pointer, size uintptr) error {
	if err := windows.VirtualLock(uintptr(p), size); err != nil {
		return fmt.Errorf("VirtualLock: %w", err)
	}
	return nil
}

func (m *windowsMemory) Unlock(p unsafe.Pointer, size uintptr) error {
	if err := windows.VirtualUnlock(uintptr(p), size); err != nil {
		return fmt.Errorf("VirtualUnlock: %w", err)
	}
	return nil
}
