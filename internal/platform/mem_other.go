//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly || windows)

package platform

import (
	"os"
	"unsafe"

	"github.com/oblique/memsec/pkg/prot"
)

var native Memory = unsupportedMemory{}

// unsupportedMemory refuses every request, so allocation reports failure
// instead of handing out unguarded memory.
type unsupportedMemory struct{}

func (unsupportedMemory) PageSize() int { return os.Getpagesize() }

func (unsupportedMemory) AllocAligned(uintptr) (unsafe.Pointer, error) {
	return nil, ErrUnsupported
}

func (unsupportedMemory) FreeAligned(unsafe.Pointer, uintptr) error { return ErrUnsupported }

func (unsupportedMemory) Protect(_ unsafe.Pointer, _ uintptr, mode prot.Prot) error {
	return &ProtError{Mode: mode, Err: ErrUnsupported}
}

func (unsupportedMemory) Lock(unsafe.Pointer, uintptr) error   { return ErrUnsupported }
func (unsupportedMemory) Unlock(unsafe.Pointer, uintptr) error { return ErrUnsupported }
