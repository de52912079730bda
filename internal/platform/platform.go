// Package platform is the narrow boundary between memsec and the operating
// system's virtual-memory API.
//
// Exactly one Memory implementation is compiled in per target: mmap family
// calls on unix systems, the Virtual* family on Windows, and a stub that
// refuses every request elsewhere. Nothing outside this package issues
// paging or protection syscalls.
package platform

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/oblique/memsec/pkg/prot"
)

// ErrUnsupported is returned for a request the platform cannot express,
// such as a protection mode with no native equivalent.
var ErrUnsupported = errors.New("not supported on this platform")

// Memory is the set of virtual-memory capabilities the allocator consumes.
//
// AllocAligned returns page-aligned, committed, readable and writable memory
// whose contents are unspecified. FreeAligned must be given the exact pointer
// and size AllocAligned produced. Protect, Lock and Unlock operate on whole
// pages; callers pass page-aligned ranges except for Lock and Unlock on
// arbitrary buffers, where the kernel rounds to the enclosing pages.
type Memory interface {
	PageSize() int
	AllocAligned(size uintptr) (unsafe.Pointer, error)
	FreeAligned(p unsafe.Pointer, size uintptr) error
	Protect(p unsafe.Pointer, size uintptr, mode prot.Prot) error
	Lock(p unsafe.Pointer, size uintptr) error
	Unlock(p unsafe.Pointer, size uintptr) error
}

// DumpExcluder is implemented by platforms that can keep a range out of
// core dumps.
type DumpExcluder interface {
	DontDump(p unsafe.Pointer, size uintptr) error
}

// Default returns the Memory implementation for the running platform.
func Default() Memory {
	return native
}

// ProtError describes a rejected protection change.
type ProtError struct {
	Mode prot.Prot
	Err  error
}

func (e *ProtError) Error() string {
	return fmt.Sprintf("protect %s: %v", e.Mode, e.Err)
}

func (e *ProtError) Unwrap() error {
	return e.Err
}

// bytesAt views size bytes at p. p must not point into the Go heap unless
// the caller keeps the owning object alive.
func bytesAt(p unsafe.Pointer, size uintptr) []byte {
	return unsafe.Slice((*byte)(p), size)
}
