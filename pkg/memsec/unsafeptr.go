package memsec

import "unsafe"

// Every conversion from a user pointer back to block metadata goes through
// this file. The precondition throughout is that p was returned by Malloc
// (or AllocArray) and has not been freed; a pointer that fails the address
// checks here is treated as an integrity violation.

// block is the metadata recovered from a user pointer.
type block struct {
	base   unsafe.Pointer
	region unsafe.Pointer
	// size is the payload region size stored in the base page.
	size uintptr
}

func (b block) total(pageSize uintptr) uintptr {
	return 3*pageSize + b.size
}

// Bytes views n bytes starting at p.
func Bytes(p unsafe.Pointer, n uintptr) []byte {
	return unsafe.Slice((*byte)(p), n)
}

// regionOf maps a user address to the start of its payload region: step back
// over the canary and round down to the page. Anything at or below two pages
// cannot have a base page and guard page beneath it.
func (a *allocator) regionOf(addr uintptr) (uintptr, bool) {
	if addr < CanarySize {
		return 0, false
	}
	region := (addr - CanarySize) &^ a.pageMask
	if region <= 2*a.pageSize {
		return 0, false
	}
	return region, true
}

// locate recovers the block holding user pointer p. The base page is
// read-only for the life of the block, so this is safe in any payload
// protection state.
func (a *allocator) locate(p unsafe.Pointer) block {
	addr := uintptr(p)
	region, ok := a.regionOf(addr)
	if !ok {
		fatal("user address %#x too small", addr)
	}

	regionPtr := unsafe.Add(p, -int(addr-region))
	base := unsafe.Add(regionPtr, -2*int(a.pageSize))
	size := *(*uintptr)(base)
	if size == 0 || size&a.pageMask != 0 {
		fatal("corrupt block header at %p (region size %d)", base, size)
	}

	return block{base: base, region: regionPtr, size: size}
}
