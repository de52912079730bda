package memsec

import (
	"runtime"
	"unsafe"

	"github.com/awnumar/memguard"
)

// Memzero overwrites b with zeros. The compiler cannot elide the stores even
// when b is never read again.
func Memzero(b []byte) {
	memguard.WipeBytes(b)
}

// MemzeroPtr zeroes n bytes at p.
func MemzeroPtr(p unsafe.Pointer, n uintptr) {
	if n == 0 {
		return
	}
	Memzero(Bytes(p, n))
}

// Memset fills b with c under the same guarantee as Memzero.
func Memset(b []byte, c byte) {
	for i := range b {
		b[i] = c
	}
	runtime.KeepAlive(b)
}
