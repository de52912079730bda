// Package memsec provides a guarded allocator and constant-behavior memory
// primitives for holding sensitive data such as keys and passwords.
//
// # Guarded allocation
//
// Malloc places every allocation in its own set of pages:
//
//	[ base page | guard page | canary + payload | guard page ]
//	  read-only   no access    locked, rw         no access
//
// The payload is packed against the trailing guard page, so a one-byte
// overflow faults immediately. A process-wide random canary sits directly
// before the payload and is verified by Free; a mismatch means the block was
// underrun or the pointer did not come from Malloc, and the process is
// terminated. The payload pages are locked (best-effort) to keep them out of
// swap, and are zeroed before they are returned to the operating system.
//
// Guarded memory lives outside the Go heap. It is never moved or collected,
// and it must not hold Go pointers: the garbage collector does not scan it.
//
//	p, ok := memsec.Malloc(32)
//	if !ok {
//	    // out of memory, or size too large
//	}
//	defer memsec.Free(p)
//
//	key := memsec.Bytes(p, 32)
//	copy(key, material)
//	memsec.Mprotect(p, prot.ReadOnly)
//
// # Failure policy
//
// Resource exhaustion, size overflow and refused protection changes are
// reported as ordinary results. Integrity violations (a damaged canary, a
// pointer that cannot belong to a guarded block) and a failure while building
// a block's guard pages terminate the process: a half-protected block or a
// corrupted heap cannot be handed back safely.
//
// # Constant-behavior primitives
//
// Memeq and Memcmp always scan every byte, so their running time depends only
// on the input length. Memzero and Memset use stores the compiler keeps.
// Mlock and Munlock pin memory in RAM; Munlock also zeroes the range whether
// or not the unlock succeeded.
package memsec
