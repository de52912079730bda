package memsec

import "unsafe"

// New allocates a guarded T. The value starts filled with GarbageValue, not
// zeroed. T must not contain Go pointers.
func New[T any]() (*T, bool) {
	var zero T
	p, ok := Malloc(unsafe.Sizeof(zero))
	if !ok {
		return nil, false
	}
	return (*T)(p), true
}

// Release frees a value returned by New.
func Release[T any](v *T) {
	Free(unsafe.Pointer(v))
}

// MakeSlice allocates a guarded slice of n elements. A zero-length request
// returns an empty slice that owns no block. T must not contain Go pointers.
func MakeSlice[T any](n int) ([]T, bool) {
	if n < 0 {
		return nil, false
	}
	if n == 0 {
		return []T{}, true
	}
	var zero T
	p, ok := AllocArray(uintptr(n), unsafe.Sizeof(zero))
	if !ok {
		return nil, false
	}
	return unsafe.Slice((*T)(p), n), true
}

// ReleaseSlice frees a slice returned by MakeSlice. It must be given the
// slice as returned, not a reslice with a different start.
func ReleaseSlice[T any](s []T) {
	if cap(s) == 0 {
		return
	}
	Free(unsafe.Pointer(unsafe.SliceData(s)))
}
