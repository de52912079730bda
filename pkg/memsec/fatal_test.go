package memsec

import (
	"errors"
	"os"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oblique/memsec/internal/platform"
	"github.com/oblique/memsec/internal/secure"
	"github.com/oblique/memsec/pkg/prot"
)

// The tests in this file replace the process exit hook and so never run in
// parallel.

func TestNewAllocator_BadPageSize(t *testing.T) {
	tests := []struct {
		name     string
		pageSize int
		want     string
	}{
		{name: "too small", pageSize: 8, want: "page size 8 too small"},
		{name: "not power of two", pageSize: 6000, want: "page size 6000 is not a power of two"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := expectFatal(t, func() {
				newAllocator(&fakeMemory{Memory: platform.Default(), pageSize: tt.pageSize})
			})
			assert.Contains(t, out, tt.want)
		})
	}
}

func TestMalloc_GuardProtectFailureIsFatal(t *testing.T) {
	a := newAllocator(&fakeMemory{
		Memory:        platform.Default(),
		failProtectAt: 1,
		protectErr:    errors.New("EACCES"),
	})

	out := expectFatal(t, func() { a.malloc(16) })
	assert.Contains(t, out, "memsec: fatal: set no-access")
	assert.Contains(t, out, "EACCES")
}

func TestFree_UnprotectFailureIsFatal(t *testing.T) {
	mem := &fakeMemory{Memory: platform.Default()}
	a := newAllocator(mem)

	p, ok := a.malloc(16)
	require.True(t, ok)

	// Allocation made three Protect calls; the unprotect in free is the fourth.
	mem.failProtectAt = 4
	mem.protectErr = errors.New("EPERM")

	out := expectFatal(t, func() { a.free(p) })
	assert.Contains(t, out, "unprotect block")

	a.free(p)
}

func TestFree_CanaryCorruption(t *testing.T) {
	a := newAllocator(&fakeMemory{Memory: platform.Default()})

	p, ok := a.malloc(16)
	require.True(t, ok)

	canary := Bytes(unsafe.Add(p, -CanarySize), CanarySize)
	saved := canary[CanarySize-1]
	canary[CanarySize-1] ^= 0xff

	out := expectFatal(t, func() { a.free(p) })
	assert.Contains(t, out, "canary mismatch")

	canary[CanarySize-1] = saved
	a.free(p)
}

func TestFree_ForeignPointer(t *testing.T) {
	p, ok := Malloc(16)
	require.True(t, ok)

	// One byte in lands in the same region but reads a shifted canary.
	out := expectFatal(t, func() { Free(unsafe.Add(p, 1)) })
	assert.Contains(t, out, "canary mismatch")

	Free(p)
}

func TestFree_CorruptHeader(t *testing.T) {
	mem := &fakeMemory{Memory: platform.Default()}
	a := newAllocator(mem)

	p, ok := a.malloc(100)
	require.True(t, ok)

	l, ok := ComputeLayout(100, a.pageSize)
	require.True(t, ok)
	base := unsafe.Add(p, -int(l.UserOffset()))
	require.NoError(t, mem.Memory.Protect(base, a.pageSize, prot.ReadWrite))

	header := (*uintptr)(base)
	saved := *header
	for _, bad := range []uintptr{0, saved + 1} {
		*header = bad
		out := expectFatal(t, func() { a.free(p) })
		assert.Contains(t, out, "corrupt block header")
	}

	*header = saved
	a.free(p)
}

func TestRegionOf(t *testing.T) {
	a := &allocator{pageSize: 4096, pageMask: 4095}

	tests := []struct {
		name   string
		addr   uintptr
		region uintptr
		ok     bool
	}{
		{name: "below canary", addr: 8, ok: false},
		{name: "first page", addr: 4096 + CanarySize, ok: false},
		{name: "two pages", addr: 2*4096 + CanarySize, ok: false},
		{name: "three pages", addr: 3*4096 + CanarySize, region: 3 * 4096, ok: true},
		{name: "end of payload", addr: 4*4096 - 1, region: 3 * 4096, ok: true},
		{name: "canary straddles page", addr: 4*4096 + 8, region: 3 * 4096, ok: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			region, ok := a.regionOf(tt.addr)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.region, region)
		})
	}
}

func TestWipeCanary(t *testing.T) {
	c, err := secure.NewCanary(CanarySize)
	require.NoError(t, err)

	old := defaultAlloc.Swap(&allocator{canaryStore: c, canary: c.Bytes()})
	t.Cleanup(func() { defaultAlloc.Store(old) })

	wipeCanary()
	assert.Nil(t, c.Bytes())

	// Already wiped and no allocator at all are both no-ops.
	wipeCanary()
	defaultAlloc.Store(nil)
	wipeCanary()
}

func TestCanaryCorruption_ExitsProcess(t *testing.T) {
	if os.Getenv("MEMSEC_CHILD") == "canary" {
		p, _ := Malloc(16)
		Bytes(unsafe.Add(p, -1), 1)[0] ^= 0xff
		Free(p)
		return
	}
	if testing.Short() {
		t.Skip("spawns a subprocess")
	}

	out, code := runChild(t, "TestCanaryCorruption_ExitsProcess", "canary")
	assert.Equal(t, 2, code, out)
	assert.Contains(t, out, "memsec: fatal: canary mismatch")
}
