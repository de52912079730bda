//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package memsec

import (
	"os"
	"strings"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oblique/memsec/pkg/prot"
)

func TestMprotect_NoAccessFaults(t *testing.T) {
	p, ok := Malloc(32)
	require.True(t, ok)
	defer Free(p)

	buf := Bytes(p, 32)
	require.True(t, Mprotect(p, prot.NoAccess))

	assert.True(t, faults(func() { sink = buf[0] }), "read should fault")
	assert.True(t, faults(func() { buf[31] = 1 }), "write should fault")

	require.True(t, Mprotect(p, prot.ReadWrite))
	assert.False(t, faults(func() { buf[31] = 1 }))
}

func TestMprotect_ReadOnlyFaultsOnWrite(t *testing.T) {
	p, ok := Malloc(8)
	require.True(t, ok)
	defer Free(p)

	buf := Bytes(p, 8)
	require.True(t, Mprotect(p, prot.ReadOnly))

	assert.False(t, faults(func() { sink = buf[7] }))
	assert.True(t, faults(func() { buf[0] = 1 }))
}

func TestGuardPages(t *testing.T) {
	const size = 24

	p, ok := Malloc(size)
	require.True(t, ok)
	defer Free(p)

	l, ok := ComputeLayout(size, uintptr(os.Getpagesize()))
	require.True(t, ok)

	overflow := (*byte)(unsafe.Add(p, size))
	assert.True(t, faults(func() { *overflow = 1 }), "one byte past the payload is the trailing guard")

	underflow := (*byte)(unsafe.Add(p, -int(l.UserOffset()-l.RegionOffset())-1))
	assert.True(t, faults(func() { sink = *underflow }), "one byte before the region is the leading guard")

	// The base page stays read-only.
	header := (*byte)(unsafe.Add(p, -int(l.UserOffset())))
	assert.False(t, faults(func() { sink = *header }))
	assert.True(t, faults(func() { *header = 0 }))
}

func TestNoAccess_CrashesProcess(t *testing.T) {
	if os.Getenv("MEMSEC_CHILD") == "noaccess" {
		p, _ := Malloc(16)
		Mprotect(p, prot.NoAccess)
		sink = Bytes(p, 16)[0]
		return
	}
	if testing.Short() {
		t.Skip("spawns a subprocess")
	}

	out, code := runChild(t, "TestNoAccess_CrashesProcess", "noaccess")
	assert.NotEqual(t, 0, code, out)
	assert.True(t, strings.Contains(out, "fault") || strings.Contains(out, "SIGSEGV") || strings.Contains(out, "SIGBUS"), out)
}
