package memsec

import (
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const maxUintptr = ^uintptr(0)

func TestComputeLayout(t *testing.T) {
	t.Parallel()

	const ps = 4096
	tests := []struct {
		name       string
		size       uintptr
		wantRegion uintptr
	}{
		{name: "empty payload", size: 0, wantRegion: ps},
		{name: "one byte", size: 1, wantRegion: ps},
		{name: "fills page with canary", size: ps - CanarySize, wantRegion: ps},
		{name: "spills into second page", size: ps - CanarySize + 1, wantRegion: 2 * ps},
		{name: "several pages", size: 3*ps + 7, wantRegion: 4 * ps},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			l, ok := ComputeLayout(tt.size, ps)
			require.True(t, ok)
			assert.Equal(t, tt.wantRegion, l.PayloadRegion)
			assert.Equal(t, 3*ps+tt.wantRegion, l.Total)
			assert.Equal(t, uintptr(ps), l.LeadingGuardOffset())
			assert.Equal(t, uintptr(2*ps), l.RegionOffset())
			assert.Equal(t, l.TrailingGuardOffset(), l.UserOffset()+tt.size, "payload must end at the trailing guard")
			assert.Equal(t, l.UserOffset()-CanarySize, l.CanaryOffset())
			assert.Equal(t, l.Total-tt.size, l.Overhead())
		})
	}
}

func TestComputeLayout_Rejects(t *testing.T) {
	t.Parallel()

	const ps = 4096
	tests := []struct {
		name     string
		size     uintptr
		pageSize uintptr
	}{
		{name: "max size", size: maxUintptr, pageSize: ps},
		{name: "at four-page bound", size: maxUintptr - 4*ps, pageSize: ps},
		{name: "just below bound wraps when rounded", size: maxUintptr - 4*ps - 1, pageSize: ps},
		{name: "zero page size", size: 1, pageSize: 0},
		{name: "page smaller than canary", size: 1, pageSize: 8},
		{name: "page size not power of two", size: 1, pageSize: 3000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, ok := ComputeLayout(tt.size, tt.pageSize)
			assert.False(t, ok)
		})
	}
}

func TestComputeLayout_LargeSizeBelowBound(t *testing.T) {
	t.Parallel()

	const ps = 4096
	l, ok := ComputeLayout(maxUintptr-8*ps, ps)
	require.True(t, ok)
	assert.Greater(t, l.Total, l.PayloadRegion)
	assert.Zero(t, l.PayloadRegion%ps)
}

func TestComputeLayout_Properties(t *testing.T) {
	t.Parallel()

	for _, ps := range []uintptr{4096, 16384, 65536} {
		ps := ps
		check := func(raw uint32) bool {
			size := uintptr(raw)
			l, ok := ComputeLayout(size, ps)
			return ok &&
				l.PayloadRegion%ps == 0 &&
				l.PayloadRegion >= size+CanarySize &&
				l.PayloadRegion-(size+CanarySize) < ps &&
				l.UserOffset()+size == l.TrailingGuardOffset() &&
				l.Total == 3*ps+l.PayloadRegion
		}
		require.NoError(t, quick.Check(check, nil), "page size %d", ps)
	}
}
