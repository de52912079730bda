package memsec

// CanarySize is the length of the integrity tag stored before every payload.
const CanarySize = 16

// GarbageValue fills fresh payloads so reads of uninitialized memory are
// recognizable rather than silently zero.
const GarbageValue byte = 0xd0

// Layout is the page arithmetic for one guarded block.
type Layout struct {
	PageSize uintptr
	// Size is the requested payload length.
	Size uintptr
	// PayloadRegion is the page-rounded span holding canary and payload.
	PayloadRegion uintptr
	// Total covers base page, both guard pages and the payload region.
	Total uintptr
}

// ComputeLayout returns the layout of a block holding size bytes on a system
// with the given page size. It reports false when size is within four pages
// of the address-space limit, where the arithmetic could wrap, and when
// pageSize is not a power of two at least CanarySize long.
func ComputeLayout(size, pageSize uintptr) (Layout, bool) {
	if pageSize < CanarySize || pageSize&(pageSize-1) != 0 || pageSize > ^uintptr(0)/8 {
		return Layout{}, false
	}
	if size >= ^uintptr(0)-4*pageSize {
		return Layout{}, false
	}

	mask := pageSize - 1
	withCanary := CanarySize + size
	region := (withCanary + mask) &^ mask
	total := 3*pageSize + region
	if region < withCanary || total < region {
		return Layout{}, false
	}

	return Layout{
		PageSize:      pageSize,
		Size:          size,
		PayloadRegion: region,
		Total:         total,
	}, true
}

// LeadingGuardOffset is the offset of the guard page below the payload.
func (l Layout) LeadingGuardOffset() uintptr { return l.PageSize }

// RegionOffset is the offset of the payload region.
func (l Layout) RegionOffset() uintptr { return 2 * l.PageSize }

// CanaryOffset is the offset of the canary.
func (l Layout) CanaryOffset() uintptr {
	return l.RegionOffset() + l.PayloadRegion - CanarySize - l.Size
}

// UserOffset is the offset of the first payload byte.
func (l Layout) UserOffset() uintptr { return l.CanaryOffset() + CanarySize }

// TrailingGuardOffset is the offset of the guard page above the payload.
func (l Layout) TrailingGuardOffset() uintptr { return l.RegionOffset() + l.PayloadRegion }

// Overhead is the number of bytes spent beyond the requested size.
func (l Layout) Overhead() uintptr { return l.Total - l.Size }
