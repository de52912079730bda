package memsec

import (
	"unsafe"

	"github.com/oblique/memsec/internal/metrics"
	"github.com/oblique/memsec/pkg/prot"
)

// Mprotect changes the access rights of the payload region of block p.
// Guard pages and the base page are never touched. It reports false when
// the mode is undefined, the platform rejects it or p is nil; the block
// keeps its previous protection in that case.
func Mprotect(p unsafe.Pointer, mode prot.Prot) bool {
	if p == nil {
		return false
	}
	return instance().mprotect(p, mode)
}

func (a *allocator) mprotect(p unsafe.Pointer, mode prot.Prot) bool {
	if !mode.Valid() {
		getLogger().Debug("memsec: undefined protection mode %s", mode)
		metrics.RecordProtectFailure(mode.String())
		return false
	}
	b := a.locate(p)
	if err := a.mem.Protect(b.region, b.size, mode); err != nil {
		getLogger().Debug("memsec: %v", err)
		metrics.RecordProtectFailure(mode.String())
		return false
	}
	return true
}
