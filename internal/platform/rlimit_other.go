//go:build !linux

package platform

// MemlockLimit is only known on Linux.
func MemlockLimit() (uint64, bool) {
	return 0, false
}
