package platform

import "golang.org/x/sys/unix"

// MemlockLimit returns the soft RLIMIT_MEMLOCK in bytes.
func MemlockLimit() (uint64, bool) {
	var rl unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_MEMLOCK, &rl); err != nil {
		return 0, false
	}
	return rl.Cur, true
}
