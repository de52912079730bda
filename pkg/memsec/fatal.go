package memsec

import "github.com/awnumar/memguard"

// exit wipes the process canary, has memguard purge the buffers it holds and
// ends the process.
var exit = func(code int) {
	wipeCanary()
	memguard.SafeExit(code)
}

func wipeCanary() {
	if a := defaultAlloc.Load(); a != nil && a.canaryStore != nil {
		a.canaryStore.Destroy()
	}
}

// fatal never returns.
func fatal(format string, args ...interface{}) {
	getLogger().Error("memsec: fatal: "+format, args...)
	exit(2)
	panic("memsec: exit returned")
}
