package memsec

import (
	"bytes"
	"os"
	"os/exec"
	"runtime/debug"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oblique/memsec/internal/logging"
	"github.com/oblique/memsec/internal/platform"
	"github.com/oblique/memsec/pkg/prot"
)

var sink byte

// fakeMemory wraps the real platform and injects failures.
type fakeMemory struct {
	platform.Memory

	pageSize   int
	allocErr   error
	unlockErr  error
	protectErr error
	// failProtectAt is the 1-based Protect call that returns protectErr.
	failProtectAt int
	protectCalls  int
}

func (f *fakeMemory) PageSize() int {
	if f.pageSize != 0 {
		return f.pageSize
	}
	return f.Memory.PageSize()
}

func (f *fakeMemory) AllocAligned(size uintptr) (unsafe.Pointer, error) {
	if f.allocErr != nil {
		return nil, f.allocErr
	}
	return f.Memory.AllocAligned(size)
}

func (f *fakeMemory) Protect(p unsafe.Pointer, size uintptr, mode prot.Prot) error {
	f.protectCalls++
	if f.failProtectAt != 0 && f.protectCalls == f.failProtectAt {
		return f.protectErr
	}
	return f.Memory.Protect(p, size, mode)
}

func (f *fakeMemory) Unlock(p unsafe.Pointer, size uintptr) error {
	if f.unlockErr != nil {
		return f.unlockErr
	}
	return f.Memory.Unlock(p, size)
}

type fatalExit struct{ code int }

// expectFatal runs fn with the process exit replaced by a panic and returns
// what was logged before the abort. Callers must not run in parallel.
func expectFatal(t *testing.T, fn func()) string {
	t.Helper()

	var buf bytes.Buffer
	SetLogger(logging.NewWithWriter(&buf, false, true))
	oldExit := exit
	exit = func(code int) { panic(fatalExit{code}) }
	defer func() {
		exit = oldExit
		SetLogger(nil)
	}()

	fired := false
	func() {
		defer func() {
			if r := recover(); r != nil {
				fe, ok := r.(fatalExit)
				require.True(t, ok, "unexpected panic: %v", r)
				assert.Equal(t, 2, fe.code)
				fired = true
			}
		}()
		fn()
	}()

	require.True(t, fired, "expected a fatal abort")
	return buf.String()
}

// faults reports whether fn triggered a memory fault.
func faults(fn func()) (faulted bool) {
	old := debug.SetPanicOnFault(true)
	defer debug.SetPanicOnFault(old)
	defer func() {
		if r := recover(); r != nil {
			_, faulted = r.(interface{ Addr() uintptr })
		}
	}()
	fn()
	return false
}

// runChild re-executes the named test in a subprocess with MEMSEC_CHILD set
// and returns its combined output and exit code.
func runChild(t *testing.T, test, mode string) (string, int) {
	t.Helper()

	cmd := exec.Command(os.Args[0], "-test.run=^"+test+"$", "-test.count=1")
	cmd.Env = append(os.Environ(), "MEMSEC_CHILD="+mode)
	out, err := cmd.CombinedOutput()
	if err == nil {
		return string(out), 0
	}
	var ee *exec.ExitError
	require.ErrorAs(t, err, &ee)
	return string(out), ee.ExitCode()
}
