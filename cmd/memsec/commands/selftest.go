package commands

import (
	"bytes"
	"fmt"
	"runtime/debug"
	"slices"
	"strings"
	"unsafe"

	"github.com/spf13/cobra"

	"github.com/oblique/memsec/internal/config"
	mserrors "github.com/oblique/memsec/internal/errors"
	"github.com/oblique/memsec/pkg/memsec"
	"github.com/oblique/memsec/pkg/prot"
)

// selfCheck is one in-process verification of allocator behavior
type selfCheck struct {
	Name string
	Run  func() error
}

// NewSelftestCommand creates the selftest command
func NewSelftestCommand(cfg *config.Config) *cobra.Command {
	var skip []string

	cmd := &cobra.Command{
		Use:   "selftest",
		Short: "Run allocator self-checks in this process",
		Long: `Exercise the allocator and primitives against their contracts:

- protect round trip on a fresh block
- zero-size allocation
- array size overflow
- garbage fill, guard page faults
- constant-time comparison and zeroing`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var failed []string
			for _, c := range selfChecks() {
				if slices.Contains(skip, c.Name) {
					cfg.Logger.Debug("Skipping %s", c.Name)
					continue
				}
				if err := c.Run(); err != nil {
					cfg.Logger.Error("%s: %v", c.Name, err)
					failed = append(failed, c.Name)
					continue
				}
				cfg.Logger.Info("%s", c.Name)
			}

			if len(failed) > 0 {
				return mserrors.CheckError{
					Check:      "selftest",
					Failed:     len(failed),
					Message:    strings.Join(failed, ", "),
					Suggestion: "Run 'memsec doctor' to inspect platform support",
				}
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&skip, "skip", nil, "Checks to skip, by name")

	return cmd
}

func selfChecks() []selfCheck {
	return []selfCheck{
		{Name: "protect-round-trip", Run: checkProtectRoundTrip},
		{Name: "zero-size", Run: checkZeroSize},
		{Name: "array-overflow", Run: checkArrayOverflow},
		{Name: "garbage-fill", Run: checkGarbageFill},
		{Name: "guard-fault", Run: checkGuardFault},
		{Name: "memeq", Run: checkMemeq},
		{Name: "memcmp", Run: checkMemcmp},
		{Name: "memzero", Run: checkMemzero},
		{Name: "typed", Run: checkTyped},
	}
}

func checkProtectRoundTrip() error {
	p, ok := memsec.Malloc(16)
	if !ok {
		return fmt.Errorf("malloc(16) failed")
	}
	defer memsec.Free(p)

	buf := memsec.Bytes(p, 16)
	memsec.Memset(buf, 0xaa)
	if !memsec.Mprotect(p, prot.ReadOnly) {
		return fmt.Errorf("mprotect %s refused", prot.ReadOnly)
	}
	if !bytes.Equal(buf, bytes.Repeat([]byte{0xaa}, 16)) {
		return fmt.Errorf("contents changed under %s", prot.ReadOnly)
	}
	if !memsec.Mprotect(p, prot.ReadWrite) {
		return fmt.Errorf("mprotect %s refused", prot.ReadWrite)
	}
	memsec.Memzero(buf)
	return nil
}

func checkZeroSize() error {
	p, ok := memsec.Malloc(0)
	if !ok || p == nil {
		return fmt.Errorf("malloc(0) returned no block")
	}
	memsec.Free(p)
	return nil
}

func checkArrayOverflow() error {
	if p, ok := memsec.AllocArray(^uintptr(0), 2); ok || p != nil {
		return fmt.Errorf("overflowing allocarray returned a block")
	}
	return nil
}

func checkGarbageFill() error {
	const size = 100
	p, ok := memsec.Malloc(size)
	if !ok {
		return fmt.Errorf("malloc(%d) failed", size)
	}
	defer memsec.Free(p)

	if n := bytes.Count(memsec.Bytes(p, size), []byte{memsec.GarbageValue}); n != size {
		return fmt.Errorf("%d of %d bytes carry the garbage value", n, size)
	}
	return nil
}

var faultSink byte

func checkGuardFault() error {
	const size = 32
	p, ok := memsec.Malloc(size)
	if !ok {
		return fmt.Errorf("malloc(%d) failed", size)
	}
	defer memsec.Free(p)

	past := (*byte)(unsafe.Add(p, size))
	if !faults(func() { faultSink = *past }) {
		return fmt.Errorf("read past the payload did not fault")
	}

	if !memsec.Mprotect(p, prot.NoAccess) {
		return fmt.Errorf("mprotect %s refused", prot.NoAccess)
	}
	if !faults(func() { faultSink = *(*byte)(p) }) {
		return fmt.Errorf("read of a %s payload did not fault", prot.NoAccess)
	}
	return nil
}

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

func checkMemeq() error {
	a := []byte("correct horse battery staple")
	b := []byte("correct horse battery staplE")
	switch {
	case !memsec.Memeq(a, a):
		return fmt.Errorf("equal inputs compared unequal")
	case memsec.Memeq(a, b):
		return fmt.Errorf("last-byte difference missed")
	case memsec.Memeq(a, a[:len(a)-1]):
		return fmt.Errorf("length difference missed")
	}
	return nil
}

func checkMemcmp() error {
	cases := []struct {
		a, b []byte
		want int
	}{
		{[]byte{1, 2, 3}, []byte{1, 2, 3}, 0},
		{[]byte{0, 9}, []byte{1, 0}, -1},
		{[]byte{1, 0x80}, []byte{1, 0x7f}, 1},
		{[]byte{1, 2}, []byte{1, 2, 0}, -1},
	}
	for _, c := range cases {
		if got := memsec.Memcmp(c.a, c.b); got != c.want {
			return fmt.Errorf("memcmp(%x, %x) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
	return nil
}

func checkMemzero() error {
	buf := bytes.Repeat([]byte{0x5a}, 48)
	memsec.Memzero(buf[8:40])
	if !bytes.Equal(buf[8:40], make([]byte, 32)) {
		return fmt.Errorf("range not zeroed")
	}
	if buf[7] != 0x5a || buf[40] != 0x5a {
		return fmt.Errorf("bytes outside the range were touched")
	}
	return nil
}

func checkTyped() error {
	s, ok := memsec.MakeSlice[uint64](4)
	if !ok || len(s) != 4 {
		return fmt.Errorf("makeslice(4) failed")
	}
	s[3] = 1
	memsec.ReleaseSlice(s)

	v, ok := memsec.New[[32]byte]()
	if !ok {
		return fmt.Errorf("new failed")
	}
	v[0] = 1
	memsec.Release(v)
	return nil
}
