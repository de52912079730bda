package commands

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/oblique/memsec/internal/config"
	mserrors "github.com/oblique/memsec/internal/errors"
	"github.com/oblique/memsec/internal/platform"
	"github.com/oblique/memsec/pkg/memsec"
	"github.com/oblique/memsec/pkg/prot"
)

// Check statuses
const (
	statusHealthy = "healthy"
	statusWarning = "warning"
	statusError   = "error"
)

// CheckHealth represents the outcome of one platform check
type CheckHealth struct {
	Name        string
	Status      string
	Message     string
	Suggestions []string
}

// lowMemlockLimit is the RLIMIT_MEMLOCK below which only a handful of
// blocks can be locked.
const lowMemlockLimit = 64 << 10

// NewDoctorCommand creates the doctor command
func NewDoctorCommand(cfg *config.Config) *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check platform support for guarded memory",
		Long: `Verify that this system supports what the allocator relies on.

This command checks:
- Guarded allocation and release
- Memory locking and RLIMIT_MEMLOCK
- Protection changes for the portable modes
- Which platform-only modes are available
- Core dump exclusion`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.Logger.Info("Checking memsec platform support...")

			results := runDoctor(platform.Default())
			displayHealthResults(cmd.OutOrStdout(), results, verbose)

			healthy, failed := 0, 0
			for _, r := range results {
				switch r.Status {
				case statusHealthy:
					healthy++
				case statusError:
					failed++
				}
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "\nSummary: %d/%d checks healthy\n", healthy, len(results))
			if failed > 0 {
				return mserrors.CheckError{
					Check:      "doctor",
					Failed:     failed,
					Suggestion: "Run with --verbose for suggestions",
				}
			}

			cfg.Logger.Info("Guarded memory is fully supported")
			return nil
		},
	}

	cmd.Flags().BoolVar(&verbose, "verbose", false, "Show suggestions for failing checks")

	return cmd
}

func runDoctor(mem platform.Memory) []CheckHealth {
	return []CheckHealth{
		checkAllocate(),
		checkLock(mem),
		checkMemlockLimit(),
		checkPortableModes(),
		checkExtensionModes(),
		checkDumpExclusion(mem),
	}
}

func checkAllocate() CheckHealth {
	h := CheckHealth{Name: "allocate"}
	p, ok := memsec.Malloc(1)
	if !ok {
		h.Status = statusError
		h.Message = "guarded allocation refused"
		h.Suggestions = []string{"Check 'ulimit -v' and available memory"}
		return h
	}
	memsec.Free(p)

	h.Status = statusHealthy
	h.Message = "guarded blocks can be allocated and released"
	return h
}

// checkLock locks one raw page so the syscall error, which Mlock reduces
// to a bool, is available for suggestions.
func checkLock(mem platform.Memory) CheckHealth {
	h := CheckHealth{Name: "mlock"}
	size := uintptr(mem.PageSize())

	p, err := mem.AllocAligned(size)
	if err != nil {
		h.Status = statusError
		h.Message = err.Error()
		return h
	}
	defer func() { _ = mem.FreeAligned(p, size) }()

	if err := mem.Lock(p, size); err != nil {
		perr := mserrors.PlatformError("mlock", err).(mserrors.UserError)
		h.Status = statusWarning
		h.Message = fmt.Sprintf("payloads may be swapped: %v", err)
		if perr.Suggestion != "" {
			h.Suggestions = append(h.Suggestions, perr.Suggestion)
		}
		return h
	}
	_ = mem.Unlock(p, size)

	h.Status = statusHealthy
	h.Message = "payload pages can be locked in memory"
	return h
}

func checkMemlockLimit() CheckHealth {
	h := CheckHealth{Name: "memlock-limit"}
	limit, ok := platform.MemlockLimit()
	switch {
	case !ok:
		h.Status = statusHealthy
		h.Message = "no RLIMIT_MEMLOCK on this platform"
	case limit < lowMemlockLimit:
		h.Status = statusWarning
		h.Message = fmt.Sprintf("%d bytes; few blocks can be locked", limit)
		h.Suggestions = []string{"Raise it with 'ulimit -l' or LimitMEMLOCK= in the service unit"}
	default:
		h.Status = statusHealthy
		h.Message = memlockLimit()
	}
	return h
}

func checkPortableModes() CheckHealth {
	h := CheckHealth{Name: "mprotect"}
	p, ok := memsec.Malloc(1)
	if !ok {
		h.Status = statusError
		h.Message = "no block to test with"
		return h
	}
	defer memsec.Free(p)

	var refused []prot.Prot
	for _, mode := range []prot.Prot{prot.NoAccess, prot.ReadOnly, prot.ReadWrite} {
		if !memsec.Mprotect(p, mode) {
			refused = append(refused, mode)
		}
	}
	if len(refused) > 0 {
		h.Status = statusError
		h.Message = fmt.Sprintf("refused: %v", refused)
		h.Suggestions = []string{"Check SELinux or seccomp policy for mprotect"}
		return h
	}

	h.Status = statusHealthy
	h.Message = "no-access, read-only and read-write are available"
	return h
}

func checkExtensionModes() CheckHealth {
	h := CheckHealth{Name: "platform-modes", Status: statusHealthy}
	p, ok := memsec.Malloc(1)
	if !ok {
		h.Status = statusError
		h.Message = "no block to test with"
		return h
	}
	defer memsec.Free(p)

	var supported []prot.Prot
	for _, mode := range prot.Extensions() {
		if memsec.Mprotect(p, mode) {
			supported = append(supported, mode)
			memsec.Mprotect(p, prot.ReadWrite)
		}
	}
	if len(supported) == 0 {
		h.Message = "none (portable modes only)"
		return h
	}
	h.Message = fmt.Sprintf("%v", supported)
	return h
}

func checkDumpExclusion(mem platform.Memory) CheckHealth {
	h := CheckHealth{Name: "dump-exclusion"}
	if _, ok := mem.(platform.DumpExcluder); ok {
		h.Status = statusHealthy
		h.Message = "payloads are excluded from core dumps"
		return h
	}
	h.Status = statusWarning
	h.Message = "payloads may appear in core dumps"
	h.Suggestions = []string{"Disable core dumps with 'ulimit -c 0' for processes holding secrets"}
	return h
}

// displayHealthResults shows check results in a formatted table
func displayHealthResults(out io.Writer, results []CheckHealth, verbose bool) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintf(w, "CHECK\tSTATUS\tMESSAGE\n")
	_, _ = fmt.Fprintf(w, "-----\t------\t-------\n")

	for _, result := range results {
		status := result.Status
		switch result.Status {
		case statusHealthy:
			status = "✓ " + status
		case statusWarning:
			status = "⚠ " + status
		case statusError:
			status = "✗ " + status
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", result.Name, status, result.Message)
	}

	_ = w.Flush()

	if !verbose {
		return
	}
	for _, result := range results {
		if result.Status != statusHealthy && len(result.Suggestions) > 0 {
			_, _ = fmt.Fprintf(out, "\n%s suggestions:\n", result.Name)
			for _, suggestion := range result.Suggestions {
				_, _ = fmt.Fprintf(out, "  • %s\n", suggestion)
			}
		}
	}
}
