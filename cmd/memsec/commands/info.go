package commands

import (
	"fmt"
	"runtime"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/oblique/memsec/internal/config"
	"github.com/oblique/memsec/internal/platform"
	"github.com/oblique/memsec/pkg/memsec"
)

// NewInfoCommand creates the info command
func NewInfoCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show allocator parameters for this platform",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mem := platform.Default()
			ps := uintptr(mem.PageSize())

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintf(w, "Platform:\t%s/%s\n", runtime.GOOS, runtime.GOARCH)
			_, _ = fmt.Fprintf(w, "Page size:\t%d\n", ps)
			_, _ = fmt.Fprintf(w, "Canary size:\t%d\n", memsec.CanarySize)
			_, _ = fmt.Fprintf(w, "Garbage fill:\t%#02x\n", memsec.GarbageValue)

			if l, ok := memsec.ComputeLayout(0, ps); ok {
				_, _ = fmt.Fprintf(w, "Smallest block:\t%d bytes (%d pages)\n", l.Total, l.Total/ps)
			} else {
				_, _ = fmt.Fprintf(w, "Smallest block:\tunavailable\n")
			}

			_, _ = fmt.Fprintf(w, "Memlock limit:\t%s\n", memlockLimit())

			_, dontDump := mem.(platform.DumpExcluder)
			_, _ = fmt.Fprintf(w, "Core dump exclusion:\t%t\n", dontDump)

			return w.Flush()
		},
	}
}

func memlockLimit() string {
	limit, ok := platform.MemlockLimit()
	switch {
	case !ok:
		return "unknown"
	case limit == ^uint64(0):
		return "unlimited"
	}
	return fmt.Sprintf("%d bytes", limit)
}
