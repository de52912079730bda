package commands

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/oblique/memsec/internal/config"
	mserrors "github.com/oblique/memsec/internal/errors"
	"github.com/oblique/memsec/internal/platform"
	"github.com/oblique/memsec/pkg/memsec"
)

// layoutReport is the printable form of a block layout, offsets relative to
// the start of the mapping.
type layoutReport struct {
	Size          uint64 `yaml:"size"`
	PageSize      uint64 `yaml:"page_size"`
	PayloadRegion uint64 `yaml:"payload_region"`
	Total         uint64 `yaml:"total"`
	Overhead      uint64 `yaml:"overhead"`
	Offsets       struct {
		Base          uint64 `yaml:"base"`
		LeadingGuard  uint64 `yaml:"leading_guard"`
		Region        uint64 `yaml:"region"`
		Canary        uint64 `yaml:"canary"`
		User          uint64 `yaml:"user"`
		TrailingGuard uint64 `yaml:"trailing_guard"`
	} `yaml:"offsets"`
}

func newLayoutReport(l memsec.Layout) layoutReport {
	r := layoutReport{
		Size:          uint64(l.Size),
		PageSize:      uint64(l.PageSize),
		PayloadRegion: uint64(l.PayloadRegion),
		Total:         uint64(l.Total),
		Overhead:      uint64(l.Overhead()),
	}
	r.Offsets.LeadingGuard = uint64(l.LeadingGuardOffset())
	r.Offsets.Region = uint64(l.RegionOffset())
	r.Offsets.Canary = uint64(l.CanaryOffset())
	r.Offsets.User = uint64(l.UserOffset())
	r.Offsets.TrailingGuard = uint64(l.TrailingGuardOffset())
	return r
}

// NewLayoutCommand creates the layout command
func NewLayoutCommand(cfg *config.Config) *cobra.Command {
	var (
		output   string
		pageSize uint64
	)

	cmd := &cobra.Command{
		Use:   "layout <size>",
		Short: "Show the page layout of a guarded block",
		Long: `Compute where the base page, guard pages, canary and payload of a
block holding <size> bytes would sit. Sizes accept 0x and 0o prefixes.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			size, err := strconv.ParseUint(args[0], 0, 64)
			if err != nil {
				return mserrors.UserError{
					Message:    fmt.Sprintf("Invalid size %q", args[0]),
					Suggestion: "Pass a non-negative byte count, e.g. 'memsec layout 4096'",
					Err:        err,
				}
			}
			ps := pageSize
			if ps == 0 {
				ps = uint64(platform.Default().PageSize())
			}

			l, ok := memsec.ComputeLayout(uintptr(size), uintptr(ps))
			if !ok || uint64(uintptr(size)) != size || uint64(uintptr(ps)) != ps {
				return mserrors.UserError{
					Message:    fmt.Sprintf("No layout for %d bytes with %d-byte pages", size, ps),
					Suggestion: "The size must leave room for four pages below the address-space limit, and the page size must be a power of two of at least 16",
				}
			}
			report := newLayoutReport(l)

			switch output {
			case "yaml":
				enc := yaml.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent(2)
				if err := enc.Encode(report); err != nil {
					return err
				}
				return enc.Close()
			case "text":
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				_, _ = fmt.Fprintf(w, "OFFSET\tLENGTH\tPART\n")
				_, _ = fmt.Fprintf(w, "------\t------\t----\n")
				_, _ = fmt.Fprintf(w, "%d\t%d\tbase page (read-only)\n", report.Offsets.Base, report.PageSize)
				_, _ = fmt.Fprintf(w, "%d\t%d\tleading guard (no access)\n", report.Offsets.LeadingGuard, report.PageSize)
				_, _ = fmt.Fprintf(w, "%d\t%d\tpadding\n", report.Offsets.Region, report.Offsets.Canary-report.Offsets.Region)
				_, _ = fmt.Fprintf(w, "%d\t%d\tcanary\n", report.Offsets.Canary, memsec.CanarySize)
				_, _ = fmt.Fprintf(w, "%d\t%d\tpayload\n", report.Offsets.User, report.Size)
				_, _ = fmt.Fprintf(w, "%d\t%d\ttrailing guard (no access)\n", report.Offsets.TrailingGuard, report.PageSize)
				if err := w.Flush(); err != nil {
					return err
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "\nTotal: %d bytes, overhead %d bytes\n", report.Total, report.Overhead)
				return err
			default:
				return mserrors.UserError{
					Message:    fmt.Sprintf("Unknown output format %q", output),
					Suggestion: "Use -o text or -o yaml",
				}
			}
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "text", "Output format (text, yaml)")
	cmd.Flags().Uint64Var(&pageSize, "page-size", 0, "Page size to compute for (default: this system's)")

	return cmd
}
