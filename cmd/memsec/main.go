package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/oblique/memsec/cmd/memsec/commands"
	"github.com/oblique/memsec/internal/config"
	mserrors "github.com/oblique/memsec/internal/errors"
	"github.com/oblique/memsec/internal/logging"
	"github.com/oblique/memsec/pkg/memsec"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cfg := &config.Config{Overrides: config.NewOverrides()}
	if err := run(cfg); err != nil {
		reportError(os.Stderr, cfg.Logger, err)
		os.Exit(1)
	}
}

// reportError prints err for the user. Under --debug the full error chain is
// printed instead of the simplified message.
func reportError(w io.Writer, logger *logging.Logger, err error) {
	if logger != nil && logger.DebugEnabled() {
		fmt.Fprintf(w, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(w, "Error: %v\n", mserrors.SimplifyError(err))
}

func run(cfg *config.Config) error {
	v := cfg.Overrides

	rootCmd := &cobra.Command{
		Use:   "memsec",
		Short: "Guarded memory allocator toolkit",
		Long: `memsec inspects and exercises the guarded allocator: page layout,
self-checks, constant-time comparison timing, soak runs with metrics,
and platform diagnostics for memory locking.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger := logging.New(v.GetBool("debug"), v.GetBool("no-color"))

			cfg.Path = v.GetString("config")
			cfg.Logger = logger
			memsec.SetLogger(logger)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String("config", config.DefaultPath, "Config file path")
	flags.Bool("no-color", false, "Disable colored output")
	flags.Bool("debug", false, "Enable debug logging")
	for _, name := range []string{"config", "no-color", "debug"} {
		if err := v.BindPFlag(name, flags.Lookup(name)); err != nil {
			return err
		}
	}

	rootCmd.AddCommand(
		commands.NewInfoCommand(cfg),
		commands.NewLayoutCommand(cfg),
		commands.NewSelftestCommand(cfg),
		commands.NewBenchCommand(cfg),
		commands.NewSoakCommand(cfg),
		commands.NewDoctorCommand(cfg),
		commands.NewCompletionCommand(cfg),
	)

	return rootCmd.Execute()
}
