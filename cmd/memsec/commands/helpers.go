package commands

import (
	"github.com/spf13/cobra"

	"github.com/oblique/memsec/internal/config"
)

// bindFlags maps command flags onto configuration keys so an explicitly set
// flag overrides memsec.yaml and MEMSEC_* variables.
func bindFlags(cfg *config.Config, cmd *cobra.Command, keys map[string]string) {
	if cfg.Overrides == nil {
		cfg.Overrides = config.NewOverrides()
	}
	for flag, key := range keys {
		if err := cfg.Overrides.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			panic(err)
		}
	}
}
