package cli

import (
	"fmt"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
)

// NewShowConfigCmd prints the configuration after file, env and flag
// overrides.
func NewShowConfigCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "showcfg",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := setup(cmd, *cfgPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "# %s\n", cfg.Paths.ConfigPath)
			return toml.NewEncoder(cmd.OutOrStdout()).Encode(cfg)
		},
	}
	addModelFlags(cmd.Flags())
	addSearchFlags(cmd.Flags())
	return cmd
}
