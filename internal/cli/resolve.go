package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/spachava753/nsoran/internal/registry"
)

// NewResolveCommand creates the resolve command.
func NewResolveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <env.yaml>",
		Short: "Print the simulator executable the scenario resolves to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(rootOpts, args[0], cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			exe := cfg.Executable
			if exe != "" {
				if exe, err = filepath.Abs(exe); err != nil {
					return err
				}
			} else if exe, err = registry.ResolveExecutable(cfg.NS3Path, cfg.Scenario, cfg.Optimized); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), exe)
			return nil
		},
	}
}
