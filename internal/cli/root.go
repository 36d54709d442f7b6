// Package cli implements the nsoran command line.
package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/spachava753/nsoran/internal/config"
	"github.com/spachava753/nsoran/internal/logging"
)

// Version is set at build time.
var Version = "dev"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	LogLevel string
}

// NewRootCommand creates the root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "nsoran",
		Short:         "Run ns-O-RAN simulations as reinforcement learning environments",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       Version,
	}

	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level (error|warn|info|debug|trace), overrides env.yaml")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewResolveCommand(opts))

	return cmd
}

// loadConfig reads env.yaml and installs the default logger.
func loadConfig(opts *RootOptions, path string, stderr io.Writer) (config.EnvConfig, error) {
	cfg, err := config.LoadEnvConfig(path)
	if err != nil {
		return cfg, fmt.Errorf("loading env config: %w", err)
	}
	if opts.LogLevel != "" {
		cfg.LogLevel = opts.LogLevel
	}
	slog.SetDefault(logging.NewLogger(cfg.LogLevel, stderr))
	return cfg, nil
}
