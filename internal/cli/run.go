package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/spachava753/nsoran/internal/environment"
	"github.com/spachava753/nsoran/internal/executor"
	"github.com/spachava753/nsoran/internal/models"
	"github.com/spachava753/nsoran/internal/telemetry"
)

// ErrJobFailed is returned when any episode failed or the job was cancelled.
var ErrJobFailed = errors.New("job did not complete cleanly")

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run <env.yaml>",
		Short: "Build the simulator and run episodes with a random policy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := loadConfig(rootOpts, args[0], cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			shutdown, err := telemetry.Init(ctx, telemetry.Options{
				Endpoint:    cfg.Telemetry.Endpoint,
				Insecure:    cfg.Telemetry.Insecure,
				ServiceName: "nsoran",
				Version:     Version,
			})
			if err != nil {
				return err
			}
			defer func() {
				if err := shutdown(ctx); err != nil {
					slog.Warn("shutting down telemetry", "error", err)
				}
			}()

			newUseCase, err := useCaseFactory(cfg)
			if err != nil {
				return err
			}
			space, err := actionSpace(newUseCase)
			if err != nil {
				return err
			}

			opts, err := environment.Prepare(ctx, cfg)
			if err != nil {
				return err
			}

			provider := environment.NewLocalProvider(cfg.UseCase, opts, newUseCase)
			runner := executor.NewRunner(executor.RunnerConfig{
				Scenario:    cfg.Scenario,
				OutputDir:   opts.OutputDir,
				Episodes:    cfg.Episodes,
				NConcurrent: cfg.NConcurrentEpisodes,
				MaxSteps:    cfg.MaxSteps,
				Seed:        cfg.Seed,
			}, provider, executor.NewEpisodeExecutor(executor.RandomPolicyFunc(space)))

			result, err := runner.Run(ctx)
			if err != nil {
				return err
			}

			printSummary(cmd.OutOrStdout(), result)
			if result.FailedEpisodes > 0 || result.Cancelled {
				return ErrJobFailed
			}
			return nil
		},
	}
}

func printSummary(w io.Writer, result *models.JobResult) {
	fmt.Fprintf(w, "\nScenario: %s\n", result.Scenario)
	fmt.Fprintf(w, "Total episodes: %d\n", result.TotalEpisodes)
	fmt.Fprintf(w, "Completed: %d\n", result.CompletedEpisodes)
	fmt.Fprintf(w, "Truncated: %d\n", result.TruncatedEpisodes)
	fmt.Fprintf(w, "Failed: %d\n", result.FailedEpisodes)
	fmt.Fprintf(w, "Skipped: %d\n", result.SkippedEpisodes)
	fmt.Fprintf(w, "Total steps: %d\n", result.TotalSteps)
	fmt.Fprintf(w, "Mean return: %.4f\n", result.MeanReturn)
	fmt.Fprintf(w, "Duration: %.2fs\n", result.TotalDurationSec)

	for _, ep := range result.Episodes {
		if ep.Error == nil {
			continue
		}
		fmt.Fprintf(w, "  episode %d (%s): %s: %s\n", ep.Index, ep.RunID, ep.Error.Type, ep.Error.Message)
		if ep.Diagnostics != nil {
			fmt.Fprintf(w, "    reproduce: %s\n", ep.Diagnostics.Command)
		}
	}
}
