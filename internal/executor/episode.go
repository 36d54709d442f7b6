package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spachava753/nsoran/internal/environment"
	"github.com/spachava753/nsoran/internal/models"
)

// EpisodeExecutor runs a single episode and returns the result.
type EpisodeExecutor interface {
	Execute(ctx context.Context, spec models.EpisodeSpec, provider environment.Provider) (*models.EpisodeResult, error)
}

// DefaultEpisodeExecutor drives one environment with a policy until the
// episode ends or the step limit is reached.
type DefaultEpisodeExecutor struct {
	newPolicy NewPolicyFunc
}

// NewEpisodeExecutor creates an executor that builds a fresh policy per episode.
func NewEpisodeExecutor(newPolicy NewPolicyFunc) *DefaultEpisodeExecutor {
	return &DefaultEpisodeExecutor{newPolicy: newPolicy}
}

// Execute runs the episode. Environment failures are reported in the result;
// the returned error is reserved for failures to create the environment.
func (e *DefaultEpisodeExecutor) Execute(ctx context.Context, spec models.EpisodeSpec, provider environment.Provider) (*models.EpisodeResult, error) {
	result := &models.EpisodeResult{
		Index:     spec.Index,
		StartedAt: time.Now(),
	}
	defer func() {
		result.EndedAt = time.Now()
		result.DurationSec = result.EndedAt.Sub(result.StartedAt).Seconds()
	}()

	env, err := provider.CreateEnvironment(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating environment: %w", err)
	}
	defer func() {
		if err := env.Close(); err != nil {
			slog.Warn("closing environment", "episode", spec.Index, "error", err)
		}
	}()

	// Close unblocks a step waiting on the simulator.
	stop := context.AfterFunc(ctx, func() { env.Close() })
	defer stop()

	policy := e.newPolicy(spec.Seed)

	obs, info, err := env.Reset(ctx)
	result.RunID = env.RunID()
	if info.Run != nil {
		result.RunDir = info.Run.Dir
	}
	if err != nil {
		result.Error = &models.EpisodeError{Type: models.Classify(err), Message: err.Error()}
		return result, nil
	}
	slog.Info("episode started", "episode", spec.Index, "run", result.RunID)

	for spec.MaxSteps <= 0 || result.Steps < spec.MaxSteps {
		if err := ctx.Err(); err != nil {
			result.Error = &models.EpisodeError{Type: models.ErrTypeInternal, Message: err.Error()}
			return result, nil
		}

		a, err := policy.Act(obs)
		if err != nil {
			result.Error = &models.EpisodeError{Type: models.ErrTypeActionFailed, Message: err.Error()}
			return result, nil
		}

		res, err := env.Step(ctx, a)
		if err != nil {
			typ := models.ErrTypeActionFailed
			if errors.Is(err, models.ErrNotReady) {
				typ = models.ErrTypeInternal
			}
			result.Error = &models.EpisodeError{Type: typ, Message: err.Error()}
			return result, nil
		}

		result.Steps++
		result.Return += res.Reward
		obs = res.Observation

		if res.Done() {
			e.finish(result, res)
			return result, nil
		}
	}

	slog.Info("episode reached step limit", "episode", spec.Index, "run", result.RunID, "max_steps", spec.MaxSteps)
	result.Truncated = true
	return result, nil
}

func (e *DefaultEpisodeExecutor) finish(result *models.EpisodeResult, res models.StepResult) {
	result.Terminated = res.Terminated
	result.Truncated = res.Truncated
	if run := res.Info.Run; run != nil && run.ExitCode != nil {
		code := *run.ExitCode
		result.ExitCode = &code
	}

	diag := res.Info.Diagnostics
	if diag == nil {
		return
	}
	result.Diagnostics = diag
	code := diag.ExitCode
	result.ExitCode = &code

	typ, msg := diag.ErrorType, diag.Error
	if typ == "" {
		typ = models.ErrTypeSimulationFailed
	}
	if msg == "" {
		msg = fmt.Sprintf("simulator exited with code %d", diag.ExitCode)
	}
	result.Error = &models.EpisodeError{Type: typ, Message: msg}
}
