package executor

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/spachava753/nsoran/internal/environment"
	"github.com/spachava753/nsoran/internal/models"
)

// ResultFile is written to the output directory when a job finishes.
const ResultFile = "result.json"

// RunnerConfig controls how many episodes run and how.
type RunnerConfig struct {
	Scenario    string
	OutputDir   string
	Episodes    int
	NConcurrent int
	MaxSteps    int
	Seed        uint64
}

// Runner coordinates the execution of all episodes in a job. Every episode
// gets its own environment, so concurrent episodes never share a run
// directory or semaphores.
type Runner struct {
	cfg      RunnerConfig
	provider environment.Provider
	executor EpisodeExecutor
}

// NewRunner creates a runner.
func NewRunner(cfg RunnerConfig, provider environment.Provider, executor EpisodeExecutor) *Runner {
	return &Runner{cfg: cfg, provider: provider, executor: executor}
}

// Run executes all episodes and writes the aggregate result.
func (r *Runner) Run(ctx context.Context) (*models.JobResult, error) {
	startTime := time.Now()

	if err := os.MkdirAll(r.cfg.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	specs := make([]models.EpisodeSpec, r.cfg.Episodes)
	for i := range specs {
		specs[i] = models.EpisodeSpec{
			Index:    i,
			Seed:     r.cfg.Seed + uint64(i),
			MaxSteps: r.cfg.MaxSteps,
		}
	}

	nWorkers := r.cfg.NConcurrent
	if nWorkers <= 0 {
		nWorkers = 1
	}
	if nWorkers > len(specs) {
		nWorkers = len(specs)
	}

	results := r.runConcurrent(ctx, specs, nWorkers)

	jobResult := r.aggregateResults(results, startTime)
	jobResult.SkippedEpisodes = len(specs) - len(results)
	if jobResult.SkippedEpisodes > 0 || ctx.Err() != nil {
		jobResult.Cancelled = true
	}

	data, err := json.MarshalIndent(jobResult, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling job result: %w", err)
	}
	if err := os.WriteFile(filepath.Join(r.cfg.OutputDir, ResultFile), data, 0644); err != nil {
		return nil, fmt.Errorf("writing job result: %w", err)
	}

	return jobResult, nil
}

// runConcurrent executes episodes using a fan-out/fan-in pattern. Episodes
// not yet handed to a worker when ctx is cancelled are skipped.
func (r *Runner) runConcurrent(ctx context.Context, specs []models.EpisodeSpec, nWorkers int) []models.EpisodeResult {
	specChan := make(chan models.EpisodeSpec)
	resultChan := make(chan models.EpisodeResult, len(specs))

	var g errgroup.Group
	for range nWorkers {
		g.Go(func() error {
			for spec := range specChan {
				result, err := r.executor.Execute(ctx, spec, r.provider)
				if err != nil {
					slog.Error("episode failed", "episode", spec.Index, "error", err)
					result = &models.EpisodeResult{
						Index: spec.Index,
						Error: &models.EpisodeError{
							Type:    models.Classify(err),
							Message: err.Error(),
						},
					}
				}
				resultChan <- *result
			}
			return nil
		})
	}

	go func() {
		defer close(specChan)
		for _, spec := range specs {
			select {
			case <-ctx.Done():
				return
			case specChan <- spec:
			}
		}
	}()

	g.Wait()
	close(resultChan)

	results := make([]models.EpisodeResult, 0, len(specs))
	for result := range resultChan {
		results = append(results, result)
	}
	return results
}

func (r *Runner) aggregateResults(results []models.EpisodeResult, startTime time.Time) *models.JobResult {
	jr := &models.JobResult{
		Scenario:      r.cfg.Scenario,
		TotalEpisodes: r.cfg.Episodes,
		StartedAt:     startTime,
		EndedAt:       time.Now(),
		Episodes:      results,
	}
	jr.TotalDurationSec = jr.EndedAt.Sub(jr.StartedAt).Seconds()

	slices.SortFunc(jr.Episodes, func(a, b models.EpisodeResult) int {
		return cmp.Compare(a.Index, b.Index)
	})

	var totalReturn float64
	for _, ep := range jr.Episodes {
		jr.TotalSteps += ep.Steps
		if ep.Failed() {
			jr.FailedEpisodes++
			continue
		}
		jr.CompletedEpisodes++
		if ep.Truncated && !ep.Terminated {
			jr.TruncatedEpisodes++
		}
		totalReturn += ep.Return
	}
	if jr.CompletedEpisodes > 0 {
		jr.MeanReturn = totalReturn / float64(jr.CompletedEpisodes)
	}
	return jr
}
