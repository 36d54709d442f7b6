package environment

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spachava753/nsoran/internal/config"
	"github.com/spachava753/nsoran/internal/models"
	"github.com/spachava753/nsoran/internal/registry"
	"github.com/spachava753/nsoran/internal/simulator"
)

// Options is everything an environment needs to launch runs. Prepare fills
// it from an env config.
type Options struct {
	Scenario       string
	Executable     string
	Params         map[string]string
	Env            map[string]string // added to the child environment
	OutputDir      string
	BuildProgram   string // simulator driver used in reproduction commands, "" for a bare executable
	MetricsTimeout time.Duration
	ReturnInfo     bool
	LogLevel       string
}

// Prepare builds the simulator (unless skipped), resolves the scenario
// executable and loads the scenario parameters. It runs once per job; the
// resulting Options are shared by every environment.
func Prepare(ctx context.Context, cfg config.EnvConfig) (Options, error) {
	params, err := config.LoadScenarioFile(cfg.ScenarioConfig)
	if err != nil {
		return Options{}, fmt.Errorf("%w: %w", models.ErrConfiguration, err)
	}

	outputDir, err := filepath.Abs(cfg.OutputDir)
	if err != nil {
		return Options{}, fmt.Errorf("%w: output dir: %w", models.ErrConfiguration, err)
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return Options{}, fmt.Errorf("%w: creating output dir: %w", models.ErrConfiguration, err)
	}

	opts := Options{
		Scenario:       cfg.Scenario,
		Params:         params,
		Env:            map[string]string{},
		OutputDir:      outputDir,
		MetricsTimeout: cfg.MetricsTimeout,
		ReturnInfo:     cfg.ReturnInfo,
		LogLevel:       cfg.LogLevel,
	}

	if cfg.NS3Path != "" {
		opts.Env = simulator.LinkerEnv(cfg.NS3Path, cfg.Optimized)
	}

	if cfg.Executable != "" {
		exe, err := filepath.Abs(cfg.Executable)
		if err != nil {
			return Options{}, fmt.Errorf("%w: executable: %w", models.ErrConfiguration, err)
		}
		opts.Executable = exe
		slog.Info("using configured simulator executable", "executable", exe)
		return opts, nil
	}

	if !cfg.SkipBuild {
		b := simulator.NewBuilder(cfg.NS3Path, cfg.Optimized, cfg.SkipConfiguration)
		if err := b.Build(ctx); err != nil {
			return Options{}, err
		}
	}

	exe, err := registry.ResolveExecutable(cfg.NS3Path, cfg.Scenario, cfg.Optimized)
	if err != nil {
		return Options{}, err
	}
	opts.Executable = exe
	opts.BuildProgram = simulator.BuildProgram(cfg.NS3Path)

	slog.Info("resolved simulator executable", "scenario", cfg.Scenario, "executable", exe)
	return opts, nil
}
