package registry

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/spachava753/nsoran/internal/models"
)

// Match pairs a candidate program with its resolution score.
type Match struct {
	Program
	Score float64
}

// Candidates returns every program whose name contains scenario, scored by
// len(scenario)/len(name), in listing order.
func Candidates(scenario string, programs []Program) []Match {
	var matches []Match
	for _, p := range programs {
		if !strings.Contains(p.Name, scenario) {
			continue
		}
		matches = append(matches, Match{
			Program: p,
			Score:   float64(len(scenario)) / float64(len(p.Name)),
		})
	}
	return matches
}

// Resolve picks the tightest substring match for scenario: the candidate
// whose name is closest in length to the scenario name. Ties go to the
// candidate listed first by the build system.
func Resolve(scenario string, programs []Program) (Program, error) {
	if scenario == "" {
		return Program{}, fmt.Errorf("%w: empty scenario name", models.ErrScriptResolution)
	}

	matches := Candidates(scenario, programs)
	if len(matches) == 0 {
		return Program{}, fmt.Errorf("%w: cannot find %s script", models.ErrScriptResolution, scenario)
	}

	best := matches[0]
	for _, m := range matches[1:] {
		if m.Score > best.Score {
			best = m
		}
	}

	slog.Debug("resolved scenario executable",
		"scenario", scenario,
		"candidates", len(matches),
		"path", best.Path,
		"score", best.Score)

	return best.Program, nil
}

// ResolveExecutable loads the program listing under ns3Path and resolves the
// scenario to an absolute executable path.
func ResolveExecutable(ns3Path, scenario string, optimized bool) (string, error) {
	programs, err := LoadRunnablePrograms(ns3Path, optimized)
	if err != nil {
		return "", fmt.Errorf("%w: %w", models.ErrScriptResolution, err)
	}

	p, err := Resolve(scenario, programs)
	if err != nil {
		return "", err
	}

	if HasDriverScript(ns3Path) {
		return p.Path, nil
	}
	return wafScratchPath(ns3Path, scenario, p.Path, optimized), nil
}

// wafScratchPath rewrites waf-era scratch scripts to the location of their
// compiled binary.
func wafScratchPath(ns3Path, scenario, path string, optimized bool) string {
	if !strings.Contains(path, "scratch") {
		return path
	}

	parts := strings.Split(path, "/scratch/")
	sub := scenario
	if strings.Contains(parts[len(parts)-1], "/") {
		sub = filepath.Join(scenario, scenario)
	}

	buildDir := filepath.Join(ns3Path, "build")
	if optimized {
		buildDir = filepath.Join(buildDir, "optimized")
	}

	abs, err := filepath.Abs(filepath.Join(buildDir, "scratch", sub))
	if err != nil {
		return path
	}
	return abs
}
