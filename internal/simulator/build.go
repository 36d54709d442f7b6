package simulator

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
	"strconv"
	"strings"

	"github.com/spachava753/nsoran/internal/models"
	"github.com/spachava753/nsoran/internal/registry"
)

const (
	DriverProgram = "./ns3"
	WafProgram    = "./waf"
)

// Builder configures and compiles the simulator tree.
type Builder struct {
	NS3Path           string
	Optimized         bool
	SkipConfiguration bool
	Jobs              int    // parallel compile jobs, defaults to NumCPU
	Interpreter       string // defaults to python3
}

// NewBuilder creates a builder for the tree at ns3Path.
func NewBuilder(ns3Path string, optimized, skipConfiguration bool) *Builder {
	return &Builder{
		NS3Path:           ns3Path,
		Optimized:         optimized,
		SkipConfiguration: skipConfiguration,
	}
}

// Program returns the build driver script of the tree.
func (b *Builder) Program() string {
	return BuildProgram(b.NS3Path)
}

// BuildProgram returns ./ns3 for CMake-era trees and ./waf otherwise.
func BuildProgram(ns3Path string) string {
	if registry.HasDriverScript(ns3Path) {
		return DriverProgram
	}
	return WafProgram
}

// Build runs the configure step (unless skipped) followed by the compile
// step. Any failure is wrapped in models.ErrBuildFailure.
func (b *Builder) Build(ctx context.Context) error {
	program := b.Program()

	if !b.SkipConfiguration {
		args := []string{program, "configure", "--enable-examples", "--disable-gtk", "--disable-werror"}
		if b.Optimized {
			args = append(args, "--build-profile=optimized", "--out=build/optimized")
		}
		slog.Info("configuring simulator", "path", b.NS3Path, "optimized", b.Optimized)
		if err := b.run(ctx, "configure", args); err != nil {
			return err
		}
	}

	jobs := b.Jobs
	if jobs <= 0 {
		jobs = runtime.NumCPU()
	}
	slog.Info("building simulator", "path", b.NS3Path, "jobs", jobs)
	return b.run(ctx, "build", []string{program, "-j", strconv.Itoa(jobs), "build"})
}

func (b *Builder) run(ctx context.Context, step string, args []string) error {
	interpreter := b.Interpreter
	if interpreter == "" {
		interpreter = "python3"
	}

	cmd := exec.CommandContext(ctx, interpreter, args...)
	cmd.Dir = b.NS3Path
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: %s: %w: %s", models.ErrBuildFailure, step, err, strings.TrimSpace(stderr.String()))
	}

	slog.Debug("simulator build step finished", "step", step, "stdout_bytes", stdout.Len())
	return nil
}
