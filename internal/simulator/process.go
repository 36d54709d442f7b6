package simulator

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/spachava753/nsoran/internal/models"
)

const (
	// killWait bounds how long Kill waits for the child to be reaped.
	killWait = 5 * time.Second
	// outputGrace bounds how long exit handling waits for the pipes to close.
	outputGrace = time.Second
)

// LaunchOptions configures how the simulator child is spawned.
type LaunchOptions struct {
	Executable string
	Params     map[string]string
	Env        map[string]string // added on top of the parent environment
}

// Process is a running simulator child owned by one Run.
type Process struct {
	cmd    *exec.Cmd
	run    *models.Run
	output *OutputMux

	done     chan struct{}
	waitErr  error
	exitCode int
	exitedAt time.Time

	exitOnce sync.Once
	killOnce sync.Once
	killErr  error
}

// Launch spawns the simulator in run.Dir with its output captured. It fills
// in run.Command and run.StartedAt.
func Launch(run *models.Run, opts LaunchOptions) (*Process, error) {
	if opts.Executable == "" {
		return nil, fmt.Errorf("%w: no executable", models.ErrLaunchFailure)
	}
	if _, err := os.Stat(run.Dir); err != nil {
		return nil, fmt.Errorf("%w: run directory: %w", models.ErrLaunchFailure, err)
	}

	argv := Command(opts.Executable, opts.Params)

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("%w: creating stdout pipe: %w", models.ErrLaunchFailure, err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		stdoutR.Close()
		stdoutW.Close()
		return nil, fmt.Errorf("%w: creating stderr pipe: %w", models.ErrLaunchFailure, err)
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = run.Dir
	cmd.Env = os.Environ()
	for k, v := range opts.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW
	cmd.SysProcAttr = sysProcAttr()

	run.Command = argv
	run.StartedAt = time.Now()

	slog.Info("launching simulator", "run", run.ID, "dir", run.Dir, "command", argv)

	startErr := cmd.Start()
	// The child holds its own copies of the write ends.
	stdoutW.Close()
	stderrW.Close()
	if startErr != nil {
		stdoutR.Close()
		stderrR.Close()
		return nil, fmt.Errorf("%w: %w", models.ErrLaunchFailure, startErr)
	}

	output, err := NewOutputMux(run.Dir, stdoutR, stderrR)
	if err != nil {
		killGroup(cmd.Process)
		cmd.Wait()
		stdoutR.Close()
		stderrR.Close()
		return nil, fmt.Errorf("%w: %w", models.ErrLaunchFailure, err)
	}

	p := &Process{
		cmd:    cmd,
		run:    run,
		output: output,
		done:   make(chan struct{}),
	}
	go p.wait()

	return p, nil
}

func (p *Process) wait() {
	err := p.cmd.Wait()
	p.waitErr = err
	p.exitCode = p.cmd.ProcessState.ExitCode()
	p.exitedAt = time.Now()
	close(p.done)
}

// Done is closed once the child has exited and been reaped.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// PID returns the child's process id.
func (p *Process) PID() int {
	return p.cmd.Process.Pid
}

// IsAlive polls the child without blocking. Captured output is drained on
// every call. The first call that observes termination records the exit code
// and elapsed time on the Run; later calls leave them untouched.
func (p *Process) IsAlive() bool {
	if err := p.output.Drain(); err != nil {
		slog.Warn("draining simulator output", "run", p.run.ID, "error", err)
	}

	select {
	case <-p.done:
	default:
		return true
	}

	p.recordExit()
	return false
}

func (p *Process) recordExit() {
	p.exitOnce.Do(func() {
		// Pick up whatever the child wrote right before exiting.
		p.output.Wait(outputGrace)
		if err := p.output.Drain(); err != nil {
			slog.Warn("draining simulator output", "run", p.run.ID, "error", err)
		}

		code := p.exitCode
		elapsed := p.exitedAt.Sub(p.run.StartedAt).Seconds()
		p.run.ExitCode = &code
		p.run.ElapsedSec = &elapsed

		slog.Debug("simulator exited", "run", p.run.ID, "exit_code", code, "elapsed_sec", elapsed, "wait_error", p.waitErr)
	})
}

// ExitCode returns the recorded exit code once IsAlive has observed termination.
func (p *Process) ExitCode() (int, bool) {
	if p.run.ExitCode == nil {
		return 0, false
	}
	return *p.run.ExitCode, true
}

// Kill forcefully terminates the child and its process group, waits for it
// to be reaped and closes the output capture. It is unconditional: calling
// it after the child already exited is not an error.
func (p *Process) Kill() error {
	p.killOnce.Do(func() {
		if err := killGroup(p.cmd.Process); err != nil {
			p.killErr = fmt.Errorf("killing simulator: %w", err)
		}

		select {
		case <-p.done:
			p.recordExit()
		case <-time.After(killWait):
			slog.Warn("simulator not reaped after kill", "run", p.run.ID, "pid", p.PID())
		}

		if err := p.output.Close(); err != nil && p.killErr == nil {
			p.killErr = fmt.Errorf("closing simulator output: %w", err)
		}
	})
	return p.killErr
}

// Stdout returns everything captured from the child's stdout so far.
func (p *Process) Stdout() string {
	return ReadLog(p.run.Dir, StdoutFile)
}

// Stderr returns everything captured from the child's stderr so far.
func (p *Process) Stderr() string {
	return ReadLog(p.run.Dir, StderrFile)
}
