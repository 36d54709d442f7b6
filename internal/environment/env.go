package environment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/spachava753/nsoran/internal/action"
	"github.com/spachava753/nsoran/internal/ingest"
	"github.com/spachava753/nsoran/internal/logging"
	"github.com/spachava753/nsoran/internal/models"
	"github.com/spachava753/nsoran/internal/sem"
	"github.com/spachava753/nsoran/internal/simulator"
	"github.com/spachava753/nsoran/internal/store"
	"github.com/spachava753/nsoran/internal/telemetry"
)

var errSimulatorExited = errors.New("simulator exited")

// SimEnv runs one simulator process per episode and exposes it through
// Reset, Step and Close. Step is meant to be driven by a single control loop;
// Close may be called from any goroutine and unblocks a pending Step.
type SimEnv struct {
	opts Options
	uc   UseCase

	openChannel func(runID string) (*sem.Channel, error)
	inst        *telemetry.Instruments
	tracer      trace.Tracer

	mu       sync.Mutex
	state    State
	closing  bool
	inflight sync.WaitGroup

	run      *models.Run
	proc     *simulator.Process
	channel  *sem.Channel
	store    *store.Store
	ingestor *ingest.Ingestor
	writer   *action.Writer
	trace    *logging.StepTrace

	watermark int64
	since     int64 // watermark at the start of the latest ingestion pass
	steps     int
	last      models.StepResult
}

var _ Environment = (*SimEnv)(nil)

// NewSimEnv creates a closed environment.
func NewSimEnv(opts Options, uc UseCase) (*SimEnv, error) {
	inst, err := telemetry.NewInstruments(telemetry.Meter())
	if err != nil {
		return nil, err
	}
	return &SimEnv{
		opts:        opts,
		uc:          uc,
		openChannel: sem.OpenChannel,
		inst:        inst,
		tracer:      telemetry.Tracer(),
	}, nil
}

// State returns the current lifecycle state.
func (e *SimEnv) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// RunID returns the identifier of the open run, or "" when closed.
func (e *SimEnv) RunID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.run == nil {
		return ""
	}
	return e.run.ID
}

// Watermark returns the highest metric timestamp ingested for the open run.
func (e *SimEnv) Watermark() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.watermark
}

// Steps returns the number of completed steps of the open run.
func (e *SimEnv) Steps() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.steps
}

// Reset launches a new run, waits for the simulator's first metrics batch
// and returns the initial observation. It fails with models.ErrDoubleOpen
// unless the environment is closed.
func (e *SimEnv) Reset(ctx context.Context) (models.Observation, models.Info, error) {
	ctx, span := e.tracer.Start(ctx, "nsoran.reset")
	defer span.End()

	e.mu.Lock()
	if e.state != StateClosed || e.closing {
		state := e.state
		e.mu.Unlock()
		return models.Observation{}, models.Info{}, fmt.Errorf("%w: environment is %s", models.ErrDoubleOpen, state)
	}

	e.state = StateLaunching
	if err := e.launch(); err != nil {
		e.abort()
		e.mu.Unlock()
		return models.Observation{}, models.Info{}, spanError(span, err)
	}
	span.SetAttributes(attribute.String("nsoran.run_id", e.run.ID))

	e.state = StateAwaitingInitialMetrics
	ch, proc, runID := e.channel, e.proc, e.run.ID
	e.inflight.Add(1)
	e.mu.Unlock()

	err := awaitInitial(ctx, ch, proc, runID)
	e.inflight.Done()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closing || e.state == StateClosed {
		return models.Observation{}, models.Info{}, fmt.Errorf("%w: closed while awaiting initial metrics", models.ErrNotReady)
	}
	if err != nil {
		e.abort()
		return models.Observation{}, models.Info{}, spanError(span, err)
	}

	if err := e.ingest(ctx); err != nil {
		e.abort()
		return models.Observation{}, models.Info{}, spanError(span, fmt.Errorf("initial ingestion: %w", err))
	}
	obs, err := e.uc.Observe(ctx, e.store, e.since)
	if err != nil {
		e.abort()
		return models.Observation{}, models.Info{}, spanError(span, fmt.Errorf("initial observation: %w", err))
	}

	e.state = StateReady
	e.last = models.StepResult{Observation: obs}
	e.trace.Log(map[string]any{"step": 0, "watermark": e.watermark, "rows": len(obs.Rows)})
	return obs, e.info(), nil
}

// launch prepares the run directory and its collaborators and spawns the
// simulator. Called with mu held.
func (e *SimEnv) launch() error {
	schema := e.uc.Schema()
	if e.opts.Executable == "" {
		return fmt.Errorf("%w: no simulator executable", models.ErrConfiguration)
	}
	if e.opts.OutputDir == "" {
		return fmt.Errorf("%w: no output directory", models.ErrConfiguration)
	}

	runID := uuid.NewString()
	dir := filepath.Join(e.opts.OutputDir, runID)

	writer, err := action.NewWriter(dir, schema.ControlFile, schema.ActionLog, schema.Header)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("%w: creating run directory: %w", models.ErrLaunchFailure, err)
	}
	slog.Info("created run directory", "run", runID, "dir", dir)

	e.run = &models.Run{ID: runID, Dir: dir, Params: maps.Clone(e.opts.Params)}
	e.writer = writer
	e.watermark, e.since, e.steps = 0, 0, 0
	e.last = models.StepResult{}

	st, err := store.Open(filepath.Join(dir, store.DatabaseFile))
	if err != nil {
		return fmt.Errorf("%w: opening metric store: %w", models.ErrLaunchFailure, err)
	}
	e.store = st
	e.ingestor = ingest.New(st, e.uc)

	ch, err := e.openChannel(runID)
	if err != nil {
		return fmt.Errorf("%w: opening semaphores: %w", models.ErrLaunchFailure, err)
	}
	e.channel = ch

	proc, err := simulator.Launch(e.run, simulator.LaunchOptions{
		Executable: e.opts.Executable,
		Params:     e.opts.Params,
		Env:        e.opts.Env,
	})
	if err != nil {
		return err
	}
	e.proc = proc
	e.trace = logging.NewStepTrace(dir, e.opts.LogLevel)
	return nil
}

// awaitInitial blocks until the first metrics batch is published. A
// simulator that exits before publishing ends the wait as well; the
// following step then reports the terminal state.
func awaitInitial(ctx context.Context, ch *sem.Channel, proc *simulator.Process, runID string) error {
	waitCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	go func() {
		select {
		case <-proc.Done():
			cancel(errSimulatorExited)
		case <-waitCtx.Done():
		}
	}()

	err := ch.AwaitInitial(waitCtx)
	if err != nil && errors.Is(context.Cause(waitCtx), errSimulatorExited) {
		slog.Warn("simulator exited before publishing initial metrics", "run", runID)
		return nil
	}
	return err
}

// Step writes the agent's action, hands the turn to the simulator and waits
// for its next metrics batch. Once the run has ended every call returns the
// terminal result again. Failures inside a running episode end it as
// truncated with diagnostics instead of returning an error.
func (e *SimEnv) Step(ctx context.Context, a models.Action) (models.StepResult, error) {
	ctx, span := e.tracer.Start(ctx, "nsoran.step")
	defer span.End()
	start := time.Now()
	defer func() {
		e.inst.StepDuration.Record(ctx, time.Since(start).Seconds())
	}()

	e.mu.Lock()
	switch {
	case e.state.Terminal():
		res := e.last
		e.mu.Unlock()
		return res, nil
	case e.state != StateReady || e.closing:
		state := e.state
		e.mu.Unlock()
		return models.StepResult{}, fmt.Errorf("%w: environment is %s", models.ErrNotReady, state)
	}
	span.SetAttributes(attribute.String("nsoran.run_id", e.run.ID), attribute.Int("nsoran.step", e.steps+1))

	if !e.proc.IsAlive() {
		res := e.finish(ctx, a, nil)
		e.mu.Unlock()
		return res, nil
	}

	targets, err := e.uc.ComputeAction(a)
	if err != nil {
		e.mu.Unlock()
		return models.StepResult{}, spanError(span, fmt.Errorf("computing action: %w", err))
	}
	if err := e.writer.Write(models.ControlAction{Timestamp: e.watermark, Targets: targets}); err != nil {
		res := e.finish(ctx, a, fmt.Errorf("writing control action: %w", err))
		e.mu.Unlock()
		return res, nil
	}
	if err := e.channel.SignalControlReady(); err != nil {
		res := e.finish(ctx, a, err)
		e.mu.Unlock()
		return res, nil
	}

	e.state = StateStepping
	ch, proc, runID := e.channel, e.proc, e.run.ID
	e.inflight.Add(1)
	e.mu.Unlock()

	acquired, waitErr := ch.AwaitMetricsReady(e.opts.MetricsTimeout, func() bool {
		if proc.IsAlive() {
			e.inst.SyncRetries.Add(ctx, 1)
			slog.Debug("simulator still running, waiting for metrics again", "run", runID)
			return true
		}
		return false
	})
	e.inflight.Done()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closing || e.state == StateClosed {
		return models.StepResult{Observation: e.last.Observation, Truncated: true}, nil
	}
	if waitErr != nil {
		return e.finish(ctx, a, waitErr), nil
	}
	if err := e.ingest(ctx); err != nil {
		return e.finish(ctx, a, fmt.Errorf("ingesting metrics: %w", err)), nil
	}
	if !acquired {
		return e.finish(ctx, a, nil), nil
	}

	obs, reward, err := e.evaluate(ctx)
	if err != nil {
		return e.finish(ctx, a, err), nil
	}

	e.steps++
	e.state = StateReady
	res := models.StepResult{Observation: obs, Reward: reward, Info: e.info()}
	e.last = res
	e.trace.Log(map[string]any{"step": e.steps, "action": a, "reward": reward, "watermark": e.watermark})
	return res, nil
}

func (e *SimEnv) ingest(ctx context.Context) error {
	start := e.watermark
	res, err := e.ingestor.Ingest(ctx, e.run.Dir, start)
	if err != nil {
		return fmt.Errorf("%w: %w", models.ErrIngestFailure, err)
	}
	for kind, n := range res.New {
		e.inst.IngestRows.Add(ctx, int64(n), metric.WithAttributes(attribute.String("kind", string(kind))))
	}
	e.since = start
	e.watermark = res.Watermark
	return nil
}

func (e *SimEnv) evaluate(ctx context.Context) (models.Observation, float64, error) {
	obs, err := e.uc.Observe(ctx, e.store, e.since)
	if err != nil {
		return models.Observation{}, 0, fmt.Errorf("building observation: %w", err)
	}
	reward, err := e.uc.Reward(ctx, e.store, e.since)
	if err != nil {
		return models.Observation{}, 0, fmt.Errorf("computing reward: %w", err)
	}
	return obs, reward, nil
}

// finish moves the run to its terminal state. A clean exit ends the episode
// as terminated and truncated; a non-zero exit or an internal failure ends it
// as truncated with diagnostics. Called with mu held.
func (e *SimEnv) finish(ctx context.Context, a models.Action, failure error) models.StepResult {
	if failure != nil {
		slog.Error("episode failed", "run", e.run.ID, "error", failure)
		if err := e.proc.Kill(); err != nil {
			slog.Warn("killing simulator", "run", e.run.ID, "error", err)
		}
	}
	e.proc.IsAlive()
	code, exited := e.proc.ExitCode()

	obs, reward, err := e.evaluate(ctx)
	if err != nil {
		slog.Warn("evaluating final metrics", "run", e.run.ID, "error", err)
		obs, reward = e.last.Observation, 0
	}

	res := models.StepResult{Observation: obs, Reward: reward}
	var diag *models.Diagnostics
	if failure == nil && exited && code == 0 {
		res.Terminated, res.Truncated = true, true
		e.state = StateTerminated
		slog.Info("simulation finished", "run", e.run.ID, "steps", e.steps)
	} else {
		res.Truncated = true
		e.state = StateTruncated
		diag = e.diagnostics(code, failure)
		slog.Warn("simulation exited with an error", "run", e.run.ID, "exit_code", code, "reproduce", diag.Command, "debug", diag.DebugCommand)
	}

	e.run.Terminated, e.run.Truncated = res.Terminated, res.Truncated
	res.Info = e.info()
	res.Info.Diagnostics = diag
	e.last = res
	e.trace.Log(map[string]any{
		"step":       e.steps + 1,
		"action":     a,
		"reward":     reward,
		"terminated": res.Terminated,
		"truncated":  res.Truncated,
		"exit_code":  code,
	})
	return res
}

func (e *SimEnv) diagnostics(code int, failure error) *models.Diagnostics {
	d := &models.Diagnostics{
		ExitCode: code,
		Stdout:   e.proc.Stdout(),
		Stderr:   e.proc.Stderr(),
	}
	if failure != nil {
		d.Error = failure.Error()
		d.ErrorType = models.Classify(failure)
	}
	if e.opts.BuildProgram != "" {
		d.Command = simulator.ReproCommand(e.opts.BuildProgram, e.opts.Scenario, e.run.Params, false)
		d.DebugCommand = simulator.ReproCommand(e.opts.BuildProgram, e.opts.Scenario, e.run.Params, true)
	} else {
		d.Command = strings.Join(e.run.Command, " ")
		d.DebugCommand = "gdb --args " + d.Command
	}
	return d
}

func (e *SimEnv) info() models.Info {
	if !e.opts.ReturnInfo || e.run == nil {
		return models.Info{}
	}
	run := *e.run
	return models.Info{IsOpen: e.state != StateClosed, Run: &run}
}

// Close releases metrics-ready, kills the simulator, unlinks the semaphores
// and persists the run record. Closing a closed environment does nothing.
func (e *SimEnv) Close() error {
	_, span := e.tracer.Start(context.Background(), "nsoran.close")
	defer span.End()

	e.mu.Lock()
	if e.state == StateClosed || e.closing {
		e.mu.Unlock()
		return nil
	}
	e.closing = true
	ch := e.channel
	e.mu.Unlock()

	// Wake a pending wait before taking the lock it holds on return.
	if ch != nil {
		ch.Release()
	}
	e.inflight.Wait()

	e.mu.Lock()
	defer e.mu.Unlock()
	e.closing = false
	return spanError(span, e.teardown())
}

// abort tears down a run that failed to start. Called with mu held.
func (e *SimEnv) abort() {
	if err := e.teardown(); err != nil {
		slog.Warn("cleaning up failed run", "error", err)
	}
}

// teardown releases every resource of the open run. Called with mu held.
func (e *SimEnv) teardown() error {
	var errs []error

	if e.channel != nil {
		e.channel.Release()
	}
	if e.proc != nil {
		if err := e.proc.Kill(); err != nil {
			errs = append(errs, err)
		}
	}
	if e.channel != nil {
		if err := e.channel.Teardown(); err != nil {
			errs = append(errs, fmt.Errorf("tearing down semaphores: %w", err))
		}
	}
	if e.store != nil {
		if err := e.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing metric store: %w", err))
		}
	}
	e.trace.Close()

	if e.run != nil {
		if _, err := os.Stat(e.run.Dir); err == nil {
			if err := writeRunInfo(e.run); err != nil {
				errs = append(errs, err)
			}
		}
		slog.Info("run closed", "run", e.run.ID, "steps", e.steps, "terminated", e.run.Terminated, "truncated", e.run.Truncated)
	}

	e.state = StateClosed
	e.run, e.proc, e.channel, e.store, e.ingestor, e.writer, e.trace = nil, nil, nil, nil, nil, nil, nil
	return errors.Join(errs...)
}

func spanError(span trace.Span, err error) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
