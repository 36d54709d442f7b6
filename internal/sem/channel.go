// Package sem implements the turn-taking handshake between the environment
// and the simulator over two named counting semaphores.
package sem

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/spachava753/nsoran/internal/models"
)

// ErrClosed is returned when a semaphore is used after Close.
var ErrClosed = errors.New("semaphore closed")

// Semaphore is a counting semaphore. Named satisfies it.
type Semaphore interface {
	Post() error
	Wait() error
	TimedWait(d time.Duration) error
	Close() error
}

// Names returns the metrics-ready and control-ready semaphore names of a run.
// The simulator derives the same names from the basename of its working
// directory, which is the run id.
func Names(runID string) (metrics, control string) {
	return "/sem_metrics_" + runID, "/sem_control_" + runID
}

// Channel is the pair of semaphores scoped to one run.
type Channel struct {
	metricsName string
	controlName string

	metrics Semaphore
	control Semaphore
	unlink  func(name string) error

	releaseOnce  sync.Once
	releaseErr   error
	teardownOnce sync.Once
	teardownErr  error
}

// OpenChannel creates (or opens) both semaphores of the run with a zero
// initial count.
func OpenChannel(runID string) (*Channel, error) {
	metricsName, controlName := Names(runID)

	metrics, err := Open(metricsName, 0)
	if err != nil {
		return nil, err
	}
	control, err := Open(controlName, 0)
	if err != nil {
		metrics.Close()
		Unlink(metricsName)
		return nil, err
	}

	slog.Debug("opened semaphores", "metrics", metricsName, "control", controlName)
	return NewChannel(metricsName, controlName, metrics, control, Unlink), nil
}

// NewChannel assembles a channel from already opened semaphores. unlink is
// called once per name on teardown and may be nil.
func NewChannel(metricsName, controlName string, metrics, control Semaphore, unlink func(string) error) *Channel {
	return &Channel{
		metricsName: metricsName,
		controlName: controlName,
		metrics:     metrics,
		control:     control,
		unlink:      unlink,
	}
}

// SignalControlReady hands the turn to the simulator. The control action must
// be durably written before this is called.
func (c *Channel) SignalControlReady() error {
	if err := c.control.Post(); err != nil {
		return fmt.Errorf("signalling control ready: %w", err)
	}
	return nil
}

// AwaitInitial blocks until the simulator publishes its first metrics batch.
// Cancelling ctx posts metrics-ready on our own behalf so the wait returns;
// ctx.Err() is reported in that case.
func (c *Channel) AwaitInitial(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		c.metrics.Post()
	})
	err := c.metrics.Wait()
	if !stop() {
		return ctx.Err()
	}
	if err != nil {
		return fmt.Errorf("awaiting initial metrics: %w", err)
	}
	return nil
}

// AwaitMetricsReady waits for the simulator to finish its turn. Each wait is
// bounded by timeout; when it elapses alive is consulted and the wait is
// retried only while the simulator is still running. It reports false when the
// simulator died without signalling.
func (c *Channel) AwaitMetricsReady(timeout time.Duration, alive func() bool) (bool, error) {
	for {
		err := c.metrics.TimedWait(timeout)
		switch {
		case err == nil:
			return true, nil
		case !errors.Is(err, models.ErrSynchronizationTimeout):
			return false, fmt.Errorf("awaiting metrics: %w", err)
		}

		if !alive() {
			slog.Debug("simulator gone while awaiting metrics", "semaphore", c.metricsName)
			return false, nil
		}
		slog.Debug("metrics not ready, simulator alive, retrying", "semaphore", c.metricsName, "timeout", timeout)
	}
}

// Release posts metrics-ready once so that nothing stays blocked waiting on
// it. Later calls do nothing.
func (c *Channel) Release() error {
	c.releaseOnce.Do(func() {
		c.releaseErr = c.metrics.Post()
	})
	return c.releaseErr
}

// Teardown releases metrics-ready, then closes and unlinks both semaphores.
// Only the first call has any effect.
func (c *Channel) Teardown() error {
	c.teardownOnce.Do(func() {
		errs := []error{
			c.Release(),
			c.metrics.Close(),
			c.control.Close(),
		}
		if c.unlink != nil {
			errs = append(errs, c.unlink(c.metricsName), c.unlink(c.controlName))
		}
		c.teardownErr = errors.Join(errs...)
		slog.Debug("semaphores torn down", "metrics", c.metricsName, "control", c.controlName)
	})
	return c.teardownErr
}
