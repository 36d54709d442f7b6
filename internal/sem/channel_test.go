package sem_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spachava753/nsoran/internal/models"
	"github.com/spachava753/nsoran/internal/sem"
)

// memSem is an in-process counting semaphore.
type memSem struct {
	tokens chan struct{}
	posts  atomic.Int32
	closed atomic.Int32
}

func newMemSem() *memSem {
	return &memSem{tokens: make(chan struct{}, 64)}
}

func (s *memSem) Post() error {
	s.posts.Add(1)
	s.tokens <- struct{}{}
	return nil
}

func (s *memSem) Wait() error {
	<-s.tokens
	return nil
}

func (s *memSem) TimedWait(d time.Duration) error {
	select {
	case <-s.tokens:
		return nil
	case <-time.After(d):
		return models.ErrSynchronizationTimeout
	}
}

func (s *memSem) Close() error {
	s.closed.Add(1)
	return nil
}

type unlinkRecorder struct {
	mu    sync.Mutex
	names []string
}

func (u *unlinkRecorder) unlink(name string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.names = append(u.names, name)
	return nil
}

func newTestChannel() (*sem.Channel, *memSem, *memSem, *unlinkRecorder) {
	metrics, control := newMemSem(), newMemSem()
	rec := &unlinkRecorder{}
	ch := sem.NewChannel("/sem_metrics_t", "/sem_control_t", metrics, control, rec.unlink)
	return ch, metrics, control, rec
}

func TestNames(t *testing.T) {
	metrics, control := sem.Names("3f1c")
	assert.Equal(t, "/sem_metrics_3f1c", metrics)
	assert.Equal(t, "/sem_control_3f1c", control)
}

func TestSignalControlReady(t *testing.T) {
	ch, metrics, control, _ := newTestChannel()

	require.NoError(t, ch.SignalControlReady())
	assert.Equal(t, int32(1), control.posts.Load())
	assert.Equal(t, int32(0), metrics.posts.Load())
}

func TestAwaitInitial(t *testing.T) {
	ch, metrics, _, _ := newTestChannel()

	go func() {
		time.Sleep(20 * time.Millisecond)
		metrics.Post()
	}()

	require.NoError(t, ch.AwaitInitial(context.Background()))
}

func TestAwaitInitialCancelled(t *testing.T) {
	ch, _, _, _ := newTestChannel()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := ch.AwaitInitial(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestAwaitMetricsReadyAcquires(t *testing.T) {
	ch, metrics, _, _ := newTestChannel()
	metrics.Post()

	acquired, err := ch.AwaitMetricsReady(time.Second, func() bool {
		t.Fatal("liveness consulted although metrics were ready")
		return false
	})
	require.NoError(t, err)
	assert.True(t, acquired)
}

func TestAwaitMetricsReadyRetriesWhileAlive(t *testing.T) {
	ch, metrics, _, _ := newTestChannel()

	calls := 0
	acquired, err := ch.AwaitMetricsReady(10*time.Millisecond, func() bool {
		calls++
		if calls == 3 {
			metrics.Post()
		}
		return true
	})
	require.NoError(t, err)
	assert.True(t, acquired)
	assert.Equal(t, 3, calls)
}

func TestAwaitMetricsReadyUnblocksAfterDeath(t *testing.T) {
	ch, _, _, _ := newTestChannel()

	const (
		timeout   = 100 * time.Millisecond
		dieAfter  = 250 * time.Millisecond
		tolerance = 80 * time.Millisecond
	)

	var dead atomic.Bool
	start := time.Now()
	time.AfterFunc(dieAfter, func() { dead.Store(true) })

	acquired, err := ch.AwaitMetricsReady(timeout, func() bool { return !dead.Load() })
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.False(t, acquired)
	assert.GreaterOrEqual(t, elapsed, dieAfter)
	assert.Less(t, elapsed, dieAfter+timeout+tolerance, "unblocked %s after death", elapsed-dieAfter)
}

type brokenSem struct{ memSem }

func (s *brokenSem) TimedWait(time.Duration) error { return errors.New("invalid handle") }

func TestAwaitMetricsReadyHardError(t *testing.T) {
	ch := sem.NewChannel("m", "c", &brokenSem{}, newMemSem(), nil)

	acquired, err := ch.AwaitMetricsReady(time.Millisecond, func() bool { return true })
	require.Error(t, err)
	assert.False(t, acquired)
	assert.NotErrorIs(t, err, models.ErrSynchronizationTimeout)
}

func TestTeardownIsIdempotent(t *testing.T) {
	ch, metrics, control, rec := newTestChannel()

	require.NoError(t, ch.Teardown())
	require.NoError(t, ch.Teardown())

	assert.Equal(t, int32(1), metrics.posts.Load())
	assert.Equal(t, int32(1), metrics.closed.Load())
	assert.Equal(t, int32(1), control.closed.Load())
	assert.Equal(t, []string{"/sem_metrics_t", "/sem_control_t"}, rec.names)
}

func TestReleaseThenTeardownPostsOnce(t *testing.T) {
	ch, metrics, _, _ := newTestChannel()

	require.NoError(t, ch.Release())
	require.NoError(t, ch.Release())
	require.NoError(t, ch.Teardown())

	assert.Equal(t, int32(1), metrics.posts.Load())
}

func TestTeardownReleasesWaiter(t *testing.T) {
	ch, _, _, _ := newTestChannel()

	done := make(chan error, 1)
	go func() { done <- ch.AwaitInitial(context.Background()) }()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, ch.Teardown())

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("waiter still blocked after teardown")
	}
}
