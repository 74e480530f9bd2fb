package eventloop

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gatedRunner blocks each cycle until the test lets it finish.
type gatedRunner struct {
	started chan struct{}
	finish  chan struct{}
	runs    int32
}

func newGatedRunner() *gatedRunner {
	return &gatedRunner{started: make(chan struct{}, 16), finish: make(chan struct{})}
}

func (r *gatedRunner) RunCycle(ctx context.Context) error {
	atomic.AddInt32(&r.runs, 1)
	r.started <- struct{}{}
	select {
	case <-r.finish:
	case <-ctx.Done():
	}
	return nil
}

func (r *gatedRunner) Runs() int { return int(atomic.LoadInt32(&r.runs)) }

func startLoop(t *testing.T, l *Loop) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()
	return cancel, done
}

func waitIdle(t *testing.T, l *Loop) {
	t.Helper()
	require.Eventually(t, func() bool { return !l.Busy() }, time.Second, 5*time.Millisecond)
}

func TestTriggersWhileBusyAreDropped(t *testing.T) {
	r := newGatedRunner()
	l := New(r, DropWhileBusy)
	cancel, done := startLoop(t, l)
	defer cancel()

	require.True(t, l.Trigger())
	<-r.started

	for i := 0; i < 5; i++ {
		assert.False(t, l.Trigger())
	}
	r.finish <- struct{}{}
	waitIdle(t, l)

	stats := l.Stats()
	assert.Equal(t, Stats{Raw: 6, Accepted: 1, Dropped: 5}, stats)
	assert.Equal(t, 1, r.Runs())
	assert.LessOrEqual(t, stats.Accepted, stats.Raw)

	// Armed again after the cycle.
	require.True(t, l.Trigger())
	<-r.started
	r.finish <- struct{}{}
	waitIdle(t, l)
	assert.Equal(t, 2, r.Runs())

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestQueueLatestKeepsOnePending(t *testing.T) {
	r := newGatedRunner()
	l := New(r, QueueLatest)
	cancel, _ := startLoop(t, l)
	defer cancel()

	require.True(t, l.Trigger())
	<-r.started

	// Three mid-cycle triggers collapse into one pending cycle.
	assert.True(t, l.Trigger())
	assert.True(t, l.Trigger())
	assert.True(t, l.Trigger())

	r.finish <- struct{}{}
	<-r.started
	r.finish <- struct{}{}
	waitIdle(t, l)

	assert.Equal(t, 2, r.Runs())
	assert.Equal(t, Stats{Raw: 4, Accepted: 2, Superseded: 2}, l.Stats())
}

func TestConcurrentTriggersNeverExceedOneCycleInFlight(t *testing.T) {
	var inFlight, maxInFlight int32
	runner := RunnerFunc(func(ctx context.Context) error {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			m := atomic.LoadInt32(&maxInFlight)
			if n <= m || atomic.CompareAndSwapInt32(&maxInFlight, m, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return nil
	})
	l := New(runner, DropWhileBusy)
	cancel, _ := startLoop(t, l)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Trigger()
		}()
	}
	wg.Wait()
	waitIdle(t, l)

	stats := l.Stats()
	assert.Equal(t, 50, stats.Raw)
	assert.Equal(t, stats.Raw, stats.Accepted+stats.Dropped)
	assert.Equal(t, int32(1), atomic.LoadInt32(&maxInFlight))
}

func TestBusyCallback(t *testing.T) {
	r := newGatedRunner()
	l := New(r, DropWhileBusy)
	var mu sync.Mutex
	var seen []bool
	l.OnBusyChange(func(b bool) {
		mu.Lock()
		seen = append(seen, b)
		mu.Unlock()
	})
	cancel, _ := startLoop(t, l)
	defer cancel()

	l.Trigger()
	<-r.started
	r.finish <- struct{}{}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 2
	}, time.Second, 5*time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []bool{true, false}, seen)
}

// RunnerFunc adapts a function to Runner for tests.
type RunnerFunc func(ctx context.Context) error

func (f RunnerFunc) RunCycle(ctx context.Context) error { return f(ctx) }
