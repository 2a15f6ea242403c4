package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/trackid-go/internal/logger"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type attemptCounter struct {
	calls   atomic.Int32
	block   chan struct{}
	started chan struct{}
	once    sync.Once
}

func (a *attemptCounter) run(ctx context.Context) error {
	a.calls.Add(1)
	if a.started != nil {
		a.once.Do(func() { close(a.started) })
	}
	if a.block != nil {
		select {
		case <-a.block:
		case <-ctx.Done():
		}
	}
	return nil
}

func newTestScheduler(interval time.Duration, a *attemptCounter, busy func() bool) *Scheduler {
	return New(Config{
		Interval: interval,
		Attempt:  a.run,
		Busy:     busy,
		Logger:   logger.NewDiscardLogger(),
	})
}

func TestArmsOnlyWhenEnabledAndConnected(t *testing.T) {
	a := &attemptCounter{}
	s := newTestScheduler(20*time.Millisecond, a, nil)
	defer s.Close()

	s.SetEnabled(true)
	assert.Equal(t, StateDisabled, s.State(), "not connected")
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, a.calls.Load())

	s.SetConnected(true)
	assert.Equal(t, StateArmed, s.State())
	require.Eventually(t, func() bool { return a.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)

	s.SetEnabled(false)
	assert.Equal(t, StateDisabled, s.State())
	assert.False(t, s.Enabled())
}

func TestStopMidIntervalNeverFires(t *testing.T) {
	a := &attemptCounter{}
	s := newTestScheduler(60*time.Millisecond, a, nil)
	defer s.Close()

	s.SetEnabled(true)
	s.SetConnected(true)
	time.Sleep(20 * time.Millisecond)
	s.SetConnected(false)

	time.Sleep(150 * time.Millisecond)
	assert.Zero(t, a.calls.Load(), "no tick after playback stopped")
	assert.Equal(t, StateDisabled, s.State())
}

func TestBusyTickIsSkipped(t *testing.T) {
	a := &attemptCounter{}
	var busy atomic.Bool
	busy.Store(true)
	s := newTestScheduler(10*time.Millisecond, a, busy.Load)
	defer s.Close()

	s.SetEnabled(true)
	s.SetConnected(true)
	time.Sleep(60 * time.Millisecond)
	assert.Zero(t, a.calls.Load())

	busy.Store(false)
	require.Eventually(t, func() bool { return a.calls.Load() > 0 }, time.Second, 5*time.Millisecond)
}

func TestFiringSkipsOverlappingTicks(t *testing.T) {
	a := &attemptCounter{block: make(chan struct{}), started: make(chan struct{})}
	var states []State
	var mu sync.Mutex
	s := New(Config{
		Interval: 10 * time.Millisecond,
		Attempt:  a.run,
		OnState: func(st State) {
			mu.Lock()
			states = append(states, st)
			mu.Unlock()
		},
		Logger: logger.NewDiscardLogger(),
	})

	s.SetEnabled(true)
	s.SetConnected(true)
	<-a.started
	assert.Equal(t, StateFiring, s.State())
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), a.calls.Load(), "ticks while firing are skipped")

	// disarming leaves the running attempt alone
	s.SetConnected(false)
	assert.Equal(t, StateDisabled, s.State())
	close(a.block)
	s.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []State{StateArmed, StateFiring, StateDisabled}, states)
}

func TestImmediateFirst(t *testing.T) {
	a := &attemptCounter{}
	s := New(Config{
		Interval:       time.Hour,
		ImmediateFirst: true,
		Attempt:        a.run,
		Logger:         logger.NewDiscardLogger(),
	})
	s.SetEnabled(true)
	s.SetConnected(true)
	require.Eventually(t, func() bool { return a.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	s.Close()
	assert.Equal(t, StateDisabled, s.State())
}

func TestCloseIsFinal(t *testing.T) {
	a := &attemptCounter{}
	s := newTestScheduler(10*time.Millisecond, a, nil)
	s.Close()

	s.SetEnabled(true)
	s.SetConnected(true)
	assert.Equal(t, StateDisabled, s.State())
	assert.Equal(t, DefaultInterval, New(Config{}).Interval())
	assert.Equal(t, "firing", StateFiring.String())
}
