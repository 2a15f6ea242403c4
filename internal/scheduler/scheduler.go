// Package scheduler runs periodic identification attempts while playback
// is connected and auto-identify is switched on.
package scheduler

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/tphakala/trackid-go/internal/errors"
	"github.com/tphakala/trackid-go/internal/logger"
)

const DefaultInterval = 30 * time.Second

// State is the scheduler lifecycle state.
type State int

const (
	StateDisabled State = iota
	StateArmed
	StateFiring
)

func (s State) String() string {
	switch s {
	case StateDisabled:
		return "disabled"
	case StateArmed:
		return "armed"
	case StateFiring:
		return "firing"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

var validStateTransitions = map[State][]State{
	StateDisabled: {StateArmed},
	StateArmed:    {StateFiring, StateDisabled},
	StateFiring:   {StateArmed, StateDisabled},
}

// Attempt runs one identification. Errors are reported by the pipeline and
// only logged here.
type Attempt func(ctx context.Context) error

// Config parameterizes a Scheduler.
type Config struct {
	Interval       time.Duration
	ImmediateFirst bool
	Attempt        Attempt
	// Busy reports whether an identification is already in flight.
	Busy func() bool
	// OnState observes state changes. It must not call back into the
	// scheduler.
	OnState func(State)
	Logger  logger.Logger
}

// Scheduler arms a ticker while enabled and connected. Disarming stops the
// ticker at once but never cancels an attempt that is already running.
type Scheduler struct {
	interval       time.Duration
	immediateFirst bool
	attempt        Attempt
	busy           func() bool
	onState        func(State)
	log            logger.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	state     State
	enabled   bool
	connected bool
	gen       uint64
	stop      chan struct{}
	loopDone  chan struct{}
	attempts  sync.WaitGroup
	closed    bool
}

func New(cfg Config) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Busy == nil {
		cfg.Busy = func() bool { return false }
	}
	if cfg.Logger == nil {
		cfg.Logger = GetLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		interval:       cfg.Interval,
		immediateFirst: cfg.ImmediateFirst,
		attempt:        cfg.Attempt,
		busy:           cfg.Busy,
		onState:        cfg.OnState,
		log:            cfg.Logger,
		ctx:            ctx,
		cancel:         cancel,
	}
}

// SetEnabled switches auto-identify on or off.
func (s *Scheduler) SetEnabled(on bool) {
	s.mu.Lock()
	s.enabled = on
	s.mu.Unlock()
	s.reconcile()
}

// SetConnected reports the playback connection state.
func (s *Scheduler) SetConnected(connected bool) {
	s.mu.Lock()
	s.connected = connected
	s.mu.Unlock()
	s.reconcile()
}

func (s *Scheduler) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Scheduler) Interval() time.Duration { return s.interval }

// reconcile arms or disarms to match the toggle and connection state.
func (s *Scheduler) reconcile() {
	s.mu.Lock()
	want := s.enabled && s.connected && !s.closed
	var changed []State
	var waitLoop chan struct{}
	switch {
	case want && s.state == StateDisabled:
		s.gen++
		s.stop = make(chan struct{})
		s.loopDone = make(chan struct{})
		changed = append(changed, s.setStateLocked(StateArmed)...)
		go s.loop(s.gen, s.stop, s.loopDone)
		s.log.Info("auto-identify armed", logger.Duration("interval", s.interval))
	case !want && s.state != StateDisabled:
		s.gen++
		close(s.stop)
		waitLoop = s.loopDone
		s.stop, s.loopDone = nil, nil
		changed = append(changed, s.setStateLocked(StateDisabled)...)
		s.log.Info("auto-identify disarmed",
			logger.Bool("enabled", s.enabled),
			logger.Bool("connected", s.connected))
	}
	s.mu.Unlock()

	if waitLoop != nil {
		<-waitLoop
	}
	s.notify(changed)
}

// setStateLocked returns the new state when the transition happened.
func (s *Scheduler) setStateLocked(to State) []State {
	if s.state == to || !slices.Contains(validStateTransitions[s.state], to) {
		return nil
	}
	s.state = to
	return []State{to}
}

func (s *Scheduler) notify(states []State) {
	if s.onState == nil {
		return
	}
	for _, st := range states {
		s.onState(st)
	}
}

func (s *Scheduler) loop(gen uint64, stop, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	if s.immediateFirst {
		s.fire(gen)
	}
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.fire(gen)
		}
	}
}

// fire starts one attempt unless another is running or the loop generation
// is stale.
func (s *Scheduler) fire(gen uint64) {
	if s.busy() {
		s.log.Debug("tick skipped, identification in flight")
		return
	}

	s.mu.Lock()
	if s.gen != gen || s.state != StateArmed {
		s.mu.Unlock()
		return
	}
	changed := s.setStateLocked(StateFiring)
	s.attempts.Add(1)
	s.mu.Unlock()
	s.notify(changed)

	go func() {
		defer s.attempts.Done()
		start := time.Now()
		err := s.attempt(s.ctx)
		switch {
		case err == nil:
			s.log.Debug("scheduled attempt finished", logger.Duration("elapsed", time.Since(start)))
		case errors.IsCategory(err, errors.CategoryInProgress):
			s.log.Debug("scheduled attempt skipped, identification in flight")
		default:
			s.log.Info("scheduled attempt failed", logger.Error(err))
		}

		s.mu.Lock()
		var changed []State
		if s.gen == gen && s.state == StateFiring {
			changed = s.setStateLocked(StateArmed)
		}
		s.mu.Unlock()
		s.notify(changed)
	}()
}

// Close disarms and waits for running attempts to finish.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.reconcile()
	s.attempts.Wait()
	s.cancel()
}
