package pipeline

import (
	"context"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/trackid-go/internal/capture"
	"github.com/tphakala/trackid-go/internal/errors"
	"github.com/tphakala/trackid-go/internal/events"
	"github.com/tphakala/trackid-go/internal/history"
	"github.com/tphakala/trackid-go/internal/logger"
	"github.com/tphakala/trackid-go/internal/observability/metrics"
	"github.com/tphakala/trackid-go/internal/playback"
	"github.com/tphakala/trackid-go/internal/recorder"
	"github.com/tphakala/trackid-go/internal/scheduler"
	tu "github.com/tphakala/trackid-go/internal/testutil"
	"github.com/tphakala/trackid-go/internal/track"
)

// fakePlayer feeds silence into the attached graph every 5ms while playing.
type fakePlayer struct {
	mu        sync.Mutex
	status    playback.ConnectionStatus
	graph     *capture.Graph
	listeners []func(playback.ConnectionStatus)
	stop      chan struct{}
	done      chan struct{}
	startErr  error
	volume    float64
	muted     bool
}

func (p *fakePlayer) Start(context.Context) error {
	if p.startErr != nil {
		p.setStatus(playback.StatusError)
		return p.startErr
	}
	p.mu.Lock()
	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	go p.feed(p.stop, p.done)
	p.mu.Unlock()
	p.setStatus(playback.StatusConnected)
	return nil
}

func (p *fakePlayer) feed(stop, done chan struct{}) {
	defer close(done)
	block := make([]byte, capture.BytesPerSecond/200)
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			p.mu.Lock()
			g := p.graph
			p.mu.Unlock()
			if g != nil {
				g.Process(block)
			}
		}
	}
}

func (p *fakePlayer) Stop() error {
	p.mu.Lock()
	stop, done := p.stop, p.done
	p.stop, p.done = nil, nil
	p.mu.Unlock()
	if stop != nil {
		close(stop)
		<-done
	}
	p.setStatus(playback.StatusIdle)
	return nil
}

// drop simulates the stream ending on its own.
func (p *fakePlayer) drop() {
	p.mu.Lock()
	stop, done := p.stop, p.done
	p.stop, p.done = nil, nil
	p.mu.Unlock()
	if stop != nil {
		close(stop)
		<-done
	}
	p.setStatus(playback.StatusError)
}

func (p *fakePlayer) setStatus(s playback.ConnectionStatus) {
	p.mu.Lock()
	p.status = s
	listeners := slices.Clone(p.listeners)
	p.mu.Unlock()
	for _, fn := range listeners {
		fn(s)
	}
}

func (p *fakePlayer) Status() playback.ConnectionStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *fakePlayer) IsPlaying() bool { return p.Status() == playback.StatusConnected }
func (p *fakePlayer) URL() string     { return "http://radio.example/stream" }
func (p *fakePlayer) SetVolume(v float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.volume = v
}

func (p *fakePlayer) SetMuted(m bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.muted = m
}

func (p *fakePlayer) Volume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

func (p *fakePlayer) Muted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.muted
}

func (p *fakePlayer) Output() capture.Sink { return &playback.DiscardSink{} }

func (p *fakePlayer) AttachGraph(g *capture.Graph) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.graph != nil {
		return capture.ErrAlreadyAttached
	}
	p.graph = g
	return nil
}

func (p *fakePlayer) OnStatusChange(fn func(playback.ConnectionStatus)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, fn)
}

// sizedRuntime encodes any PCM to a fixed number of bytes.
type sizedRuntime struct {
	size    int
	encodes atomic.Int32
}

func (r *sizedRuntime) Name() string { return "sized" }

func (r *sizedRuntime) Supports(_ context.Context, enc string) bool {
	return enc == recorder.EncodingWAV
}

func (r *sizedRuntime) Encode(context.Context, []byte, string) ([]byte, error) {
	r.encodes.Add(1)
	return make([]byte, r.size), nil
}

// stubIdentifier returns a fixed result. When release is set every call
// blocks on it.
type stubIdentifier struct {
	track   *track.Track
	err     error
	release chan struct{}
	calls   atomic.Int32
}

func (s *stubIdentifier) Identify(ctx context.Context, _ *recorder.Sample) (*track.Track, error) {
	s.calls.Add(1)
	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.track == nil {
		return nil, s.err
	}
	t := *s.track
	return &t, s.err
}

// eventLog collects bus events.
type eventLog struct {
	mu     sync.Mutex
	events []events.Event
}

func (l *eventLog) Name() string { return "test-log" }

func (l *eventLog) ProcessEvent(e events.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
	return nil
}

func (l *eventLog) kinds() []events.Kind {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]events.Kind, 0, len(l.events))
	for _, e := range l.events {
		out = append(out, e.Kind)
	}
	return out
}

type fixture struct {
	ctrl    *Controller
	player  *fakePlayer
	runtime *sizedRuntime
	ident   *stubIdentifier
	history *history.Store
	log     *eventLog
}

type fixtureOption func(*Config)

func newFixture(t *testing.T, ident *stubIdentifier, sampleSize int, opts ...fixtureOption) *fixture {
	t.Helper()

	player := &fakePlayer{volume: 1}
	rt := &sizedRuntime{size: sampleSize}
	rec := recorder.New(recorder.Config{
		Window:        60 * time.Millisecond,
		ChunkInterval: 10 * time.Millisecond,
		Encodings:     []string{recorder.EncodingWAV},
		Runtime:       rt,
		Logger:        logger.NewDiscardLogger(),
	})
	store := history.NewStore(history.DefaultCapacity, nil, logger.NewDiscardLogger())

	bus := events.New(events.Config{Logger: logger.NewDiscardLogger()})
	evLog := &eventLog{}
	require.NoError(t, bus.RegisterConsumer(evLog))
	t.Cleanup(func() { _ = bus.Shutdown(time.Second) })

	cfg := Config{
		Player:            player,
		Builder:           capture.NewBuilder(capture.WithTapSeconds(2), capture.WithLogger(logger.NewDiscardLogger())),
		Recorder:          rec,
		Identifier:        ident,
		History:           store,
		Bus:               bus,
		SchedulerInterval: time.Hour,
		StatusClearAfter:  time.Minute,
		Logger:            logger.NewDiscardLogger(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	ctrl, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ctrl.Close() })

	return &fixture{ctrl: ctrl, player: player, runtime: rt, ident: ident, history: store, log: evLog}
}

func sampleTrack() *track.Track {
	return &track.Track{
		ID:                "acr-1",
		Title:             "Midnight City",
		Artist:            "M83",
		ConfidencePercent: track.Confidence(92),
		Service:           "acrcloud",
	}
}

func TestIdentifyAcceptedTrack(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &stubIdentifier{track: sampleTrack()}, 8000)
	require.NoError(t, f.ctrl.Play(t.Context()))

	before := time.Now()
	res, err := f.ctrl.Identify(t.Context(), TriggerManual)
	require.NoError(t, err)

	assert.Equal(t, OutcomeIdentified, res.Outcome)
	assert.NotEmpty(t, res.SessionID)
	hist := f.ctrl.History()
	require.Len(t, hist, 1)
	assert.Equal(t, "Midnight City", hist[0].Title)
	require.NotNil(t, hist[0].ConfidencePercent)
	assert.Equal(t, 92, *hist[0].ConfidencePercent)
	assert.False(t, hist[0].Timestamp.Before(before.UTC().Add(-time.Second)))
	assert.Equal(t, "Identified: M83 - Midnight City", f.ctrl.Status().Message)

	snap := f.ctrl.Snapshot()
	require.NotNil(t, snap.Session)
	assert.Equal(t, recorder.StateDone, snap.Session.State)
	assert.False(t, snap.Identifying)

	assert.Eventually(t, func() bool {
		return slices.Contains(f.log.kinds(), events.KindIdentified)
	}, time.Second, 5*time.Millisecond)
}

func TestIdentifyDuplicateSuppressed(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &stubIdentifier{track: &track.Track{Title: "midnight city", Artist: "m83", Service: "acrcloud"}}, 8000)
	earlier := sampleTrack().WithTimestamp(time.Now().Add(-10 * time.Minute))
	f.history.Add(t.Context(), earlier)
	require.NoError(t, f.ctrl.Play(t.Context()))

	res, err := f.ctrl.Identify(t.Context(), TriggerManual)
	require.NoError(t, err)

	assert.Equal(t, OutcomeDuplicate, res.Outcome)
	require.NotNil(t, res.Previous)
	assert.Equal(t, "acr-1", res.Previous.ID)
	assert.Len(t, f.ctrl.History(), 1)
	assert.True(t, strings.HasPrefix(f.ctrl.Status().Message, "Already identified"))
}

func TestIdentifyTinySampleSkipsNetwork(t *testing.T) {
	t.Parallel()

	ident := &stubIdentifier{track: sampleTrack()}
	f := newFixture(t, ident, 2000)
	require.NoError(t, f.ctrl.Play(t.Context()))

	res, err := f.ctrl.Identify(t.Context(), TriggerManual)
	require.Error(t, err)

	assert.ErrorIs(t, err, recorder.ErrInsufficientAudio)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Zero(t, ident.calls.Load())
	assert.Empty(t, f.ctrl.History())
	assert.Contains(t, strings.ToLower(f.ctrl.Status().Message), "sample too small")
	assert.Equal(t, recorder.StateFailed, f.ctrl.Snapshot().Session.State)
}

func TestIdentifyMissLeavesHistory(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &stubIdentifier{}, 8000)
	require.NoError(t, f.ctrl.Play(t.Context()))

	res, err := f.ctrl.Identify(t.Context(), TriggerManual)
	require.NoError(t, err)

	assert.Equal(t, OutcomeMiss, res.Outcome)
	assert.Nil(t, res.Track)
	assert.Empty(t, f.ctrl.History())
	assert.Equal(t, "No match found", f.ctrl.Status().Message)
}

func TestIdentifyServiceError(t *testing.T) {
	t.Parallel()

	svcErr := errors.Newf("backend returned 503").
		Component("identify").
		Category(errors.CategoryIdentificationService).
		Build()
	f := newFixture(t, &stubIdentifier{err: svcErr}, 8000)
	require.NoError(t, f.ctrl.Play(t.Context()))

	_, err := f.ctrl.Identify(t.Context(), TriggerManual)
	require.Error(t, err)

	assert.True(t, errors.IsCategory(err, errors.CategoryIdentificationService))
	st := f.ctrl.Status()
	assert.Equal(t, LevelError, st.Level)
	assert.Equal(t, string(errors.CategoryIdentificationService), st.Category)
	assert.Eventually(t, func() bool {
		return slices.Contains(f.log.kinds(), events.KindFailed)
	}, time.Second, 5*time.Millisecond)
}

func TestIdentifyRequiresConnectedStream(t *testing.T) {
	t.Parallel()

	ident := &stubIdentifier{track: sampleTrack()}
	f := newFixture(t, ident, 8000)

	res, err := f.ctrl.Identify(t.Context(), TriggerManual)
	require.Error(t, err)

	assert.ErrorIs(t, err, playback.ErrConnection)
	assert.Equal(t, OutcomeRejected, res.Outcome)
	assert.Empty(t, res.SessionID)
	assert.Zero(t, f.runtime.encodes.Load())
	assert.Zero(t, ident.calls.Load())
}

func TestIdentifyAccessGate(t *testing.T) {
	t.Parallel()

	gate := GateFunc(func(_ context.Context, trigger Trigger) error {
		if trigger == TriggerScheduled {
			return errors.NewStd("auto-identify requires a paid tier")
		}
		return nil
	})
	f := newFixture(t, &stubIdentifier{track: sampleTrack()}, 8000, func(c *Config) { c.Gate = gate })
	require.NoError(t, f.ctrl.Play(t.Context()))

	res, err := f.ctrl.Identify(t.Context(), TriggerScheduled)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAccessDenied)
	assert.Equal(t, OutcomeRejected, res.Outcome)

	res, err = f.ctrl.Identify(t.Context(), TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, OutcomeIdentified, res.Outcome)
}

func TestIdentifySingleFlight(t *testing.T) {
	t.Parallel()

	ident := &stubIdentifier{track: sampleTrack(), release: make(chan struct{})}
	f := newFixture(t, ident, 8000)
	require.NoError(t, f.ctrl.Play(t.Context()))

	first := make(chan error, 1)
	go func() {
		_, err := f.ctrl.Identify(t.Context(), TriggerManual)
		first <- err
	}()
	require.Eventually(t, func() bool { return ident.calls.Load() == 1 }, 2*time.Second, tu.PollInterval)
	require.True(t, f.ctrl.Busy())

	res, err := f.ctrl.Identify(t.Context(), TriggerManual)
	require.Error(t, err)
	assert.ErrorIs(t, err, recorder.ErrAlreadyInProgress)
	assert.Equal(t, OutcomeRejected, res.Outcome)
	assert.Equal(t, "Identification already in progress", f.ctrl.Status().Message)

	close(ident.release)
	require.NoError(t, tu.Receive(t, first, tu.DefaultTestTimeout))
	assert.Equal(t, int32(1), ident.calls.Load())
	assert.Equal(t, int32(1), f.runtime.encodes.Load())
	assert.Len(t, f.ctrl.History(), 1)
}

func TestStopKeepsInFlightResult(t *testing.T) {
	t.Parallel()

	ident := &stubIdentifier{track: sampleTrack(), release: make(chan struct{})}
	f := newFixture(t, ident, 8000)
	require.NoError(t, f.ctrl.Play(t.Context()))

	done := make(chan Result, 1)
	go func() {
		res, _ := f.ctrl.Identify(t.Context(), TriggerManual)
		done <- res
	}()
	require.Eventually(t, func() bool { return ident.calls.Load() == 1 }, 2*time.Second, tu.PollInterval)

	require.NoError(t, f.ctrl.Stop())
	assert.Equal(t, playback.StatusIdle, f.player.Status())
	close(ident.release)

	res := tu.Receive(t, done, tu.DefaultTestTimeout)
	assert.Equal(t, OutcomeIdentified, res.Outcome)
	assert.Len(t, f.ctrl.History(), 1)
}

func TestIdentifyInProgressAfterStop(t *testing.T) {
	t.Parallel()

	gateCalls := atomic.Int32{}
	gate := GateFunc(func(context.Context, Trigger) error {
		gateCalls.Add(1)
		return nil
	})
	ident := &stubIdentifier{track: sampleTrack(), release: make(chan struct{})}
	f := newFixture(t, ident, 8000, func(c *Config) { c.Gate = gate })
	require.NoError(t, f.ctrl.Play(t.Context()))

	done := make(chan error, 1)
	go func() {
		_, err := f.ctrl.Identify(t.Context(), TriggerManual)
		done <- err
	}()
	require.Eventually(t, func() bool { return ident.calls.Load() == 1 }, 2*time.Second, tu.PollInterval)
	require.NoError(t, f.ctrl.Stop())

	// playback is gone but the first attempt still owns the session
	res, err := f.ctrl.Identify(t.Context(), TriggerManual)
	require.Error(t, err)
	assert.ErrorIs(t, err, recorder.ErrAlreadyInProgress)
	assert.False(t, errors.IsCategory(err, errors.CategoryConnection))
	assert.Equal(t, OutcomeRejected, res.Outcome)
	assert.Equal(t, int32(1), gateCalls.Load())

	close(ident.release)
	require.NoError(t, tu.Receive(t, done, tu.DefaultTestTimeout))
	assert.Equal(t, int32(1), ident.calls.Load())
}

func TestSchedulerStopsWithPlayback(t *testing.T) {
	t.Parallel()

	ident := &stubIdentifier{}
	f := newFixture(t, ident, 8000, func(c *Config) {
		c.SchedulerInterval = 100 * time.Millisecond
		c.AutoIdentify = true
	})
	assert.Equal(t, scheduler.StateDisabled, f.ctrl.Snapshot().Scheduler)

	require.NoError(t, f.ctrl.Play(t.Context()))
	assert.NotEqual(t, scheduler.StateDisabled, f.ctrl.Snapshot().Scheduler)
	require.Eventually(t, func() bool { return ident.calls.Load() >= 1 }, 2*time.Second, tu.PollInterval)

	require.NoError(t, f.ctrl.Stop())
	assert.Equal(t, scheduler.StateDisabled, f.ctrl.Snapshot().Scheduler)
	require.Eventually(t, func() bool { return !f.ctrl.Busy() }, 2*time.Second, tu.PollInterval)

	calls := ident.calls.Load()
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, calls, ident.calls.Load())
	assert.True(t, f.ctrl.Snapshot().AutoIdentify)
}

func TestConnectionDropDisarmsScheduler(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &stubIdentifier{}, 8000, func(c *Config) {
		c.SchedulerInterval = time.Hour
		c.AutoIdentify = true
	})
	require.NoError(t, f.ctrl.Play(t.Context()))
	require.Equal(t, scheduler.StateArmed, f.ctrl.Snapshot().Scheduler)

	f.player.drop()

	assert.Equal(t, scheduler.StateDisabled, f.ctrl.Snapshot().Scheduler)
	assert.Equal(t, "Connection lost", f.ctrl.Status().Message)
}

func TestPlayFailureShowsStatus(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &stubIdentifier{}, 8000)
	f.player.startErr = errors.Newf("dial tcp: connection refused").
		Category(errors.CategoryConnection).
		Build()

	err := f.ctrl.Play(t.Context())
	require.Error(t, err)
	assert.Equal(t, "Could not connect to stream", f.ctrl.Status().Message)
	assert.Equal(t, LevelError, f.ctrl.Status().Level)
}

func TestClearHistory(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &stubIdentifier{track: sampleTrack()}, 8000)
	require.NoError(t, f.ctrl.Play(t.Context()))
	_, err := f.ctrl.Identify(t.Context(), TriggerManual)
	require.NoError(t, err)
	require.Len(t, f.ctrl.History(), 1)

	require.NoError(t, f.ctrl.ClearHistory(t.Context()))
	assert.Empty(t, f.ctrl.History())
	assert.Eventually(t, func() bool {
		return slices.Contains(f.log.kinds(), events.KindHistoryCleared)
	}, time.Second, 5*time.Millisecond)
}

func TestVolumeAndMutePassThrough(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &stubIdentifier{}, 8000)
	f.ctrl.SetVolume(0.25)
	f.ctrl.SetMuted(true)

	snap := f.ctrl.Snapshot()
	assert.InDelta(t, 0.25, snap.Volume, 0.0001)
	assert.True(t, snap.Muted)
}

func TestNewRequiresCollaborators(t *testing.T) {
	t.Parallel()

	_, err := New(Config{})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestIdentifyRecordsMetrics(t *testing.T) {
	t.Parallel()

	pm, err := metrics.NewPipelineMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	f := newFixture(t, &stubIdentifier{track: sampleTrack()}, 8000, func(c *Config) { c.Metrics = pm })

	_, err = f.ctrl.Identify(t.Context(), TriggerManual)
	require.Error(t, err)
	require.NoError(t, f.ctrl.Play(t.Context()))
	_, err = f.ctrl.Identify(t.Context(), TriggerManual)
	require.NoError(t, err)

	assert.InDelta(t, 1, testutil.ToFloat64(pm.Attempts.WithLabelValues("manual", metrics.OutcomeRejected)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(pm.Attempts.WithLabelValues("manual", metrics.OutcomeIdentified)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(pm.HistoryEntries), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(pm.PlaybackConnected), 0)
}
