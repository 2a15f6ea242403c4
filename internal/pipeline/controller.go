// Package pipeline wires playback, capture, recording, identification,
// deduplication and history into single-flight identify attempts, and owns
// the auto-identify scheduler and the status line.
package pipeline

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/tphakala/trackid-go/internal/capture"
	"github.com/tphakala/trackid-go/internal/dedup"
	"github.com/tphakala/trackid-go/internal/errors"
	"github.com/tphakala/trackid-go/internal/events"
	"github.com/tphakala/trackid-go/internal/history"
	"github.com/tphakala/trackid-go/internal/logger"
	"github.com/tphakala/trackid-go/internal/observability/metrics"
	"github.com/tphakala/trackid-go/internal/playback"
	"github.com/tphakala/trackid-go/internal/recorder"
	"github.com/tphakala/trackid-go/internal/scheduler"
	"github.com/tphakala/trackid-go/internal/track"
)

// Trigger says what started an attempt.
type Trigger string

const (
	TriggerManual    Trigger = "manual"
	TriggerScheduled Trigger = "scheduled"
)

// Outcome is the end result of an attempt.
type Outcome string

const (
	OutcomeIdentified Outcome = metrics.OutcomeIdentified
	OutcomeDuplicate  Outcome = metrics.OutcomeDuplicate
	OutcomeMiss       Outcome = metrics.OutcomeMiss
	OutcomeFailed     Outcome = metrics.OutcomeFailed
	OutcomeRejected   Outcome = metrics.OutcomeRejected
)

// Playback is the playing element the pipeline captures from.
type Playback interface {
	capture.Element
	Start(ctx context.Context) error
	Stop() error
	Status() playback.ConnectionStatus
	IsPlaying() bool
	URL() string
	SetVolume(v float64)
	SetMuted(m bool)
	OnStatusChange(fn func(playback.ConnectionStatus))
}

// Recorder records one encoded sample from a capture source.
type Recorder interface {
	Record(ctx context.Context, src recorder.Source, sess *recorder.Session) (*recorder.Sample, error)
	Window() time.Duration
}

// Identifier resolves a sample to a track, or nil on a miss.
type Identifier interface {
	Identify(ctx context.Context, sample *recorder.Sample) (*track.Track, error)
}

// Result describes one attempt.
type Result struct {
	SessionID string        `json:"sessionId,omitempty"`
	Trigger   Trigger       `json:"trigger"`
	Outcome   Outcome       `json:"outcome"`
	Track     *track.Track  `json:"track,omitempty"`
	Previous  *track.Track  `json:"previous,omitempty"`
	Evicted   int           `json:"evicted,omitempty"`
	Duration  time.Duration `json:"durationNs"`
}

// Config holds the controller collaborators. Player, Builder, Recorder,
// Identifier and History are required.
type Config struct {
	Player     Playback
	Builder    *capture.Builder
	Recorder   Recorder
	Identifier Identifier
	Dedup      *dedup.Filter
	History    *history.Store
	Bus        *events.EventBus
	Metrics    *metrics.PipelineMetrics
	Gate       AccessGate

	SchedulerInterval time.Duration
	ImmediateFirst    bool
	AutoIdentify      bool
	StatusClearAfter  time.Duration

	Logger logger.Logger
}

// Controller runs identify attempts. At most one attempt is in flight;
// history insertion order is therefore capture order.
type Controller struct {
	player     Playback
	builder    *capture.Builder
	recorder   Recorder
	identifier Identifier
	dedup      *dedup.Filter
	history    *history.Store
	bus        *events.EventBus
	metrics    *metrics.PipelineMetrics
	gate       AccessGate
	scheduler  *scheduler.Scheduler
	status     *StatusBoard
	log        logger.Logger

	// attempts run on ctx so that stopping playback or a caller going away
	// never cancels them; only Close does.
	ctx    context.Context
	cancel context.CancelFunc

	inFlight  atomic.Bool
	session   atomic.Pointer[recorder.Session]
	connected atomic.Bool
}

func New(cfg Config) (*Controller, error) {
	switch {
	case cfg.Player == nil:
		return nil, configError("player")
	case cfg.Builder == nil:
		return nil, configError("capture builder")
	case cfg.Recorder == nil:
		return nil, configError("recorder")
	case cfg.Identifier == nil:
		return nil, configError("identifier")
	case cfg.History == nil:
		return nil, configError("history")
	}
	if cfg.Dedup == nil {
		cfg.Dedup = dedup.New(dedup.DefaultWindow, 1)
	}
	if cfg.Gate == nil {
		cfg.Gate = AllowAll
	}
	if cfg.Logger == nil {
		cfg.Logger = GetLogger()
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		player:     cfg.Player,
		builder:    cfg.Builder,
		recorder:   cfg.Recorder,
		identifier: cfg.Identifier,
		dedup:      cfg.Dedup,
		history:    cfg.History,
		bus:        cfg.Bus,
		metrics:    cfg.Metrics,
		gate:       cfg.Gate,
		log:        cfg.Logger,
		ctx:        ctx,
		cancel:     cancel,
	}
	c.status = NewStatusBoard(cfg.StatusClearAfter, c.Busy, c.onStatus)
	c.scheduler = scheduler.New(scheduler.Config{
		Interval:       cfg.SchedulerInterval,
		ImmediateFirst: cfg.ImmediateFirst,
		Attempt: func(ctx context.Context) error {
			_, err := c.Identify(ctx, TriggerScheduled)
			return err
		},
		Busy:    c.Busy,
		OnState: c.onSchedulerState,
		Logger:  cfg.Logger.With(logger.String("component", "scheduler")),
	})

	c.player.OnStatusChange(c.onPlayback)
	c.onPlayback(c.player.Status())
	c.withMetrics(func(m *metrics.PipelineMetrics) { m.SetHistorySize(c.history.Len()) })
	if cfg.AutoIdentify {
		c.scheduler.SetEnabled(true)
	}
	return c, nil
}

// Busy reports whether an attempt is in flight.
func (c *Controller) Busy() bool {
	return c.inFlight.Load()
}

// Identify runs one attempt: graph, record, identify, dedup, history. While
// another attempt is in flight it is rejected as in progress before any other
// check; otherwise it is rejected when the gate refuses or playback is not
// connected. A miss returns OutcomeMiss and a nil error.
func (c *Controller) Identify(ctx context.Context, trigger Trigger) (Result, error) {
	res := Result{Trigger: trigger}

	if c.Busy() {
		return c.reject(res, inProgressError(trigger))
	}
	if err := c.gate.Allow(ctx, trigger); err != nil {
		return c.reject(res, deniedError(err, trigger))
	}
	if st := c.player.Status(); !c.player.IsPlaying() || st != playback.StatusConnected {
		return c.reject(res, errors.Newf("stream is not connected").
			Component("pipeline").
			Category(errors.CategoryConnection).
			Context("status", st.String()).
			Build())
	}
	if !c.inFlight.CompareAndSwap(false, true) {
		return c.reject(res, inProgressError(trigger))
	}
	defer c.inFlight.Store(false)

	runCtx, cancel := context.WithCancel(c.ctx)
	defer cancel()

	start := time.Now()
	sess := recorder.NewSession(nil)
	c.session.Store(sess)
	res.SessionID = sess.ID()

	res, err := c.run(runCtx, sess, res)
	res.Duration = time.Since(start)
	c.withMetrics(func(m *metrics.PipelineMetrics) {
		m.RecordAttempt(string(trigger), string(res.Outcome))
		m.ObservePhase(metrics.PhaseTotal, res.Duration)
	})

	if err != nil {
		sess.Fail(err)
		c.failed(res, err)
		return res, err
	}
	_ = sess.Transition(recorder.StateDone, string(res.Outcome))
	c.log.Info("identification attempt finished",
		logger.String("session_id", res.SessionID),
		logger.String("trigger", string(trigger)),
		logger.String("outcome", string(res.Outcome)),
		logger.Duration("elapsed", res.Duration))
	return res, nil
}

func inProgressError(trigger Trigger) error {
	return errors.Newf("identification already in progress").
		Component("pipeline").
		Category(errors.CategoryInProgress).
		Context("trigger", string(trigger)).
		Build()
}

func (c *Controller) run(ctx context.Context, sess *recorder.Session, res Result) (Result, error) {
	res.Outcome = OutcomeFailed

	c.status.Busy("Preparing capture")
	if err := sess.Transition(recorder.StateSettingUpGraph, ""); err != nil {
		return res, err
	}
	phase := time.Now()
	graph, err := c.builder.EnsureGraph(c.player)
	if err != nil {
		return res, err
	}
	c.observePhase(metrics.PhaseGraph, phase)

	c.status.Busy(fmt.Sprintf("Listening (%s)", c.recorder.Window().Round(time.Second)))
	phase = time.Now()
	sample, err := c.recorder.Record(ctx, graph.Tap(), sess)
	if err != nil {
		return res, err
	}
	c.observePhase(metrics.PhaseRecord, phase)
	c.withMetrics(func(m *metrics.PipelineMetrics) { m.ObserveSample(len(sample.Data)) })

	if err := sess.Transition(recorder.StateSubmitting, sample.Encoding); err != nil {
		return res, err
	}
	c.status.Busy("Identifying")
	phase = time.Now()
	found, err := c.identifier.Identify(ctx, sample)
	if err != nil {
		return res, err
	}
	c.observePhase(metrics.PhaseIdentify, phase)

	if found == nil {
		res.Outcome = OutcomeMiss
		c.status.Set(LevelInfo, "", "No match found")
		c.publish(events.Event{Kind: events.KindMiss, SessionID: res.SessionID, Trigger: string(res.Trigger)})
		return res, nil
	}

	t := found.WithTimestamp(sample.CapturedAt)
	res.Track = &t
	if prev, dup := c.dedup.Match(t, c.history.List()); dup {
		res.Outcome = OutcomeDuplicate
		res.Previous = &prev
		c.status.Set(LevelInfo, "", "Already identified: "+t.String())
		c.publish(events.Event{Kind: events.KindDuplicate, SessionID: res.SessionID, Trigger: string(res.Trigger), Track: &t})
		return res, nil
	}

	res.Outcome = OutcomeIdentified
	res.Evicted = c.history.Add(context.WithoutCancel(ctx), t)
	c.withMetrics(func(m *metrics.PipelineMetrics) { m.SetHistorySize(c.history.Len()) })
	c.status.Set(LevelSuccess, "", "Identified: "+t.String())
	c.publish(events.Event{Kind: events.KindIdentified, SessionID: res.SessionID, Trigger: string(res.Trigger), Track: &t})
	return res, nil
}

// reject reports an attempt that never started.
func (c *Controller) reject(res Result, err error) (Result, error) {
	res.Outcome = OutcomeRejected
	category := errors.CategoryOf(err)
	c.withMetrics(func(m *metrics.PipelineMetrics) { m.RecordAttempt(string(res.Trigger), string(res.Outcome)) })

	level, msg := statusFor(err)
	if category == errors.CategoryInProgress {
		// a scheduled tick racing a running attempt is not worth a message
		c.log.Debug("identification rejected", logger.String("trigger", string(res.Trigger)), logger.Error(err))
		if res.Trigger == TriggerManual {
			c.status.Set(level, string(category), msg)
		}
		return res, err
	}
	c.log.Info("identification rejected",
		logger.String("trigger", string(res.Trigger)),
		logger.String("category", string(category)),
		logger.Error(err))
	c.status.Set(level, string(category), msg)
	return res, err
}

// failed reports an attempt that ended with an error.
func (c *Controller) failed(res Result, err error) {
	category := errors.CategoryOf(err)
	c.withMetrics(func(m *metrics.PipelineMetrics) { m.RecordFailure(string(category)) })

	level, msg := statusFor(err)
	c.status.Set(level, string(category), msg)
	c.publish(events.Event{
		Kind:      events.KindFailed,
		SessionID: res.SessionID,
		Trigger:   string(res.Trigger),
		Message:   msg,
		Category:  string(category),
		Error:     err.Error(),
		Duration:  res.Duration,
	})
	c.log.Warn("identification attempt failed",
		logger.String("session_id", res.SessionID),
		logger.String("trigger", string(res.Trigger)),
		logger.String("category", string(category)),
		logger.Error(err),
		logger.Duration("elapsed", res.Duration))
}

// statusFor maps an error to its status line.
func statusFor(err error) (Level, string) {
	switch errors.CategoryOf(err) {
	case errors.CategoryConnection:
		return LevelError, "Stream is not connected"
	case errors.CategoryCaptureSetup:
		return LevelError, "Could not set up audio capture"
	case errors.CategoryUnsupportedFormat:
		return LevelError, "Recording is not supported on this system"
	case errors.CategoryInProgress:
		return LevelWarning, "Identification already in progress"
	case errors.CategoryInsufficientAudio:
		return LevelWarning, "Sample too small, try again"
	case errors.CategoryIdentificationService:
		return LevelError, "Identification service error"
	case errors.CategoryValidation:
		return LevelWarning, "Identification is not available"
	case errors.CategoryCancellation:
		return LevelWarning, "Identification cancelled"
	default:
		return LevelError, "Identification failed"
	}
}

// Play starts the stream. Connection failures are shown on the status line
// and returned.
func (c *Controller) Play(ctx context.Context) error {
	c.status.Busy("Connecting")
	if err := c.player.Start(ctx); err != nil {
		c.status.Set(LevelError, string(errors.CategoryOf(err)), "Could not connect to stream")
		return err
	}
	c.status.Set(LevelSuccess, "", "Playing")
	return nil
}

// Stop ends playback. The scheduler disarms; an attempt in flight finishes
// and its result is still recorded.
func (c *Controller) Stop() error {
	err := c.player.Stop()
	if !c.Busy() {
		c.status.Set(LevelInfo, "", "Stopped")
	}
	return err
}

func (c *Controller) SetVolume(v float64) { c.player.SetVolume(v) }

func (c *Controller) SetMuted(m bool) { c.player.SetMuted(m) }

// SetAutoIdentify switches the scheduler toggle.
func (c *Controller) SetAutoIdentify(on bool) {
	c.scheduler.SetEnabled(on)
	if on {
		c.status.Set(LevelInfo, "", "Auto-identify on")
	} else {
		c.status.Set(LevelInfo, "", "Auto-identify off")
	}
}

// History returns the identified tracks, newest first.
func (c *Controller) History() []track.Track {
	return c.history.List()
}

// Track returns a history entry by id.
func (c *Controller) Track(id string) (track.Track, bool) {
	return c.history.Get(id)
}

// ClearHistory empties the in-memory and persisted history.
func (c *Controller) ClearHistory(ctx context.Context) error {
	if err := c.history.Clear(ctx); err != nil {
		c.status.Set(LevelError, string(errors.CategoryOf(err)), "Could not clear history")
		return err
	}
	c.withMetrics(func(m *metrics.PipelineMetrics) { m.SetHistorySize(0) })
	c.status.Set(LevelInfo, "", "History cleared")
	c.publish(events.Event{Kind: events.KindHistoryCleared})
	return nil
}

// Status returns the current status line.
func (c *Controller) Status() Status {
	return c.status.Current()
}

// Snapshot is the observable state of the controller.
type Snapshot struct {
	URL             string                    `json:"url"`
	Playback        playback.ConnectionStatus `json:"playback"`
	Playing         bool                      `json:"playing"`
	Volume          float64                   `json:"volume"`
	Muted           bool                      `json:"muted"`
	AutoIdentify    bool                      `json:"autoIdentify"`
	Scheduler       scheduler.State           `json:"scheduler"`
	Identifying     bool                      `json:"identifying"`
	Session         *recorder.SessionInfo     `json:"session,omitempty"`
	Status          Status                    `json:"status"`
	HistoryLen      int                       `json:"historyLength"`
	HistoryCapacity int                       `json:"historyCapacity"`
}

func (c *Controller) Snapshot() Snapshot {
	s := Snapshot{
		URL:             c.player.URL(),
		Playback:        c.player.Status(),
		Playing:         c.player.IsPlaying(),
		Volume:          c.player.Volume(),
		Muted:           c.player.Muted(),
		AutoIdentify:    c.scheduler.Enabled(),
		Scheduler:       c.scheduler.State(),
		Identifying:     c.Busy(),
		Status:          c.status.Current(),
		HistoryLen:      c.history.Len(),
		HistoryCapacity: c.history.Capacity(),
	}
	if sess := c.session.Load(); sess != nil {
		info := sess.Info()
		s.Session = &info
	}
	return s
}

// Close cancels an attempt in flight, stops the scheduler and the status
// timers, and stops playback.
func (c *Controller) Close() error {
	c.cancel()
	c.scheduler.Close()
	c.status.Close()
	return c.player.Stop()
}

func (c *Controller) onPlayback(st playback.ConnectionStatus) {
	connected := st == playback.StatusConnected
	wasConnected := c.connected.Swap(connected)
	c.scheduler.SetConnected(connected)
	c.withMetrics(func(m *metrics.PipelineMetrics) { m.SetConnected(connected) })
	c.publish(events.Event{Kind: events.KindPlayback, State: st.String()})

	if st == playback.StatusError && wasConnected {
		c.status.Set(LevelError, string(errors.CategoryConnection), "Connection lost")
	}
}

func (c *Controller) onSchedulerState(st scheduler.State) {
	c.withMetrics(func(m *metrics.PipelineMetrics) { m.SetSchedulerArmed(st != scheduler.StateDisabled) })
	c.publish(events.Event{Kind: events.KindScheduler, State: st.String()})
}

func (c *Controller) onStatus(s Status) {
	c.publish(events.Event{Kind: events.KindStatus, Message: s.Message, Category: s.Category, State: string(s.Level)})
}

func (c *Controller) publish(e events.Event) {
	c.bus.TryPublish(e)
}

func (c *Controller) withMetrics(fn func(m *metrics.PipelineMetrics)) {
	if c.metrics != nil {
		fn(c.metrics)
	}
}

func (c *Controller) observePhase(phase string, start time.Time) {
	c.withMetrics(func(m *metrics.PipelineMetrics) { m.ObservePhase(phase, time.Since(start)) })
}

func configError(what string) error {
	return errors.Newf("pipeline: %s is required", what).
		Component("pipeline").
		Category(errors.CategoryConfiguration).
		Build()
}
