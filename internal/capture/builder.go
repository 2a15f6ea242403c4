package capture

import (
	"sync"

	"github.com/tphakala/trackid-go/internal/errors"
	"github.com/tphakala/trackid-go/internal/logger"
)

// Builder creates the capture graph once and hands the cached instance to
// every later caller.
type Builder struct {
	mu       sync.Mutex
	graph    *Graph
	tapBytes int
	onDrop   func(n int)
	log      logger.Logger
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithTapSeconds sizes the tap buffer.
func WithTapSeconds(seconds int) BuilderOption {
	return func(b *Builder) {
		if seconds > 0 {
			b.tapBytes = seconds * BytesPerSecond
		}
	}
}

// WithDropHandler reports tap overflow, e.g. to metrics.
func WithDropHandler(fn func(n int)) BuilderOption {
	return func(b *Builder) { b.onDrop = fn }
}

// WithLogger overrides the package logger.
func WithLogger(l logger.Logger) BuilderOption {
	return func(b *Builder) {
		if l != nil {
			b.log = l
		}
	}
}

func NewBuilder(opts ...BuilderOption) *Builder {
	b := &Builder{
		tapBytes: 40 * BytesPerSecond,
		log:      GetLogger(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// EnsureGraph returns the cached graph, building it on first use. Setup
// failures are returned as capture setup errors and are not cached, so an
// explicit later call may try again.
func (b *Builder) EnsureGraph(el Element) (*Graph, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.graph != nil {
		return b.graph, nil
	}
	if el == nil {
		return nil, setupError(errors.NewStd("no playback element"), "element")
	}

	out := el.Output()
	if r, ok := out.(Resumer); ok {
		if err := r.Resume(); err != nil {
			return nil, setupError(err, "resume")
		}
	}

	tap := NewTap(b.tapBytes)
	if b.onDrop != nil {
		tap.OnDrop(b.onDrop)
	}
	g := newGraph(out, NewGain(el.Volume(), el.Muted()), tap, b.log)
	if err := el.AttachGraph(g); err != nil {
		return nil, setupError(err, "attach")
	}

	b.graph = g
	b.log.Info("capture graph ready",
		logger.Int("tap_bytes", b.tapBytes),
		logger.Float64("volume", g.gain.Volume()),
		logger.Bool("muted", g.gain.Muted()))
	return g, nil
}

// Graph returns the built graph or nil.
func (b *Builder) Graph() *Graph {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.graph
}

func setupError(err error, stage string) error {
	return errors.New(err).
		Component("capture").
		Category(errors.CategoryCaptureSetup).
		Context("stage", stage).
		Build()
}
