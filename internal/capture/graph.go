package capture

import (
	"sync"

	"github.com/tphakala/trackid-go/internal/errors"
	"github.com/tphakala/trackid-go/internal/logger"
)

// ErrCaptureSetup matches any failure to build or resume the capture graph.
var ErrCaptureSetup = errors.Newf("capture graph setup failed").
	Component("capture").
	Category(errors.CategoryCaptureSetup).
	Build()

// ErrAlreadyAttached is returned by elements that already feed a graph.
var ErrAlreadyAttached = errors.Newf("element is already attached to a capture graph").
	Component("capture").
	Category(errors.CategoryCaptureSetup).
	Build()

// Sink consumes PCM frames, e.g. a speaker device.
type Sink interface {
	WritePCM(p []byte) error
	Close() error
}

// Resumer is implemented by sinks whose processing context must be started
// before audio flows.
type Resumer interface {
	Resume() error
}

// Element is the playing source a graph attaches to. An element accepts at
// most one graph for its lifetime.
type Element interface {
	AttachGraph(g *Graph) error
	Volume() float64
	Muted() bool
	Output() Sink
}

// Graph routes source PCM through the gain stage to the audible output and,
// unmodified, to the recording tap.
type Graph struct {
	gain   *Gain
	tap    *Tap
	output Sink

	scratch []byte
	mu      sync.Mutex
	log     logger.Logger
}

func newGraph(output Sink, gain *Gain, tap *Tap, log logger.Logger) *Graph {
	return &Graph{gain: gain, tap: tap, output: output, log: log}
}

// Gain returns the gain stage mirroring the player volume and mute.
func (g *Graph) Gain() *Gain {
	return g.gain
}

// Tap returns the recording tap.
func (g *Graph) Tap() *Tap {
	return g.tap
}

// Process feeds one block of source PCM through the graph. Output sink
// errors are logged and do not affect the tap.
func (g *Graph) Process(pcm []byte) {
	g.tap.Write(pcm)

	if g.output == nil {
		return
	}
	g.mu.Lock()
	g.scratch = g.gain.Process(g.scratch, pcm)
	err := g.output.WritePCM(g.scratch)
	g.mu.Unlock()
	if err != nil {
		g.log.Debug("output sink write failed", logger.Error(err))
	}
}
