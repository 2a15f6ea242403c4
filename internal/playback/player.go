package playback

import (
	"context"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/tphakala/trackid-go/internal/capture"
	"github.com/tphakala/trackid-go/internal/errors"
	"github.com/tphakala/trackid-go/internal/logger"
	"github.com/tphakala/trackid-go/internal/privacy"
)

const (
	DefaultConnectTimeout = 10 * time.Second

	// readBlockBytes is 100ms of audio.
	readBlockBytes = capture.BytesPerSecond / 10
)

// Config holds the player collaborators and initial output state.
type Config struct {
	URL            string
	Decoder        Decoder
	Output         capture.Sink
	ConnectTimeout time.Duration
	Volume         float64
	Muted          bool
	Logger         logger.Logger
}

// Player is the playback source. It implements capture.Element so the capture
// graph can attach to the exact stream being heard.
type Player struct {
	url            string
	decoder        Decoder
	output         capture.Sink
	connectTimeout time.Duration
	log            logger.Logger

	mu        sync.Mutex
	status    ConnectionStatus
	playing   bool
	stream    io.ReadCloser
	cancel    context.CancelFunc
	pumpDone  chan struct{}
	lastErr   error
	gain      *capture.Gain
	graph     *capture.Graph
	listeners []func(ConnectionStatus)
}

func NewPlayer(cfg Config) *Player {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.Output == nil {
		cfg.Output = &DiscardSink{}
	}
	if cfg.Logger == nil {
		cfg.Logger = GetLogger()
	}
	return &Player{
		url:            cfg.URL,
		decoder:        cfg.Decoder,
		output:         cfg.Output,
		connectTimeout: cfg.ConnectTimeout,
		log:            cfg.Logger,
		gain:           capture.NewGain(cfg.Volume, cfg.Muted),
	}
}

// OnStatusChange registers a listener called after every status change.
// Listeners run on the goroutine that caused the change.
func (p *Player) OnStatusChange(fn func(ConnectionStatus)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, fn)
}

// Start opens the stream and blocks until the first audio arrives, the
// connect timeout passes or ctx is done. Starting a playing player is a no-op.
func (p *Player) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.status == StatusConnecting || p.status == StatusConnected {
		p.mu.Unlock()
		return nil
	}
	if p.decoder == nil {
		p.mu.Unlock()
		err := connectionError(errors.NewStd("no decoder configured"), p.url, "open")
		p.setStatus(StatusError, err)
		return err
	}
	p.status = StatusConnecting
	p.lastErr = nil
	listeners := slices.Clone(p.listeners)
	p.mu.Unlock()
	for _, fn := range listeners {
		fn(StatusConnecting)
	}

	// the stream outlives the caller's context
	streamCtx, cancel := context.WithCancel(context.Background())
	stream, err := p.decoder.Open(streamCtx, p.url)
	if err != nil {
		cancel()
		err = connectionError(err, p.url, "open")
		p.setStatus(StatusError, err)
		return err
	}

	first := make(chan error, 1)
	done := make(chan struct{})
	p.mu.Lock()
	p.stream = stream
	p.cancel = cancel
	p.pumpDone = done
	p.mu.Unlock()

	go p.pump(stream, first, done)

	timer := time.NewTimer(p.connectTimeout)
	defer timer.Stop()

	select {
	case err := <-first:
		if err != nil {
			p.teardown()
			err = connectionError(err, p.url, "first-data")
			p.setStatus(StatusError, err)
			return err
		}
	case <-timer.C:
		p.teardown()
		err := connectionError(errors.Newf("no audio within %s", p.connectTimeout).Build(), p.url, "connect-timeout")
		p.setStatus(StatusError, err)
		return err
	case <-ctx.Done():
		p.teardown()
		err := connectionError(ctx.Err(), p.url, "cancelled")
		p.setStatus(StatusError, err)
		return err
	}

	p.mu.Lock()
	p.playing = true
	p.mu.Unlock()
	p.setStatus(StatusConnected, nil)
	p.log.Info("playback started", logger.String("url", privacy.SanitizeURL(p.url)))
	return nil
}

// Stop ends playback and returns to idle. Safe to call when not playing.
func (p *Player) Stop() error {
	p.mu.Lock()
	wasActive := p.stream != nil || p.status != StatusIdle
	p.mu.Unlock()

	err := p.teardown()
	if wasActive {
		p.setStatus(StatusIdle, nil)
		p.log.Info("playback stopped")
	}
	return err
}

// teardown closes the decoder and waits for the pump to exit.
func (p *Player) teardown() error {
	p.mu.Lock()
	stream, cancel, done := p.stream, p.cancel, p.pumpDone
	p.stream, p.cancel, p.pumpDone = nil, nil, nil
	p.playing = false
	p.mu.Unlock()

	if stream == nil {
		return nil
	}
	cancel()
	err := stream.Close()
	<-done
	return err
}

func (p *Player) pump(stream io.ReadCloser, first chan<- error, done chan struct{}) {
	defer close(done)

	buf := make([]byte, readBlockBytes)
	var carry []byte
	notified := false

	for {
		n, err := stream.Read(buf)
		if n > 0 {
			if !notified {
				first <- nil
				notified = true
			}
			block := append(carry, buf[:n]...)
			aligned := len(block) - len(block)%capture.FrameBytes
			p.dispatch(block[:aligned])
			carry = append(carry[:0], block[aligned:]...)
		}
		if err == nil {
			continue
		}

		if !notified {
			first <- err
			return
		}
		p.streamEnded(stream, err)
		return
	}
}

func (p *Player) dispatch(block []byte) {
	if len(block) == 0 {
		return
	}
	p.mu.Lock()
	g := p.graph
	p.mu.Unlock()

	if g != nil {
		g.Process(block)
		return
	}
	if err := p.output.WritePCM(p.gain.Process(nil, block)); err != nil {
		p.log.Debug("output write failed", logger.Error(err))
	}
}

// streamEnded handles the decoder stopping on its own. A read error after an
// explicit Stop is expected and ignored.
func (p *Player) streamEnded(stream io.ReadCloser, readErr error) {
	p.mu.Lock()
	if p.stream != stream {
		p.mu.Unlock()
		return
	}
	cancel := p.cancel
	p.stream, p.cancel, p.pumpDone = nil, nil, nil
	p.playing = false
	p.mu.Unlock()

	cancel()
	if err := stream.Close(); err != nil {
		p.log.Debug("decoder close after drop", logger.Error(err))
	}
	p.log.Warn("stream dropped", logger.String("url", privacy.SanitizeURL(p.url)), logger.Error(privacy.WrapError(readErr)))
	p.setStatus(StatusError, connectionError(readErr, p.url, "stream"))
}

func (p *Player) setStatus(s ConnectionStatus, err error) {
	p.mu.Lock()
	if p.status == s && err == nil {
		p.mu.Unlock()
		return
	}
	prev := p.status
	p.status = s
	p.lastErr = err
	listeners := slices.Clone(p.listeners)
	p.mu.Unlock()

	p.log.Debug("connection status changed",
		logger.String("from", prev.String()),
		logger.String("to", s.String()))
	for _, fn := range listeners {
		fn(s)
	}
}

// Status returns the connection status.
func (p *Player) Status() ConnectionStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// LastError returns the error behind the current StatusError, if any.
func (p *Player) LastError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

func (p *Player) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// URL returns the stream URL.
func (p *Player) URL() string {
	return p.url
}

// SetVolume applies v, clamped to [0,1], to the audible path and the capture
// graph gain.
func (p *Player) SetVolume(v float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gain.SetVolume(v)
	if p.graph != nil {
		p.graph.Gain().SetVolume(p.gain.Volume())
	}
}

// SetMuted applies m to the audible path and the capture graph gain.
func (p *Player) SetMuted(m bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gain.SetMuted(m)
	if p.graph != nil {
		p.graph.Gain().SetMuted(m)
	}
}

func (p *Player) Volume() float64 {
	return p.gain.Volume()
}

func (p *Player) Muted() bool {
	return p.gain.Muted()
}

// Output returns the audible sink.
func (p *Player) Output() capture.Sink {
	return p.output
}

// AttachGraph routes audio through g from the next block on. A player
// accepts a single graph for its lifetime.
func (p *Player) AttachGraph(g *capture.Graph) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.graph != nil {
		return capture.ErrAlreadyAttached
	}
	g.Gain().SetVolume(p.gain.Volume())
	g.Gain().SetMuted(p.gain.Muted())
	p.graph = g
	return nil
}

// Close stops playback and releases the output sink.
func (p *Player) Close() error {
	stopErr := p.Stop()
	return errors.Join(stopErr, p.output.Close())
}
