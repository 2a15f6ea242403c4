package playback

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
	"github.com/smallnest/ringbuffer"

	"github.com/tphakala/trackid-go/internal/capture"
	"github.com/tphakala/trackid-go/internal/errors"
	"github.com/tphakala/trackid-go/internal/logger"
)

const (
	OutputNone    = "none"
	OutputSpeaker = "speaker"

	speakerBufferSeconds = 2
)

// NewSink returns the output sink named by kind.
func NewSink(kind string) (capture.Sink, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", OutputNone:
		return &DiscardSink{}, nil
	case OutputSpeaker:
		return NewSpeakerSink(), nil
	default:
		return nil, errors.Newf("unknown output sink %q", kind).
			Component("playback").
			Category(errors.CategoryConfiguration).
			Build()
	}
}

// DiscardSink drops audio; used for headless identification.
type DiscardSink struct {
	written atomic.Uint64
}

func (d *DiscardSink) WritePCM(p []byte) error {
	d.written.Add(uint64(len(p)))
	return nil
}

func (d *DiscardSink) Close() error { return nil }

// Written returns the number of bytes received.
func (d *DiscardSink) Written() uint64 {
	return d.written.Load()
}

// SpeakerSink plays PCM on the default playback device. The device pulls from
// a ring buffer; underruns play silence and overruns drop the newest audio.
type SpeakerSink struct {
	mu      sync.Mutex
	ctx     *malgo.AllocatedContext
	device  *malgo.Device
	buf     *ringbuffer.RingBuffer
	started bool
	log     logger.Logger
}

func NewSpeakerSink() *SpeakerSink {
	return &SpeakerSink{
		buf: ringbuffer.New(speakerBufferSeconds * capture.BytesPerSecond),
		log: GetLogger().Module("speaker"),
	}
}

// Resume initializes and starts the playback device. Safe to call repeatedly.
func (s *SpeakerSink) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	if s.ctx == nil {
		ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(msg string) {
			s.log.Debug("malgo", logger.String("message", strings.TrimSpace(msg)))
		})
		if err != nil {
			return fmt.Errorf("failed to initialize audio context: %w", err)
		}
		s.ctx = ctx
	}

	if s.device == nil {
		cfg := malgo.DefaultDeviceConfig(malgo.Playback)
		cfg.Playback.Format = malgo.FormatS16
		cfg.Playback.Channels = capture.Channels
		cfg.SampleRate = capture.SampleRate
		cfg.Alsa.NoMMap = 1

		device, err := malgo.InitDevice(s.ctx.Context, cfg, malgo.DeviceCallbacks{Data: s.onData})
		if err != nil {
			return fmt.Errorf("failed to initialize playback device: %w", err)
		}
		s.device = device
	}

	if err := s.device.Start(); err != nil {
		return fmt.Errorf("failed to start playback device: %w", err)
	}
	s.started = true
	s.log.Info("playback device started")
	return nil
}

func (s *SpeakerSink) onData(out, _ []byte, _ uint32) {
	n, _ := s.buf.Read(out)
	clear(out[n:])
}

func (s *SpeakerSink) WritePCM(p []byte) error {
	_, err := s.buf.Write(p)
	if err != nil && !errors.Is(err, ringbuffer.ErrIsFull) && !errors.Is(err, ringbuffer.ErrTooMuchDataToWrite) {
		return err
	}
	return nil
}

func (s *SpeakerSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.device != nil {
		_ = s.device.Stop()
		s.device.Uninit()
		s.device = nil
	}
	if s.ctx != nil {
		_ = s.ctx.Uninit()
		s.ctx.Free()
		s.ctx = nil
	}
	s.started = false
	return nil
}
