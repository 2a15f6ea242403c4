package recorder

import (
	"bytes"
	"context"
	"sync/atomic"
	"time"

	"github.com/tphakala/trackid-go/internal/capture"
	"github.com/tphakala/trackid-go/internal/errors"
	"github.com/tphakala/trackid-go/internal/logger"
)

const (
	DefaultWindow         = 20 * time.Second
	DefaultChunkInterval  = time.Second
	DefaultMinSampleBytes = 5000
)

// ErrAlreadyInProgress matches a rejected concurrent capture.
var ErrAlreadyInProgress = errors.Newf("a capture is already in progress").
	Component("recorder").
	Category(errors.CategoryInProgress).
	Build()

// ErrInsufficientAudio matches a sample below the validity gate.
var ErrInsufficientAudio = errors.Newf("sample too small").
	Component("recorder").
	Category(errors.CategoryInsufficientAudio).
	Build()

// Source is a capturable stream: the capture graph tap.
type Source interface {
	Arm()
	Disarm()
	Drain() ([]byte, error)
}

// Sample is one encoded recording.
type Sample struct {
	Data       []byte
	Encoding   string
	PCMBytes   int
	Duration   time.Duration
	CapturedAt time.Time
}

// Config parameterizes a Recorder. Zero values take defaults.
type Config struct {
	Window         time.Duration
	ChunkInterval  time.Duration
	MinSampleBytes int
	Encodings      []string
	Runtime        Runtime
	Logger         logger.Logger
}

// Recorder records one window at a time from a Source.
type Recorder struct {
	window        time.Duration
	chunkInterval time.Duration
	minBytes      int
	encodings     []string
	runtime       Runtime
	log           logger.Logger

	active atomic.Bool
}

func New(cfg Config) *Recorder {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.ChunkInterval <= 0 {
		cfg.ChunkInterval = DefaultChunkInterval
	}
	if cfg.MinSampleBytes <= 0 {
		cfg.MinSampleBytes = DefaultMinSampleBytes
	}
	if len(cfg.Encodings) == 0 {
		cfg.Encodings = DefaultEncodings
	}
	if cfg.Logger == nil {
		cfg.Logger = GetLogger()
	}
	return &Recorder{
		window:        cfg.Window,
		chunkInterval: cfg.ChunkInterval,
		minBytes:      cfg.MinSampleBytes,
		encodings:     cfg.Encodings,
		runtime:       cfg.Runtime,
		log:           cfg.Logger,
	}
}

// Window returns the recording duration.
func (r *Recorder) Window() time.Duration { return r.window }

// Recording reports whether a capture is in progress.
func (r *Recorder) Recording() bool { return r.active.Load() }

// Negotiate returns the encoding the recorder would use.
func (r *Recorder) Negotiate(ctx context.Context) (string, error) {
	return Negotiate(ctx, r.runtime, r.encodings)
}

// Record captures one window from src and encodes it. sess, when not nil,
// is moved through recording and encoding; failures are left for the caller
// to record. A second call while one is running fails immediately with
// ErrAlreadyInProgress.
func (r *Recorder) Record(ctx context.Context, src Source, sess *Session) (*Sample, error) {
	if !r.active.CompareAndSwap(false, true) {
		return nil, ErrAlreadyInProgress
	}
	defer r.active.Store(false)

	enc, err := r.Negotiate(ctx)
	if err != nil {
		return nil, err
	}
	if sess != nil {
		sess.setEncoding(enc)
		if err := sess.Transition(StateRecording, enc); err != nil {
			return nil, err
		}
	}

	pcm, err := r.capture(ctx, src, sess)
	if err != nil {
		return nil, err
	}
	capturedAt := time.Now()

	if len(pcm) == 0 {
		return nil, r.insufficient(0, enc)
	}

	if sess != nil {
		if err := sess.Transition(StateEncoding, ""); err != nil {
			return nil, err
		}
	}
	start := time.Now()
	data, err := r.runtime.Encode(ctx, pcm, enc)
	if err != nil {
		return nil, errors.New(err).
			Component("recorder").
			Category(errors.CategoryEncoding).
			Context("encoding", enc).
			Context("runtime", r.runtime.Name()).
			Timing("encode", time.Since(start)).
			Build()
	}
	if sess != nil {
		sess.setBytes(len(data))
	}
	if len(data) < r.minBytes {
		return nil, r.insufficient(len(data), enc)
	}

	r.log.Info("sample recorded",
		logger.String("encoding", enc),
		logger.Int("pcm_bytes", len(pcm)),
		logger.Int("encoded_bytes", len(data)),
		logger.Duration("encode_time", time.Since(start)))

	return &Sample{
		Data:       data,
		Encoding:   enc,
		PCMBytes:   len(pcm),
		Duration:   capture.DurationOf(len(pcm)),
		CapturedAt: capturedAt,
	}, nil
}

// capture arms src for the window and drains it every chunk interval.
func (r *Recorder) capture(ctx context.Context, src Source, sess *Session) ([]byte, error) {
	src.Arm()
	defer src.Disarm()

	ticker := time.NewTicker(r.chunkInterval)
	defer ticker.Stop()
	deadline := time.NewTimer(r.window)
	defer deadline.Stop()

	var chunks [][]byte
	total := 0
	collect := func() error {
		chunk, err := src.Drain()
		if err != nil {
			return errors.New(err).
				Component("recorder").
				Category(errors.CategoryAudio).
				Context("operation", "drain").
				Build()
		}
		if len(chunk) > 0 {
			chunks = append(chunks, chunk)
			total += len(chunk)
			if sess != nil {
				sess.setBytes(total)
			}
		}
		return nil
	}

	for {
		select {
		case <-ticker.C:
			if err := collect(); err != nil {
				return nil, err
			}
		case <-deadline.C:
			src.Disarm()
			if err := collect(); err != nil {
				return nil, err
			}
			return bytes.Join(chunks, nil), nil
		case <-ctx.Done():
			return nil, errors.New(ctx.Err()).
				Component("recorder").
				Category(errors.CategoryCancellation).
				Context("captured_bytes", total).
				Build()
		}
	}
}

func (r *Recorder) insufficient(n int, enc string) error {
	r.log.Info("sample below minimum size",
		logger.Int("bytes", n),
		logger.Int("min_bytes", r.minBytes),
		logger.String("encoding", enc))
	return errors.Newf("sample too small: %d bytes, need %d", n, r.minBytes).
		Component("recorder").
		Category(errors.CategoryInsufficientAudio).
		Context("bytes", n).
		Context("min_bytes", r.minBytes).
		Build()
}
