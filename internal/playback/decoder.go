package playback

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/tphakala/trackid-go/internal/capture"
	"github.com/tphakala/trackid-go/internal/errors"
	"github.com/tphakala/trackid-go/internal/logger"
)

// Decoder opens a stream URL and returns interleaved s16le PCM at the
// capture package rate and channel count. Closing the reader ends decoding.
type Decoder interface {
	Open(ctx context.Context, url string) (io.ReadCloser, error)
}

const (
	maxStderrBytes  = 8 << 10
	processWaitTime = 5 * time.Second
)

// FFmpegDecoder runs one ffmpeg child process per opened stream.
type FFmpegDecoder struct {
	FfmpegPath string
	log        logger.Logger
}

func NewFFmpegDecoder(ffmpegPath string) *FFmpegDecoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &FFmpegDecoder{FfmpegPath: ffmpegPath, log: GetLogger()}
}

// BuildArgs returns the ffmpeg arguments decoding url to raw PCM on stdout.
func BuildArgs(url string) []string {
	input := ffmpeg.KwArgs{}
	if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
		input["reconnect"] = "1"
		input["reconnect_streamed"] = "1"
		input["reconnect_delay_max"] = "5"
	}
	stream := ffmpeg.Input(url, input).
		Output("pipe:", ffmpeg.KwArgs{
			"vn": "",
			"f":  "s16le",
			"ar": strconv.Itoa(capture.SampleRate),
			"ac": strconv.Itoa(capture.Channels),
		})
	return append([]string{"-hide_banner", "-loglevel", "error", "-nostdin"}, stream.GetArgs()...)
}

func (d *FFmpegDecoder) Open(ctx context.Context, url string) (io.ReadCloser, error) {
	if url == "" {
		return nil, fmt.Errorf("stream url is empty")
	}
	procCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(procCtx, d.FfmpegPath, BuildArgs(url)...) //nolint:gosec // G204: path from validated settings, args built internally
	cmd.WaitDelay = processWaitTime
	stderr := &boundedWriter{limit: maxStderrBytes}
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}
	d.log.Debug("decoder started", logger.Int("pid", cmd.Process.Pid))

	return &processStream{ReadCloser: stdout, cmd: cmd, cancel: cancel, stderr: stderr, log: d.log}, nil
}

type processStream struct {
	io.ReadCloser
	cmd    *exec.Cmd
	cancel context.CancelFunc
	stderr *boundedWriter
	log    logger.Logger
	once   sync.Once
	err    error
}

// Read wraps EOF with the process stderr so stream drops carry a reason.
func (s *processStream) Read(p []byte) (int, error) {
	n, err := s.ReadCloser.Read(p)
	if errors.Is(err, io.EOF) {
		if msg := strings.TrimSpace(s.stderr.String()); msg != "" {
			return n, fmt.Errorf("%w: %s", io.EOF, msg)
		}
	}
	return n, err
}

func (s *processStream) Close() error {
	s.once.Do(func() {
		s.cancel()
		err := s.cmd.Wait()
		if err != nil && !isKilled(err) {
			s.err = fmt.Errorf("ffmpeg exited: %w", err)
		}
		s.log.Debug("decoder stopped", logger.Int("pid", s.cmd.Process.Pid))
	})
	return s.err
}

func isKilled(err error) bool {
	var exitErr *exec.ExitError
	return errors.As(err, &exitErr) && !exitErr.Exited()
}

// boundedWriter keeps the first limit bytes written to it.
type boundedWriter struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	limit int
}

func (w *boundedWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if room := w.limit - w.buf.Len(); room > 0 {
		w.buf.Write(p[:min(room, len(p))])
	}
	return len(p), nil
}

func (w *boundedWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String()
}
