package recorder

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/tphakala/trackid-go/internal/capture"
	"github.com/tphakala/trackid-go/internal/logger"
)

const probeTimeout = 10 * time.Second

// codecPlan is the ffmpeg encoder and muxer used for an encoding. Encoders
// are listed by preference.
type codecPlan struct {
	encoders []string
	muxer    string
}

var ffmpegPlans = map[string]codecPlan{
	EncodingWebMOpus: {encoders: []string{"libopus", "opus"}, muxer: "webm"},
	EncodingWebM:     {encoders: []string{"libopus", "libvorbis", "opus"}, muxer: "webm"},
	EncodingOggOpus:  {encoders: []string{"libopus", "opus"}, muxer: "ogg"},
	EncodingWAV:      {encoders: []string{"pcm_s16le"}, muxer: "wav"},
}

// CommandRunner runs an external command and returns its stdout.
type CommandRunner func(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error)

// FFmpegRuntime encodes through an ffmpeg child process. Available encoders
// and muxers are probed once.
type FFmpegRuntime struct {
	path    string
	bitrate int
	run     CommandRunner
	log     logger.Logger

	probeOnce sync.Once
	encoders  map[string]bool
	muxers    map[string]bool
	probeErr  error
}

func NewFFmpegRuntime(path string, bitrate int) *FFmpegRuntime {
	if path == "" {
		path = "ffmpeg"
	}
	if bitrate <= 0 {
		bitrate = 64000
	}
	return &FFmpegRuntime{path: path, bitrate: bitrate, run: runCommand, log: GetLogger().Module("ffmpeg")}
}

// WithRunner replaces the command runner, used by tests.
func (f *FFmpegRuntime) WithRunner(r CommandRunner) *FFmpegRuntime {
	f.run = r
	return f
}

func (f *FFmpegRuntime) Name() string { return "ffmpeg" }

func (f *FFmpegRuntime) Supports(ctx context.Context, encoding string) bool {
	_, _, ok := f.plan(ctx, encoding)
	return ok
}

// plan resolves the encoder and muxer ffmpeg will use for encoding.
func (f *FFmpegRuntime) plan(ctx context.Context, encoding string) (encoder, muxer string, ok bool) {
	p, known := ffmpegPlans[encoding]
	if !known {
		return "", "", false
	}
	f.probe(ctx)
	if f.probeErr != nil || !f.muxers[p.muxer] {
		return "", "", false
	}
	for _, e := range p.encoders {
		if f.encoders[e] {
			return e, p.muxer, true
		}
	}
	return "", "", false
}

func (f *FFmpegRuntime) probe(ctx context.Context) {
	f.probeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), probeTimeout)
		defer cancel()

		enc, err := f.run(ctx, nil, f.path, "-hide_banner", "-encoders")
		if err != nil {
			f.probeErr = fmt.Errorf("probe ffmpeg encoders: %w", err)
			f.log.Warn("ffmpeg probe failed", logger.Error(f.probeErr))
			return
		}
		mux, err := f.run(ctx, nil, f.path, "-hide_banner", "-muxers")
		if err != nil {
			f.probeErr = fmt.Errorf("probe ffmpeg muxers: %w", err)
			f.log.Warn("ffmpeg probe failed", logger.Error(f.probeErr))
			return
		}
		f.encoders = parseEncoderList(enc)
		f.muxers = parseMuxerList(mux)
		f.log.Debug("ffmpeg probed",
			logger.Int("encoders", len(f.encoders)),
			logger.Int("muxers", len(f.muxers)))
	})
}

// Args returns the ffmpeg command line encoding stdin PCM to stdout.
func (f *FFmpegRuntime) Args(encoder, muxer string) []string {
	out := ffmpeg.KwArgs{"c:a": encoder, "f": muxer}
	if encoder != "pcm_s16le" {
		out["b:a"] = strconv.Itoa(f.bitrate)
	}
	in := ffmpeg.KwArgs{
		"f":  "s16le",
		"ar": strconv.Itoa(capture.SampleRate),
		"ac": strconv.Itoa(capture.Channels),
	}
	args := ffmpeg.Input("pipe:", in).Output("pipe:", out).GetArgs()
	return append([]string{"-hide_banner", "-loglevel", "error", "-nostdin"}, args...)
}

func (f *FFmpegRuntime) Encode(ctx context.Context, pcm []byte, encoding string) ([]byte, error) {
	encoder, muxer, ok := f.plan(ctx, encoding)
	if !ok {
		return nil, fmt.Errorf("ffmpeg cannot encode %s", encoding)
	}
	start := time.Now()
	out, err := f.run(ctx, pcm, f.path, f.Args(encoder, muxer)...)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg encode %s: %w", encoding, err)
	}
	f.log.Debug("sample encoded",
		logger.String("encoding", encoding),
		logger.String("encoder", encoder),
		logger.Int("pcm_bytes", len(pcm)),
		logger.Int("encoded_bytes", len(out)),
		logger.Duration("duration", time.Since(start)))
	return out, nil
}

func runCommand(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec // G204: path from validated settings, args built internally
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	return stdout.Bytes(), nil
}

// parseEncoderList reads `ffmpeg -encoders` output. Entries follow a dashed
// separator line; the first flag is the media type.
func parseEncoderList(out []byte) map[string]bool {
	found := make(map[string]bool)
	for _, fields := range listEntries(out) {
		if len(fields[0]) == 6 && fields[0][0] == 'A' {
			found[fields[1]] = true
		}
	}
	return found
}

// parseMuxerList reads `ffmpeg -muxers` output. An E flag marks muxing
// support and names may be comma separated.
func parseMuxerList(out []byte) map[string]bool {
	found := make(map[string]bool)
	for _, fields := range listEntries(out) {
		if !strings.Contains(fields[0], "E") {
			continue
		}
		for name := range strings.SplitSeq(fields[1], ",") {
			found[name] = true
		}
	}
	return found
}

// listEntries returns the whitespace separated fields of every line after
// the first separator line, skipping lines with fewer than two fields.
func listEntries(out []byte) [][]string {
	var entries [][]string
	sc := bufio.NewScanner(bytes.NewReader(out))
	inList := false
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		if !inList {
			inList = strings.HasPrefix(fields[0], "--")
			continue
		}
		if len(fields) >= 2 {
			entries = append(entries, fields)
		}
	}
	return entries
}
