package recorder

import (
	"context"
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/trackid-go/internal/errors"
)

const encodersOutput = `Encoders:
 V..... = Video
 A..... = Audio
 S..... = Subtitle
 ------
 V....D libx264              libx264 H.264 / AVC / MPEG-4 AVC / MPEG-4 part 10 (codec h264)
 A....D libvorbis            libvorbis (codec vorbis)
 A....D pcm_s16le            PCM signed 16-bit little-endian
`

const muxersOutput = `File formats:
 D. = Demuxing supported
 .E = Muxing supported
 --
  E matroska        Matroska
  E ogg             Ogg
  E wav             WAV / WAVE (Waveform Audio)
  E webm            WebM
`

type fakeRunner struct {
	mu       sync.Mutex
	calls    [][]string
	stdinLen int
	encoders string
	muxers   string
	err      error
}

func (f *fakeRunner) run(_ context.Context, stdin []byte, name string, args ...string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]string{name}, args...))
	if f.err != nil {
		return nil, f.err
	}
	switch {
	case slices.Contains(args, "-encoders"):
		return []byte(f.encoders), nil
	case slices.Contains(args, "-muxers"):
		return []byte(f.muxers), nil
	default:
		f.stdinLen = len(stdin)
		return []byte("encoded"), nil
	}
}

func TestParseProbeOutput(t *testing.T) {
	t.Parallel()

	enc := parseEncoderList([]byte(encodersOutput))
	assert.True(t, enc["libvorbis"])
	assert.True(t, enc["pcm_s16le"])
	assert.False(t, enc["libx264"], "video encoders are ignored")
	assert.False(t, enc["="])

	mux := parseMuxerList([]byte(muxersOutput))
	assert.True(t, mux["webm"])
	assert.True(t, mux["ogg"])
	assert.False(t, mux["="])
}

func TestFFmpegRuntimeNegotiation(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{encoders: encodersOutput, muxers: muxersOutput}
	rt := NewFFmpegRuntime("/usr/bin/ffmpeg", 64000).WithRunner(runner.run)

	// no libopus: opus encodings are unsupported, plain webm uses vorbis
	enc, err := Negotiate(t.Context(), rt, DefaultEncodings)
	require.NoError(t, err)
	assert.Equal(t, EncodingWebM, enc)
	assert.False(t, rt.Supports(t.Context(), EncodingOggOpus))
	assert.True(t, rt.Supports(t.Context(), EncodingWAV))

	out, err := rt.Encode(t.Context(), make([]byte, 1024), EncodingWebM)
	require.NoError(t, err)
	assert.Equal(t, []byte("encoded"), out)
	assert.Equal(t, 1024, runner.stdinLen)

	// probe ran once: two probe calls plus one encode
	assert.Len(t, runner.calls, 3)
	last := runner.calls[2]
	assert.Equal(t, "/usr/bin/ffmpeg", last[0])
	assert.Contains(t, last, "libvorbis")
	assert.Contains(t, last, "webm")
	assert.Contains(t, last, "64000")
}

func TestFFmpegRuntimeProbeFailure(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{err: errors.NewStd("executable file not found")}
	rt := NewFFmpegRuntime("", 0).WithRunner(runner.run)

	assert.False(t, rt.Supports(t.Context(), EncodingWAV))
	_, err := rt.Encode(t.Context(), []byte{0, 0}, EncodingWAV)
	assert.Error(t, err)

	_, err = Negotiate(t.Context(), rt, DefaultEncodings)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestFFmpegArgs(t *testing.T) {
	t.Parallel()

	rt := NewFFmpegRuntime("ffmpeg", 96000)
	args := rt.Args("libopus", "ogg")
	assert.Contains(t, args, "s16le")
	assert.Contains(t, args, "48000")
	assert.Contains(t, args, "libopus")
	assert.Contains(t, args, "96000")
	assert.Equal(t, "pipe:", args[len(args)-1])

	wav := rt.Args("pcm_s16le", "wav")
	assert.NotContains(t, wav, "-b:a")
}
