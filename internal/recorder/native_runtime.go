package recorder

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
	"gopkg.in/hraban/opus.v2"

	"github.com/tphakala/trackid-go/internal/capture"
)

const (
	// opusFrameSamples is 20ms per channel at 48 kHz.
	opusFrameSamples = 960
	maxOpusPacket    = 4000
	wavBitDepth      = 16
	wavPCMFormat     = 1
)

// NativeRuntime encodes in process: WAV through go-audio and Ogg/Opus through
// libopus with an Ogg page writer.
type NativeRuntime struct {
	bitrate int
}

func NewNativeRuntime(bitrate int) *NativeRuntime {
	if bitrate <= 0 {
		bitrate = 64000
	}
	return &NativeRuntime{bitrate: bitrate}
}

func (n *NativeRuntime) Name() string { return "native" }

func (n *NativeRuntime) Supports(_ context.Context, encoding string) bool {
	switch encoding {
	case EncodingWAV, EncodingOggOpus:
		return true
	default:
		return false
	}
}

func (n *NativeRuntime) Encode(_ context.Context, pcm []byte, encoding string) ([]byte, error) {
	switch encoding {
	case EncodingWAV:
		return EncodeWAV(pcm)
	case EncodingOggOpus:
		return EncodeOggOpus(pcm, n.bitrate)
	default:
		return nil, fmt.Errorf("native runtime cannot encode %s", encoding)
	}
}

// EncodeWAV wraps s16le PCM in a WAV container.
func EncodeWAV(pcm []byte) ([]byte, error) {
	out := &seekableBuffer{}
	enc := wav.NewEncoder(out, capture.SampleRate, wavBitDepth, capture.Channels, wavPCMFormat)

	buf := &audio.IntBuffer{
		Data:           pcmToInts(pcm),
		Format:         &audio.Format{SampleRate: capture.SampleRate, NumChannels: capture.Channels},
		SourceBitDepth: wavBitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("failed to write to WAV encoder: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize WAV: %w", err)
	}
	return out.Bytes(), nil
}

// EncodeOggOpus encodes s16le PCM as Opus packets in an Ogg stream. The last
// frame is padded with silence.
func EncodeOggOpus(pcm []byte, bitrate int) ([]byte, error) {
	enc, err := opus.NewEncoder(capture.SampleRate, capture.Channels, opus.AppAudio)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus encoder: %w", err)
	}
	if err := enc.SetBitrate(bitrate); err != nil {
		return nil, fmt.Errorf("failed to set opus bitrate: %w", err)
	}

	var out bytes.Buffer
	ogg, err := oggwriter.NewWith(&out, capture.SampleRate, capture.Channels)
	if err != nil {
		return nil, fmt.Errorf("failed to create ogg writer: %w", err)
	}

	samples := pcmToInt16(pcm)
	frameLen := opusFrameSamples * capture.Channels
	frame := make([]int16, frameLen)
	packet := make([]byte, maxOpusPacket)
	var ts uint32

	for off := 0; off < len(samples); off += frameLen {
		n := copy(frame, samples[off:])
		clear(frame[n:])

		size, err := enc.Encode(frame, packet)
		if err != nil {
			return nil, fmt.Errorf("opus encode failed: %w", err)
		}
		ts += opusFrameSamples
		if err := ogg.WriteRTP(&rtp.Packet{
			Header:  rtp.Header{Timestamp: ts},
			Payload: append([]byte(nil), packet[:size]...),
		}); err != nil {
			return nil, fmt.Errorf("ogg write failed: %w", err)
		}
	}
	if err := ogg.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize ogg stream: %w", err)
	}
	return out.Bytes(), nil
}

func pcmToInts(pcm []byte) []int {
	samples := make([]int, len(pcm)/capture.BytesPerSample)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}
	return samples
}

func pcmToInt16(pcm []byte) []int16 {
	samples := make([]int16, len(pcm)/capture.BytesPerSample)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return samples
}

// seekableBuffer is an in-memory io.WriteSeeker for the WAV encoder, which
// rewrites the header sizes on Close.
type seekableBuffer struct {
	buf []byte
	pos int
}

func (s *seekableBuffer) Write(p []byte) (int, error) {
	end := s.pos + len(p)
	if end > len(s.buf) {
		s.buf = append(s.buf, make([]byte, end-len(s.buf))...)
	}
	copy(s.buf[s.pos:], p)
	s.pos = end
	return len(p), nil
}

func (s *seekableBuffer) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(s.pos) + offset
	case io.SeekEnd:
		abs = int64(len(s.buf)) + offset
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}
	if abs < 0 {
		return 0, fmt.Errorf("negative position %d", abs)
	}
	s.pos = int(abs)
	return abs, nil
}

func (s *seekableBuffer) Bytes() []byte {
	return s.buf
}
