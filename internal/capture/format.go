// Package capture builds the audio tap that sits between the playback source
// and the audible output.
package capture

import "time"

// PCM layout shared by decoder, graph and recorder: interleaved signed
// 16-bit little endian.
const (
	SampleRate     = 48000
	Channels       = 2
	BytesPerSample = 2
	FrameBytes     = Channels * BytesPerSample
	BytesPerSecond = SampleRate * FrameBytes
)

// BytesFor returns the PCM byte count for d, aligned to whole frames.
func BytesFor(d time.Duration) int {
	n := int(d.Seconds() * BytesPerSecond)
	return n - n%FrameBytes
}

// DurationOf returns the playback duration of n PCM bytes.
func DurationOf(n int) time.Duration {
	return time.Duration(float64(n) / BytesPerSecond * float64(time.Second))
}
