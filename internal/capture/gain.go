package capture

import (
	"encoding/binary"
	"math"
	"sync/atomic"
)

// Gain is a volume/mute stage applied to s16le PCM. Setters are safe to call
// concurrently with Process.
type Gain struct {
	volume atomic.Uint64 // math.Float64bits
	muted  atomic.Bool
}

// NewGain returns a gain stage with volume clamped to [0,1].
func NewGain(volume float64, muted bool) *Gain {
	g := &Gain{}
	g.SetVolume(volume)
	g.SetMuted(muted)
	return g
}

func (g *Gain) SetVolume(v float64) {
	g.volume.Store(math.Float64bits(clamp01(v)))
}

func (g *Gain) SetMuted(m bool) {
	g.muted.Store(m)
}

func (g *Gain) Volume() float64 {
	return math.Float64frombits(g.volume.Load())
}

func (g *Gain) Muted() bool {
	return g.muted.Load()
}

// Process writes src scaled by the current gain into dst and returns the
// written slice. dst is grown when too small; src is never modified.
func (g *Gain) Process(dst, src []byte) []byte {
	if cap(dst) < len(src) {
		dst = make([]byte, len(src))
	}
	dst = dst[:len(src)]

	if g.Muted() {
		clear(dst)
		return dst
	}
	v := g.Volume()
	if v >= 1 {
		copy(dst, src)
		return dst
	}
	for i := 0; i+1 < len(src); i += BytesPerSample {
		s := int16(binary.LittleEndian.Uint16(src[i:]))
		binary.LittleEndian.PutUint16(dst[i:], uint16(int16(math.Round(float64(s)*v))))
	}
	return dst
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
