package recorder

import (
	"context"
	"fmt"
	"strings"
)

// CompositeRuntime asks each runtime in order; the first that supports an
// encoding encodes it.
type CompositeRuntime []Runtime

func (c CompositeRuntime) Name() string {
	names := make([]string, 0, len(c))
	for _, r := range c {
		names = append(names, r.Name())
	}
	return strings.Join(names, "+")
}

func (c CompositeRuntime) Supports(ctx context.Context, encoding string) bool {
	return c.pick(ctx, encoding) != nil
}

func (c CompositeRuntime) Encode(ctx context.Context, pcm []byte, encoding string) ([]byte, error) {
	r := c.pick(ctx, encoding)
	if r == nil {
		return nil, fmt.Errorf("no runtime can encode %s", encoding)
	}
	return r.Encode(ctx, pcm, encoding)
}

func (c CompositeRuntime) pick(ctx context.Context, encoding string) Runtime {
	for _, r := range c {
		if r.Supports(ctx, encoding) {
			return r
		}
	}
	return nil
}

// DefaultRuntime prefers ffmpeg and falls back to in-process encoders.
func DefaultRuntime(ffmpegPath string, bitrate int) Runtime {
	return CompositeRuntime{NewFFmpegRuntime(ffmpegPath, bitrate), NewNativeRuntime(bitrate)}
}
