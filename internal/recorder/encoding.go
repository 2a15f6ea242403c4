// Package recorder captures a fixed window of audio from the capture tap and
// encodes it into a sample suitable for recognition.
package recorder

import (
	"context"
	"strings"

	"github.com/tphakala/trackid-go/internal/errors"
)

// Encodings understood by the runtimes, in default preference order.
const (
	EncodingWebMOpus = "audio/webm;codecs=opus"
	EncodingWebM     = "audio/webm"
	EncodingOggOpus  = "audio/ogg;codecs=opus"
	EncodingWAV      = "audio/wav"
)

// DefaultEncodings tries opus in a container first and plain WAV last.
var DefaultEncodings = []string{EncodingWebMOpus, EncodingWebM, EncodingOggOpus, EncodingWAV}

// Runtime encodes PCM into container formats. Supports must be cheap after
// the first call.
type Runtime interface {
	Name() string
	Supports(ctx context.Context, encoding string) bool
	Encode(ctx context.Context, pcm []byte, encoding string) ([]byte, error)
}

// ErrUnsupportedFormat matches a failed encoding negotiation.
var ErrUnsupportedFormat = errors.Newf("no supported audio encoding").
	Component("recorder").
	Category(errors.CategoryUnsupportedFormat).
	Build()

// Negotiate returns the first encoding in prefs that rt supports.
func Negotiate(ctx context.Context, rt Runtime, prefs []string) (string, error) {
	if rt != nil {
		for _, enc := range prefs {
			if rt.Supports(ctx, normalizeEncoding(enc)) {
				return normalizeEncoding(enc), nil
			}
		}
	}
	name := "none"
	if rt != nil {
		name = rt.Name()
	}
	return "", errors.Newf("none of %v is supported by runtime %s", prefs, name).
		Component("recorder").
		Category(errors.CategoryUnsupportedFormat).
		Context("runtime", name).
		Build()
}

// normalizeEncoding lowercases and strips spaces around parameters.
func normalizeEncoding(enc string) string {
	parts := strings.Split(enc, ";")
	for i := range parts {
		parts[i] = strings.ToLower(strings.TrimSpace(parts[i]))
	}
	return strings.Join(parts, ";")
}

// Extension returns the file extension conventionally used for enc.
func Extension(enc string) string {
	switch {
	case strings.HasPrefix(enc, "audio/webm"):
		return "webm"
	case strings.HasPrefix(enc, "audio/ogg"):
		return "ogg"
	case strings.HasPrefix(enc, "audio/wav"):
		return "wav"
	default:
		return "bin"
	}
}
