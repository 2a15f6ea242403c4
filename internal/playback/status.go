// Package playback plays a live radio stream: an ffmpeg decoder turns the
// stream into PCM, a pump feeds it to the audible output or, once attached,
// to the capture graph.
package playback

import (
	"fmt"

	"github.com/tphakala/trackid-go/internal/errors"
)

// ConnectionStatus is the connection state of the player. Capture operations
// are only allowed while StatusConnected.
type ConnectionStatus int

const (
	StatusIdle ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusError
)

func (s ConnectionStatus) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// MarshalText renders the status name in JSON payloads.
func (s ConnectionStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ErrConnection matches any failure to start or keep the stream playing.
var ErrConnection = errors.Newf("stream connection failed").
	Component("playback").
	Category(errors.CategoryConnection).
	Build()

func connectionError(err error, url, stage string) error {
	return errors.New(err).
		Component("playback").
		Category(errors.CategoryConnection).
		NetworkContext(url, 0).
		Context("stage", stage).
		Build()
}
