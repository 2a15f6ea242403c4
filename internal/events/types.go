// Package events provides an asynchronous event bus that fans pipeline
// outcomes out to MQTT, notifications, the datastore log and SSE clients
// without blocking the identification path.
package events

import (
	"slices"
	"time"

	"github.com/tphakala/trackid-go/internal/track"
)

// Kind classifies an event.
type Kind string

const (
	// KindIdentified is an accepted identification that entered history.
	KindIdentified Kind = "identified"
	// KindDuplicate is a hit suppressed by the dedup window.
	KindDuplicate Kind = "duplicate"
	// KindMiss is an attempt the recognition backend could not match.
	KindMiss Kind = "miss"
	// KindFailed is an attempt that ended with an error.
	KindFailed Kind = "failed"
	// KindStatus is a status line change.
	KindStatus Kind = "status"
	// KindPlayback is a connection status change.
	KindPlayback Kind = "playback"
	// KindScheduler is an auto-identify state change.
	KindScheduler Kind = "scheduler"
	// KindHistoryCleared is emitted when history is cleared.
	KindHistoryCleared Kind = "history_cleared"
)

// Event is an immutable notification about the pipeline.
type Event struct {
	Kind      Kind          `json:"kind"`
	Timestamp time.Time     `json:"timestamp"`
	SessionID string        `json:"sessionId,omitempty"`
	Trigger   string        `json:"trigger,omitempty"`
	Track     *track.Track  `json:"track,omitempty"`
	Message   string        `json:"message,omitempty"`
	Category  string        `json:"category,omitempty"`
	Error     string        `json:"error,omitempty"`
	State     string        `json:"state,omitempty"`
	Duration  time.Duration `json:"durationNs,omitempty"`
}

// Consumer processes events. ProcessEvent runs on a bus worker and must not
// block for long.
type Consumer interface {
	Name() string
	ProcessEvent(event Event) error
}

// Filter restricts a consumer to some kinds.
type Filter interface {
	Accepts(kind Kind) bool
}

// Kinds is a Filter accepting the listed kinds.
type Kinds []Kind

func (k Kinds) Accepts(kind Kind) bool {
	return slices.Contains(k, kind)
}

// Stats contains runtime statistics for monitoring.
type Stats struct {
	EventsReceived  uint64
	EventsProcessed uint64
	EventsDropped   uint64
	ConsumerErrors  uint64
}
