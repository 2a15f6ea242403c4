// Package notification sends push notifications for pipeline events through
// shoutrrr services.
package notification

import (
	"context"
	"fmt"
	"strings"

	"github.com/tphakala/trackid-go/internal/events"
	"github.com/tphakala/trackid-go/internal/logger"
)

// Type classifies a notification.
type Type string

const (
	TypeNowPlaying Type = "now_playing"
	TypeError      Type = "error"
)

// Notification is one message sent to every provider supporting its type.
type Notification struct {
	Type     Type
	Title    string
	Message  string
	ImageURL string
}

// Provider defines a push delivery backend.
// Implementations must be safe for concurrent use.
type Provider interface {
	GetName() string
	ValidateConfig() error
	Send(ctx context.Context, n *Notification) error
	SupportsType(notifType Type) bool
	IsEnabled() bool
}

// FromEvent builds the notification for a bus event. ok is false for kinds
// that are not notified.
func FromEvent(e events.Event) (n *Notification, ok bool) {
	switch e.Kind {
	case events.KindIdentified:
		if e.Track == nil {
			return nil, false
		}
		msg := e.Track.String()
		if e.Track.Album != "" {
			msg += fmt.Sprintf(" (%s)", e.Track.Album)
		}
		if e.Track.ConfidencePercent != nil {
			msg += fmt.Sprintf(", %d%% match", *e.Track.ConfidencePercent)
		}
		return &Notification{
			Type:     TypeNowPlaying,
			Title:    "Now playing",
			Message:  msg,
			ImageURL: e.Track.Artwork,
		}, true
	case events.KindFailed:
		if e.Category == "" || strings.EqualFold(e.Category, "in-progress") {
			return nil, false
		}
		return &Notification{
			Type:    TypeError,
			Title:   "Identification failed",
			Message: e.Message,
		}, true
	default:
		return nil, false
	}
}

// GetLogger returns the notification module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("notification")
}
