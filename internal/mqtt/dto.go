package mqtt

import (
	"time"

	"github.com/tphakala/trackid-go/internal/track"
)

// NowPlayingDTO is the JSON payload published on the state topic.
//
// Field names are consumed by Home Assistant value templates; do not rename
// existing fields.
type NowPlayingDTO struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Artist      string    `json:"artist"`
	Album       string    `json:"album,omitempty"`
	Artwork     string    `json:"artwork,omitempty"`
	Duration    int       `json:"duration,omitempty"` // seconds
	ReleaseDate string    `json:"releaseDate,omitempty"`
	Confidence  *int      `json:"confidence,omitempty"`
	Service     string    `json:"service"`
	Trigger     string    `json:"trigger,omitempty"`
	Stream      string    `json:"stream,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewNowPlayingDTO maps a track to the published payload.
func NewNowPlayingDTO(t *track.Track, trigger, stream string) NowPlayingDTO {
	return NowPlayingDTO{
		ID:          t.ID,
		Title:       t.Title,
		Artist:      t.Artist,
		Album:       t.Album,
		Artwork:     t.Artwork,
		Duration:    t.DurationSeconds,
		ReleaseDate: t.ReleaseDate,
		Confidence:  t.ConfidencePercent,
		Service:     t.Service,
		Trigger:     trigger,
		Stream:      stream,
		Timestamp:   t.Timestamp,
	}
}
