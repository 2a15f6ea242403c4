// Package track defines the normalized identification result shared by the
// identify, dedup, history and presentation layers.
package track

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultUnknownArtist is substituted when a recognition service omits the artist.
const DefaultUnknownArtist = "Unknown Artist"

// Track is an identification result. Values are treated as immutable; the
// With* helpers return modified copies.
type Track struct {
	ID                string    `json:"id"`
	ServiceID         string    `json:"serviceId,omitempty"`
	Title             string    `json:"title"`
	Artist            string    `json:"artist"`
	Album             string    `json:"album,omitempty"`
	Artwork           string    `json:"artwork,omitempty"`
	DurationSeconds   int       `json:"durationSeconds,omitempty"`
	ReleaseDate       string    `json:"releaseDate,omitempty"`
	ConfidencePercent *int      `json:"confidencePercent,omitempty"`
	Service           string    `json:"service"`
	Timestamp         time.Time `json:"timestamp"`
}

// NewID mints the id of one identification. Service-side recording ids are
// kept in ServiceID since the same recording can be identified many times.
func NewID() string {
	return uuid.NewString()
}

// Confidence returns a pointer to p clamped to 0..100.
func Confidence(p int) *int {
	p = max(0, min(100, p))
	return &p
}

// WithArtwork returns a copy of t with the artwork URL set.
func (t Track) WithArtwork(artworkURL string) Track {
	t.Artwork = artworkURL
	return t
}

// WithTimestamp returns a copy of t stamped with the capture completion time.
func (t Track) WithTimestamp(ts time.Time) Track {
	t.Timestamp = ts.UTC()
	return t
}

// HasArtwork reports whether t carries a usable artwork URL.
func (t Track) HasArtwork() bool {
	a := strings.TrimSpace(t.Artwork)
	return strings.HasPrefix(a, "http://") || strings.HasPrefix(a, "https://")
}

// Query is the free text "<artist> <title>" used for catalog and web searches.
func (t Track) Query() string {
	return strings.TrimSpace(strings.TrimSpace(t.Artist) + " " + strings.TrimSpace(t.Title))
}

// SearchURL fills a URL template with the escaped search query. The template
// must contain exactly one %s verb.
func (t Track) SearchURL(template string) string {
	if template == "" || strings.Count(template, "%s") != 1 {
		return ""
	}
	return fmt.Sprintf(template, url.QueryEscape(t.Query()))
}

// String renders "Artist - Title".
func (t Track) String() string {
	return t.Artist + " - " + t.Title
}
