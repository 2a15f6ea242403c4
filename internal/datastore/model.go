// model.go defines the persisted identification records
package datastore

import (
	"time"

	"github.com/tphakala/trackid-go/internal/track"
)

// TrackRecord is one accepted identification.
type TrackRecord struct {
	ID                uint   `gorm:"primaryKey"`
	TrackID           string `gorm:"uniqueIndex;size:64;not null"`
	ServiceID         string `gorm:"index:idx_tracks_service_id;size:64"`
	Title             string `gorm:"index:idx_tracks_title_artist;size:255"`
	Artist            string `gorm:"index:idx_tracks_title_artist;size:255"`
	Album             string `gorm:"size:255"`
	Artwork           string `gorm:"size:1024"`
	DurationSeconds   int
	ReleaseDate       string `gorm:"size:32"`
	ConfidencePercent *int
	Service           string    `gorm:"size:32"`
	IdentifiedAt      time.Time `gorm:"index:idx_tracks_identified_at"`
	CreatedAt         time.Time
}

func (TrackRecord) TableName() string { return "tracks" }

// AttemptRecord is one finished identification attempt, whatever its outcome.
type AttemptRecord struct {
	ID         uint   `gorm:"primaryKey"`
	SessionID  string `gorm:"size:64"`
	Trigger    string `gorm:"size:16;index:idx_attempts_trigger"`
	Outcome    string `gorm:"size:16;index:idx_attempts_outcome"`
	Category   string `gorm:"size:32"`
	Message    string `gorm:"size:255"`
	TrackID    string `gorm:"size:64"`
	Title      string `gorm:"size:255"`
	Artist     string `gorm:"size:255"`
	DurationMs int64
	CreatedAt  time.Time `gorm:"index:idx_attempts_created_at"`
}

func (AttemptRecord) TableName() string { return "attempts" }

func newTrackRecord(t track.Track) TrackRecord {
	ts := t.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return TrackRecord{
		TrackID:           t.ID,
		ServiceID:         t.ServiceID,
		Title:             t.Title,
		Artist:            t.Artist,
		Album:             t.Album,
		Artwork:           t.Artwork,
		DurationSeconds:   t.DurationSeconds,
		ReleaseDate:       t.ReleaseDate,
		ConfidencePercent: t.ConfidencePercent,
		Service:           t.Service,
		IdentifiedAt:      ts.UTC(),
	}
}

// Track converts the record back into the shared track type.
func (r TrackRecord) Track() track.Track {
	return track.Track{
		ID:                r.TrackID,
		ServiceID:         r.ServiceID,
		Title:             r.Title,
		Artist:            r.Artist,
		Album:             r.Album,
		Artwork:           r.Artwork,
		DurationSeconds:   r.DurationSeconds,
		ReleaseDate:       r.ReleaseDate,
		ConfidencePercent: r.ConfidencePercent,
		Service:           r.Service,
		Timestamp:         r.IdentifiedAt.UTC(),
	}
}
