package datastore

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tphakala/trackid-go/internal/track"
)

// SaveTrack upserts t by its track id. Each identification has its own id, so
// repeated airings of one recording are stored as separate rows.
func (s *Store) SaveTrack(ctx context.Context, t track.Track) error {
	rec := newTrackRecord(t)
	err := s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "track_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"title", "artist", "album", "artwork", "confidence_percent", "identified_at"}),
		}).
		Create(&rec).Error
	if err != nil {
		return dbError(err, "save_track")
	}
	return nil
}

// RecentTracks returns up to limit tracks, newest first.
func (s *Store) RecentTracks(ctx context.Context, limit int) ([]track.Track, error) {
	var recs []TrackRecord
	q := s.DB.WithContext(ctx).Order("identified_at DESC").Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&recs).Error; err != nil {
		return nil, dbError(err, "recent_tracks")
	}
	out := make([]track.Track, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Track())
	}
	return out, nil
}

// ClearTracks deletes every stored track. The attempt log is kept.
func (s *Store) ClearTracks(ctx context.Context) error {
	err := s.DB.WithContext(ctx).
		Session(&gorm.Session{AllowGlobalUpdate: true}).
		Delete(&TrackRecord{}).Error
	if err != nil {
		return dbError(err, "clear_tracks")
	}
	return nil
}

// ArtistCount is the number of stored tracks by one artist.
type ArtistCount struct {
	Artist string
	Count  int64
}

// TopArtists returns the most frequently identified artists.
func (s *Store) TopArtists(ctx context.Context, limit int) ([]ArtistCount, error) {
	var rows []ArtistCount
	err := s.DB.WithContext(ctx).
		Model(&TrackRecord{}).
		Select("artist, COUNT(*) AS count").
		Group("artist").
		Order("count DESC").
		Order("artist").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, dbError(err, "top_artists")
	}
	return rows, nil
}
