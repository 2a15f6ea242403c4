package datastore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/trackid-go/internal/conf"
	"github.com/tphakala/trackid-go/internal/errors"
	"github.com/tphakala/trackid-go/internal/events"
	"github.com/tphakala/trackid-go/internal/history"
	"github.com/tphakala/trackid-go/internal/logger"
	"github.com/tphakala/trackid-go/internal/track"
)

var _ history.Repository = (*Store)(nil)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(&conf.DatastoreSettings{
		Type:   "sqlite",
		SQLite: conf.SQLiteSettings{Path: filepath.Join(t.TempDir(), "db", "trackid.db")},
	}, logger.NewDiscardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleTrack(id, artist, title string, at time.Time) track.Track {
	return track.Track{
		ID:                id,
		Title:             title,
		Artist:            artist,
		Album:             "Album",
		ConfidencePercent: track.Confidence(88),
		Service:           "audd",
		Timestamp:         at,
	}
}

func TestOpenRejectsBadSettings(t *testing.T) {
	t.Parallel()

	_, err := Open(nil, nil)
	require.Error(t, err)

	_, err = Open(&conf.DatastoreSettings{Type: "postgres"}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))

	_, err = Open(&conf.DatastoreSettings{Type: "mysql"}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))

	_, err = Open(&conf.DatastoreSettings{Type: "sqlite"}, nil)
	require.Error(t, err)
}

func TestMySQLDSN(t *testing.T) {
	t.Parallel()

	dsn := mysqlDSN(conf.MySQLSettings{Host: "db", Username: "u", Password: "p", Database: "tracks"})
	assert.Equal(t, "u:p@tcp(db:3306)/tracks?charset=utf8mb4&parseTime=True&loc=Local", dsn)
}

func TestTrackRoundTripAndOrder(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := t.Context()
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveTrack(ctx, sampleTrack("a", "M83", "Midnight City", base)))
	require.NoError(t, s.SaveTrack(ctx, sampleTrack("b", "Daft Punk", "Veridis Quo", base.Add(time.Minute))))
	require.NoError(t, s.SaveTrack(ctx, sampleTrack("c", "M83", "Wait", base.Add(2*time.Minute))))

	got, err := s.RecentTracks(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].ID)
	assert.Equal(t, "b", got[1].ID)
	require.NotNil(t, got[0].ConfidencePercent)
	assert.Equal(t, 88, *got[0].ConfidencePercent)
	assert.True(t, got[1].Timestamp.Equal(base.Add(time.Minute)))

	top, err := s.TopArtists(ctx, 5)
	require.NoError(t, err)
	require.NotEmpty(t, top)
	assert.Equal(t, ArtistCount{Artist: "M83", Count: 2}, top[0])
}

func TestSaveTrackUpserts(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := t.Context()
	now := time.Now().UTC()

	tr := sampleTrack("a", "M83", "Midnight City", now)
	require.NoError(t, s.SaveTrack(ctx, tr))
	require.NoError(t, s.SaveTrack(ctx, tr.WithArtwork("https://img/x.jpg")))

	got, err := s.RecentTracks(ctx, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "https://img/x.jpg", got[0].Artwork)
}

func TestSaveTrackKeepsEveryAiring(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := t.Context()
	base := time.Now().UTC().Add(-4 * time.Hour).Truncate(time.Second)

	airing := func(at time.Time) track.Track {
		tr := sampleTrack(track.NewID(), "M83", "Midnight City", at)
		tr.ServiceID = "abc123"
		return tr
	}

	h := history.NewStore(history.DefaultCapacity, s, logger.NewDiscardLogger())
	assert.Zero(t, h.Add(ctx, airing(base)))
	assert.Zero(t, h.Add(ctx, airing(base.Add(3*time.Hour))))
	require.Len(t, h.List(), 2)

	got, err := s.RecentTracks(ctx, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.NotEqual(t, got[0].ID, got[1].ID)
	for _, tr := range got {
		assert.Equal(t, "abc123", tr.ServiceID)
	}

	reloaded := history.NewStore(history.DefaultCapacity, s, logger.NewDiscardLogger())
	require.NoError(t, reloaded.Load(ctx))
	list := reloaded.List()
	require.Len(t, list, 2)
	assert.True(t, list[0].Timestamp.Equal(base.Add(3*time.Hour)))
	assert.True(t, list[1].Timestamp.Equal(base))
}

func TestClearTracksKeepsAttempts(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := t.Context()

	require.NoError(t, s.SaveTrack(ctx, sampleTrack("a", "M83", "Wait", time.Now())))
	require.NoError(t, s.SaveAttempt(ctx, &AttemptRecord{Outcome: "identified"}))
	require.NoError(t, s.ClearTracks(ctx))

	got, err := s.RecentTracks(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, got)

	attempts, err := s.RecentAttempts(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, attempts, 1)
}

func TestHistoryLoadsFromStore(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := t.Context()
	base := time.Now().UTC().Add(-time.Hour)

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.SaveTrack(ctx, sampleTrack(id, "Artist", id, base.Add(time.Duration(i)*time.Minute))))
	}

	h := history.NewStore(2, s, logger.NewDiscardLogger())
	require.NoError(t, h.Load(ctx))
	list := h.List()
	require.Len(t, list, 2)
	assert.Equal(t, "c", list[0].ID)
	assert.Equal(t, "b", list[1].ID)
}

func TestAttemptLoggerAndStats(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := t.Context()
	al := NewAttemptLogger(s)

	assert.True(t, al.Accepts(events.KindMiss))
	assert.False(t, al.Accepts(events.KindStatus))

	now := time.Now().UTC()
	tr := sampleTrack("a", "M83", "Wait", now)
	for _, e := range []events.Event{
		{Kind: events.KindIdentified, Timestamp: now, Trigger: "manual", Track: &tr, Duration: 1500 * time.Millisecond},
		{Kind: events.KindDuplicate, Timestamp: now, Trigger: "scheduled", Track: &tr},
		{Kind: events.KindMiss, Timestamp: now, Trigger: "scheduled"},
		{Kind: events.KindFailed, Timestamp: now, Trigger: "manual", Category: "insufficient-audio", Message: "Sample too small, try again"},
	} {
		require.NoError(t, al.ProcessEvent(e))
	}

	attempts, err := s.RecentAttempts(ctx, 10)
	require.NoError(t, err)
	require.Len(t, attempts, 4)

	st, err := s.Stats(ctx, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, int64(4), st.Total)
	assert.Equal(t, int64(1), st.ByOutcome["miss"])
	assert.InDelta(t, 0.5, st.HitRate(), 1e-9)

	n, err := s.PruneAttempts(ctx, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
}

func TestTruncate(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "äö", truncate("äöü", 2))
}
