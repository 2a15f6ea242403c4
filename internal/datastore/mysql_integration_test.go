//go:build integration

package datastore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcmysql "github.com/testcontainers/testcontainers-go/modules/mysql"

	"github.com/tphakala/trackid-go/internal/conf"
	"github.com/tphakala/trackid-go/internal/logger"
)

// Run with: go test -tags integration ./internal/datastore/ (requires Docker)
func TestMySQLStore(t *testing.T) {
	ctx := t.Context()

	ctr, err := tcmysql.Run(ctx, "mysql:8.0.36",
		tcmysql.WithDatabase("trackid"),
		tcmysql.WithUsername("trackid"),
		tcmysql.WithPassword("trackid"),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	host, err := ctr.Host(ctx)
	require.NoError(t, err)
	port, err := ctr.MappedPort(ctx, "3306/tcp")
	require.NoError(t, err)

	s, err := Open(&conf.DatastoreSettings{
		Type: "mysql",
		MySQL: conf.MySQLSettings{
			Host:     host,
			Port:     port.Int(),
			Username: "trackid",
			Password: "trackid",
			Database: "trackid",
		},
	}, logger.NewDiscardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	assert.Equal(t, "mysql", s.Dialect())
	require.NoError(t, s.Ping(ctx))

	base := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.SaveTrack(ctx, sampleTrack("a", "M83", "Midnight City", base)))
	require.NoError(t, s.SaveTrack(ctx, sampleTrack("b", "M83", "Wait", base.Add(time.Minute))))
	// upsert on the unique track id
	require.NoError(t, s.SaveTrack(ctx, sampleTrack("b", "M83", "Wait", base.Add(time.Minute)).WithArtwork("https://img/w.jpg")))

	got, err := s.RecentTracks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ID)
	assert.Equal(t, "https://img/w.jpg", got[0].Artwork)

	top, err := s.TopArtists(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []ArtistCount{{Artist: "M83", Count: 2}}, top)

	require.NoError(t, s.SaveAttempt(ctx, &AttemptRecord{Trigger: "manual", Outcome: "miss"}))
	st, err := s.Stats(ctx, base.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.Total)
}
