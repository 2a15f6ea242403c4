package artwork

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/tphakala/trackid-go/internal/errors"
	"github.com/tphakala/trackid-go/internal/track"
)

// Spotify searches the Spotify catalog with client credentials.
type Spotify struct {
	client *spotify.Client
}

// NewSpotify authenticates with the client credentials flow. Tokens are
// fetched lazily on the first search.
func NewSpotify(clientID, clientSecret string) *Spotify {
	cfg := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     spotifyauth.TokenURL,
	}
	return &Spotify{client: spotify.New(cfg.Client(context.Background()))}
}

// NewSpotifyWithClient uses a preconfigured HTTP client and API base URL.
func NewSpotifyWithClient(hc *http.Client, baseURL string) *Spotify {
	opts := []spotify.ClientOption{}
	if baseURL != "" {
		opts = append(opts, spotify.WithBaseURL(baseURL))
	}
	return &Spotify{client: spotify.New(hc, opts...)}
}

func (p *Spotify) Name() string { return "spotify" }

func (p *Spotify) Fetch(ctx context.Context, t track.Track) (string, error) {
	res, err := p.client.Search(ctx, searchQuery(t), spotify.SearchTypeTrack, spotify.Limit(1))
	if err != nil {
		return "", errors.New(err).
			Component("artwork").
			Category(errors.CategoryArtwork).
			Context("provider", p.Name()).
			Build()
	}
	if res.Tracks == nil || len(res.Tracks.Tracks) == 0 {
		return "", ErrNotFound
	}
	images := res.Tracks.Tracks[0].Album.Images
	if len(images) == 0 {
		return "", ErrNotFound
	}
	// images are ordered widest first
	return images[0].URL, nil
}

func searchQuery(t track.Track) string {
	q := fmt.Sprintf("track:%q", strings.TrimSpace(t.Title))
	if a := strings.TrimSpace(t.Artist); a != "" && a != track.DefaultUnknownArtist {
		q += fmt.Sprintf(" artist:%q", a)
	}
	return q
}
