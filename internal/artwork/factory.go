package artwork

import (
	"github.com/tphakala/trackid-go/internal/conf"
	"github.com/tphakala/trackid-go/internal/errors"
	"github.com/tphakala/trackid-go/internal/httpclient"
)

// NewFromSettings builds the configured provider behind a cache. It returns
// nil when artwork enrichment is disabled.
func NewFromSettings(s *conf.ArtworkSettings, client *httpclient.Client) (*Cache, error) {
	if !s.Enabled {
		return nil, nil
	}
	var p Provider
	switch s.Provider {
	case "", "itunes":
		p = NewITunes(ITunesConfig{
			Endpoint:  s.ITunes.Endpoint,
			Country:   s.ITunes.Country,
			RateLimit: s.ITunes.RateLimit,
		}, client)
	case "spotify":
		if s.Spotify.ClientID == "" || s.Spotify.ClientSecret == "" {
			return nil, errors.Newf("spotify artwork requires client credentials").
				Component("artwork").
				Category(errors.CategoryConfiguration).
				Build()
		}
		p = NewSpotify(s.Spotify.ClientID, s.Spotify.ClientSecret)
	default:
		return nil, errors.Newf("unknown artwork provider %q", s.Provider).
			Component("artwork").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return NewCache(p, s.CacheTTL, nil), nil
}
