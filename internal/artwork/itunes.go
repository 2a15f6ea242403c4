package artwork

import (
	"context"
	"net/url"
	"strings"

	"github.com/antonholmquist/jason"
	"golang.org/x/time/rate"

	"github.com/tphakala/trackid-go/internal/errors"
	"github.com/tphakala/trackid-go/internal/httpclient"
	"github.com/tphakala/trackid-go/internal/track"
)

const (
	DefaultITunesEndpoint = "https://itunes.apple.com/search"
	itunesSmallSize       = "100x100"
	itunesLargeSize       = "600x600"
	itunesMaxBody         = 512 << 10
)

// ITunesConfig configures the iTunes Search provider.
type ITunesConfig struct {
	Endpoint  string
	Country   string
	RateLimit float64 // requests per second, 0 disables limiting
}

// ITunes queries the iTunes Search API for song artwork.
type ITunes struct {
	cfg     ITunesConfig
	http    *httpclient.Client
	limiter *rate.Limiter
}

func NewITunes(cfg ITunesConfig, client *httpclient.Client) *ITunes {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultITunesEndpoint
	}
	if client == nil {
		client = httpclient.New(nil)
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	return &ITunes{cfg: cfg, http: client, limiter: rate.NewLimiter(limit, 1)}
}

func (p *ITunes) Name() string { return "itunes" }

func (p *ITunes) Fetch(ctx context.Context, t track.Track) (string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return "", p.fail(err, "rate_limit")
	}

	q := url.Values{}
	q.Set("term", t.Query())
	q.Set("entity", "song")
	q.Set("media", "music")
	q.Set("limit", "1")
	if p.cfg.Country != "" {
		q.Set("country", p.cfg.Country)
	}

	resp, err := p.http.Get(ctx, p.cfg.Endpoint, q)
	if err != nil {
		return "", p.fail(err, "request")
	}
	body, err := httpclient.ReadBody(resp, itunesMaxBody)
	if err != nil {
		return "", p.fail(err, "response")
	}

	root, err := jason.NewObjectFromBytes(body)
	if err != nil {
		return "", p.fail(err, "parse")
	}
	results, err := root.GetObjectArray("results")
	if err != nil || len(results) == 0 {
		return "", ErrNotFound
	}
	small, err := results[0].GetString("artworkUrl100")
	if err != nil || small == "" {
		return "", ErrNotFound
	}
	return strings.Replace(small, itunesSmallSize, itunesLargeSize, 1), nil
}

func (p *ITunes) fail(err error, stage string) error {
	return errors.New(err).
		Component("artwork").
		Category(errors.CategoryArtwork).
		Context("provider", p.Name()).
		Context("stage", stage).
		Build()
}
