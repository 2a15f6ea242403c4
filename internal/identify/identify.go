// Package identify submits recorded samples to recognition backends and
// normalizes their answers into tracks.
package identify

import (
	"context"
	"time"

	"github.com/tphakala/trackid-go/internal/errors"
	"github.com/tphakala/trackid-go/internal/logger"
	"github.com/tphakala/trackid-go/internal/recorder"
	"github.com/tphakala/trackid-go/internal/track"
)

// Recognizer resolves a sample to a track. A miss is (nil, nil); errors are
// reserved for transport failures and malformed responses.
type Recognizer interface {
	Name() string
	Recognize(ctx context.Context, sample *recorder.Sample) (*track.Track, error)
}

// ArtworkLookup finds cover art for a track. Implementations return "" when
// nothing was found.
type ArtworkLookup interface {
	Lookup(ctx context.Context, t track.Track) (string, error)
}

// ErrIdentificationService matches any recognition backend failure.
var ErrIdentificationService = errors.Newf("identification service failed").
	Component("identify").
	Category(errors.CategoryIdentificationService).
	Build()

func serviceError(err error, backend, stage string) error {
	return errors.New(err).
		Component("identify").
		Category(errors.CategoryIdentificationService).
		Context("backend", backend).
		Context("stage", stage).
		Build()
}

func malformed(backend, format string, args ...any) error {
	return errors.Newf("malformed %s response: "+format, append([]any{backend}, args...)...).
		Component("identify").
		Category(errors.CategoryIdentificationService).
		Context("backend", backend).
		Context("stage", "parse").
		Build()
}

// Client runs recognition and best-effort artwork enrichment.
type Client struct {
	recognizer Recognizer
	artwork    ArtworkLookup
	log        logger.Logger
}

// NewClient creates a client. artwork may be nil to disable enrichment.
func NewClient(r Recognizer, artwork ArtworkLookup, log logger.Logger) *Client {
	if log == nil {
		log = GetLogger()
	}
	return &Client{recognizer: r, artwork: artwork, log: log}
}

// Identify returns the recognized track or nil on a miss. The track timestamp
// is left for the caller to set from the capture time.
func (c *Client) Identify(ctx context.Context, sample *recorder.Sample) (*track.Track, error) {
	if sample == nil || len(sample.Data) == 0 {
		return nil, serviceError(errors.NewStd("empty sample"), c.recognizer.Name(), "request")
	}
	start := time.Now()
	t, err := c.recognizer.Recognize(ctx, sample)
	if err != nil {
		if !errors.IsCategory(err, errors.CategoryIdentificationService) &&
			!errors.IsCategory(err, errors.CategoryCancellation) {
			err = serviceError(err, c.recognizer.Name(), "request")
		}
		c.log.Warn("identification failed",
			logger.String("backend", c.recognizer.Name()),
			logger.Error(err),
			logger.Duration("elapsed", time.Since(start)))
		return nil, err
	}
	if t == nil {
		c.log.Info("no match", logger.Duration("elapsed", time.Since(start)))
		return nil, nil
	}

	enriched := c.enrich(ctx, *t)
	c.log.Info("track identified",
		logger.String("service", enriched.Service),
		logger.String("title", enriched.Title),
		logger.String("artist", enriched.Artist),
		logger.Bool("artwork", enriched.HasArtwork()),
		logger.Duration("elapsed", time.Since(start)))
	return &enriched, nil
}

// enrich adds artwork when the backend gave none. Failures are logged and
// the track is returned unchanged.
func (c *Client) enrich(ctx context.Context, t track.Track) track.Track {
	if c.artwork == nil || t.HasArtwork() {
		return t
	}
	url, err := c.artwork.Lookup(ctx, t)
	if err != nil {
		c.log.Debug("artwork lookup failed", logger.String("query", t.Query()), logger.Error(err))
		return t
	}
	if url == "" {
		return t
	}
	return t.WithArtwork(url)
}
