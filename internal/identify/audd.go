package identify

import (
	"context"
	"strings"
	"time"

	"github.com/antonholmquist/jason"

	"github.com/tphakala/trackid-go/internal/errors"
	"github.com/tphakala/trackid-go/internal/httpclient"
	"github.com/tphakala/trackid-go/internal/logger"
	"github.com/tphakala/trackid-go/internal/recorder"
	"github.com/tphakala/trackid-go/internal/track"
)

const (
	// ServiceAudD is the service name recorded on AudD matches.
	ServiceAudD = "audd"

	DefaultAudDEndpoint = "https://api.audd.io/"

	auddReturnFields    = "apple_music,spotify"
	auddArtworkSize     = "600"
	auddMaxResponseByte = 1 << 20
)

// AudDConfig configures the AudD backend.
type AudDConfig struct {
	Endpoint      string
	APIToken      string
	UnknownArtist string
}

// AudD recognizes samples with the AudD API.
type AudD struct {
	cfg  AudDConfig
	http *httpclient.Client
	log  logger.Logger
}

func NewAudD(cfg AudDConfig, client *httpclient.Client) *AudD {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultAudDEndpoint
	}
	if cfg.UnknownArtist == "" {
		cfg.UnknownArtist = track.DefaultUnknownArtist
	}
	if client == nil {
		client = httpclient.New(nil)
	}
	log := GetLogger().With(logger.String("backend", ServiceAudD))
	if cfg.APIToken == "" {
		log.Warn("AudD api token is not configured, requests will be rate limited")
	}
	return &AudD{cfg: cfg, http: client, log: log}
}

func (a *AudD) Name() string { return ServiceAudD }

func (a *AudD) Recognize(ctx context.Context, sample *recorder.Sample) (*track.Track, error) {
	fields := [][2]string{
		{"return", auddReturnFields},
	}
	if a.cfg.APIToken != "" {
		fields = append(fields, [2]string{"api_token", a.cfg.APIToken})
	}
	file := httpclient.FilePart{
		Field:    "file",
		FileName: "sample." + recorder.Extension(sample.Encoding),
		Data:     sample.Data,
	}

	start := time.Now()
	resp, err := a.http.PostMultipart(ctx, a.cfg.Endpoint, fields, file)
	if err != nil {
		return nil, serviceError(err, ServiceAudD, "request")
	}
	body, err := httpclient.ReadBody(resp, auddMaxResponseByte)
	if err != nil {
		return nil, serviceError(err, ServiceAudD, "response")
	}
	a.log.Debug("response received",
		logger.Int("bytes", len(body)),
		logger.Duration("elapsed", time.Since(start)))
	return a.parse(body)
}

// parse maps an AudD answer. status "error" is a service failure, a null
// result is a miss.
func (a *AudD) parse(body []byte) (*track.Track, error) {
	root, err := jason.NewObjectFromBytes(body)
	if err != nil {
		return nil, malformed(ServiceAudD, "body is not a JSON object")
	}
	status, err := root.GetString("status")
	if err != nil {
		return nil, malformed(ServiceAudD, "missing status")
	}
	if status == "error" {
		code, _ := root.GetInt64("error", "error_code")
		msg, _ := root.GetString("error", "error_message")
		return nil, errors.Newf("audd error %d: %s", code, msg).
			Component("identify").
			Category(errors.CategoryIdentificationService).
			Context("backend", ServiceAudD).
			Context("stage", "response").
			Context("error_code", code).
			Build()
	}
	if status != "success" {
		return nil, malformed(ServiceAudD, "unexpected status %q", status)
	}

	result, err := root.GetValue("result")
	if err != nil || result.Null() == nil {
		return nil, nil
	}
	obj, err := result.Object()
	if err != nil {
		return nil, malformed(ServiceAudD, "result is not an object")
	}
	title, err := obj.GetString("title")
	if err != nil || strings.TrimSpace(title) == "" {
		return nil, malformed(ServiceAudD, "match has no title")
	}

	t := track.Track{
		ID:      track.NewID(),
		Title:   title,
		Artist:  a.cfg.UnknownArtist,
		Service: ServiceAudD,
	}
	if artist, err := obj.GetString("artist"); err == nil && strings.TrimSpace(artist) != "" {
		t.Artist = artist
	}
	if album, err := obj.GetString("album"); err == nil {
		t.Album = album
	}
	if date, err := obj.GetString("release_date"); err == nil {
		t.ReleaseDate = date
	}
	if ms, err := obj.GetInt64("apple_music", "durationInMillis"); err == nil && ms > 0 {
		t.DurationSeconds = int((ms + 500) / 1000)
	}
	t.Artwork = auddArtwork(obj)
	return &t, nil
}

// auddArtwork prefers the Apple Music template, then the first Spotify
// album image.
func auddArtwork(obj *jason.Object) string {
	if tmpl, err := obj.GetString("apple_music", "artwork", "url"); err == nil && tmpl != "" {
		r := strings.NewReplacer("{w}", auddArtworkSize, "{h}", auddArtworkSize)
		return r.Replace(tmpl)
	}
	if images, err := obj.GetObjectArray("spotify", "album", "images"); err == nil && len(images) > 0 {
		if url, err := images[0].GetString("url"); err == nil {
			return url
		}
	}
	return ""
}
