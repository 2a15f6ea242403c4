package identify

import (
	"context"
	"crypto/hmac"
	"crypto/sha1" //nolint:gosec // ACRCloud request signing is defined over HMAC-SHA1
	"encoding/base64"
	"math"
	"strconv"
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
	acrEndpointPath      = "/v1/identify"
	acrDataType          = "audio"
	acrDefaultSigVersion = "1"
	acrCodeNoResult      = 1001
	acrMaxResponseBytes  = 1 << 20
)

// ServiceACRCloud is the service name recorded on ACRCloud matches.
const ServiceACRCloud = "acrcloud"

// ACRCloudConfig holds credentials for the ACRCloud identify endpoint.
type ACRCloudConfig struct {
	Host             string
	AccessKey        string
	AccessSecret     string
	SignatureVersion string
	UnknownArtist    string
}

// ACRCloud recognizes samples with the ACRCloud identify API.
type ACRCloud struct {
	cfg  ACRCloudConfig
	http *httpclient.Client
	now  func() time.Time
	log  logger.Logger
}

func NewACRCloud(cfg ACRCloudConfig, client *httpclient.Client) *ACRCloud {
	if cfg.SignatureVersion == "" {
		cfg.SignatureVersion = acrDefaultSigVersion
	}
	if cfg.UnknownArtist == "" {
		cfg.UnknownArtist = track.DefaultUnknownArtist
	}
	if client == nil {
		client = httpclient.New(nil)
	}
	log := GetLogger().With(logger.String("backend", ServiceACRCloud))
	if cfg.AccessKey == "" || cfg.AccessSecret == "" {
		log.Warn("ACRCloud credentials are not configured, requests will be rejected")
	}
	return &ACRCloud{cfg: cfg, http: client, now: time.Now, log: log}
}

func (a *ACRCloud) Name() string { return ServiceACRCloud }

// Endpoint returns the identify URL. Hosts without a scheme use https.
func (a *ACRCloud) Endpoint() string {
	host := strings.TrimRight(a.cfg.Host, "/")
	if !strings.Contains(host, "://") {
		host = "https://" + host
	}
	return host + acrEndpointPath
}

// Sign computes the request signature for timestamp.
func (a *ACRCloud) Sign(timestamp string) string {
	toSign := strings.Join([]string{
		"POST",
		acrEndpointPath,
		a.cfg.AccessKey,
		acrDataType,
		a.cfg.SignatureVersion,
		timestamp,
	}, "\n")
	mac := hmac.New(sha1.New, []byte(a.cfg.AccessSecret))
	mac.Write([]byte(toSign))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func (a *ACRCloud) Recognize(ctx context.Context, sample *recorder.Sample) (*track.Track, error) {
	timestamp := strconv.FormatInt(a.now().Unix(), 10)
	fields := [][2]string{
		{"sample_bytes", strconv.Itoa(len(sample.Data))},
		{"access_key", a.cfg.AccessKey},
		{"data_type", acrDataType},
		{"signature_version", a.cfg.SignatureVersion},
		{"signature", a.Sign(timestamp)},
		{"timestamp", timestamp},
	}
	file := httpclient.FilePart{
		Field:    "sample",
		FileName: "sample." + recorder.Extension(sample.Encoding),
		Data:     sample.Data,
	}

	start := time.Now()
	resp, err := a.http.PostMultipart(ctx, a.Endpoint(), fields, file)
	if err != nil {
		return nil, errors.New(err).
			Component("identify").
			Category(errors.CategoryIdentificationService).
			Context("backend", ServiceACRCloud).
			Context("stage", "request").
			Timing("acrcloud_identify", time.Since(start)).
			Build()
	}
	body, err := httpclient.ReadBody(resp, acrMaxResponseBytes)
	if err != nil {
		return nil, serviceError(err, ServiceACRCloud, "response")
	}
	a.log.Debug("response received",
		logger.Int("bytes", len(body)),
		logger.Duration("elapsed", time.Since(start)))

	return a.parse(body)
}

// parse validates the response shape and maps the best match. Non-zero
// status codes and an empty music list are misses.
func (a *ACRCloud) parse(body []byte) (*track.Track, error) {
	root, err := jason.NewObjectFromBytes(body)
	if err != nil {
		return nil, malformed(ServiceACRCloud, "body is not a JSON object")
	}
	status, err := root.GetObject("status")
	if err != nil {
		return nil, malformed(ServiceACRCloud, "missing status object")
	}
	code, err := status.GetInt64("code")
	if err != nil {
		return nil, malformed(ServiceACRCloud, "status.code is not an integer")
	}
	if code != 0 {
		if code != acrCodeNoResult {
			msg, _ := status.GetString("msg")
			a.log.Warn("recognition rejected",
				logger.Int64("code", code),
				logger.String("msg", msg))
		}
		return nil, nil
	}

	metadata, err := root.GetObject("metadata")
	if err != nil {
		return nil, malformed(ServiceACRCloud, "missing metadata object")
	}
	if _, err := metadata.GetValue("music"); err != nil {
		return nil, nil
	}
	music, err := metadata.GetObjectArray("music")
	if err != nil {
		return nil, malformed(ServiceACRCloud, "metadata.music is not an array of objects")
	}
	if len(music) == 0 {
		return nil, nil
	}
	return a.mapMatch(music[0])
}

func (a *ACRCloud) mapMatch(m *jason.Object) (*track.Track, error) {
	title, err := m.GetString("title")
	if err != nil || strings.TrimSpace(title) == "" {
		return nil, malformed(ServiceACRCloud, "match has no title")
	}

	t := track.Track{
		ID:      track.NewID(),
		Title:   title,
		Artist:  a.cfg.UnknownArtist,
		Service: ServiceACRCloud,
	}
	if id, err := m.GetString("acrid"); err == nil {
		t.ServiceID = id
	}
	if artists, err := m.GetObjectArray("artists"); err == nil {
		names := make([]string, 0, len(artists))
		for _, ar := range artists {
			if name, err := ar.GetString("name"); err == nil && name != "" {
				names = append(names, name)
			}
		}
		if len(names) > 0 {
			t.Artist = strings.Join(names, ", ")
		}
	}
	if album, err := m.GetString("album", "name"); err == nil {
		t.Album = album
	}
	if ms, err := m.GetFloat64("duration_ms"); err == nil && ms > 0 {
		t.DurationSeconds = int(math.Round(ms / 1000))
	}
	if date, err := m.GetString("release_date"); err == nil {
		t.ReleaseDate = date
	}
	if score, err := m.GetFloat64("score"); err == nil {
		// 0..100 integers; fractional values below 1 are a 0..1 ratio
		if score > 0 && score < 1 {
			score *= 100
		}
		t.ConfidencePercent = track.Confidence(int(math.Round(score)))
	}
	return &t, nil
}
