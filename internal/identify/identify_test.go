package identify

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/trackid-go/internal/conf"
	"github.com/tphakala/trackid-go/internal/errors"
	"github.com/tphakala/trackid-go/internal/httpclient"
	"github.com/tphakala/trackid-go/internal/logger"
	"github.com/tphakala/trackid-go/internal/recorder"
	"github.com/tphakala/trackid-go/internal/track"
)

const acrHit = `{
  "status": {"code": 0, "msg": "Success"},
  "metadata": {
    "music": [{
      "acrid": "abc123",
      "title": "Song",
      "artists": [{"name": "A"}, {"name": "B"}],
      "album": {"name": "Record"},
      "duration_ms": 215400,
      "release_date": "1999-03-01",
      "score": 0.92
    }]
  }
}`

// newMockClient returns an httpclient whose transport is a private mock, so
// tests can run in parallel.
func newMockClient(t *testing.T) (*httpclient.Client, *httpmock.MockTransport) {
	t.Helper()
	client := httpclient.New(nil)
	mock := httpmock.NewMockTransport()
	client.HTTPClient().Transport = mock
	t.Cleanup(client.Close)
	return client, mock
}

func testSample() *recorder.Sample {
	return &recorder.Sample{
		Data:       make([]byte, 6000),
		Encoding:   recorder.EncodingWebMOpus,
		CapturedAt: time.Now(),
	}
}

func newTestACR(t *testing.T, body string, status int) (*ACRCloud, *httpmock.MockTransport) {
	t.Helper()
	client, mock := newMockClient(t)
	mock.RegisterResponder("POST", `=~^https://acr\.test/v1/identify`,
		httpmock.NewStringResponder(status, body))
	acr := NewACRCloud(ACRCloudConfig{Host: "acr.test", AccessKey: "key", AccessSecret: "secret"}, client)
	acr.log = logger.NewDiscardLogger()
	return acr, mock
}

func TestACRCloudSign(t *testing.T) {
	t.Parallel()

	acr := NewACRCloud(ACRCloudConfig{AccessKey: "key", AccessSecret: "secret"}, nil)
	assert.Equal(t, "tWbqxXkbyadGeaHIJS/OzfF+KdU=", acr.Sign("1700000000"))
	assert.Equal(t, "https://identify-eu.test/v1/identify",
		NewACRCloud(ACRCloudConfig{Host: "identify-eu.test/"}, nil).Endpoint())
	assert.Equal(t, "http://localhost:9/v1/identify",
		NewACRCloud(ACRCloudConfig{Host: "http://localhost:9"}, nil).Endpoint())
}

func TestACRCloudRequestShape(t *testing.T) {
	t.Parallel()

	client, mock := newMockClient(t)
	var fields map[string]string
	var fileName string
	var fileSize int64
	mock.RegisterResponder("POST", "https://acr.test/v1/identify",
		func(req *http.Request) (*http.Response, error) {
			if err := req.ParseMultipartForm(1 << 20); err != nil {
				return nil, err
			}
			fields = map[string]string{}
			for k, v := range req.MultipartForm.Value {
				fields[k] = v[0]
			}
			if fh := req.MultipartForm.File["sample"]; len(fh) == 1 {
				fileName = fh[0].Filename
				fileSize = fh[0].Size
			}
			return httpmock.NewStringResponse(http.StatusOK, acrHit), nil
		})

	acr := NewACRCloud(ACRCloudConfig{Host: "acr.test", AccessKey: "key", AccessSecret: "secret"}, client)
	acr.now = func() time.Time { return time.Unix(1700000000, 0) }

	got, err := acr.Recognize(t.Context(), testSample())
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, "key", fields["access_key"])
	assert.Equal(t, "audio", fields["data_type"])
	assert.Equal(t, "1", fields["signature_version"])
	assert.Equal(t, "1700000000", fields["timestamp"])
	assert.Equal(t, "6000", fields["sample_bytes"])
	assert.Equal(t, "tWbqxXkbyadGeaHIJS/OzfF+KdU=", fields["signature"])
	assert.Equal(t, "sample.webm", fileName)
	assert.Equal(t, int64(6000), fileSize)
}

func TestACRCloudHitMapping(t *testing.T) {
	t.Parallel()

	acr, _ := newTestACR(t, acrHit, http.StatusOK)
	got, err := acr.Recognize(t.Context(), testSample())
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, "abc123", got.ServiceID)
	assert.NotEmpty(t, got.ID)
	assert.NotEqual(t, got.ServiceID, got.ID)
	assert.Equal(t, "Song", got.Title)
	assert.Equal(t, "A, B", got.Artist)
	assert.Equal(t, "Record", got.Album)
	assert.Equal(t, 215, got.DurationSeconds)
	assert.Equal(t, "1999-03-01", got.ReleaseDate)
	require.NotNil(t, got.ConfidencePercent)
	assert.Equal(t, 92, *got.ConfidencePercent)
	assert.Equal(t, ServiceACRCloud, got.Service)
	assert.Empty(t, got.Artwork)
}

func TestACRCloudMinimalHit(t *testing.T) {
	t.Parallel()

	acr, _ := newTestACR(t,
		`{"status":{"code":0},"metadata":{"music":[{"title":"Only Title","score":88}]}}`,
		http.StatusOK)
	got, err := acr.Recognize(t.Context(), testSample())
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, track.DefaultUnknownArtist, got.Artist)
	assert.NotEmpty(t, got.ID)
	require.NotNil(t, got.ConfidencePercent)
	assert.Equal(t, 88, *got.ConfidencePercent)
}

func TestACRCloudRepeatedRecordingGetsFreshID(t *testing.T) {
	t.Parallel()

	acr, _ := newTestACR(t, acrHit, http.StatusOK)
	first, err := acr.Recognize(t.Context(), testSample())
	require.NoError(t, err)
	second, err := acr.Recognize(t.Context(), testSample())
	require.NoError(t, err)

	assert.Equal(t, first.ServiceID, second.ServiceID)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestACRCloudScoreScale(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		score string
		want  int
	}{
		{"percent", "88", 88},
		{"percent one", "1", 1},
		{"percent hundred", "100", 100},
		{"zero", "0", 0},
		{"ratio", "0.92", 92},
		{"ratio rounds", "0.876", 88},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			acr, _ := newTestACR(t,
				`{"status":{"code":0},"metadata":{"music":[{"title":"T","score":`+tt.score+`}]}}`,
				http.StatusOK)
			got, err := acr.Recognize(t.Context(), testSample())
			require.NoError(t, err)
			require.NotNil(t, got.ConfidencePercent)
			assert.Equal(t, tt.want, *got.ConfidencePercent)
		})
	}
}

func TestACRCloudMisses(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{"no result code", `{"status":{"code":1001,"msg":"No result"}}`},
		{"other code", `{"status":{"code":3001,"msg":"Missing/Invalid Access Key"}}`},
		{"empty music", `{"status":{"code":0},"metadata":{"music":[]}}`},
		{"no music key", `{"status":{"code":0},"metadata":{}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			acr, _ := newTestACR(t, tt.body, http.StatusOK)
			got, err := acr.Recognize(t.Context(), testSample())
			require.NoError(t, err)
			assert.Nil(t, got)
		})
	}
}

func TestACRCloudMalformed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"array body", `[1,2,3]`, http.StatusOK},
		{"not json", `<html>oops</html>`, http.StatusOK},
		{"missing status", `{"metadata":{}}`, http.StatusOK},
		{"code not integer", `{"status":{"code":"zero"}}`, http.StatusOK},
		{"music not array", `{"status":{"code":0},"metadata":{"music":{"title":"x"}}}`, http.StatusOK},
		{"match without title", `{"status":{"code":0},"metadata":{"music":[{"artists":[]}]}}`, http.StatusOK},
		{"server error", `internal`, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			acr, _ := newTestACR(t, tt.body, tt.status)
			got, err := acr.Recognize(t.Context(), testSample())
			require.Error(t, err)
			assert.Nil(t, got)
			assert.ErrorIs(t, err, ErrIdentificationService)
		})
	}
}

func TestACRCloudTransportFailure(t *testing.T) {
	t.Parallel()

	client, mock := newMockClient(t)
	mock.RegisterResponder("POST", "https://acr.test/v1/identify",
		httpmock.NewErrorResponder(errors.NewStd("connection refused")))
	acr := NewACRCloud(ACRCloudConfig{Host: "acr.test"}, client)

	_, err := acr.Recognize(t.Context(), testSample())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryIdentificationService))
	assert.Equal(t, 1, mock.GetTotalCallCount())
}

func TestAudDParse(t *testing.T) {
	t.Parallel()

	client, mock := newMockClient(t)
	var token string
	mock.RegisterResponder("POST", "https://audd.test/",
		func(req *http.Request) (*http.Response, error) {
			if err := req.ParseMultipartForm(1 << 20); err != nil {
				return nil, err
			}
			token = req.FormValue("api_token")
			return httpmock.NewStringResponse(http.StatusOK, `{
			  "status": "success",
			  "result": {
			    "artist": "Band", "title": "Tune", "album": "LP", "release_date": "2020-01-01",
			    "apple_music": {"durationInMillis": 180600, "artwork": {"url": "https://img.test/{w}x{h}bb.jpg"}}
			  }
			}`), nil
		})

	a := NewAudD(AudDConfig{Endpoint: "https://audd.test/", APIToken: "tok"}, client)
	got, err := a.Recognize(t.Context(), testSample())
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, "tok", token)
	assert.Equal(t, "Band", got.Artist)
	assert.Equal(t, "Tune", got.Title)
	assert.Equal(t, 181, got.DurationSeconds)
	assert.Equal(t, "https://img.test/600x600bb.jpg", got.Artwork)
	assert.Equal(t, ServiceAudD, got.Service)
}

func TestAudDMissAndError(t *testing.T) {
	t.Parallel()

	a := NewAudD(AudDConfig{}, nil)

	got, err := a.parse([]byte(`{"status":"success","result":null}`))
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = a.parse([]byte(`{"status":"error","error":{"error_code":900,"error_message":"bad token"}}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIdentificationService)
	assert.Contains(t, err.Error(), "bad token")

	_, err = a.parse([]byte(`{"status":"success","result":{"artist":"x"}}`))
	assert.ErrorIs(t, err, ErrIdentificationService)

	got, err = a.parse([]byte(`{"status":"success","result":{"title":"t","spotify":{"album":{"images":[{"url":"https://s.test/a.jpg"}]}}}}`))
	require.NoError(t, err)
	assert.Equal(t, "https://s.test/a.jpg", got.Artwork)
	assert.Equal(t, track.DefaultUnknownArtist, got.Artist)
}

// stubRecognizer returns a fixed answer and counts calls.
type stubRecognizer struct {
	name  string
	track *track.Track
	err   error
	calls atomic.Int32
}

func (s *stubRecognizer) Name() string { return s.name }

func (s *stubRecognizer) Recognize(context.Context, *recorder.Sample) (*track.Track, error) {
	s.calls.Add(1)
	return s.track, s.err
}

func TestChain(t *testing.T) {
	t.Parallel()

	hit := &track.Track{Title: "T", Artist: "A"}
	boom := errors.NewStd("boom")

	t.Run("first hit wins", func(t *testing.T) {
		t.Parallel()
		a := &stubRecognizer{name: "a", err: boom}
		b := &stubRecognizer{name: "b", track: hit}
		c := &stubRecognizer{name: "c", track: &track.Track{Title: "other"}}
		got, err := Chain{a, b, c}.Recognize(t.Context(), testSample())
		require.NoError(t, err)
		assert.Same(t, hit, got)
		assert.Zero(t, c.calls.Load())
	})

	t.Run("miss beats errors", func(t *testing.T) {
		t.Parallel()
		got, err := Chain{
			&stubRecognizer{name: "a", err: boom},
			&stubRecognizer{name: "b"},
		}.Recognize(t.Context(), testSample())
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("all failed", func(t *testing.T) {
		t.Parallel()
		ch := Chain{&stubRecognizer{name: "a", err: boom}, &stubRecognizer{name: "b", err: boom}}
		assert.Equal(t, "a,b", ch.Name())
		_, err := ch.Recognize(t.Context(), testSample())
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrIdentificationService)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("empty chain", func(t *testing.T) {
		t.Parallel()
		_, err := Chain{}.Recognize(t.Context(), testSample())
		assert.ErrorIs(t, err, ErrIdentificationService)
	})
}

type fakeArtwork struct {
	url   string
	err   error
	calls atomic.Int32
}

func (f *fakeArtwork) Lookup(context.Context, track.Track) (string, error) {
	f.calls.Add(1)
	return f.url, f.err
}

func TestClientArtworkEnrichment(t *testing.T) {
	t.Parallel()

	base := track.Track{ID: "1", Title: "T", Artist: "A", Service: "stub"}

	t.Run("adds artwork when missing", func(t *testing.T) {
		t.Parallel()
		art := &fakeArtwork{url: "https://art.test/600x600bb.jpg"}
		tr := base
		c := NewClient(&stubRecognizer{name: "stub", track: &tr}, art, logger.NewDiscardLogger())
		got, err := c.Identify(t.Context(), testSample())
		require.NoError(t, err)
		assert.Equal(t, "https://art.test/600x600bb.jpg", got.Artwork)
	})

	t.Run("keeps backend artwork", func(t *testing.T) {
		t.Parallel()
		art := &fakeArtwork{url: "https://art.test/other.jpg"}
		tr := base.WithArtwork("https://backend.test/cover.jpg")
		c := NewClient(&stubRecognizer{name: "stub", track: &tr}, art, logger.NewDiscardLogger())
		got, err := c.Identify(t.Context(), testSample())
		require.NoError(t, err)
		assert.Equal(t, "https://backend.test/cover.jpg", got.Artwork)
		assert.Zero(t, art.calls.Load())
	})

	t.Run("lookup failure is swallowed", func(t *testing.T) {
		t.Parallel()
		art := &fakeArtwork{err: errors.NewStd("rate limited")}
		tr := base
		c := NewClient(&stubRecognizer{name: "stub", track: &tr}, art, logger.NewDiscardLogger())
		got, err := c.Identify(t.Context(), testSample())
		require.NoError(t, err)
		assert.Equal(t, "T", got.Title)
		assert.Empty(t, got.Artwork)
	})
}

func TestClientMissAndFailure(t *testing.T) {
	t.Parallel()

	art := &fakeArtwork{url: "https://art.test/x.jpg"}
	c := NewClient(&stubRecognizer{name: "stub"}, art, logger.NewDiscardLogger())
	got, err := c.Identify(t.Context(), testSample())
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Zero(t, art.calls.Load(), "no artwork lookup on a miss")

	c = NewClient(&stubRecognizer{name: "stub", err: errors.NewStd("dial tcp: refused")}, nil, logger.NewDiscardLogger())
	_, err = c.Identify(t.Context(), testSample())
	assert.ErrorIs(t, err, ErrIdentificationService)

	_, err = c.Identify(t.Context(), &recorder.Sample{})
	assert.ErrorIs(t, err, ErrIdentificationService)
}

func TestNewRecognizer(t *testing.T) {
	t.Parallel()

	s := &conf.IdentifySettings{Backends: []string{"acrcloud"}, Timeout: time.Second}
	r, err := NewRecognizer(s, nil)
	require.NoError(t, err)
	assert.Equal(t, ServiceACRCloud, r.Name())

	s.Backends = []string{"ACRCloud", "audd"}
	r, err = NewRecognizer(s, nil)
	require.NoError(t, err)
	assert.Equal(t, "acrcloud,audd", r.Name())

	s.Backends = []string{"shazam"}
	_, err = NewRecognizer(s, nil)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))

	s.Backends = nil
	_, err = NewRecognizer(s, nil)
	assert.Error(t, err)
}
