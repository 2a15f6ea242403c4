package httpclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, cfg *Config) *Client {
	t.Helper()
	client := New(cfg)
	t.Cleanup(client.Close)
	return client
}

func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func TestNewAppliesDefaults(t *testing.T) {
	t.Parallel()

	c := New(&Config{UserAgent: "trackid-test/1.0"})
	assert.Equal(t, DefaultTimeout, c.defaultTimeout)
	assert.Equal(t, "trackid-test/1.0", c.userAgent)

	c = New(nil)
	assert.Equal(t, defaultUserAgent, c.userAgent)
	assert.NotNil(t, c.HTTPClient())
}

func TestDoInjectsUserAgent(t *testing.T) {
	t.Parallel()

	var ua atomic.Value
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		ua.Store(r.Header.Get("User-Agent"))
		w.WriteHeader(http.StatusOK)
	})
	client := newTestClient(t, &Config{UserAgent: "trackid/9"})

	resp, err := client.Get(t.Context(), server.URL, nil)
	require.NoError(t, err)
	_, err = ReadBody(resp, 0)
	require.NoError(t, err)
	assert.Equal(t, "trackid/9", ua.Load())
}

func TestDoDefaultTimeout(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	client := newTestClient(t, &Config{DefaultTimeout: 50 * time.Millisecond})

	_, err := client.Get(context.Background(), server.URL, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDoBodyReadableAfterReturn(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("payload"))
	})
	client := newTestClient(t, nil)

	resp, err := client.Get(context.Background(), server.URL, nil)
	require.NoError(t, err)
	body, err := ReadBody(resp, 0)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(body))
}

func TestGetMergesQuery(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "song", r.URL.Query().Get("entity"))
		assert.Equal(t, "Artist Title", r.URL.Query().Get("term"))
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		w.WriteHeader(http.StatusOK)
	})
	client := newTestClient(t, nil)

	resp, err := client.Get(t.Context(), server.URL+"?limit=1", url.Values{"term": {"Artist Title"}, "entity": {"song"}})
	require.NoError(t, err)
	_, err = ReadBody(resp, 0)
	require.NoError(t, err)
}

func TestPostMultipart(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "audio", r.FormValue("data_type"))
		assert.Equal(t, "4", r.FormValue("sample_bytes"))

		f, hdr, err := r.FormFile("sample")
		require.NoError(t, err)
		defer f.Close()
		data, err := io.ReadAll(f)
		require.NoError(t, err)
		assert.Equal(t, "sample.ogg", hdr.Filename)
		assert.Equal(t, []byte{1, 2, 3, 4}, data)
		w.WriteHeader(http.StatusOK)
	})
	client := newTestClient(t, nil)

	resp, err := client.PostMultipart(t.Context(), server.URL,
		[][2]string{{"data_type", "audio"}, {"sample_bytes", "4"}},
		FilePart{Field: "sample", FileName: "sample.ogg", Data: []byte{1, 2, 3, 4}})
	require.NoError(t, err)
	_, err = ReadBody(resp, 0)
	require.NoError(t, err)
}

func TestReadBodyStatusError(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	})
	client := newTestClient(t, nil)

	resp, err := client.Get(t.Context(), server.URL, nil)
	require.NoError(t, err)
	_, err = ReadBody(resp, 0)

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusTooManyRequests, se.StatusCode)
	assert.Contains(t, se.Body, "rate limited")
}

func TestReadBodyLimit(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(make([]byte, 64))
	})
	client := newTestClient(t, nil)

	resp, err := client.Get(t.Context(), server.URL, nil)
	require.NoError(t, err)
	_, err = ReadBody(resp, 16)
	require.Error(t, err)
}

func TestHooks(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	client := newTestClient(t, nil)

	var before, after atomic.Int32
	client.SetBeforeRequestHook(func(r *http.Request) {
		before.Add(1)
		r.Header.Set("X-Test", "1")
	})
	client.SetAfterResponseHook(func(_ *http.Request, resp *http.Response, err error, d time.Duration) {
		after.Add(1)
		assert.NoError(t, err)
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
		assert.GreaterOrEqual(t, d, time.Duration(0))
	})

	resp, err := client.Get(t.Context(), server.URL, nil)
	require.NoError(t, err)
	_, _ = ReadBody(resp, 0)

	assert.Equal(t, int32(1), before.Load())
	assert.Equal(t, int32(1), after.Load())
}
