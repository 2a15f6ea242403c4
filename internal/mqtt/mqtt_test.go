package mqtt

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/trackid-go/internal/errors"
	"github.com/tphakala/trackid-go/internal/events"
	"github.com/tphakala/trackid-go/internal/logger"
	"github.com/tphakala/trackid-go/internal/observability/metrics"
	"github.com/tphakala/trackid-go/internal/track"
)

type published struct {
	topic   string
	payload []byte
	retain  bool
}

// fakeClient records publishes instead of talking to a broker.
type fakeClient struct {
	mu        sync.Mutex
	messages  []published
	failWith  error
	connected bool
}

func (f *fakeClient) Connect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = true
	return nil
}

func (f *fakeClient) Publish(_ context.Context, topic string, payload []byte, retain bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	f.messages = append(f.messages, published{topic: topic, payload: payload, retain: retain})
	return nil
}

func (f *fakeClient) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeClient) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
}

func identifiedEvent() events.Event {
	return events.Event{
		Kind:    events.KindIdentified,
		Trigger: "scheduled",
		Track: &track.Track{
			ID:                "acr-1",
			Title:             "Midnight City",
			Artist:            "M83",
			Album:             "Hurry Up, We're Dreaming",
			ConfidencePercent: track.Confidence(92),
			Service:           "acrcloud",
			Timestamp:         time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		},
	}
}

func TestPublisherPublishesIdentifiedTrack(t *testing.T) {
	t.Parallel()

	fc := &fakeClient{}
	cfg := DefaultConfig()
	cfg.Topic = "radio/nowplaying"
	cfg.Retain = true
	p := NewPublisher(fc, cfg, "http://radio.example/stream")

	require.NoError(t, p.ProcessEvent(identifiedEvent()))

	require.Len(t, fc.messages, 1)
	msg := fc.messages[0]
	assert.Equal(t, "radio/nowplaying", msg.topic)
	assert.True(t, msg.retain)

	var dto NowPlayingDTO
	require.NoError(t, json.Unmarshal(msg.payload, &dto))
	assert.Equal(t, "Midnight City", dto.Title)
	assert.Equal(t, "M83", dto.Artist)
	require.NotNil(t, dto.Confidence)
	assert.Equal(t, 92, *dto.Confidence)
	assert.Equal(t, "scheduled", dto.Trigger)
	assert.Equal(t, "http://radio.example/stream", dto.Stream)
}

func TestPublisherFilter(t *testing.T) {
	t.Parallel()

	fc := &fakeClient{}
	p := NewPublisher(fc, DefaultConfig(), "")

	assert.True(t, p.Accepts(events.KindIdentified))
	assert.False(t, p.Accepts(events.KindDuplicate))
	assert.False(t, p.Accepts(events.KindStatus))

	require.NoError(t, p.ProcessEvent(events.Event{Kind: events.KindMiss}))
	require.NoError(t, p.ProcessEvent(events.Event{Kind: events.KindIdentified}))
	assert.Empty(t, fc.messages)
}

func TestPublisherReturnsPublishError(t *testing.T) {
	t.Parallel()

	fc := &fakeClient{failWith: errors.Newf("not connected").Category(errors.CategoryMQTTConnection).Build()}
	p := NewPublisher(fc, DefaultConfig(), "")

	err := p.ProcessEvent(identifiedEvent())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryMQTTConnection))
}

func TestPublisherOnEventBus(t *testing.T) {
	t.Parallel()

	fc := &fakeClient{}
	bus := events.New(events.Config{Logger: logger.NewDiscardLogger()})
	t.Cleanup(func() { _ = bus.Shutdown(time.Second) })
	require.NoError(t, bus.RegisterConsumer(NewPublisher(fc, DefaultConfig(), "")))

	assert.True(t, bus.TryPublish(events.Event{Kind: events.KindStatus, Message: "Listening"}))
	assert.True(t, bus.TryPublish(identifiedEvent()))

	assert.Eventually(t, func() bool {
		fc.mu.Lock()
		defer fc.mu.Unlock()
		return len(fc.messages) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestBuildDiscoveryPayloads(t *testing.T) {
	t.Parallel()

	cfg := DiscoveryConfig{
		DiscoveryPrefix: "homeassistant",
		StateTopic:      "trackid/nowplaying",
		NodeID:          "living room",
		Version:         "1.0.0",
	}
	payloads := BuildDiscoveryPayloads(cfg)
	require.Len(t, payloads, len(AllSensorTypes))

	title, ok := payloads["homeassistant/sensor/trackid_living_room/title/config"]
	require.True(t, ok)
	assert.Equal(t, "trackid_living_room_title", title.UniqueID)
	assert.Equal(t, "trackid/nowplaying", title.StateTopic)
	assert.Equal(t, "{{ value_json.title }}", title.ValueTemplate)
	assert.Equal(t, []string{"trackid_living_room"}, title.Device.Identifiers)
}

func TestPublishAndRemoveDiscovery(t *testing.T) {
	t.Parallel()

	fc := &fakeClient{}
	cfg := DiscoveryConfig{StateTopic: "trackid/nowplaying", NodeID: "trackid"}

	require.NoError(t, PublishDiscovery(t.Context(), fc, cfg))
	require.Len(t, fc.messages, len(AllSensorTypes))
	for _, m := range fc.messages {
		assert.True(t, strings.HasPrefix(m.topic, "homeassistant/sensor/"))
		assert.True(t, m.retain)
		assert.NotEmpty(t, m.payload)
	}

	fc.messages = nil
	require.NoError(t, RemoveDiscovery(t.Context(), fc, cfg))
	require.Len(t, fc.messages, len(AllSensorTypes))
	for _, m := range fc.messages {
		assert.Empty(t, m.payload)
	}
}

func TestSanitizeID(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"living room":   "living_room",
		"__a//b__":      "a_b",
		"!!!":           "unknown",
		"node-1_Studio": "node-1_Studio",
	}
	for in, want := range tests {
		assert.Equal(t, want, SanitizeID(in), in)
	}
}

func TestNewClientValidatesBroker(t *testing.T) {
	t.Parallel()

	_, err := NewClient(Config{Broker: "localhost"}, nil, logger.NewDiscardLogger())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))

	m, err := metrics.NewMQTTMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	c, err := NewClient(Config{Broker: "tcp://127.0.0.1:1883"}, m, logger.NewDiscardLogger())
	require.NoError(t, err)
	assert.False(t, c.IsConnected())

	err = c.Publish(t.Context(), "t", []byte("x"), false)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryMQTTConnection))
	c.Disconnect()
}

func TestClientOptions(t *testing.T) {
	t.Parallel()

	c, err := NewClient(Config{
		Broker:   "tcp://broker.example:1883",
		ClientID: "radio-1",
		Username: "user",
		Password: "secret",
	}, nil, logger.NewDiscardLogger())
	require.NoError(t, err)

	opts := c.(*client).clientOptions()
	require.Len(t, opts.Servers, 1)
	assert.Equal(t, "broker.example:1883", opts.Servers[0].Host)
	assert.Equal(t, "radio-1", opts.ClientID)
	assert.Equal(t, "user", opts.Username)
	assert.True(t, opts.AutoReconnect)
	assert.Equal(t, 5*time.Minute, opts.MaxReconnectInterval)
}
