package mqtt

import (
	"context"
	"encoding/json"

	"github.com/tphakala/trackid-go/internal/errors"
	"github.com/tphakala/trackid-go/internal/events"
	"github.com/tphakala/trackid-go/internal/logger"
)

// Publisher is an event bus consumer that publishes every accepted
// identification on the state topic.
type Publisher struct {
	client Client
	topic  string
	retain bool
	stream string
	cfg    Config
	log    logger.Logger
}

// NewPublisher creates a publisher. stream is the playing URL included in
// payloads.
func NewPublisher(c Client, cfg Config, stream string) *Publisher {
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = DefaultConfig().PublishTimeout
	}
	return &Publisher{
		client: c,
		topic:  cfg.Topic,
		retain: cfg.Retain,
		stream: stream,
		cfg:    cfg,
		log:    GetLogger(),
	}
}

func (p *Publisher) Name() string { return "mqtt" }

// Accepts implements events.Filter.
func (p *Publisher) Accepts(kind events.Kind) bool {
	return kind == events.KindIdentified
}

// ProcessEvent publishes the identified track. The bus worker has no
// context, so the publish timeout bounds the call.
func (p *Publisher) ProcessEvent(e events.Event) error {
	if e.Kind != events.KindIdentified || e.Track == nil {
		return nil
	}
	payload, err := json.Marshal(NewNowPlayingDTO(e.Track, e.Trigger, p.stream))
	if err != nil {
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryMQTTPublish).
			Context("operation", "marshal").
			Build()
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.PublishTimeout)
	defer cancel()
	if err := p.client.Publish(ctx, p.topic, payload, p.retain); err != nil {
		p.log.Warn("failed to publish track",
			logger.String("topic", p.topic),
			logger.String("track", e.Track.String()),
			logger.Error(err))
		return err
	}
	return nil
}
