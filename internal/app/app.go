// Package app assembles the playback, capture, identification and delivery
// components from settings and runs them until shutdown.
package app

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tphakala/trackid-go/internal/api"
	"github.com/tphakala/trackid-go/internal/artwork"
	"github.com/tphakala/trackid-go/internal/buildinfo"
	"github.com/tphakala/trackid-go/internal/capture"
	"github.com/tphakala/trackid-go/internal/conf"
	"github.com/tphakala/trackid-go/internal/datastore"
	"github.com/tphakala/trackid-go/internal/dedup"
	"github.com/tphakala/trackid-go/internal/errors"
	"github.com/tphakala/trackid-go/internal/events"
	"github.com/tphakala/trackid-go/internal/history"
	"github.com/tphakala/trackid-go/internal/httpclient"
	"github.com/tphakala/trackid-go/internal/identify"
	"github.com/tphakala/trackid-go/internal/logger"
	"github.com/tphakala/trackid-go/internal/mqtt"
	"github.com/tphakala/trackid-go/internal/notification"
	"github.com/tphakala/trackid-go/internal/observability"
	"github.com/tphakala/trackid-go/internal/observability/metrics"
	"github.com/tphakala/trackid-go/internal/pipeline"
	"github.com/tphakala/trackid-go/internal/playback"
	"github.com/tphakala/trackid-go/internal/privacy"
	"github.com/tphakala/trackid-go/internal/recorder"
)

const busShutdownTimeout = 5 * time.Second

// Options select the optional surfaces. The one-shot identify command runs
// without the HTTP server and delivery consumers.
type Options struct {
	HTTP     bool
	Delivery bool // mqtt, notifications and the attempt log
}

// App holds the running components.
type App struct {
	Settings *conf.Settings
	Build    *buildinfo.Context

	Metrics  *observability.Metrics
	Bus      *events.EventBus
	Store    *datastore.Store
	History  *history.Store
	Artwork  *artwork.Cache
	Player   *playback.Player
	Pipeline *pipeline.Controller
	Server   *api.Server
	Hub      *api.Hub

	mqttClient mqtt.Client
	http       *httpclient.Client
	log        logger.Logger
}

// New builds every component. On error the partially built app is closed.
func New(ctx context.Context, settings *conf.Settings, build *buildinfo.Context, opts Options) (a *App, err error) {
	a = &App{
		Settings: settings,
		Build:    build,
		log:      GetLogger(),
	}
	defer func() {
		if err != nil {
			a.Close()
			a = nil
		}
	}()

	if a.Metrics, err = observability.NewMetrics(); err != nil {
		return nil, err
	}

	a.Bus = events.New(events.Config{
		BufferSize: settings.EventBus.BufferSize,
		Workers:    settings.EventBus.Workers,
	})

	if err = a.initHistory(ctx, opts); err != nil {
		return nil, err
	}

	a.http = httpclient.New(&httpclient.Config{
		DefaultTimeout: settings.Identify.Timeout,
		UserAgent:      build.UserAgent(),
	})
	identifier, err := a.initIdentifier()
	if err != nil {
		return nil, err
	}

	sink, err := playback.NewSink(settings.Stream.Output)
	if err != nil {
		return nil, err
	}
	a.Player = playback.NewPlayer(playback.Config{
		URL:            settings.Stream.URL,
		Decoder:        playback.NewFFmpegDecoder(settings.Stream.FfmpegPath),
		Output:         sink,
		ConnectTimeout: settings.Stream.ConnectTimeout,
		Volume:         settings.Stream.Volume,
		Muted:          settings.Stream.Muted,
	})

	pm := a.Metrics.Pipeline
	builder := capture.NewBuilder(
		capture.WithTapSeconds(settings.Capture.TapSeconds),
		capture.WithDropHandler(pm.AddTapDrops),
	)
	rec := recorder.New(recorder.Config{
		Window:         settings.Capture.RecordWindow,
		ChunkInterval:  settings.Capture.ChunkInterval,
		MinSampleBytes: settings.Capture.MinSampleBytes,
		Encodings:      settings.Capture.Encodings,
		Runtime:        recorder.DefaultRuntime(settings.Stream.FfmpegPath, settings.Capture.Bitrate),
	})

	a.Pipeline, err = pipeline.New(pipeline.Config{
		Player:            a.Player,
		Builder:           builder,
		Recorder:          rec,
		Identifier:        identifier,
		Dedup:             dedup.New(settings.Dedup.Window, settings.Dedup.Similarity),
		History:           a.History,
		Bus:               a.Bus,
		Metrics:           pm,
		SchedulerInterval: settings.Scheduler.Interval,
		ImmediateFirst:    settings.Scheduler.ImmediateFirst,
		AutoIdentify:      settings.Scheduler.Enabled,
		StatusClearAfter:  settings.Status.ClearAfter,
	})
	if err != nil {
		return nil, err
	}

	if opts.Delivery {
		if err = a.initDelivery(ctx); err != nil {
			return nil, err
		}
	}
	if opts.HTTP && settings.WebServer.Enabled {
		if err = a.initServer(); err != nil {
			return nil, err
		}
	}

	a.log.Info("application initialized",
		logger.String("version", build.GetVersion()),
		logger.String("stream", privacy.SanitizeURL(settings.Stream.URL)),
		logger.Bool("http", a.Server != nil),
		logger.Bool("persist", a.Store != nil),
		logger.Bool("mqtt", a.mqttClient != nil))
	return a, nil
}

func (a *App) initHistory(ctx context.Context, opts Options) error {
	s := a.Settings
	needStore := s.History.Persist || opts.Delivery
	if needStore {
		store, err := datastore.Open(&s.Datastore, nil)
		if err != nil {
			return err
		}
		a.Store = store
	}

	// a nil *Store must not become a non-nil Repository
	var repo history.Repository
	if s.History.Persist && a.Store != nil {
		repo = a.Store
	}
	a.History = history.NewStore(s.History.Capacity, repo, nil)
	if err := a.History.Load(ctx); err != nil {
		a.log.Warn("could not load persisted history", logger.Error(err))
	}
	a.Metrics.Pipeline.SetHistorySize(a.History.Len())
	return nil
}

func (a *App) initIdentifier() (*identify.Client, error) {
	recognizer, err := identify.NewRecognizer(&a.Settings.Identify, a.http)
	if err != nil {
		return nil, err
	}

	cache, err := artwork.NewFromSettings(&a.Settings.Artwork, a.http)
	if err != nil {
		return nil, err
	}
	if cache == nil {
		return identify.NewClient(recognizer, nil, nil), nil
	}

	a.Artwork = cache
	if err := a.Metrics.RegisterArtworkCache(func() metrics.ArtworkStats {
		st := cache.Stats()
		return metrics.ArtworkStats{Hits: st.Hits, Misses: st.Misses, Errors: st.Errors, Items: st.Items}
	}); err != nil {
		return nil, err
	}
	return identify.NewClient(recognizer, cache, nil), nil
}

func (a *App) initDelivery(ctx context.Context) error {
	s := a.Settings

	if a.Store != nil {
		if err := a.Bus.RegisterConsumer(datastore.NewAttemptLogger(a.Store)); err != nil {
			return err
		}
	}

	if s.MQTT.Enabled {
		if err := a.initMQTT(ctx); err != nil {
			return err
		}
	}

	if s.Notification.Enabled {
		provider := notification.NewShoutrrrProvider("shoutrrr", true, s.Notification.URLs, nil, s.Notification.Timeout)
		d, err := notification.NewDispatcher(notification.DispatcherConfig{
			Timeout: s.Notification.Timeout,
			Metrics: a.Metrics.Notification,
		}, provider)
		if err != nil {
			return err
		}
		if err := a.Bus.RegisterConsumer(d); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) initMQTT(ctx context.Context) error {
	s := a.Settings.MQTT
	cfg := mqtt.DefaultConfig()
	cfg.Broker = s.Broker
	cfg.Username = s.Username
	cfg.Password = s.Password
	cfg.Retain = s.Retain
	if s.ClientID != "" {
		cfg.ClientID = s.ClientID
	}
	if s.Topic != "" {
		cfg.Topic = s.Topic
	}

	c, err := mqtt.NewClient(cfg, a.Metrics.MQTT, nil)
	if err != nil {
		return err
	}
	a.mqttClient = c

	// the client keeps reconnecting in the background
	if err := c.Connect(ctx); err != nil {
		a.log.Warn("initial MQTT connection failed", logger.String("broker", cfg.Broker), logger.Error(err))
	}

	if s.HomeAssistant.Enabled {
		dc := mqtt.DiscoveryConfig{
			DiscoveryPrefix: s.HomeAssistant.DiscoveryPrefix,
			StateTopic:      cfg.Topic,
			NodeID:          cfg.ClientID,
			Version:         a.Build.GetVersion(),
		}
		if c.IsConnected() {
			if err := mqtt.PublishDiscovery(ctx, c, dc); err != nil {
				a.log.Warn("home assistant discovery failed", logger.Error(err))
			}
		}
	}

	return a.Bus.RegisterConsumer(mqtt.NewPublisher(c, cfg, privacy.SanitizeURL(a.Settings.Stream.URL)))
}

func (a *App) initServer() error {
	a.Hub = api.NewHub(0)
	if err := a.Bus.RegisterConsumer(a.Hub); err != nil {
		return err
	}

	cfg := api.ConfigFromSettings(a.Settings)
	cfg.Version = a.Build.GetVersion()

	opts := []api.ServerOption{
		api.WithMetrics(a.Metrics),
		api.WithHub(a.Hub),
	}
	if a.Store != nil {
		opts = append(opts, api.WithHealthCheck("datastore", a.Store.Ping))
	}
	if a.mqttClient != nil {
		c := a.mqttClient
		opts = append(opts, api.WithHealthCheck("mqtt", func(context.Context) error {
			if !c.IsConnected() {
				return errors.NewStd("not connected")
			}
			return nil
		}))
	}

	srv, err := api.New(cfg, a.Pipeline, opts...)
	if err != nil {
		return err
	}
	a.Server = srv
	return nil
}

// Run starts playback when a stream is configured and serves until ctx is
// cancelled.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	if a.Server != nil {
		g.Go(func() error { return a.Server.Run(gctx) })
	}

	if a.Settings.Stream.URL != "" {
		g.Go(func() error {
			if err := a.Pipeline.Play(gctx); err != nil {
				// the status line already reports it; playback can be retried over the API
				a.log.Warn("initial playback failed", logger.Error(privacy.WrapError(err)))
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return err
}

// Close stops every component. It is safe on a partially built app.
func (a *App) Close() {
	if a.Pipeline != nil {
		if err := a.Pipeline.Close(); err != nil {
			a.log.Warn("pipeline close failed", logger.Error(err))
		}
	} else if a.Player != nil {
		_ = a.Player.Close()
	}

	if a.Bus != nil {
		if err := a.Bus.Shutdown(busShutdownTimeout); err != nil {
			a.log.Warn("event bus shutdown incomplete", logger.Error(err))
		}
	}

	if a.mqttClient != nil {
		a.mqttClient.Disconnect()
	}
	if a.http != nil {
		a.http.Close()
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			a.log.Warn("datastore close failed", logger.Error(err))
		}
	}
	a.log.Info("application stopped")
}

// GetLogger returns the app module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("app")
}
