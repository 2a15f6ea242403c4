package api

import (
	"context"
	"math"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/tphakala/trackid-go/internal/errors"
	"github.com/tphakala/trackid-go/internal/logger"
	"github.com/tphakala/trackid-go/internal/observability"
	"github.com/tphakala/trackid-go/internal/pipeline"
	"github.com/tphakala/trackid-go/internal/track"
)

// Pipeline is the part of the identification pipeline the API drives.
type Pipeline interface {
	Identify(ctx context.Context, trigger pipeline.Trigger) (pipeline.Result, error)
	Play(ctx context.Context) error
	Stop() error
	SetVolume(v float64)
	SetMuted(m bool)
	SetAutoIdentify(on bool)
	History() []track.Track
	Track(id string) (track.Track, bool)
	ClearHistory(ctx context.Context) error
	Snapshot() pipeline.Snapshot
}

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// Server is the HTTP server. It owns the echo instance, the middleware
// stack and all routes.
type Server struct {
	echo     *echo.Echo
	config   *Config
	pipeline Pipeline
	hub      *Hub
	metrics  *observability.Metrics
	checks   map[string]HealthCheck
	log      logger.Logger

	startTime time.Time
}

// ServerOption is a functional option for configuring the Server.
type ServerOption func(*Server)

// WithLogger sets the server logger.
func WithLogger(log logger.Logger) ServerOption {
	return func(s *Server) { s.log = log }
}

// WithMetrics exposes the registry on /api/v1/metrics.
func WithMetrics(m *observability.Metrics) ServerOption {
	return func(s *Server) { s.metrics = m }
}

// WithHub streams bus events on /api/v1/events.
func WithHub(h *Hub) ServerOption {
	return func(s *Server) { s.hub = h }
}

// WithHealthCheck adds a named dependency check to /api/v1/health.
func WithHealthCheck(name string, check HealthCheck) ServerOption {
	return func(s *Server) { s.checks[name] = check }
}

// New creates the server. cfg may be nil for defaults.
func New(cfg *Config, p Pipeline, opts ...ServerOption) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if p == nil {
		return nil, errors.Newf("api requires a pipeline").
			Component("api").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = DefaultHeartbeat
	}

	s := &Server{
		config:    cfg,
		pipeline:  p,
		checks:    make(map[string]HealthCheck),
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = GetLogger()
	}

	s.echo = echo.New()
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Server.ReadTimeout = cfg.ReadTimeout
	s.echo.Server.IdleTimeout = cfg.IdleTimeout

	s.setupMiddleware()
	s.setupRoutes()

	s.log.Info("HTTP server initialized",
		logger.String("address", cfg.Listen),
		logger.Bool("events", s.hub != nil),
		logger.Bool("metrics", s.metrics != nil))
	return s, nil
}

func (s *Server) setupMiddleware() {
	s.echo.Use(echomw.Recover())
	s.echo.Use(newRequestLogger(s.log, func(c echo.Context) bool {
		// event streams log their own connect and disconnect
		return c.Path() == "/api/v1/events"
	}))
	s.echo.Use(echomw.CORSWithConfig(echomw.CORSConfig{AllowOrigins: s.config.AllowedOrigins}))
	s.echo.Use(echomw.BodyLimit(s.config.BodyLimit))
}

func (s *Server) setupRoutes() {
	g := s.echo.Group("/api/v1")

	g.GET("/health", s.healthCheck)
	g.GET("/status", s.getStatus)

	g.POST("/playback/start", s.startPlayback)
	g.POST("/playback/stop", s.stopPlayback)
	g.PUT("/playback/volume", s.setVolume)
	g.PUT("/playback/mute", s.setMute)

	g.POST("/identify", s.identify, newRateLimiter(s.config.IdentifyRateLimit, int(math.Ceil(s.config.IdentifyRateLimit))))
	g.PUT("/auto-identify", s.setAutoIdentify)

	g.GET("/history", s.listHistory)
	g.DELETE("/history", s.clearHistory)
	g.GET("/history/:id", s.getTrack)
	g.GET("/history/:id/search", s.searchTrack)

	if s.hub != nil {
		g.GET("/events", s.streamEvents, newRateLimiter(sseConnectRate, sseConnectBurst))
	}
	if s.metrics != nil {
		g.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}
}

// Run serves until ctx is cancelled and then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("starting HTTP server", logger.String("address", s.config.Listen))
		errCh <- s.echo.Start(s.config.Listen)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.New(err).
			Component("api").
			Category(errors.CategoryNetwork).
			Context("address", s.config.Listen).
			Build()
	case <-ctx.Done():
		return s.Shutdown()
	}
}

// Shutdown closes event streams and stops the server.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	if s.hub != nil {
		s.hub.Close()
	}
	if err := s.echo.Shutdown(ctx); err != nil {
		s.log.Error("error during server shutdown", logger.Error(err))
		return errors.New(err).
			Component("api").
			Category(errors.CategorySystem).
			Context("operation", "shutdown").
			Build()
	}
	s.log.Info("server shutdown complete")
	return nil
}

// Echo returns the underlying Echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
