// Package api serves the HTTP control surface: playback, identification,
// history, status, server-sent events and metrics.
package api

import (
	"net"
	"time"

	"github.com/tphakala/trackid-go/internal/conf"
	"github.com/tphakala/trackid-go/internal/errors"
	"github.com/tphakala/trackid-go/internal/logger"
)

// GetLogger returns the api package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("api")
}

// Default constants for the HTTP server.
const (
	DefaultListen          = ":8080"
	DefaultReadTimeout     = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
	DefaultHeartbeat       = 30 * time.Second

	// manual identify requests allowed per second per client
	DefaultIdentifyRateLimit = 0.2
)

// Config holds the HTTP server configuration.
type Config struct {
	Listen string // host:port

	// WriteTimeout is left unset on the server so that event streams stay
	// open; handlers bound their own work.
	ReadTimeout     time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	BodyLimit      string
	AllowedOrigins []string

	IdentifyRateLimit float64 // requests per second per client
	SearchURLTemplate string  // %s is replaced with the escaped query
	Heartbeat         time.Duration

	Version string
	Debug   bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Listen:            DefaultListen,
		ReadTimeout:       DefaultReadTimeout,
		IdleTimeout:       DefaultIdleTimeout,
		ShutdownTimeout:   DefaultShutdownTimeout,
		BodyLimit:         "64K",
		AllowedOrigins:    []string{"*"},
		IdentifyRateLimit: DefaultIdentifyRateLimit,
		SearchURLTemplate: "https://www.youtube.com/results?search_query=%s",
		Heartbeat:         DefaultHeartbeat,
	}
}

// ConfigFromSettings creates a Config from the application settings.
func ConfigFromSettings(settings *conf.Settings) *Config {
	cfg := DefaultConfig()
	if settings == nil {
		return cfg
	}
	if settings.WebServer.Listen != "" {
		cfg.Listen = settings.WebServer.Listen
	}
	if settings.WebServer.SearchURLTemplate != "" {
		cfg.SearchURLTemplate = settings.WebServer.SearchURLTemplate
	}
	if settings.WebServer.IdentifyRateLimit > 0 {
		cfg.IdentifyRateLimit = settings.WebServer.IdentifyRateLimit
	}
	cfg.Debug = settings.Debug
	return cfg
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if _, _, err := net.SplitHostPort(c.Listen); err != nil {
		return errors.New(err).
			Component("api").
			Category(errors.CategoryConfiguration).
			Context("listen", c.Listen).
			Build()
	}
	if c.ReadTimeout <= 0 {
		return errors.Newf("read timeout must be positive").
			Component("api").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if c.IdentifyRateLimit <= 0 {
		return errors.Newf("identify rate limit must be positive").
			Component("api").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return nil
}
