package notification

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/tphakala/trackid-go/internal/errors"
	"github.com/tphakala/trackid-go/internal/events"
	"github.com/tphakala/trackid-go/internal/logger"
	"github.com/tphakala/trackid-go/internal/observability/metrics"
)

const (
	DefaultTimeout = 10 * time.Second

	// at most one push every 10s on average, bursts of 3
	defaultRateInterval = 10 * time.Second
	defaultRateBurst    = 3
)

type providerEntry struct {
	provider Provider
	breaker  *CircuitBreaker
}

// Dispatcher is an event bus consumer fanning notifications out to
// providers. Each provider has its own circuit breaker; a shared rate
// limiter drops bursts.
type Dispatcher struct {
	providers []providerEntry
	limiter   *rate.Limiter
	timeout   time.Duration
	metrics   *metrics.NotificationMetrics
	log       logger.Logger
}

// DispatcherConfig configures a Dispatcher. Zero values take defaults.
type DispatcherConfig struct {
	Timeout        time.Duration
	RateInterval   time.Duration
	RateBurst      int
	CircuitBreaker CircuitBreakerConfig
	Metrics        *metrics.NotificationMetrics
}

// NewDispatcher validates the enabled providers and returns a dispatcher
// for them. Disabled providers are skipped.
func NewDispatcher(cfg DispatcherConfig, providers ...Provider) (*Dispatcher, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RateInterval <= 0 {
		cfg.RateInterval = defaultRateInterval
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = defaultRateBurst
	}

	d := &Dispatcher{
		limiter: rate.NewLimiter(rate.Every(cfg.RateInterval), cfg.RateBurst),
		timeout: cfg.Timeout,
		metrics: cfg.Metrics,
		log:     GetLogger(),
	}
	for _, p := range providers {
		if !p.IsEnabled() {
			continue
		}
		if err := p.ValidateConfig(); err != nil {
			return nil, err
		}
		d.providers = append(d.providers, providerEntry{
			provider: p,
			breaker:  NewCircuitBreaker(cfg.CircuitBreaker, p.GetName()),
		})
	}
	return d, nil
}

func (d *Dispatcher) Name() string { return "notification" }

// Accepts implements events.Filter.
func (d *Dispatcher) Accepts(kind events.Kind) bool {
	return kind == events.KindIdentified || kind == events.KindFailed
}

// ProcessEvent sends the notification for e, if any, to every provider
// supporting its type.
func (d *Dispatcher) ProcessEvent(e events.Event) error {
	n, ok := FromEvent(e)
	if !ok || len(d.providers) == 0 {
		return nil
	}
	if !d.limiter.Allow() {
		d.log.Debug("notification rate limited", logger.String("kind", string(e.Kind)))
		return nil
	}
	return d.Send(context.Background(), n)
}

// Send delivers n to all providers supporting its type and joins their
// errors.
func (d *Dispatcher) Send(ctx context.Context, n *Notification) error {
	var errs []error
	for _, pe := range d.providers {
		if !pe.provider.SupportsType(n.Type) {
			continue
		}
		name := pe.provider.GetName()
		sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
		err := pe.breaker.Call(sendCtx, func(ctx context.Context) error {
			return pe.provider.Send(ctx, n)
		})
		cancel()
		if err != nil {
			d.log.Warn("notification delivery failed", logger.String("provider", name), logger.Error(err))
			if d.metrics != nil {
				d.metrics.RecordFailed(name)
			}
			errs = append(errs, err)
			continue
		}
		if d.metrics != nil {
			d.metrics.RecordSent(name)
		}
	}
	return errors.Join(errs...)
}
