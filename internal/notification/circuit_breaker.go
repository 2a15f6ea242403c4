package notification

import (
	"context"
	"sync"
	"time"

	"github.com/tphakala/trackid-go/internal/errors"
	"github.com/tphakala/trackid-go/internal/logger"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	// StateClosed means requests are flowing normally.
	StateClosed CircuitState = iota
	// StateHalfOpen means the circuit is testing if the service has recovered.
	StateHalfOpen
	// StateOpen means requests are being rejected.
	StateOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// ErrCircuitBreakerOpen is returned when the circuit breaker rejects a call.
var ErrCircuitBreakerOpen = errors.Newf("circuit breaker is open").
	Component("notification").
	Category(errors.CategoryNotification).
	Build()

// CircuitBreakerConfig holds configuration for a circuit breaker.
type CircuitBreakerConfig struct {
	// MaxFailures is the number of consecutive failures before opening the circuit.
	MaxFailures int
	// Timeout is how long to wait before transitioning from Open to Half-Open.
	Timeout time.Duration
}

func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{MaxFailures: 5, Timeout: 30 * time.Second}
}

// CircuitBreaker stops calling a provider after repeated failures and lets
// a single probe through once Timeout has passed.
type CircuitBreaker struct {
	config          CircuitBreakerConfig
	providerName    string
	log             logger.Logger
	now             func() time.Time
	mu              sync.Mutex
	state           CircuitState
	failures        int
	lastStateChange time.Time
	probing         bool
}

func NewCircuitBreaker(config CircuitBreakerConfig, providerName string) *CircuitBreaker {
	d := DefaultCircuitBreakerConfig()
	if config.MaxFailures < 1 {
		config.MaxFailures = d.MaxFailures
	}
	if config.Timeout <= 0 {
		config.Timeout = d.Timeout
	}
	return &CircuitBreaker{
		config:          config,
		providerName:    providerName,
		log:             GetLogger(),
		now:             time.Now,
		lastStateChange: time.Now(),
	}
}

// Call executes fn if the circuit allows it and records the result.
// Cancellation does not count as a provider failure.
func (cb *CircuitBreaker) Call(ctx context.Context, fn func(context.Context) error) error {
	if err := cb.beforeCall(); err != nil {
		return err
	}
	err := fn(ctx)
	cb.afterCall(err)
	return err
}

func (cb *CircuitBreaker) beforeCall() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return nil
	case StateOpen:
		if cb.now().Sub(cb.lastStateChange) >= cb.config.Timeout {
			cb.setState(StateHalfOpen)
			cb.probing = true
			return nil
		}
	case StateHalfOpen:
		if !cb.probing {
			cb.probing = true
			return nil
		}
	}
	return errors.New(ErrCircuitBreakerOpen).
		Component("notification").
		Category(errors.CategoryNotification).
		Context("provider", cb.providerName).
		Context("state", cb.state.String()).
		Context("consecutive_failures", cb.failures).
		Build()
}

func (cb *CircuitBreaker) afterCall(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.probing = false

	if err == nil {
		cb.failures = 0
		cb.setState(StateClosed)
		return
	}
	if errors.Is(err, context.Canceled) {
		return
	}

	cb.failures++
	if cb.state == StateHalfOpen || cb.failures >= cb.config.MaxFailures {
		cb.setState(StateOpen)
	}
}

func (cb *CircuitBreaker) setState(to CircuitState) {
	if cb.state == to {
		return
	}
	from := cb.state
	cb.state = to
	cb.lastStateChange = cb.now()
	cb.log.Info("circuit breaker state transition",
		logger.String("provider", cb.providerName),
		logger.String("old_state", from.String()),
		logger.String("new_state", to.String()),
		logger.Int("consecutive_failures", cb.failures))
}

func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}
