package clients

import (
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"

	"github.com/loganventer/loganventerprofile-sub000/pkg/logging"
)

// BreakerState mirrors the failsafe-go circuit states for logs and metrics.
type BreakerState int

const (
	StateClosed BreakerState = iota
	StateHalfOpen
	StateOpen
)

func (s BreakerState) String() string {
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

// ErrBreakerOpen is returned by Call while the breaker rejects work.
var ErrBreakerOpen = circuitbreaker.ErrOpen

// BreakerConfig configures a count-based circuit breaker.
type BreakerConfig struct {
	// Name labels logs and the breaker metrics.
	Name string

	// Failures within the last Window calls trip the breaker.
	Failures uint
	Window   uint

	// Delay is how long the breaker stays open before probing.
	Delay time.Duration

	// Successes needed while half-open to close again.
	Successes uint

	Logger logging.Logger

	// OnStateChange, when set, is invoked after every transition.
	OnStateChange func(name string, from, to BreakerState)
}

// DefaultBreakerConfig trips after 3 failures in 5 calls and probes after 30s.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:      name,
		Failures:  3,
		Window:    5,
		Delay:     30 * time.Second,
		Successes: 1,
	}
}

// Breaker wraps a failsafe-go circuit breaker.
type Breaker struct {
	cb   circuitbreaker.CircuitBreaker[any]
	name string
}

// NewBreaker builds a breaker, filling zero fields from DefaultBreakerConfig.
func NewBreaker(cfg BreakerConfig) *Breaker {
	def := DefaultBreakerConfig(cfg.Name)
	if cfg.Name == "" {
		cfg.Name = "breaker"
	}
	if cfg.Failures == 0 {
		cfg.Failures = def.Failures
	}
	if cfg.Window < cfg.Failures {
		cfg.Window = max(def.Window, cfg.Failures)
	}
	if cfg.Delay <= 0 {
		cfg.Delay = def.Delay
	}
	if cfg.Successes == 0 {
		cfg.Successes = def.Successes
	}

	name := cfg.Name
	builder := circuitbreaker.NewBuilder[any]().
		WithFailureThresholdRatio(cfg.Failures, cfg.Window).
		WithDelay(cfg.Delay).
		WithSuccessThreshold(cfg.Successes).
		OnStateChanged(func(event circuitbreaker.StateChangedEvent) {
			from, to := convertState(event.OldState), convertState(event.NewState)
			recordTransition(name, from, to)
			if cfg.Logger != nil {
				cfg.Logger.WithFields(logging.Fields{
					"circuit_breaker": name,
					"from_state":      from.String(),
					"to_state":        to.String(),
				}).Warn("circuit breaker state change")
			}
			if cfg.OnStateChange != nil {
				cfg.OnStateChange(name, from, to)
			}
		})

	return &Breaker{cb: builder.Build(), name: name}
}

func convertState(state circuitbreaker.State) BreakerState {
	switch state {
	case circuitbreaker.HalfOpenState:
		return StateHalfOpen
	case circuitbreaker.OpenState:
		return StateOpen
	default:
		return StateClosed
	}
}

// Call runs fn through the breaker. An open breaker returns ErrBreakerOpen
// without invoking fn.
func (b *Breaker) Call(fn func() error) error {
	_, err := failsafe.With(b.cb).Get(func() (any, error) {
		return nil, fn()
	})
	return err
}

// State reports the current breaker state.
func (b *Breaker) State() BreakerState {
	return convertState(b.cb.State())
}

// Name returns the configured breaker name.
func (b *Breaker) Name() string {
	return b.name
}
