// Package backoff converts consecutive failures into wait durations and
// retry/abort decisions for the scheduling loop.
package backoff

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/instagent/instagent/pkg/instagram"
)

const (
	minBaseDelay = time.Second
	maxMaxDelay  = time.Hour
	maxRetries   = 10

	// jitterFraction spreads each delay by ±20% to avoid synchronized
	// retry storms.
	jitterFraction = 0.2
)

// Config holds the tunable backoff parameters.
type Config struct {
	// BaseDelay seeds the exponential curve.
	BaseDelay time.Duration
	// MaxDelay caps the curve so a long streak never produces an
	// unbounded sleep.
	MaxDelay time.Duration
	// MaxConsecutiveFailures is the streak beyond which a module is
	// disabled instead of retried.
	MaxConsecutiveFailures int
	// RemoteCooldown is the fixed wait after Instagram itself asks us
	// to slow down, independent of the exponential curve.
	RemoteCooldown time.Duration
}

// Validate enforces explicit bounds at config load. The env defaults the
// original deployment shipped were never bounds-checked; this is where
// that gets fixed.
func (c Config) Validate() error {
	if c.BaseDelay < minBaseDelay {
		return fmt.Errorf("backoff base delay %v below minimum %v", c.BaseDelay, minBaseDelay)
	}
	if c.MaxDelay < c.BaseDelay {
		return fmt.Errorf("backoff max delay %v below base delay %v", c.MaxDelay, c.BaseDelay)
	}
	if c.MaxDelay > maxMaxDelay {
		return fmt.Errorf("backoff max delay %v above maximum %v", c.MaxDelay, maxMaxDelay)
	}
	if c.MaxConsecutiveFailures < 1 || c.MaxConsecutiveFailures > maxRetries {
		return fmt.Errorf("max consecutive failures %d outside [1,%d]", c.MaxConsecutiveFailures, maxRetries)
	}
	if c.RemoteCooldown <= 0 {
		return fmt.Errorf("remote cooldown must be positive, got %v", c.RemoteCooldown)
	}
	return nil
}

// Decision tells the scheduler what to do after a classified failure.
type Decision struct {
	// Delay to wait before this module may run again.
	Delay time.Duration
	// Abort disables the module until an explicit resume.
	Abort bool
	// CountsTowardAbort reports whether this failure advanced the
	// streak that Abort is judged against.
	CountsTowardAbort bool
}

// Policy computes backoff delays and abort decisions.
type Policy struct {
	cfg    Config
	jitter func() float64
}

// Option customizes a Policy.
type Option func(*Policy)

// WithJitterSource overrides the jitter draw, used by tests.
func WithJitterSource(f func() float64) Option {
	return func(p *Policy) { p.jitter = f }
}

// New creates a Policy from a validated config.
func New(cfg Config, opts ...Option) (*Policy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid backoff config: %w", err)
	}

	p := &Policy{
		cfg:    cfg,
		jitter: rand.Float64,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// NextDelay computes base * 2^(streak-1), capped at MaxDelay, with ±20%
// jitter applied after the cap.
func (p *Policy) NextDelay(streak int) time.Duration {
	if streak < 1 {
		streak = 1
	}

	delay := p.cfg.BaseDelay
	for i := 1; i < streak; i++ {
		delay *= 2
		if delay >= p.cfg.MaxDelay {
			delay = p.cfg.MaxDelay
			break
		}
	}

	// jitter in [-jitterFraction, +jitterFraction]
	spread := (p.jitter()*2 - 1) * jitterFraction
	jittered := time.Duration(float64(delay) * (1 + spread))
	if jittered < 0 {
		jittered = 0
	}
	return jittered
}

// ShouldAbort reports whether the streak has exceeded the configured
// maximum consecutive failures.
func (p *Policy) ShouldAbort(streak int) bool {
	return streak > p.cfg.MaxConsecutiveFailures
}

// Decide weighs a classified failure. Remote rate limiting forces the long
// cooldown and never disables the module. Challenge, auth and unknown
// failures get exactly one retry before abort: they need operator action,
// and hammering a challenged account makes things worse. Transient
// failures ride the exponential curve until ShouldAbort trips.
func (p *Policy) Decide(kind instagram.FailureKind, streak int) Decision {
	switch kind {
	case instagram.FailureRateLimited:
		return Decision{Delay: p.cfg.RemoteCooldown}
	case instagram.FailureChallenge, instagram.FailureAuth, instagram.FailureUnknown:
		if streak > 1 {
			return Decision{Abort: true, CountsTowardAbort: true}
		}
		return Decision{Delay: p.NextDelay(streak), CountsTowardAbort: true}
	default:
		if p.ShouldAbort(streak) {
			return Decision{Abort: true, CountsTowardAbort: true}
		}
		return Decision{Delay: p.NextDelay(streak), CountsTowardAbort: true}
	}
}
