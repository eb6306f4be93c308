package mirror

import (
	"errors"
	"fmt"
	"time"

	"github.com/cenk/backoff"
	circuit "github.com/rubyist/circuitbreaker"
)

// Breaker stops calling an upstream that keeps failing. A missing artifact
// is a valid answer from a healthy upstream and never counts as a failure.
type Breaker struct {
	cb *circuit.Breaker
}

// NewBreaker trips after threshold consecutive failures and retries the
// upstream on an exponential schedule starting at cooldown.
func NewBreaker(threshold int64, cooldown time.Duration) *Breaker {
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = cooldown
	expBackoff.MaxInterval = 5 * time.Minute
	expBackoff.Multiplier = 2.0
	expBackoff.Reset()

	return &Breaker{cb: circuit.NewBreakerWithOptions(&circuit.Options{
		BackOff:    expBackoff,
		ShouldTrip: circuit.ConsecutiveTripFunc(threshold),
	})}
}

// Do runs fn unless the breaker is open, in which case ErrUnreachable is returned.
func (b *Breaker) Do(fn func() error) error {
	if !b.cb.Ready() {
		return fmt.Errorf("mirror: circuit open: %w", ErrUnreachable)
	}
	var notFound error
	err := b.cb.Call(func() error {
		err := fn()
		if errors.Is(err, ErrNotFound) {
			notFound = err
			return nil
		}
		return err
	}, 0)
	if errors.Is(err, circuit.ErrBreakerOpen) {
		return fmt.Errorf("mirror: circuit open: %w", ErrUnreachable)
	}
	if err != nil {
		return err
	}
	return notFound
}

// Tripped reports whether the breaker is currently open.
func (b *Breaker) Tripped() bool {
	return b.cb.Tripped()
}

// Reset closes the breaker, used once a probe sees the upstream again.
func (b *Breaker) Reset() {
	b.cb.Reset()
}
