// Package integration adapts AWS Support and AWS Health to the service
// layer's client interfaces. Every call runs under a per-call timeout and a
// circuit breaker, and transport failures surface as ExternalUnavailable.
package integration

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	apperrors "github.com/spec-kit/sla-ticket-service/pkg/errorutil"
)

// BreakerSettings tunes the circuit breaker wrapped around one system.
type BreakerSettings struct {
	// ConsecutiveFailures trips the breaker. Defaults to 5.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the breaker stays open. Defaults to 30s.
	OpenTimeout time.Duration
	// RatePerSecond caps outbound calls; zero means unlimited.
	RatePerSecond float64
	// Burst defaults to 1 when a rate is set.
	Burst int
}

type breaker struct {
	system  string
	timeout time.Duration
	cb      *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

func newBreaker(system string, callTimeout time.Duration, settings BreakerSettings, logger *zap.Logger) *breaker {
	if settings.ConsecutiveFailures == 0 {
		settings.ConsecutiveFailures = 5
	}
	if settings.OpenTimeout <= 0 {
		settings.OpenTimeout = 30 * time.Second
	}
	if callTimeout <= 0 {
		callTimeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        system,
		MaxRequests: 1,
		Timeout:     settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.ConsecutiveFailures
		},
		// Lookups of missing cases or events are answers, not outages.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, apperrors.ErrCaseNotFound) || errors.Is(err, apperrors.ErrEventNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("system", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	b := &breaker{system: system, timeout: callTimeout, cb: cb}
	if settings.RatePerSecond > 0 {
		burst := settings.Burst
		if burst <= 0 {
			burst = 1
		}
		b.limiter = rate.NewLimiter(rate.Limit(settings.RatePerSecond), burst)
	}
	return b
}

// call waits for the rate limiter, then runs fn under the breaker with a
// fresh per-call deadline. Domain errors
// pass through; anything else becomes ExternalUnavailable.
func call[T any](ctx context.Context, b *breaker, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if b.limiter != nil {
		if err := b.limiter.Wait(ctx); err != nil {
			return zero, apperrors.NewExternalUnavailable(b.system, err)
		}
	}
	out, err := b.cb.Execute(func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(ctx, b.timeout)
		defer cancel()
		return fn(callCtx)
	})
	if err != nil {
		var domainErr *apperrors.DomainError
		if errors.As(err, &domainErr) {
			return zero, err
		}
		return zero, apperrors.NewExternalUnavailable(b.system, err)
	}
	return out.(T), nil
}
