package transport

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/vyrodovalexey/alipaykernel/internal/config"
	"github.com/vyrodovalexey/alipaykernel/internal/observability"
)

// RateLimiter paces outbound calls with a token bucket. Callers block
// until a token is available or their context ends.
type RateLimiter struct {
	limiter *rate.Limiter
	metrics *observability.Metrics
	logger  observability.Logger
}

// RateLimiterOption is a functional option for configuring the rate limiter.
type RateLimiterOption func(*RateLimiter)

// WithRateLimiterLogger sets the logger for the rate limiter.
func WithRateLimiterLogger(logger observability.Logger) RateLimiterOption {
	return func(rl *RateLimiter) {
		rl.logger = logger
	}
}

// WithRateLimiterMetrics records wait times on metrics.
func WithRateLimiterMetrics(metrics *observability.Metrics) RateLimiterOption {
	return func(rl *RateLimiter) {
		rl.metrics = metrics
	}
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(cfg *config.RateLimitConfig, opts ...RateLimiterOption) *RateLimiter {
	rl := &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		logger:  observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(rl)
	}

	return rl
}

// Wait blocks until the call may proceed.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	start := time.Now()
	err := rl.limiter.Wait(ctx)
	waited := time.Since(start)
	rl.metrics.ObserveRateLimitWait(waited)
	if err != nil {
		rl.logger.Warn("rate limit wait aborted",
			observability.Duration("waited", waited),
			observability.Error(err),
		)
	}
	return err
}

// Allow reports whether a call may proceed now without waiting.
func (rl *RateLimiter) Allow() bool {
	return rl.limiter.Allow()
}
