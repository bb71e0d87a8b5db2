package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/arklim/identity-verification/internal/core/domain"
	"github.com/arklim/identity-verification/internal/core/port"
)

const defaultRateLimitPrefix = "otp_rate_limit"

// RateLimiter is a fixed-window request counter per (identifier, purpose).
// Denied requests are not counted, so the stored count never exceeds the limit.
// A burst straddling a window boundary can admit up to twice the limit.
type RateLimiter struct {
	store  port.KeyValueStore
	prefix string
	now    func() time.Time
}

// NewRateLimiter constructs a RateLimiter writing counters under prefix.
func NewRateLimiter(store port.KeyValueStore, prefix string) *RateLimiter {
	if prefix == "" {
		prefix = defaultRateLimitPrefix
	}
	return &RateLimiter{
		store:  store,
		prefix: prefix,
		now:    time.Now,
	}
}

// WithClock overrides the time source, primarily for tests.
func (l *RateLimiter) WithClock(now func() time.Time) *RateLimiter {
	if now != nil {
		l.now = now
	}
	return l
}

// Check admits the request when fewer than maxRequests were counted in the current window.
func (l *RateLimiter) Check(ctx context.Context, identifier string, purpose domain.OTPPurpose, maxRequests int, window time.Duration) (domain.RateLimitDecision, error) {
	return l.Allow(ctx, string(purpose), identifier, maxRequests, window)
}

// Allow is Check for an arbitrary scope, such as a per-IP HTTP rule.
func (l *RateLimiter) Allow(ctx context.Context, scope, identifier string, maxRequests int, window time.Duration) (domain.RateLimitDecision, error) {
	if maxRequests <= 0 || window <= 0 {
		return domain.RateLimitDecision{}, fmt.Errorf("rate limit: max requests and window must be positive")
	}

	key := l.prefix + ":" + scope + ":" + identifier

	count, admitted, err := l.store.Increment(ctx, key, int64(maxRequests), window)
	if err != nil {
		return domain.RateLimitDecision{}, fmt.Errorf("rate limit: increment: %w", err)
	}
	if !admitted {
		return l.deny(ctx, key)
	}

	ttl, err := l.store.RemainingTTL(ctx, key)
	if err != nil {
		return domain.RateLimitDecision{}, fmt.Errorf("rate limit: ttl: %w", err)
	}

	return domain.RateLimitDecision{
		Allowed:           true,
		RemainingRequests: maxRequests - int(count),
		ResetTime:         l.now().Add(ttl),
	}, nil
}

func (l *RateLimiter) deny(ctx context.Context, key string) (domain.RateLimitDecision, error) {
	ttl, err := l.store.RemainingTTL(ctx, key)
	if err != nil {
		return domain.RateLimitDecision{}, fmt.Errorf("rate limit: ttl: %w", err)
	}
	return domain.RateLimitDecision{
		Allowed:           false,
		RemainingRequests: 0,
		ResetTime:         l.now().Add(ttl),
	}, nil
}
