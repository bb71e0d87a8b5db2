package middleware

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/arklim/identity-verification/internal/core/apperror"
	"github.com/arklim/identity-verification/internal/core/domain"
	appLogger "github.com/arklim/identity-verification/internal/infra/logger"
)

// RequestLimiter counts requests in fixed windows per (scope, identifier).
type RequestLimiter interface {
	Allow(ctx context.Context, scope, identifier string, maxRequests int, window time.Duration) (domain.RateLimitDecision, error)
}

// IdentifierFunc extracts the identifier used to scope rate limits (e.g., client IP).
type IdentifierFunc func(*gin.Context) (string, bool)

// RateLimitRule configures a fixed-window limit for a particular identifier.
type RateLimitRule struct {
	Name       string
	Limit      int
	Window     time.Duration
	Identifier IdentifierFunc
}

// RateLimiter turns RateLimitRules into gin middleware.
type RateLimiter struct {
	limiter RequestLimiter
	logger  *zap.Logger
}

// NewRateLimiter builds a reusable rate limiter middleware helper.
func NewRateLimiter(limiter RequestLimiter, logger *zap.Logger) *RateLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateLimiter{limiter: limiter, logger: logger}
}

// ClientIPIdentifier builds an IdentifierFunc using the request's client IP.
func ClientIPIdentifier() IdentifierFunc {
	return func(c *gin.Context) (string, bool) {
		ip := c.ClientIP()
		return ip, ip != ""
	}
}

// RateLimit returns a gin middleware enforcing rules in order. A limiter
// failure is logged and the request is let through.
func (rl *RateLimiter) RateLimit(rules ...RateLimitRule) gin.HandlerFunc {
	filtered := make([]RateLimitRule, 0, len(rules))
	for _, rule := range rules {
		if rule.Identifier == nil || rule.Limit <= 0 || rule.Window <= 0 {
			continue
		}
		if rule.Name == "" {
			rule.Name = "default"
		}
		filtered = append(filtered, rule)
	}

	return func(c *gin.Context) {
		if rl == nil || rl.limiter == nil || len(filtered) == 0 {
			c.Next()
			return
		}

		for _, rule := range filtered {
			identifier, ok := rule.Identifier(c)
			if !ok {
				continue
			}

			decision, err := rl.limiter.Allow(c.Request.Context(), rule.Name, identifier, rule.Limit, rule.Window)
			if err != nil {
				appLogger.WithContext(c.Request.Context(), rl.logger).Warn("rate limit check failed",
					zap.String("rule", rule.Name),
					zap.String("identifier", appLogger.MaskIP(identifier)),
					zap.Error(err),
				)
				continue
			}

			headers := c.Writer.Header()
			headers.Set("X-RateLimit-Limit", strconv.Itoa(rule.Limit))
			headers.Set("X-RateLimit-Remaining", strconv.Itoa(decision.RemainingRequests))
			headers.Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetTime.Unix(), 10))

			if !decision.Allowed {
				AbortWithError(c, apperror.New(apperror.CodeRateLimited, "").
					WithDetail("rule", rule.Name).
					WithDetail("resetTime", decision.ResetTime.UTC()).
					WithDetail("remainingRequests", 0))
				return
			}
		}

		c.Next()
	}
}
