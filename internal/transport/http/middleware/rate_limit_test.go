package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/arklim/identity-verification/internal/core/domain"
)

type fakeRequestLimiter struct {
	decision domain.RateLimitDecision
	err      error

	scopes      []string
	identifiers []string
}

func (f *fakeRequestLimiter) Allow(_ context.Context, scope, identifier string, _ int, _ time.Duration) (domain.RateLimitDecision, error) {
	f.scopes = append(f.scopes, scope)
	f.identifiers = append(f.identifiers, identifier)
	return f.decision, f.err
}

func newLimitedRouter(t *testing.T, limiter RequestLimiter) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	rl := NewRateLimiter(limiter, zaptest.NewLogger(t))
	router := gin.New()
	router.Use(EnrichContext())
	router.POST("/login", rl.RateLimit(RateLimitRule{
		Name:   "login_ip",
		Limit:  5,
		Window: time.Minute,
		Identifier: func(*gin.Context) (string, bool) {
			return "192.0.2.1", true
		},
	}), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return router
}

func TestRateLimiterAllowsWhenBelowLimit(t *testing.T) {
	reset := time.Now().Add(time.Minute).Truncate(time.Second)
	limiter := &fakeRequestLimiter{decision: domain.RateLimitDecision{
		Allowed:           true,
		RemainingRequests: 2,
		ResetTime:         reset,
	}}

	rr := httptest.NewRecorder()
	newLimitedRouter(t, limiter).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/login", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "5", rr.Header().Get("X-RateLimit-Limit"))
	require.Equal(t, "2", rr.Header().Get("X-RateLimit-Remaining"))
	require.Equal(t, []string{"login_ip"}, limiter.scopes)
	require.Equal(t, []string{"192.0.2.1"}, limiter.identifiers)
}

func TestRateLimiterRejectsWhenLimitExceeded(t *testing.T) {
	limiter := &fakeRequestLimiter{decision: domain.RateLimitDecision{
		Allowed:   false,
		ResetTime: time.Now().Add(30 * time.Second),
	}}

	rr := httptest.NewRecorder()
	newLimitedRouter(t, limiter).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/login", nil))

	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	require.NotEmpty(t, rr.Header().Get("Retry-After"))

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.False(t, body.Success)
	require.EqualValues(t, "RATE_LIMITED", body.Error.Code)
	require.Equal(t, http.StatusTooManyRequests, body.Error.StatusCode)
	require.NotEmpty(t, body.Error.TraceID)
}

func TestRateLimiterFailsOpenOnStoreError(t *testing.T) {
	limiter := &fakeRequestLimiter{err: errors.New("redis: connection refused")}

	rr := httptest.NewRecorder()
	newLimitedRouter(t, limiter).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/login", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	require.Empty(t, rr.Header().Get("X-RateLimit-Limit"))
}

func TestRateLimiterSkipsInvalidRules(t *testing.T) {
	gin.SetMode(gin.TestMode)
	limiter := &fakeRequestLimiter{}
	rl := NewRateLimiter(limiter, nil)

	router := gin.New()
	router.GET("/", rl.RateLimit(RateLimitRule{Name: "broken", Limit: 0, Window: time.Minute, Identifier: ClientIPIdentifier()}), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Empty(t, limiter.scopes)
}
