package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/arklim/identity-verification/internal/core/apperror"
	"github.com/arklim/identity-verification/internal/infra/config"
	"github.com/arklim/identity-verification/internal/transport/http/handlers"
	"github.com/arklim/identity-verification/internal/transport/http/middleware"
)

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config      *config.AppConfig
	Logger      *zap.Logger
	Auth        handlers.AuthService
	Limiter     middleware.RequestLimiter
	Keys        handlers.KeySet
	HTTPMetrics *middleware.HTTPMetrics
	Tracing     *middleware.TracingOptions
	Gatherer    prometheus.Gatherer
	Database    DatabaseChecker
	Cache       CacheChecker
}

// DatabaseChecker exposes readiness behaviour for database connections.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker exposes readiness behaviour for cache backends.
type CacheChecker interface {
	HealthCheck(ctx context.Context) error
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config.App.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	if deps.Tracing != nil {
		r.Use(middleware.Tracing(*deps.Tracing))
	}
	r.Use(middleware.RequestID())
	r.Use(middleware.EnrichContext())
	r.Use(middleware.Logger(deps.Logger))
	r.Use(deps.HTTPMetrics.Handler())
	if len(deps.Config.App.CORSAllowedOrigins) > 0 {
		r.Use(middleware.CORS(deps.Config.App.CORSAllowedOrigins))
	}

	r.NoRoute(func(c *gin.Context) {
		middleware.AbortWithError(c, apperror.New(apperror.CodeResourceNotFound, "Route not found"))
	})

	healthOptions := make([]handlers.HealthOption, 0, 2)
	if deps.Database != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("database", deps.Database.Ping))
	}
	if deps.Cache != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("redis", deps.Cache.HealthCheck))
	}
	healthHandler := handlers.NewHealthHandler(healthOptions...)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)
	r.GET("/metrics", gin.WrapH(metricsHandler(deps.Gatherer)))

	if deps.Keys != nil {
		r.GET("/.well-known/jwks.json", handlers.NewJWKSHandler(deps.Keys, deps.Logger).Keys)
	}

	if deps.Auth != nil {
		authHandler := handlers.NewAuthHandler(deps.Auth, deps.Logger)
		authHandler.RegisterRoutes(
			r.Group("/api/v1/auth"),
			middleware.RequireAuth(deps.Auth),
			buildRouteLimits(deps),
		)
	}

	return r
}

func metricsHandler(gatherer prometheus.Gatherer) http.Handler {
	if gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func buildRouteLimits(deps Dependencies) handlers.RouteLimits {
	if deps.Limiter == nil {
		return handlers.RouteLimits{}
	}

	settings := deps.Config.RateLimit
	limiter := middleware.NewRateLimiter(deps.Limiter, deps.Logger)

	return handlers.RouteLimits{
		Login:          ipLimit(limiter, "login_ip", settings.LoginMaxPerIP, settings.IPWindow),
		PasswordForgot: ipLimit(limiter, "password_forgot_ip", settings.PasswordResetMaxPerIP, settings.IPWindow),
	}
}

func ipLimit(limiter *middleware.RateLimiter, name string, limit int, window time.Duration) gin.HandlerFunc {
	if limit <= 0 || window <= 0 {
		return nil
	}
	return limiter.RateLimit(middleware.RateLimitRule{
		Name:       name,
		Limit:      limit,
		Window:     window,
		Identifier: middleware.ClientIPIdentifier(),
	})
}
