package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/arklim/identity-verification/internal/core/domain"
	"github.com/arklim/identity-verification/internal/core/port"
	"github.com/arklim/identity-verification/internal/infra/config"
	"github.com/arklim/identity-verification/internal/infra/database"
	kafkainfra "github.com/arklim/identity-verification/internal/infra/kafka"
	"github.com/arklim/identity-verification/internal/infra/logger"
	"github.com/arklim/identity-verification/internal/infra/notification"
	redisinfra "github.com/arklim/identity-verification/internal/infra/redis"
	"github.com/arklim/identity-verification/internal/infra/security"
	"github.com/arklim/identity-verification/internal/infra/telemetry"
	postgresrepo "github.com/arklim/identity-verification/internal/repository/postgres"
	redisrepo "github.com/arklim/identity-verification/internal/repository/redis"
	"github.com/arklim/identity-verification/internal/transport/http/middleware"
	"github.com/arklim/identity-verification/internal/transport/http/routes"
	"github.com/arklim/identity-verification/internal/usecase"
)

const instrumentationName = "github.com/arklim/identity-verification"

type Application struct {
	cfg      *config.AppConfig
	engine   *gin.Engine
	logger   *zap.Logger
	pool     *pgxpool.Pool
	redis    *redisinfra.Client
	producer *kafkainfra.Producer
	tracer   *telemetry.TracerProvider
}

func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	a := &Application{cfg: cfg, logger: log}
	if err := a.init(ctx); err != nil {
		a.release(context.Background())
		return nil, err
	}
	return a, nil
}

func (a *Application) init(ctx context.Context) error {
	cfg, log := a.cfg, a.logger

	var tracing *middleware.TracingOptions
	if cfg.Telemetry.TracingEnabled {
		tp, err := telemetry.NewTracerProvider(ctx, cfg.Telemetry, log)
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		a.tracer = tp
		tracing = &middleware.TracingOptions{
			TracerProvider: otel.GetTracerProvider(),
			Propagators:    otel.GetTextMapPropagator(),
		}
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return fmt.Errorf("init postgres: %w", err)
	}
	a.pool = pool

	redisClient, err := redisinfra.NewClient(cfg.Redis, log)
	if err != nil {
		return fmt.Errorf("init redis: %w", err)
	}
	a.redis = redisClient

	users := postgresrepo.NewUserRepository(pool)
	kv := redisrepo.NewKeyValueStore(redisClient.Client())
	otpStore := redisrepo.NewOTPRepository(redisClient.Client(), cfg.Redis.OTPPrefix)

	hasher, err := security.NewArgon2Hasher(security.Argon2Config{
		Memory:      cfg.Argon2.Memory,
		Iterations:  cfg.Argon2.Iterations,
		Parallelism: cfg.Argon2.Parallelism,
		SaltLength:  cfg.Argon2.SaltLength,
		KeyLength:   cfg.Argon2.KeyLength,
	})
	if err != nil {
		return fmt.Errorf("init password hasher: %w", err)
	}

	keys, err := a.keyProvider()
	if err != nil {
		return err
	}
	jwtManager := security.NewJWTManager(keys, cfg.JWT.Issuer)

	debug := !cfg.App.IsProduction()
	otpManager := usecase.NewOTPManager(otpStore,
		usecase.WithOTPLength(cfg.OTP.Length),
		usecase.WithOTPMaxAttempts(cfg.OTP.MaxAttempts),
		usecase.WithOTPLogger(log, debug),
	)
	rateLimiter := usecase.NewRateLimiter(kv, cfg.Redis.RateLimitPrefix)

	metrics, err := telemetry.NewAuthMetrics(prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("init auth metrics: %w", err)
	}

	authService, err := usecase.NewAuthService(usecase.AuthDependencies{
		Users:       users,
		Hasher:      hasher,
		Passwords:   security.DefaultPasswordValidator(cfg.Password.MinLength, cfg.Password.MinStrengthScore),
		Identifiers: security.NewIdentifierResolver(domain.IdentifierKind(cfg.App.PrimaryIdentifier)),
		OTP:         otpManager,
		RateLimiter: rateLimiter,
		LockPolicy:  usecase.NewAccountLockPolicy(users, cfg.Lockout.Threshold, cfg.Lockout.Duration),
		Tokens:      usecase.NewTokenIssuer(jwtManager, cfg.JWT.AccessTokenTTL, cfg.JWT.RefreshTokenTTL),
		Notifier:    notification.NewLoggingDispatcher(cfg.Notification, log, debug),
		Events:      a.eventPublisher(),
		Metrics:     metrics,
		Tracer:      otel.Tracer(instrumentationName),
		Logger:      log,
	}, usecase.AuthSettings{
		VerificationTTL:  cfg.OTP.VerificationTTL,
		PasswordResetTTL: cfg.OTP.PasswordResetTTL,
		Login2FATTL:      cfg.OTP.Login2FATTL,
		OTPMaxRequests:   cfg.RateLimit.OTPMaxRequests,
		OTPWindow:        cfg.RateLimit.OTPWindow,
		SenderName:       cfg.Notification.SenderName,
	})
	if err != nil {
		return fmt.Errorf("init auth service: %w", err)
	}

	httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{
		Registerer: prometheus.DefaultRegisterer,
	})
	if err != nil {
		return fmt.Errorf("init http metrics: %w", err)
	}

	a.engine = routes.Register(routes.Dependencies{
		Config:      cfg,
		Logger:      log,
		Auth:        authService,
		Limiter:     rateLimiter,
		Keys:        jwtManager,
		HTTPMetrics: httpMetrics,
		Tracing:     tracing,
		Gatherer:    prometheus.DefaultGatherer,
		Database:    pool,
		Cache:       redisClient,
	})
	return nil
}

// keyProvider loads the RSA signing key from disk. Outside production a missing
// key directory falls back to a key generated for this process only.
func (a *Application) keyProvider() (security.KeyProvider, error) {
	keys, err := security.NewFileKeyProvider(a.cfg.JWT.KeyDirectory)
	if err == nil {
		return keys, nil
	}
	if a.cfg.App.IsProduction() {
		return nil, fmt.Errorf("init key provider: %w", err)
	}

	a.logger.Warn("signing key not found, generating an ephemeral key",
		zap.String("key_directory", a.cfg.JWT.KeyDirectory),
		zap.Error(err),
	)
	ephemeral, genErr := security.NewEphemeralKeyProvider(a.cfg.JWT.KeyID)
	if genErr != nil {
		return nil, fmt.Errorf("init ephemeral key provider: %w", genErr)
	}
	return ephemeral, nil
}

func (a *Application) eventPublisher() port.EventPublisher {
	if len(a.cfg.Kafka.Brokers) == 0 {
		a.logger.Info("kafka brokers not configured, using stub publisher")
		return kafkainfra.NewStubPublisher(a.logger)
	}

	producer, err := kafkainfra.NewProducer(a.cfg.Kafka, a.logger)
	if err != nil {
		a.logger.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
		return kafkainfra.NewStubPublisher(a.logger)
	}
	a.producer = producer
	return kafkainfra.NewEventPublisher(producer, a.cfg.App, a.logger)
}

func (a *Application) Run(ctx context.Context) error {
	defer a.release(context.Background())

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting identity verification API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
		zap.String("primary_identifier", a.cfg.App.PrimaryIdentifier),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		return err
	}
}

// release closes everything New opened, in reverse order.
func (a *Application) release(ctx context.Context) {
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Warn("failed to close kafka producer", zap.Error(err))
		}
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.logger.Warn("failed to shut down tracer provider", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}
