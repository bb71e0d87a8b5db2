package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/arklim/identity-verification/internal/core/apperror"
	"github.com/arklim/identity-verification/internal/core/domain"
	"github.com/arklim/identity-verification/internal/core/port"
	"github.com/arklim/identity-verification/internal/infra/logger"
	"github.com/arklim/identity-verification/internal/infra/security"
)

const tracerName = "github.com/arklim/identity-verification/internal/usecase"

// AuthSettings carries the tunables of the authentication flows.
type AuthSettings struct {
	VerificationTTL  time.Duration
	PasswordResetTTL time.Duration
	Login2FATTL      time.Duration
	OTPMaxRequests   int
	OTPWindow        time.Duration
	SenderName       string
}

// DefaultAuthSettings returns 15m verification codes, 30m reset codes, 5m 2FA
// codes and three OTP requests per hour.
func DefaultAuthSettings() AuthSettings {
	return AuthSettings{
		VerificationTTL:  15 * time.Minute,
		PasswordResetTTL: 30 * time.Minute,
		Login2FATTL:      5 * time.Minute,
		OTPMaxRequests:   3,
		OTPWindow:        time.Hour,
		SenderName:       "GoTracking",
	}
}

// AuthDependencies lists the collaborators of AuthService. Events, Metrics,
// Tracer and Logger are optional.
type AuthDependencies struct {
	Users       port.UserRepository
	Hasher      port.PasswordHasher
	Passwords   port.PasswordPolicyValidator
	Identifiers *security.IdentifierResolver
	OTP         *OTPManager
	RateLimiter *RateLimiter
	LockPolicy  *AccountLockPolicy
	Tokens      *TokenIssuer
	Notifier    port.NotificationDispatcher
	Events      port.EventPublisher
	Metrics     AuthMetrics
	Tracer      trace.Tracer
	Logger      *zap.Logger
}

// AuthService coordinates registration, login, OTP and token flows. Every
// error it returns is an *apperror.Error.
type AuthService struct {
	users       port.UserRepository
	hasher      port.PasswordHasher
	passwords   port.PasswordPolicyValidator
	identifiers *security.IdentifierResolver
	otp         *OTPManager
	limiter     *RateLimiter
	lock        *AccountLockPolicy
	tokens      *TokenIssuer
	notifier    port.NotificationDispatcher
	events      port.EventPublisher
	metrics     AuthMetrics
	tracer      trace.Tracer
	logger      *zap.Logger
	settings    AuthSettings
	now         func() time.Time
}

// OTPDelivery describes a code that was generated and handed to the notifier.
type OTPDelivery struct {
	Purpose           domain.OTPPurpose
	Channel           domain.IdentifierKind
	Destination       string
	ExpiresAt         time.Time
	RemainingRequests int
}

// NewAuthService constructs an AuthService.
func NewAuthService(deps AuthDependencies, settings AuthSettings) (*AuthService, error) {
	switch {
	case deps.Users == nil:
		return nil, fmt.Errorf("auth service: user repository is required")
	case deps.Hasher == nil:
		return nil, fmt.Errorf("auth service: password hasher is required")
	case deps.OTP == nil || deps.RateLimiter == nil:
		return nil, fmt.Errorf("auth service: otp manager and rate limiter are required")
	case deps.LockPolicy == nil || deps.Tokens == nil:
		return nil, fmt.Errorf("auth service: lock policy and token issuer are required")
	case deps.Notifier == nil:
		return nil, fmt.Errorf("auth service: notification dispatcher is required")
	}

	defaults := DefaultAuthSettings()
	if settings.VerificationTTL <= 0 {
		settings.VerificationTTL = defaults.VerificationTTL
	}
	if settings.PasswordResetTTL <= 0 {
		settings.PasswordResetTTL = defaults.PasswordResetTTL
	}
	if settings.Login2FATTL <= 0 {
		settings.Login2FATTL = defaults.Login2FATTL
	}
	if settings.OTPMaxRequests <= 0 {
		settings.OTPMaxRequests = defaults.OTPMaxRequests
	}
	if settings.OTPWindow <= 0 {
		settings.OTPWindow = defaults.OTPWindow
	}
	if settings.SenderName == "" {
		settings.SenderName = defaults.SenderName
	}

	s := &AuthService{
		users:       deps.Users,
		hasher:      deps.Hasher,
		passwords:   deps.Passwords,
		identifiers: deps.Identifiers,
		otp:         deps.OTP,
		limiter:     deps.RateLimiter,
		lock:        deps.LockPolicy,
		tokens:      deps.Tokens,
		notifier:    deps.Notifier,
		events:      deps.Events,
		metrics:     deps.Metrics,
		tracer:      deps.Tracer,
		logger:      deps.Logger,
		settings:    settings,
		now:         time.Now,
	}
	if s.passwords == nil {
		s.passwords = security.DefaultPasswordValidator(8, 0)
	}
	if s.identifiers == nil {
		s.identifiers = security.NewIdentifierResolver(domain.IdentifierPhone)
	}
	if s.metrics == nil {
		s.metrics = noopMetrics{}
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer(tracerName)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s, nil
}

// WithClock overrides the time source, primarily for tests. Components keep their own clocks.
func (s *AuthService) WithClock(now func() time.Time) *AuthService {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *AuthService) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "AuthService."+name, trace.WithAttributes(attrs...))
}

// fail classifies err, records it on span and returns the classified value.
func (s *AuthService) fail(ctx context.Context, span trace.Span, op string, err error) error {
	appErr := apperror.Classify(err)

	span.RecordError(err)
	span.SetStatus(otelcodes.Error, string(appErr.Code))

	log := logger.WithContext(ctx, s.logger)
	if appErr.Category() == apperror.CategorySystem {
		log.Error("auth operation failed", zap.String("operation", op), zap.String("code", string(appErr.Code)), zap.Error(err))
	} else {
		log.Info("auth operation rejected", zap.String("operation", op), zap.String("code", string(appErr.Code)))
	}
	return appErr
}

func (s *AuthService) resolveIdentifier(raw string) (domain.IdentifierKind, string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", "", apperror.New(apperror.CodeRequiredFieldMissing, "identifier is required").WithField("identifier")
	}
	kind, normalized, err := s.identifiers.Resolve(raw)
	if err != nil {
		return "", "", apperror.New(apperror.CodeInvalidIdentifier, "").WithField("identifier").Wrap(err)
	}
	return kind, normalized, nil
}

func (s *AuthService) checkPassword(password string, userInputs ...string) error {
	if password == "" {
		return apperror.New(apperror.CodeRequiredFieldMissing, "password is required").WithField("password")
	}
	if err := s.passwords.Validate(password, userInputs...); err != nil {
		var violation *security.PasswordValidationError
		if errors.As(err, &violation) {
			return apperror.New(apperror.CodeWeakPassword, violation.Message).WithField("password").WithDetail("rule", violation.Rule)
		}
		return apperror.New(apperror.CodeWeakPassword, "").WithField("password").Wrap(err)
	}
	return nil
}

func (s *AuthService) checkOTPFormat(code string) error {
	if code == "" {
		return apperror.New(apperror.CodeRequiredFieldMissing, "code is required").WithField("code")
	}
	if len(code) != s.otp.Length() {
		return apperror.New(apperror.CodeInvalidOTPFormat, fmt.Sprintf("code must have %d digits", s.otp.Length())).WithField("code")
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return apperror.New(apperror.CodeInvalidOTPFormat, "code must be numeric").WithField("code")
		}
	}
	return nil
}

func (s *AuthService) otpTTL(purpose domain.OTPPurpose) time.Duration {
	switch purpose {
	case domain.OTPPurposePasswordReset:
		return s.settings.PasswordResetTTL
	case domain.OTPPurposeLogin2FA:
		return s.settings.Login2FATTL
	default:
		return s.settings.VerificationTTL
	}
}

// issueOTP rate-limits, generates and dispatches a code to identifier.
func (s *AuthService) issueOTP(ctx context.Context, kind domain.IdentifierKind, identifier string, purpose domain.OTPPurpose) (*OTPDelivery, error) {
	decision, err := s.admitOTP(ctx, identifier, purpose)
	if err != nil {
		return nil, err
	}
	return s.deliverOTP(ctx, kind, identifier, purpose, decision)
}

// admitOTP charges one request against the identifier's window for purpose.
func (s *AuthService) admitOTP(ctx context.Context, identifier string, purpose domain.OTPPurpose) (domain.RateLimitDecision, error) {
	decision, err := s.limiter.Check(ctx, identifier, purpose, s.settings.OTPMaxRequests, s.settings.OTPWindow)
	if err != nil {
		return domain.RateLimitDecision{}, err
	}
	if !decision.Allowed {
		s.metrics.RateLimited(purpose)
		return domain.RateLimitDecision{}, apperror.New(apperror.CodeRateLimited, "").
			WithDetail("resetTime", decision.ResetTime.UTC()).
			WithDetail("remainingRequests", 0)
	}
	return decision, nil
}

func (s *AuthService) deliverOTP(ctx context.Context, kind domain.IdentifierKind, identifier string, purpose domain.OTPPurpose, decision domain.RateLimitDecision) (*OTPDelivery, error) {
	ttl := s.otpTTL(purpose)
	code, err := s.otp.Generate(ctx, identifier, purpose, ttl)
	if err != nil {
		return nil, err
	}

	if err := s.dispatch(ctx, kind, identifier, purpose, code, ttl); err != nil {
		return nil, apperror.New(apperror.CodeDeliveryFailed, "").WithDetail("channel", string(kind)).Wrap(err)
	}
	s.metrics.OTPIssued(purpose)

	return &OTPDelivery{
		Purpose:           purpose,
		Channel:           kind,
		Destination:       logger.MaskIdentifier(identifier),
		ExpiresAt:         s.now().Add(ttl),
		RemainingRequests: decision.RemainingRequests,
	}, nil
}

func (s *AuthService) dispatch(ctx context.Context, kind domain.IdentifierKind, identifier string, purpose domain.OTPPurpose, code string, ttl time.Duration) error {
	minutes := int(ttl / time.Minute)
	if kind == domain.IdentifierEmail {
		subject := fmt.Sprintf("%s %s code", s.settings.SenderName, purposeLabel(purpose))
		body := fmt.Sprintf("Your %s code is %s. It expires in %d minutes.", purposeLabel(purpose), code, minutes)
		return s.notifier.SendEmail(ctx, identifier, subject, body)
	}
	message := fmt.Sprintf("Your %s %s code is %s. It expires in %d minutes.", s.settings.SenderName, purposeLabel(purpose), code, minutes)
	return s.notifier.SendSMS(ctx, identifier, message)
}

func purposeLabel(purpose domain.OTPPurpose) string {
	switch purpose {
	case domain.OTPPurposePasswordReset:
		return "password reset"
	case domain.OTPPurposeLogin2FA:
		return "login"
	default:
		return "verification"
	}
}

func otpFailure(result domain.OTPVerification) error {
	switch result.Reason {
	case domain.OTPFailureNotFound:
		return apperror.New(apperror.CodeOTPNotFound, "")
	case domain.OTPFailureExpired:
		return apperror.New(apperror.CodeOTPExpired, "")
	case domain.OTPFailureMaxAttempts:
		return apperror.New(apperror.CodeOTPMaxAttempts, "")
	default:
		return apperror.New(apperror.CodeOTPInvalid, "").WithField("code").WithDetail("remainingAttempts", result.RemainingAttempts)
	}
}

func identifierKindOf(identifier string) domain.IdentifierKind {
	if strings.Contains(identifier, "@") {
		return domain.IdentifierEmail
	}
	return domain.IdentifierPhone
}

func (s *AuthService) publish(ctx context.Context, name string, send func(port.EventPublisher) error) {
	if s.events == nil {
		return
	}
	if err := send(s.events); err != nil {
		logger.WithContext(ctx, s.logger).Warn("publish event failed", zap.String("event", name), zap.Error(err))
	}
}
