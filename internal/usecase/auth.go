package usecase

import (
	"context"
	"errors"
	"time"

	uuid "github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/arklim/identity-verification/internal/core/apperror"
	"github.com/arklim/identity-verification/internal/core/domain"
	"github.com/arklim/identity-verification/internal/core/port"
	"github.com/arklim/identity-verification/internal/infra/logger"
	"github.com/arklim/identity-verification/internal/repository"
)

const (
	loginOutcomeSuccess     = "success"
	loginOutcomeInvalid     = "invalid_credentials"
	loginOutcomeLocked      = "locked"
	loginOutcomeSuspended   = "suspended"
	loginOutcomeNotVerified = "not_verified"
	loginOutcomeError       = "error"
)

// Login verifies credentials and issues a token pair. Lookup misses and wrong
// passwords both report INVALID_CREDENTIALS.
func (s *AuthService) Login(ctx context.Context, creds domain.Credentials) (*domain.AuthResult, error) {
	ctx, span := s.startSpan(ctx, "Login")
	defer span.End()

	result, outcome, err := s.login(ctx, creds)
	s.metrics.LoginAttempt(outcome)
	if err != nil {
		return nil, s.fail(ctx, span, "login", err)
	}
	return result, nil
}

func (s *AuthService) login(ctx context.Context, creds domain.Credentials) (*domain.AuthResult, string, error) {
	kind, identifier, err := s.resolveIdentifier(creds.Identifier)
	if err != nil {
		return nil, loginOutcomeInvalid, err
	}
	if creds.Password == "" {
		return nil, loginOutcomeInvalid, apperror.New(apperror.CodeRequiredFieldMissing, "password is required").WithField("password")
	}

	user, err := s.users.FindByIdentifier(ctx, kind, identifier, creds.OrganizationID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, loginOutcomeInvalid, apperror.New(apperror.CodeInvalidCredentials, "")
	}
	if err != nil {
		return nil, loginOutcomeError, err
	}

	now := s.now()
	log := logger.WithContext(ctx, s.logger).With(
		zap.String("user_id", user.ID),
		zap.String("identifier", logger.MaskIdentifier(identifier)),
	)

	if !user.IsActive || user.Status == domain.UserStatusSuspended || user.Status == domain.UserStatusInactive {
		return nil, loginOutcomeSuspended, apperror.New(apperror.CodeAccountSuspended, "")
	}

	if s.lock.IsLocked(*user) {
		return nil, loginOutcomeLocked, lockedError(*user.LockedUntil, now)
	}

	if !user.Verified(kind) || user.Status == domain.UserStatusPending {
		return nil, loginOutcomeNotVerified, apperror.New(apperror.CodeNotVerified, "").WithDetail("identifierType", string(kind))
	}

	ok, err := s.hasher.Verify(creds.Password, user.PasswordHash)
	if err != nil {
		return nil, loginOutcomeError, err
	}
	if !ok {
		updated, err := s.lock.RecordFailedAttempt(ctx, *user)
		if err != nil {
			return nil, loginOutcomeError, err
		}

		if updated.IsLocked(now) {
			log.Warn("account locked after failed logins", zap.Int("login_attempts", updated.LoginAttempts))
			s.metrics.AccountLocked()
			s.publish(ctx, "account.locked", func(p port.EventPublisher) error {
				return p.PublishAccountLocked(ctx, domain.AccountLockedEvent{
					EventID:       uuid.NewString(),
					UserID:        updated.ID,
					LoginAttempts: updated.LoginAttempts,
					LockedUntil:   *updated.LockedUntil,
				})
			})
			return nil, loginOutcomeLocked, lockedError(*updated.LockedUntil, now).
				WithDetail("loginAttempts", updated.LoginAttempts)
		}

		return nil, loginOutcomeInvalid, apperror.New(apperror.CodeInvalidCredentials, "").
			WithDetail("remainingAttempts", s.lock.RemainingAttempts(*updated))
	}

	current, err := s.lock.RecordSuccess(ctx, *user)
	if err != nil {
		return nil, loginOutcomeError, err
	}

	pair, err := s.tokens.Issue(*current, identifier)
	if err != nil {
		return nil, loginOutcomeError, err
	}

	log.Info("user logged in")

	return &domain.AuthResult{
		User:         current.Sanitized(),
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    int64(s.tokens.AccessTTL() / time.Second),
	}, loginOutcomeSuccess, nil
}

func lockedError(until time.Time, now time.Time) *apperror.Error {
	retryAfter := int64(until.Sub(now) / time.Second)
	if retryAfter < 0 {
		retryAfter = 0
	}
	return apperror.New(apperror.CodeAccountLocked, "").
		WithDetail("lockedUntil", until.UTC()).
		WithDetail("retryAfterSeconds", retryAfter)
}

// RefreshToken rotates a refresh token into a new pair. Every verification
// failure, an unknown subject and an ineligible account all report INVALID_TOKEN.
func (s *AuthService) RefreshToken(ctx context.Context, refreshToken string) (*domain.AuthResult, error) {
	ctx, span := s.startSpan(ctx, "RefreshToken")
	defer span.End()

	user, subject, err := s.authenticateToken(ctx, refreshToken, domain.TokenTypeRefresh)
	if err != nil {
		return nil, s.fail(ctx, span, "refresh_token", err)
	}

	pair, err := s.tokens.Issue(*user, subject.Identifier)
	if err != nil {
		return nil, s.fail(ctx, span, "refresh_token", err)
	}

	return &domain.AuthResult{
		User:         user.Sanitized(),
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    int64(s.tokens.AccessTTL() / time.Second),
	}, nil
}

// ValidateToken resolves an access token to the user it was issued for.
func (s *AuthService) ValidateToken(ctx context.Context, accessToken string) (*domain.User, error) {
	ctx, span := s.startSpan(ctx, "ValidateToken")
	defer span.End()

	user, _, err := s.authenticateToken(ctx, accessToken, domain.TokenTypeAccess)
	if err != nil {
		return nil, s.fail(ctx, span, "validate_token", err)
	}

	span.SetAttributes(attribute.String("user.id", user.ID))
	sanitized := user.Sanitized()
	return &sanitized, nil
}

func (s *AuthService) authenticateToken(ctx context.Context, raw string, expected domain.TokenType) (*domain.User, *domain.TokenSubject, error) {
	if raw == "" {
		return nil, nil, apperror.New(apperror.CodeInvalidToken, "")
	}

	subject, err := s.tokens.Parse(raw, expected)
	if err != nil {
		return nil, nil, apperror.New(apperror.CodeInvalidToken, "").Wrap(err)
	}

	user, err := s.users.GetByID(ctx, subject.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil, apperror.New(apperror.CodeInvalidToken, "").Wrap(err)
	}
	if err != nil {
		return nil, nil, err
	}

	if !user.CanLogin(identifierKindOf(subject.Identifier), s.now()) {
		return nil, nil, apperror.New(apperror.CodeInvalidToken, "")
	}

	return user, subject, nil
}
