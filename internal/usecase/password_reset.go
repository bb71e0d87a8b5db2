package usecase

import (
	"context"
	"errors"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/identity-verification/internal/core/domain"
	"github.com/arklim/identity-verification/internal/core/port"
	"github.com/arklim/identity-verification/internal/infra/logger"
	"github.com/arklim/identity-verification/internal/repository"
)

// PasswordResetRequestedMessage is returned by ForgotPassword whether or not the identifier is registered.
const PasswordResetRequestedMessage = "If the account exists, a password reset code has been sent."

// ForgotPassword sends a reset code to a registered identifier. Every identifier
// is throttled before the lookup, so the reply and the rate limit are identical
// for unknown identifiers.
func (s *AuthService) ForgotPassword(ctx context.Context, identifier string) (string, error) {
	ctx, span := s.startSpan(ctx, "ForgotPassword")
	defer span.End()

	if err := s.forgotPassword(ctx, identifier); err != nil {
		return "", s.fail(ctx, span, "forgot_password", err)
	}
	return PasswordResetRequestedMessage, nil
}

func (s *AuthService) forgotPassword(ctx context.Context, identifier string) error {
	kind, normalized, err := s.resolveIdentifier(identifier)
	if err != nil {
		return err
	}

	decision, err := s.admitOTP(ctx, normalized, domain.OTPPurposePasswordReset)
	if err != nil {
		return err
	}

	user, err := s.users.FindByIdentifier(ctx, kind, normalized, nil)
	if errors.Is(err, repository.ErrNotFound) {
		logger.WithContext(ctx, s.logger).Info("password reset requested for unknown identifier",
			zap.String("identifier", logger.MaskIdentifier(normalized)),
		)
		return nil
	}
	if err != nil {
		return err
	}

	if _, err := s.deliverOTP(ctx, kind, normalized, domain.OTPPurposePasswordReset, decision); err != nil {
		return err
	}

	logger.WithContext(ctx, s.logger).Info("password reset code sent", zap.String("user_id", user.ID))
	return nil
}

// ResetPassword replaces the password after verifying a reset code. The login
// counter and any lock are cleared. organizationID selects the account when the
// identifier is registered in several organizations; nil selects the oldest.
func (s *AuthService) ResetPassword(ctx context.Context, identifier, code, newPassword string, organizationID *int64) error {
	ctx, span := s.startSpan(ctx, "ResetPassword")
	defer span.End()

	if err := s.resetPassword(ctx, identifier, code, newPassword, organizationID); err != nil {
		return s.fail(ctx, span, "reset_password", err)
	}
	return nil
}

func (s *AuthService) resetPassword(ctx context.Context, identifier, code, newPassword string, organizationID *int64) error {
	kind, normalized, err := s.resolveIdentifier(identifier)
	if err != nil {
		return err
	}
	if err := s.checkOTPFormat(code); err != nil {
		return err
	}
	if err := s.checkPassword(newPassword, normalized); err != nil {
		return err
	}

	result, err := s.otp.Verify(ctx, normalized, domain.OTPPurposePasswordReset, code)
	if err != nil {
		return err
	}
	if !result.Success {
		s.metrics.OTPVerified(domain.OTPPurposePasswordReset, string(result.Reason))
		return otpFailure(result)
	}
	s.metrics.OTPVerified(domain.OTPPurposePasswordReset, "success")

	user, err := s.users.FindByIdentifier(ctx, kind, normalized, organizationID)
	if err != nil {
		return err
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	now := s.now()
	if err := s.users.UpdatePassword(ctx, user.ID, hash, now); err != nil {
		return err
	}

	logger.WithContext(ctx, s.logger).Info("password reset", zap.String("user_id", user.ID))
	s.publish(ctx, "user.password.reset", func(p port.EventPublisher) error {
		return p.PublishPasswordReset(ctx, domain.PasswordResetEvent{
			EventID: uuid.NewString(),
			UserID:  user.ID,
			ResetAt: now,
		})
	})
	return nil
}
