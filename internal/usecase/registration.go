package usecase

import (
	"context"
	"errors"
	"strings"

	uuid "github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/arklim/identity-verification/internal/core/apperror"
	"github.com/arklim/identity-verification/internal/core/domain"
	"github.com/arklim/identity-verification/internal/core/port"
	"github.com/arklim/identity-verification/internal/infra/logger"
	"github.com/arklim/identity-verification/internal/repository"
)

const minFullNameLength = 2

// RegistrationResult is returned by Register.
type RegistrationResult struct {
	User         domain.User
	Verification *OTPDelivery
}

// Register creates a pending account and sends a verification code to the
// primary identifier. If the code cannot be delivered the account stays pending
// and the caller may request a new code with SendOTP.
func (s *AuthService) Register(ctx context.Context, input domain.Registration) (*RegistrationResult, error) {
	ctx, span := s.startSpan(ctx, "Register", attribute.Int64("organization.id", input.OrganizationID))
	defer span.End()

	user, err := s.register(ctx, input)
	if err != nil {
		return nil, s.fail(ctx, span, "register", err)
	}

	kind := s.identifiers.Primary()
	delivery, err := s.issueOTP(ctx, kind, user.Identifier(kind), verificationPurpose(kind))
	if err != nil {
		return nil, s.fail(ctx, span, "register", err)
	}

	return &RegistrationResult{User: user.Sanitized(), Verification: delivery}, nil
}

func (s *AuthService) register(ctx context.Context, input domain.Registration) (*domain.User, error) {
	primary := s.identifiers.Primary()

	phone, email := strings.TrimSpace(input.Phone), strings.TrimSpace(input.Email)
	if primary == domain.IdentifierPhone && phone == "" {
		return nil, apperror.New(apperror.CodeRequiredFieldMissing, "phone is required").WithField("phone")
	}
	if primary == domain.IdentifierEmail && email == "" {
		return nil, apperror.New(apperror.CodeRequiredFieldMissing, "email is required").WithField("email")
	}
	if input.OrganizationID <= 0 {
		return nil, apperror.New(apperror.CodeRequiredFieldMissing, "organization is required").WithField("organizationId")
	}

	var err error
	if phone != "" {
		if phone, err = s.identifiers.Normalize(domain.IdentifierPhone, phone); err != nil {
			return nil, apperror.New(apperror.CodeInvalidIdentifier, "").WithField("phone").Wrap(err)
		}
	}
	if email != "" {
		if email, err = s.identifiers.Normalize(domain.IdentifierEmail, email); err != nil {
			return nil, apperror.New(apperror.CodeInvalidIdentifier, "").WithField("email").Wrap(err)
		}
	}

	fullName := strings.TrimSpace(input.FullName)
	if fullName == "" {
		return nil, apperror.New(apperror.CodeRequiredFieldMissing, "full name is required").WithField("fullName")
	}
	if len([]rune(fullName)) < minFullNameLength {
		return nil, apperror.New(apperror.CodeFieldTooShort, "full name must have at least 2 characters").WithField("fullName")
	}

	if err := s.checkPassword(input.Password, phone, email, fullName); err != nil {
		return nil, err
	}

	role := input.Role
	if role == "" {
		role = domain.UserRoleVisitor
	}
	if !role.Valid() {
		return nil, apperror.New(apperror.CodeRequiredFieldMissing, "role must be admin, staff or visitor").WithField("role")
	}

	orgID := input.OrganizationID
	for _, kind := range []domain.IdentifierKind{domain.IdentifierPhone, domain.IdentifierEmail} {
		value := phone
		if kind == domain.IdentifierEmail {
			value = email
		}
		if value == "" {
			continue
		}
		_, err := s.users.FindByIdentifier(ctx, kind, value, &orgID)
		if err == nil {
			return nil, apperror.New(apperror.CodeUserAlreadyExists, "").WithField(string(kind))
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, err
	}

	now := s.now()
	user := domain.User{
		ID:             uuid.NewString(),
		OrganizationID: orgID,
		Phone:          phone,
		Email:          email,
		FullName:       fullName,
		PasswordHash:   hash,
		Role:           role,
		Status:         domain.UserStatusPending,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	logger.WithContext(ctx, s.logger).Info("user registered",
		zap.String("user_id", user.ID),
		zap.Int64("organization_id", orgID),
		zap.String("phone", logger.MaskPhone(phone)),
	)
	s.publish(ctx, "user.registered", func(p port.EventPublisher) error {
		return p.PublishUserRegistered(ctx, domain.UserRegisteredEvent{
			EventID:        uuid.NewString(),
			UserID:         user.ID,
			OrganizationID: orgID,
			MaskedPhone:    logger.MaskPhone(phone),
			Role:           role,
			Status:         user.Status,
			RegisteredAt:   now,
		})
	})

	return &user, nil
}

// SendOTP issues a code for purpose and delivers it to identifier.
func (s *AuthService) SendOTP(ctx context.Context, identifier string, purpose domain.OTPPurpose) (*OTPDelivery, error) {
	ctx, span := s.startSpan(ctx, "SendOTP", attribute.String("otp.purpose", string(purpose)))
	defer span.End()

	kind, normalized, err := s.otpTarget(identifier, purpose)
	if err != nil {
		return nil, s.fail(ctx, span, "send_otp", err)
	}

	delivery, err := s.issueOTP(ctx, kind, normalized, purpose)
	if err != nil {
		return nil, s.fail(ctx, span, "send_otp", err)
	}
	return delivery, nil
}

// VerifyOTP consumes a code. A phone or email verification code also marks the
// identifier verified and activates a pending account; the updated user is returned.
// organizationID selects the account when the identifier is registered in several
// organizations; nil selects the oldest.
func (s *AuthService) VerifyOTP(ctx context.Context, identifier string, purpose domain.OTPPurpose, code string, organizationID *int64) (*domain.User, error) {
	ctx, span := s.startSpan(ctx, "VerifyOTP", attribute.String("otp.purpose", string(purpose)))
	defer span.End()

	user, err := s.verifyOTP(ctx, identifier, purpose, code, organizationID)
	if err != nil {
		return nil, s.fail(ctx, span, "verify_otp", err)
	}
	return user, nil
}

func (s *AuthService) verifyOTP(ctx context.Context, identifier string, purpose domain.OTPPurpose, code string, organizationID *int64) (*domain.User, error) {
	kind, normalized, err := s.otpTarget(identifier, purpose)
	if err != nil {
		return nil, err
	}
	if err := s.checkOTPFormat(code); err != nil {
		return nil, err
	}

	result, err := s.otp.Verify(ctx, normalized, purpose, code)
	if err != nil {
		return nil, err
	}
	if !result.Success {
		s.metrics.OTPVerified(purpose, string(result.Reason))
		return nil, otpFailure(result)
	}
	s.metrics.OTPVerified(purpose, "success")

	if purpose != domain.OTPPurposePhoneVerification && purpose != domain.OTPPurposeEmailVerification {
		return nil, nil
	}

	user, err := s.users.FindByIdentifier(ctx, kind, normalized, organizationID)
	if err != nil {
		return nil, err
	}

	verified := true
	patch := domain.UserPatch{}
	if kind == domain.IdentifierEmail {
		patch.EmailVerified = &verified
		user.EmailVerified = true
	} else {
		patch.PhoneVerified = &verified
		user.PhoneVerified = true
	}
	if user.Status == domain.UserStatusPending {
		active := domain.UserStatusActive
		patch.Status = &active
		user.Status = active
	}

	if err := s.users.Update(ctx, user.ID, patch); err != nil {
		return nil, err
	}

	now := s.now()
	user.UpdatedAt = now
	logger.WithContext(ctx, s.logger).Info("identifier verified",
		zap.String("user_id", user.ID),
		zap.String("purpose", string(purpose)),
	)
	s.publish(ctx, "user.verified", func(p port.EventPublisher) error {
		return p.PublishUserVerified(ctx, domain.UserVerifiedEvent{
			EventID:    uuid.NewString(),
			UserID:     user.ID,
			Purpose:    purpose,
			VerifiedAt: now,
		})
	})

	sanitized := user.Sanitized()
	return &sanitized, nil
}

// otpTarget validates purpose and normalizes identifier for it.
func (s *AuthService) otpTarget(identifier string, purpose domain.OTPPurpose) (domain.IdentifierKind, string, error) {
	if !purpose.Valid() {
		return "", "", apperror.New(apperror.CodeRequiredFieldMissing, "purpose must be a known OTP purpose").WithField("purpose")
	}

	kind, normalized, err := s.resolveIdentifier(identifier)
	if err != nil {
		return "", "", err
	}

	switch {
	case purpose == domain.OTPPurposePhoneVerification && kind != domain.IdentifierPhone,
		purpose == domain.OTPPurposeEmailVerification && kind != domain.IdentifierEmail:
		return "", "", apperror.New(apperror.CodeInvalidIdentifier, "identifier does not match the verification purpose").WithField("identifier")
	}
	return kind, normalized, nil
}

func verificationPurpose(kind domain.IdentifierKind) domain.OTPPurpose {
	if kind == domain.IdentifierEmail {
		return domain.OTPPurposeEmailVerification
	}
	return domain.OTPPurposePhoneVerification
}
