package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/identity-verification/internal/core/domain"
	"github.com/arklim/identity-verification/internal/core/port"
	"github.com/arklim/identity-verification/internal/infra/logger"
	"github.com/arklim/identity-verification/internal/infra/security"
	"github.com/arklim/identity-verification/internal/repository"
)

const (
	defaultOTPLength      = 6
	defaultOTPMaxAttempts = 3
)

// OTPManager issues and verifies one-time codes with bounded attempts and expiry.
type OTPManager struct {
	store       port.OTPStore
	length      int
	maxAttempts int
	logger      *zap.Logger
	logCodes    bool
	now         func() time.Time
}

// OTPOption customizes an OTPManager.
type OTPOption func(*OTPManager)

// WithOTPLength sets the number of digits per code.
func WithOTPLength(length int) OTPOption {
	return func(m *OTPManager) {
		if length > 0 {
			m.length = length
		}
	}
}

// WithOTPMaxAttempts sets how many wrong codes invalidate a record.
func WithOTPMaxAttempts(max int) OTPOption {
	return func(m *OTPManager) {
		if max > 0 {
			m.maxAttempts = max
		}
	}
}

// WithOTPLogger attaches a logger. When logCodes is set plaintext codes are
// written at debug level; never enable it in production.
func WithOTPLogger(log *zap.Logger, logCodes bool) OTPOption {
	return func(m *OTPManager) {
		if log != nil {
			m.logger = log
		}
		m.logCodes = logCodes
	}
}

// NewOTPManager constructs an OTPManager backed by store.
func NewOTPManager(store port.OTPStore, opts ...OTPOption) *OTPManager {
	m := &OTPManager{
		store:       store,
		length:      defaultOTPLength,
		maxAttempts: defaultOTPMaxAttempts,
		logger:      zap.NewNop(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// WithClock overrides the time source, primarily for tests.
func (m *OTPManager) WithClock(now func() time.Time) *OTPManager {
	if now != nil {
		m.now = now
	}
	return m
}

// Length returns the configured code length.
func (m *OTPManager) Length() int {
	return m.length
}

// MaxAttempts returns the configured attempt cap.
func (m *OTPManager) MaxAttempts() int {
	return m.maxAttempts
}

// Generate overwrites any live code for (identifier, purpose) and returns the new plaintext code.
func (m *OTPManager) Generate(ctx context.Context, identifier string, purpose domain.OTPPurpose, ttl time.Duration) (string, error) {
	if identifier == "" {
		return "", fmt.Errorf("otp: identifier is required")
	}
	if !purpose.Valid() {
		return "", fmt.Errorf("otp: unknown purpose %q", purpose)
	}
	if ttl <= 0 {
		return "", fmt.Errorf("otp: ttl must be positive")
	}

	code, err := security.GenerateNumericCode(m.length)
	if err != nil {
		return "", fmt.Errorf("otp: generate code: %w", err)
	}

	now := m.now()
	record := domain.OTPRecord{
		Purpose:    purpose,
		Identifier: identifier,
		Code:       code,
		Attempts:   0,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}
	if err := m.store.Save(ctx, record, ttl); err != nil {
		return "", fmt.Errorf("otp: save: %w", err)
	}

	fields := []zap.Field{
		zap.String("identifier", logger.MaskIdentifier(identifier)),
		zap.String("purpose", string(purpose)),
		zap.Time("expires_at", record.ExpiresAt),
	}
	if m.logCodes {
		fields = append(fields, zap.String("code", code))
	}
	m.logger.Debug("otp generated", fields...)

	return code, nil
}

// Verify checks submitted against the live record. Expiry is checked before the
// attempt cap, and the cap before the code comparison.
func (m *OTPManager) Verify(ctx context.Context, identifier string, purpose domain.OTPPurpose, submitted string) (domain.OTPVerification, error) {
	record, err := m.store.Fetch(ctx, purpose, identifier)
	if errors.Is(err, repository.ErrNotFound) {
		return domain.OTPVerification{Reason: domain.OTPFailureNotFound}, nil
	}
	if err != nil {
		return domain.OTPVerification{}, fmt.Errorf("otp: fetch: %w", err)
	}

	if record.Expired(m.now()) {
		if err := m.store.Delete(ctx, purpose, identifier); err != nil {
			return domain.OTPVerification{}, fmt.Errorf("otp: evict expired: %w", err)
		}
		return domain.OTPVerification{Reason: domain.OTPFailureExpired}, nil
	}

	if record.Attempts >= m.maxAttempts {
		if err := m.store.Delete(ctx, purpose, identifier); err != nil {
			return domain.OTPVerification{}, fmt.Errorf("otp: evict exhausted: %w", err)
		}
		return domain.OTPVerification{Reason: domain.OTPFailureMaxAttempts}, nil
	}

	if security.CodesEqual(record.Code, submitted) {
		if err := m.store.Delete(ctx, purpose, identifier); err != nil {
			return domain.OTPVerification{}, fmt.Errorf("otp: consume: %w", err)
		}
		m.logger.Debug("otp verified",
			zap.String("identifier", logger.MaskIdentifier(identifier)),
			zap.String("purpose", string(purpose)),
		)
		return domain.OTPVerification{Success: true}, nil
	}

	attempts, err := m.store.IncrementAttempts(ctx, purpose, identifier)
	if errors.Is(err, repository.ErrNotFound) {
		// Evicted or overwritten by a concurrent call.
		return domain.OTPVerification{Reason: domain.OTPFailureNotFound}, nil
	}
	if err != nil {
		return domain.OTPVerification{}, fmt.Errorf("otp: increment attempts: %w", err)
	}

	if attempts >= m.maxAttempts {
		if err := m.store.Delete(ctx, purpose, identifier); err != nil {
			return domain.OTPVerification{}, fmt.Errorf("otp: evict exhausted: %w", err)
		}
		return domain.OTPVerification{Reason: domain.OTPFailureMaxAttempts}, nil
	}

	return domain.OTPVerification{
		Reason:            domain.OTPFailureInvalid,
		RemainingAttempts: m.maxAttempts - attempts,
	}, nil
}

// Exists reports whether a live code is stored, evicting it if already expired.
func (m *OTPManager) Exists(ctx context.Context, identifier string, purpose domain.OTPPurpose) (bool, error) {
	record, err := m.store.Fetch(ctx, purpose, identifier)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("otp: fetch: %w", err)
	}

	if record.Expired(m.now()) {
		if err := m.store.Delete(ctx, purpose, identifier); err != nil {
			return false, fmt.Errorf("otp: evict expired: %w", err)
		}
		return false, nil
	}
	return true, nil
}

// Info returns the live record with the code blanked out, or nil when none exists.
func (m *OTPManager) Info(ctx context.Context, identifier string, purpose domain.OTPPurpose) (*domain.OTPRecord, error) {
	record, err := m.store.Fetch(ctx, purpose, identifier)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("otp: fetch: %w", err)
	}
	record.Code = ""
	return record, nil
}

// Revoke drops the live code, if any.
func (m *OTPManager) Revoke(ctx context.Context, identifier string, purpose domain.OTPPurpose) error {
	if err := m.store.Delete(ctx, purpose, identifier); err != nil {
		return fmt.Errorf("otp: revoke: %w", err)
	}
	return nil
}
